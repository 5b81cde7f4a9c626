package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/pokertour/internal/filter"
	"github.com/pfrederiksen/pokertour/internal/health"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

var testNow = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

const mainEvent = `{"id": 1001, "name": "WSOP Circuit Main Event",
  "circuit": {"id": "wsopc", "name": "WSOP Circuit", "category": "major_tour"},
  "venue": {"name": "Horseshoe Hammond", "city": "Hammond", "state": "IN"},
  "buy_in": 1700, "start_date": "2024-02-15", "url": "https://example.com/t/1001"}`

const deepstack = `{"id": "deep-250", "name": "Deepstack",
  "venue": {"name": "Orleans", "city": "Las Vegas", "state": "NV"},
  "buy_in": 250, "start_date": "2024-02-10"}`

const seniors = `{"id": "sr-400", "name": "Seniors Event",
  "venue": {"name": "Bicycle Casino", "city": "Bell Gardens", "state": "CA"},
  "buy_in": 400, "start_date": "2024-03-02"}`

// listingServer serves a REST listing that tests can change or take down
type listingServer struct {
	*httptest.Server

	mu    sync.Mutex
	items []string
	down  bool
}

func newListingServer(t *testing.T, items ...string) *listingServer {
	t.Helper()
	ls := &listingServer{items: items}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		if ls.down {
			http.Error(w, "maintenance", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodHead {
			return
		}
		fmt.Fprintf(w, `{"tournaments": [%s]}`, strings.Join(ls.items, ","))
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *listingServer) set(items ...string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.items = items
}

func (ls *listingServer) setDown(down bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.down = down
}

func writeConfig(t *testing.T, dir, url, backend string) string {
	t.Helper()
	cfg := fmt.Sprintf(`data_dir: %s
cache:
  backend: %s
health:
  probe_timeout: 2s
sources:
  - name: tourapi
    kind: rest
    url: %s/tournaments
    max_retries: 1
`, dir, backend, url)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the CLI with args and returns what it wrote to stdout
func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	opts := &rootOptions{
		stderr: io.Discard,
		now:    func() time.Time { return testNow },
	}
	cmd := newRootCmd(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	envFile := filepath.Join(filepath.Dir(configPath), "missing.env")
	cmd.SetArgs(append([]string{"--config", configPath, "--env-file", envFile}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	ls := newListingServer(t, mainEvent, deepstack, seniors)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, ls.URL, "none")

	t.Run("text", func(t *testing.T) {
		out, err := run(t, cfg, "list")
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		for _, want := range []string{
			"Sat Feb 10 2024  $250  Deepstack",
			"Horseshoe Hammond, Hammond, IN  [WSOP Circuit]",
			"Total: 3 tournaments (live)",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Index(out, "Deepstack") > strings.Index(out, "Main Event") {
			t.Errorf("expected date order:\n%s", out)
		}
	})

	t.Run("json with filter", func(t *testing.T) {
		out, err := run(t, cfg, "list", "--state", "nv,ca", "--max-buy-in", "300", "--format", "json")
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		var result ListResult
		if err := json.Unmarshal([]byte(out), &result); err != nil {
			t.Fatalf("Unmarshal() error = %v\n%s", err, out)
		}
		if result.Count != 1 || result.Tournaments[0].ID != "tourapi:deep-250" {
			t.Errorf("result = %+v, want only tourapi:deep-250", result.Tournaments)
		}
		if len(result.Health) != 1 || !result.Health[0].Available {
			t.Errorf("health = %+v, want tourapi available", result.Health)
		}
	})

	t.Run("sort by buy-in", func(t *testing.T) {
		out, err := run(t, cfg, "list", "--sort", "buyin")
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		if !(strings.Index(out, "Deepstack") < strings.Index(out, "Seniors") &&
			strings.Index(out, "Seniors") < strings.Index(out, "Main Event")) {
			t.Errorf("expected ascending buy-in:\n%s", out)
		}
	})

	t.Run("ics", func(t *testing.T) {
		out, err := run(t, cfg, "list", "--format", "ics", "--limit", "1")
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		if !strings.HasPrefix(out, "BEGIN:VCALENDAR") {
			t.Errorf("expected calendar, got %q", out)
		}
		if n := strings.Count(out, "BEGIN:VEVENT"); n != 1 {
			t.Errorf("events = %d, want 1", n)
		}
	})
}

func TestList_InvalidFlags(t *testing.T) {
	ls := newListingServer(t, mainEvent)
	cfg := writeConfig(t, t.TempDir(), ls.URL, "none")

	tests := []struct {
		name   string
		args   []string
		filter bool
	}{
		{"bad format", []string{"list", "--format", "xml"}, false},
		{"bad sort", []string{"list", "--sort", "prestige"}, false},
		{"inverted buy-in", []string{"list", "--min-buy-in", "500", "--max-buy-in", "100"}, true},
		{"unknown circuit", []string{"list", "--circuit", "galactic"}, true},
		{"bad date", []string{"list", "--start", "tomorrow-ish"}, true},
		{"negative limit", []string{"list", "--limit", "-1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, cfg, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, filter.ErrInvalidFilter); got != tt.filter {
				t.Errorf("errors.Is(ErrInvalidFilter) = %v, want %v (err = %v)", got, tt.filter, err)
			}
		})
	}
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "nope.yaml"), "list")
	if err == nil || !strings.Contains(err.Error(), "reading config") {
		t.Errorf("error = %v, want reading config", err)
	}
}

func TestNew(t *testing.T) {
	ls := newListingServer(t, mainEvent, deepstack)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, ls.URL, "none")

	out, err := run(t, cfg, "new", "--refresh")
	if err != nil {
		t.Fatalf("seed error = %v", err)
	}
	if !strings.Contains(out, "Snapshot refreshed successfully.") {
		t.Errorf("seed output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshot.json")); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	out, err = run(t, cfg, "new")
	if err != nil {
		t.Fatalf("unchanged listings error = %v", err)
	}
	if !strings.Contains(out, "No new tournaments found.") {
		t.Errorf("output = %q", out)
	}

	ls.set(mainEvent, seniors)
	out, err = run(t, cfg, "new", "--format", "json")
	if !errors.Is(err, ErrNewTournaments) {
		t.Fatalf("error = %v, want ErrNewTournaments", err)
	}
	var result DiffResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, out)
	}
	if result.Count != 1 || result.NewTournaments[0].ID != "tourapi:sr-400" {
		t.Errorf("new = %+v, want tourapi:sr-400", result.NewTournaments)
	}
	if result.Removed != 1 {
		t.Errorf("removed = %d, want 1", result.Removed)
	}
	if len(result.ByState["CA"]) != 1 {
		t.Errorf("by_state = %+v, want one CA entry", result.ByState)
	}
}

func TestNew_AllSourcesFailed(t *testing.T) {
	ls := newListingServer(t, mainEvent)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, ls.URL, "none")
	ls.setDown(true)

	_, err := run(t, cfg, "new")
	if err == nil || !strings.Contains(err.Error(), "all sources failed") {
		t.Fatalf("error = %v, want all sources failed", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshot.json")); !os.IsNotExist(err) {
		t.Errorf("snapshot written after total failure: %v", err)
	}
}

func TestShow(t *testing.T) {
	ls := newListingServer(t, mainEvent)
	cfg := writeConfig(t, t.TempDir(), ls.URL, "none")

	if _, err := run(t, cfg, "new", "--refresh"); err != nil {
		t.Fatalf("seed error = %v", err)
	}

	out, err := run(t, cfg, "show", "tourapi:1001")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "WSOP Circuit Main Event") || !strings.Contains(out, "URL: https://example.com/t/1001") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, cfg, "show", "tourapi:1001", "--format", "ics")
	if err != nil {
		t.Fatalf("show ics error = %v", err)
	}
	if !strings.Contains(out, "UID:tourapi:1001@pokertour") {
		t.Errorf("ics = %q", out)
	}

	if _, err := run(t, cfg, "show", "tourapi:404"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestHealth(t *testing.T) {
	ls := newListingServer(t, mainEvent)
	cfg := writeConfig(t, t.TempDir(), ls.URL, "none")

	out, err := run(t, cfg, "health")
	if err != nil {
		t.Fatalf("health error = %v", err)
	}
	if !strings.Contains(out, "OK   tourapi") || !strings.Contains(out, "1 of 1 sources available") {
		t.Errorf("output = %q", out)
	}

	ls.setDown(true)
	out, err = run(t, cfg, "health", "--format", "json")
	if err != nil {
		t.Fatalf("health error = %v", err)
	}
	var sources []health.SourceHealth
	if err := json.Unmarshal([]byte(out), &sources); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, out)
	}
	if len(sources) != 1 || sources[0].Available || sources[0].Error == "" {
		t.Errorf("sources = %+v, want tourapi down with error", sources)
	}
}

func TestRefresh(t *testing.T) {
	ls := newListingServer(t, mainEvent)
	cfg := writeConfig(t, t.TempDir(), ls.URL, "none")

	out, err := run(t, cfg, "refresh")
	if err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if !strings.Contains(out, "Cache refreshed.") || !strings.Contains(out, "OK   tourapi") {
		t.Errorf("output = %q", out)
	}
}

func TestCachePersistence(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			ls := newListingServer(t, mainEvent, deepstack)
			cfg := writeConfig(t, t.TempDir(), ls.URL, backend)

			if _, err := run(t, cfg, "list"); err != nil {
				t.Fatalf("first list error = %v", err)
			}

			ls.setDown(true)
			out, err := run(t, cfg, "list", "--format", "json")
			if err != nil {
				t.Fatalf("second list error = %v", err)
			}
			var result ListResult
			if err := json.Unmarshal([]byte(out), &result); err != nil {
				t.Fatalf("Unmarshal() error = %v\n%s", err, out)
			}
			if !result.FromCache || result.Count != 2 {
				t.Errorf("result = from_cache %v count %d, want cached 2", result.FromCache, result.Count)
			}
		})
	}
}

func TestDatesFlagExamplesParse(t *testing.T) {
	cmd := newListCmd(&rootOptions{now: func() time.Time { return testNow }})
	usage := cmd.Flags().Lookup("dates").Usage

	parts := strings.Split(usage, `"`)
	if len(parts) < 3 {
		t.Fatalf("--dates usage %q quotes no examples", usage)
	}
	for i := 1; i < len(parts); i += 2 {
		example := parts[i]
		t.Run(example, func(t *testing.T) {
			if _, _, err := filter.ParseDateRangeAt(example, testNow); err != nil {
				t.Errorf("--dates example %q does not parse: %v", example, err)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(" JSON ", FormatText, FormatJSON); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	_, err := ParseFormat("ics", FormatText, FormatJSON)
	if err == nil || !strings.Contains(err.Error(), "'text' or 'json'") {
		t.Errorf("ParseFormat(ics) error = %v", err)
	}
}

func TestSortTournaments(t *testing.T) {
	mk := func(name, venue string, day int, buyIn int64) tournament.Tournament {
		return tournament.Tournament{
			Name:      name,
			Venue:     tournament.Venue{Name: venue},
			StartDate: time.Date(2024, 2, day, 0, 0, 0, 0, time.UTC),
			BuyIn:     decimal.NewFromInt(buyIn),
		}
	}
	base := []tournament.Tournament{
		mk("bounty", "Wynn", 3, 600),
		mk("Ante Up", "Aria", 5, 400),
		mk("Crazy Eights", "Aria", 1, 888),
	}

	tests := []struct {
		order SortOrder
		want  []string
	}{
		{SortDefault, []string{"bounty", "Ante Up", "Crazy Eights"}},
		{SortByDate, []string{"Crazy Eights", "bounty", "Ante Up"}},
		{SortByBuyIn, []string{"Ante Up", "bounty", "Crazy Eights"}},
		{SortByName, []string{"Ante Up", "bounty", "Crazy Eights"}},
		{SortByVenue, []string{"Crazy Eights", "Ante Up", "bounty"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			ts := append([]tournament.Tournament(nil), base...)
			sortTournaments(ts, tt.order)
			for i, name := range tt.want {
				if ts[i].Name != name {
					t.Fatalf("position %d = %s, want %s", i, ts[i].Name, name)
				}
			}
		})
	}
}

func TestWriteHealth_RateLimit(t *testing.T) {
	remaining := 0
	reset := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	sources := []health.SourceHealth{
		{SourceName: "tourapi", Available: true, RateLimitRemaining: &remaining, RateLimitReset: &reset},
		{SourceName: "cardroom", Error: "source unavailable: 503", ConsecutiveFailures: 3},
	}

	var buf bytes.Buffer
	if err := WriteHealth(&buf, sources, FormatText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"OK   tourapi [rate limit: 0 remaining, resets 2024-02-01T10:00:00Z]",
		"DOWN cardroom: source unavailable: 503 (3 consecutive failures)",
		"1 of 2 sources available",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteDiff_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDiff(&buf, &DiffResult{}, FormatText, false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No new tournaments found.\n" {
		t.Errorf("output = %q", buf.String())
	}
}
