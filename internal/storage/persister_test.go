package storage

import (
	"sort"
	"testing"
	"time"

	"github.com/pfrederiksen/pokertour/internal/cache"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() }) // nolint:errcheck
	return store
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir() + "/cache/cache.json")
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func testEntry(key string, created time.Time, ts ...tournament.Tournament) cache.Entry {
	return cache.Entry{
		Key:         key,
		Tournaments: ts,
		CreatedAt:   created,
		ExpiresAt:   created.Add(30 * time.Minute),
	}
}

func TestPersisters(t *testing.T) {
	persisters := []struct {
		name  string
		store func(t *testing.T) cache.Persister
	}{
		{"file", func(t *testing.T) cache.Persister { return newFileStore(t) }},
		{"sqlite", func(t *testing.T) cache.Persister { return newSQLiteStore(t) }},
	}

	created := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	orleans := testTournament("a:1", "Main Event", "NV")
	wynn := testTournament("a:2", "Wynn Classic", "NV")

	for _, p := range persisters {
		t.Run(p.name, func(t *testing.T) {
			store := p.store(t)

			t.Run("empty load", func(t *testing.T) {
				entries, err := store.Load()
				if err != nil {
					t.Fatalf("Load() error = %v", err)
				}
				if len(entries) != 0 {
					t.Errorf("Load() = %d entries, want 0", len(entries))
				}
			})

			t.Run("save and load", func(t *testing.T) {
				if err := store.Save(testEntry("k1", created, orleans, wynn)); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
				if err := store.Save(testEntry("k2", created, wynn)); err != nil {
					t.Fatalf("Save() error = %v", err)
				}

				entries, err := store.Load()
				if err != nil {
					t.Fatalf("Load() error = %v", err)
				}
				sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

				if len(entries) != 2 {
					t.Fatalf("Load() = %d entries, want 2", len(entries))
				}
				if entries[0].Key != "k1" || len(entries[0].Tournaments) != 2 {
					t.Errorf("entry k1 = %+v", entries[0])
				}
				if entries[0].Tournaments[0].Name != "Main Event" {
					t.Errorf("first tournament = %q, want Main Event (order preserved)", entries[0].Tournaments[0].Name)
				}
				if !entries[0].ExpiresAt.Equal(created.Add(30 * time.Minute)) {
					t.Errorf("ExpiresAt = %v, want %v", entries[0].ExpiresAt, created.Add(30*time.Minute))
				}
			})

			t.Run("save replaces", func(t *testing.T) {
				if err := store.Save(testEntry("k1", created.Add(time.Hour), orleans)); err != nil {
					t.Fatal(err)
				}
				entries, _ := store.Load()
				for _, e := range entries {
					if e.Key == "k1" && len(e.Tournaments) != 1 {
						t.Errorf("k1 tournaments = %d, want 1", len(e.Tournaments))
					}
				}
			})

			t.Run("delete", func(t *testing.T) {
				if err := store.Delete("k2"); err != nil {
					t.Fatal(err)
				}
				if err := store.Delete("missing"); err != nil {
					t.Errorf("Delete(missing) error = %v", err)
				}
				entries, _ := store.Load()
				if len(entries) != 1 {
					t.Errorf("Load() after Delete = %d entries, want 1", len(entries))
				}
			})

			t.Run("clear", func(t *testing.T) {
				if err := store.Clear(); err != nil {
					t.Fatal(err)
				}
				entries, _ := store.Load()
				if len(entries) != 0 {
					t.Errorf("Load() after Clear = %d entries, want 0", len(entries))
				}
			})
		})
	}
}

func TestPersister_RestoresCacheStore(t *testing.T) {
	fs := newFileStore(t)
	now := time.Now()

	first := cache.New(cache.WithPersister(fs), cache.WithClock(func() time.Time { return now }))
	first.Put("sig", []tournament.Tournament{testTournament("a:1", "Main Event", "NV")})

	second := cache.New(cache.WithPersister(fs), cache.WithClock(func() time.Time { return now.Add(time.Minute) }))
	n, err := second.Restore()
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Restore() = %d, want 1", n)
	}

	entry, status := second.Get("sig")
	if status != cache.StatusHit {
		t.Fatalf("Get() status = %v, want hit", status)
	}
	if entry.Tournaments[0].Name != "Main Event" {
		t.Errorf("restored tournament = %q", entry.Tournaments[0].Name)
	}
}

func TestSQLiteStore_PurgeExpired(t *testing.T) {
	store := newSQLiteStore(t)
	created := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Save(testEntry("old", created)); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(testEntry("new", created.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	n, err := store.PurgeExpired(created.Add(45 * time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
}
