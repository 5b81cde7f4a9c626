package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/pokertour/internal/filter"
	"github.com/pfrederiksen/pokertour/internal/logger"
	"github.com/pfrederiksen/pokertour/internal/server"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// filterFlags are the selection flags shared by list and new
type filterFlags struct {
	start    string
	end      string
	dates    string
	minBuyIn string
	maxBuyIn string
	circuits []string
	states   []string
	search   string
	limit    int
	refresh  bool
}

func (ff *filterFlags) register(cmd *cobra.Command, withRefresh bool) {
	fs := cmd.Flags()
	fs.StringVar(&ff.start, "start", "", "Earliest start date (YYYY-MM-DD)")
	fs.StringVar(&ff.end, "end", "", "Latest start date (YYYY-MM-DD, inclusive)")
	fs.StringVar(&ff.dates, "dates", "", `Date range: "Mar 1-15", "March 1 - April 15" or "March"`)
	fs.StringVar(&ff.minBuyIn, "min-buy-in", "", "Minimum buy-in")
	fs.StringVar(&ff.maxBuyIn, "max-buy-in", "", "Maximum buy-in")
	fs.StringSliceVar(&ff.circuits, "circuit", nil, "Circuit categories: major_tour, regional_tour, independent")
	fs.StringSliceVar(&ff.states, "state", nil, "Venue state codes (e.g., NV,CA)")
	fs.StringVar(&ff.search, "search", "", "Case-insensitive text search")
	fs.IntVar(&ff.limit, "limit", 0, "Maximum results (0 for all)")
	if withRefresh {
		fs.BoolVar(&ff.refresh, "refresh", false, "Bypass the cache and fetch from every source")
	}
}

// build converts the flags into a validated filter, sharing parsing with the HTTP API
func (ff *filterFlags) build(o *rootOptions) (*filter.Filter, error) {
	q := url.Values{}
	set := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			q.Set(key, value)
		}
	}
	set("start", ff.start)
	set("end", ff.end)
	set("dates", ff.dates)
	set("min_buy_in", ff.minBuyIn)
	set("max_buy_in", ff.maxBuyIn)
	set("q", ff.search)
	set("circuit", strings.Join(ff.circuits, ","))
	set("state", strings.Join(ff.states, ","))
	if ff.limit != 0 {
		q.Set("limit", strconv.Itoa(ff.limit))
	}
	if ff.refresh {
		q.Set("refresh", "true")
	}
	return filter.FromQuery(q, o.now())
}

func newListCmd(o *rootOptions) *cobra.Command {
	var (
		ff        filterFlags
		format    string
		sortOrder string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tournaments from all sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := ParseFormat(format, FormatText, FormatJSON, FormatICS)
			if err != nil {
				return err
			}
			order, err := ParseSortOrder(sortOrder)
			if err != nil {
				return err
			}
			f, err := ff.build(o)
			if err != nil {
				return err
			}

			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close() // nolint:errcheck

			res, err := a.svc.Query(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("querying tournaments: %w", err)
			}
			sortTournaments(res.Tournaments, order)

			return WriteList(cmd.OutOrStdout(), NewListResult(res, o.now()), outFormat, o.verbose)
		},
	}

	ff.register(cmd, true)
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or ics")
	cmd.Flags().StringVar(&sortOrder, "sort", "", "Sort by date, buyin, name or venue (default: date, then circuit, then buy-in)")

	return cmd
}

func newShowCmd(o *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a tournament from the last saved snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := ParseFormat(format, FormatText, FormatJSON, FormatICS)
			if err != nil {
				return err
			}

			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close() // nolint:errcheck

			t, err := a.store.GetTournamentByID(args[0])
			if err != nil {
				return err
			}
			return WriteTournament(cmd.OutOrStdout(), t, outFormat, o.now())
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or ics")
	return cmd
}

func newHealthCmd(o *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe every source and report availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := ParseFormat(format, FormatText, FormatJSON)
			if err != nil {
				return err
			}

			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close() // nolint:errcheck

			return WriteHealth(cmd.OutOrStdout(), a.svc.CheckDataSourceHealth(cmd.Context()), outFormat)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func newRefreshCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Clear the cache and re-fetch every source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close() // nolint:errcheck

			if err := a.svc.RefreshAllData(cmd.Context()); err != nil {
				return fmt.Errorf("refreshing: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache refreshed.")
			return WriteHealth(cmd.OutOrStdout(), a.svc.GetDataSourceHealth(), FormatText)
		},
	}
}

func newNewCmd(o *rootOptions) *cobra.Command {
	var (
		ff       filterFlags
		snapshot string
		format   string
		seed     bool
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Report tournaments listed since the last run",
		Long: `Fetch current listings from every source and report the tournaments that were
not in the previous snapshot, then save the current listings as the new snapshot.
Exits with status 2 when new tournaments were found.

Use a distinct --snapshot name for each filter you track.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := ParseFormat(format, FormatText, FormatJSON)
			if err != nil {
				return err
			}
			f, err := ff.build(o)
			if err != nil {
				return err
			}
			f.ForceRefresh = true

			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close() // nolint:errcheck

			var previous *tournament.Snapshot
			if !seed {
				previous, err = a.store.LoadSnapshot(snapshot)
				if err != nil {
					return fmt.Errorf("loading snapshot: %w", err)
				}
				a.log.Debug("loaded previous snapshot", logger.Fields{
					"snapshot":    snapshot,
					"tournaments": len(previous.Tournaments),
				})
			}

			res, err := a.svc.Query(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("querying tournaments: %w", err)
			}
			if res.AllSourcesFailed {
				return fmt.Errorf("all sources failed; snapshot %s left unchanged", snapshot)
			}

			diff := tournament.Diff(previous, res.Tournaments)

			if err := a.store.CreateSnapshotFromTournaments(res.Tournaments, snapshot); err != nil {
				return fmt.Errorf("saving snapshot: %w", err)
			}

			result := &DiffResult{
				CheckedAt: o.now().UTC(),
				Snapshot:  snapshot,
			}
			if seed {
				if outFormat == FormatText {
					fmt.Fprintln(cmd.OutOrStdout(), "Snapshot refreshed successfully.")
					return nil
				}
				result.NewTournaments = []tournament.Tournament{}
				return WriteDiff(cmd.OutOrStdout(), result, outFormat, o.verbose)
			}

			result.NewTournaments = diff.New
			result.Count = len(diff.New)
			result.Removed = len(diff.Removed)
			if len(diff.New) > 0 {
				result.ByState = diff.ByState
			}

			if err := WriteDiff(cmd.OutOrStdout(), result, outFormat, o.verbose); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			if result.Count > 0 {
				return ErrNewTournaments
			}
			return nil
		},
	}

	ff.register(cmd, false)
	cmd.Flags().StringVar(&snapshot, "snapshot", "all", "Snapshot name to compare against")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&seed, "refresh", false, "Save the snapshot without reporting new tournaments")

	return cmd
}

func newServeCmd(o *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openApp()
			if err != nil {
				return err
			}
			defer a.Close() // nolint:errcheck

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, a, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, a *app, addr string) error {
	srv := server.New(a.svc,
		server.WithLogger(a.log.With(logger.Fields{"component": "http"})),
		server.WithMetrics(a.metrics),
	)
	return srv.ListenAndServe(ctx, addr)
}
