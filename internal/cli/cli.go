package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/pokertour/internal/config"
	"github.com/pfrederiksen/pokertour/internal/logger"
)

const (
	ExitSuccess        = 0
	ExitError          = 1
	ExitNewTournaments = 2
)

// ErrNewTournaments is returned by the new command when it found listings that
// were not in the previous snapshot. Execute maps it to ExitNewTournaments.
var ErrNewTournaments = errors.New("new tournaments found")

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool

	// stderr receives logs; tests replace it along with the clock and HTTP client
	stderr     io.Writer
	now        func() time.Time
	httpClient *http.Client
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{
		stderr: os.Stderr,
		now:    time.Now,
	})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pokertour",
		Short: "Aggregate poker tournament listings from multiple sources",
		Long: `A CLI tool to aggregate poker tournament listings from REST APIs, scraped
listing pages and browser-rendered sites into one filtered, de-duplicated view.
Results are cached, and source health is tracked across runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional .env file with API keys")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	cmd.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newHealthCmd(opts),
		newRefreshCmd(opts),
		newNewCmd(opts),
		newServeCmd(opts),
	)

	return cmd
}

// loadConfig reads the .env file and then the config file
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger; --verbose wins over the configured level
func (o *rootOptions) newLogger(cfg *config.Config) (*logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		level = logger.LevelDebug
	}
	log := logger.New(level, o.stderr)
	logger.SetDefault(log)
	return log, nil
}

// openApp loads configuration and wires the aggregator
func (o *rootOptions) openApp() (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := o.newLogger(cfg)
	if err != nil {
		return nil, err
	}
	log.Debug("loaded config", logger.Fields{
		"config":  o.configPath,
		"sources": len(cfg.EnabledSources()),
		"backend": cfg.Cache.Backend,
	})
	return newApp(cfg, log, o.httpClient, o.now)
}

// Execute runs the CLI and exits with the matching exit code
func Execute() {
	err := NewRootCmd().Execute()
	switch {
	case err == nil:
		os.Exit(ExitSuccess)
	case errors.Is(err, ErrNewTournaments):
		os.Exit(ExitNewTournaments)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
