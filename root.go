package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tvollmer/mediadmin/internal/api"
	"github.com/tvollmer/mediadmin/internal/config"
	"github.com/tvollmer/mediadmin/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// httpClientTimeout is the default timeout for HTTP requests.
// Prevents hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mediadmin",
		Short:   "Media collection admin CLI",
		Long:    "Admin client for a remote media collection: session, image management, and uploads.",
		Version: version,
		// Silence cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newProfileCmd())
	cmd.AddCommand(newImagesCmd())

	return cmd
}

// loadConfig resolves the effective configuration and stores the result
// in resolvedCfg for use by subcommands.
func loadConfig() error {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// app bundles the components a subcommand needs: config, logger, the
// restored session store, and an API client authenticated through it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	storage *session.SQLiteStorage
	store   *session.Store
	client  *api.Client
}

// newApp opens the session database, restores the persisted session, and
// wires the API client. When requireAuth is set, commands fail before any
// network call if no credential is present — the route-guard read.
func newApp(ctx context.Context, requireAuth bool) (*app, error) {
	logger := buildLogger()

	storage, err := session.OpenStorage(resolvedCfg.SessionDBPath(), logger)
	if err != nil {
		return nil, err
	}

	store := session.NewStore(storage, logger)
	store.Restore(ctx)

	if requireAuth && !store.IsAuthenticated() {
		storage.Close()
		return nil, fmt.Errorf("not logged in — run 'mediadmin login' first")
	}

	return &app{
		cfg:     resolvedCfg,
		logger:  logger,
		storage: storage,
		store:   store,
		client:  api.NewClient(resolvedCfg.BaseURL, defaultHTTPClient(), store, logger),
	}, nil
}

// Close releases the session database handle.
func (a *app) Close() {
	if err := a.storage.Close(); err != nil {
		a.logger.Warn("closing session storage", slog.String("error", err.Error()))
	}
}

// checkAuthError logs the session out when the server rejected the token,
// so the next command starts from a clean logged-out state.
func (a *app) checkAuthError(ctx context.Context, err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		if logoutErr := a.store.Logout(ctx); logoutErr != nil {
			a.logger.Warn("clearing rejected session", slog.String("error", logoutErr.Error()))
		}

		return fmt.Errorf("session expired — run 'mediadmin login' again: %w", err)
	}

	return err
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
