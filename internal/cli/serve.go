package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/prn-tf/cinelog/internal/app"
	"github.com/prn-tf/cinelog/internal/handler"
)

// NewServeCommand creates the serve command, which runs the read-only HTTP API.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve review listings and statistics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return serve(ctx, a, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.host:server.port)")

	return cmd
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, a *app.App, addr string) error {
	cfg := a.Config.Server
	if addr == "" {
		addr = cfg.Addr()
	}
	logger := a.Logger()

	var metricsHandler http.Handler
	if a.Metrics != nil {
		metricsHandler = a.Metrics.Handler()
	}
	router := handler.NewRouter(handler.RouterConfig{
		ReviewHandler:  handler.NewReviewHandler(a, logger),
		Database:       a,
		MetricsHandler: metricsHandler,
		MetricsPath:    a.Config.Metrics.Path,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("version", Version).
			Str("driver", a.DB.Driver).
			Msg("starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return WrapExitError(ExitCommandError, "server failed", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// NewMigrateCommand creates the migrate command. Opening the store applies
// every pending migration, so the command only reports the outcome.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Ping(ctx); err != nil {
					return WrapExitError(ExitCommandError, "database unreachable", err)
				}
				return opts.formatter(cmd).Message("%s schema is up to date", a.DB.Driver)
			})
		},
	}
}

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit}
			return opts.formatter(cmd).Print(info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "cinelog %s (commit %s, built %s)\n", info.Version, info.GitCommit, info.BuildTime)
				return err
			})
		},
	}
}
