package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/amflow/internal/config"
	"github.com/roach88/amflow/internal/hub"
	"github.com/roach88/amflow/internal/store"
	"github.com/roach88/amflow/internal/wsflow"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config   string
	Addr     string
	Database string

	// Listening receives the bound address once the server accepts
	// connections (for testing, with Addr ending in :0).
	Listening chan<- string

	// IDGenerator overrides the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator hub.IDGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve plays over WebSocket",
		Long: `Serve AMFlow plays over WebSocket.

Each connection is one session. Tokens and their permissions come from the
config file; plays are stored in SQLite when a database is configured and in
memory otherwise. Prometheus metrics are served on metrics_path.

Flags override the matching config keys.

Examples:
  amflow serve --config ./amflow.yaml
  amflow serve --config ./amflow.toml --addr 0.0.0.0:9000
  amflow serve --config ./amflow.yaml --db ./plays.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML or TOML config file")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides addr)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides database)")

	return cmd
}

// loadServeConfig reads the config file, if any, and applies flag overrides.
func loadServeConfig(opts *ServeOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// detachedContext keeps parent's values but is cancelled only by the
// returned func. The hub runs on it so requests still in flight while
// connections drain can reach the store after a signal.
func detachedContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(parent))
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadServeConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	hubCtx, stopHub := detachedContext(parentCtx)
	defer stopHub()

	ids := opts.IDGenerator
	if ids == nil {
		ids = hub.UUIDv7Generator{}
	}
	hubOpts := []hub.Option{
		hub.WithLogger(logger),
		hub.WithContext(hubCtx),
		hub.WithIDGenerator(ids),
	}
	var serverOpts []wsflow.ServerOption

	if cfg.Database != "" {
		logger.Info("opening database", "path", cfg.Database)
		st, err := store.Open(cfg.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		hubOpts = append(hubOpts, hub.WithPersistence(st))
	} else {
		logger.Warn("no database configured, plays are kept in memory")
	}

	if cfg.MetricsPath != "" {
		metrics := wsflow.NewMetrics(cfg.Namespace)
		hubOpts = append(hubOpts, hub.WithMetrics(metrics))
		serverOpts = append(serverOpts, wsflow.WithServerMetrics(metrics))
	}

	h := hub.New(cfg.TokenTable(), hubOpts...)
	srv := wsflow.NewServer(h, append(serverOpts, wsflow.WithServerLogger(logger))...)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(cfg.MetricsPath),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()

	addr := ln.Addr().String()
	logger.Info("server started",
		"addr", addr,
		"database", cfg.Database,
		"metrics_path", cfg.MetricsPath,
		"tokens", len(cfg.Tokens),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on ws://%s/\n", addr)
	if opts.Listening != nil {
		opts.Listening <- addr
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	}

	timeout, _ := cfg.Shutdown()
	shutdownCtx, stop := context.WithTimeout(context.Background(), timeout)
	defer stop()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	err = srv.Shutdown(shutdownCtx)
	stopHub()
	if err != nil {
		return WrapExitError(ExitFailure, "connections did not close in time", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
