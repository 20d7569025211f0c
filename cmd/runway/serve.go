package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/swayz032/aspire-runway/pkg/actionbus"
	"github.com/swayz032/aspire-runway/pkg/api"
	"github.com/swayz032/aspire-runway/pkg/auth"
	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/config"
	"github.com/swayz032/aspire-runway/pkg/failures"
	"github.com/swayz032/aspire-runway/pkg/layout"
	"github.com/swayz032/aspire-runway/pkg/orchestrator"
	"github.com/swayz032/aspire-runway/pkg/store"
	"github.com/swayz032/aspire-runway/pkg/telemetry"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to a runway.yaml config file")
	return cmd
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", "runway", "environment", cfg.Environment)
}

// app holds everything serve builds, in the order it must be torn down.
type app struct {
	provider *telemetry.Provider
	httpSink *telemetry.HTTPSink
	db       *sql.DB
	layoutDB *sql.DB
	redis    *redis.Client
	bus      *actionbus.Bus
	limiter  *api.RateLimiter
	handler  http.Handler
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background(), logger)
		}
	}()

	pcfg := telemetry.DefaultProviderConfig()
	pcfg.Environment = cfg.Environment
	pcfg.ServiceVersion = version
	pcfg.Enabled = cfg.OTelEnabled
	pcfg.OTLPEndpoint = cfg.OTLPEndpoint
	pcfg.Insecure = cfg.OTelInsecure
	provider, err := telemetry.NewProvider(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry provider: %w", err)
	}
	a.provider = provider

	metricSink, err := telemetry.NewMetricSink(provider.Meter())
	if err != nil {
		return nil, fmt.Errorf("metric sink: %w", err)
	}
	sinks := []telemetry.Sink{
		telemetry.NewLogSink(logger.With("component", "telemetry")),
		metricSink,
	}
	if cfg.TelemetryEndpoint != "" {
		a.httpSink = telemetry.NewHTTPSink(cfg.TelemetryEndpoint, telemetry.WithSinkLogger(logger.With("component", "telemetry_http")))
		sinks = append(sinks, a.httpSink)
	}
	emitter := telemetry.NewEmitter(cfg.TelemetryCohort, sinks...).WithLogger(logger.With("component", "telemetry"))

	results, err := a.openLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	layouts, err := a.openLayouts(cfg, emitter, logger)
	if err != nil {
		return nil, err
	}

	registry := capabilities.Default()
	taxonomy := failures.Default()
	client := orchestrator.New(cfg.OrchestratorURL,
		orchestrator.WithToken(cfg.OrchestratorToken),
		orchestrator.WithTimeout(cfg.ExecTimeout),
		orchestrator.WithTracer(provider.Tracer()),
	)
	a.bus = actionbus.New(
		actionbus.NewOrchestratorExecutor(client, taxonomy),
		actionbus.WithRegistry(registry),
		actionbus.WithTaxonomy(taxonomy),
		actionbus.WithRecorder(results),
		actionbus.WithTelemetry(emitter),
		actionbus.WithExecTimeout(cfg.ExecTimeout),
		actionbus.WithAuthorityTTL(cfg.AuthorityTTL),
		actionbus.WithLogger(logger.With("component", "actionbus")),
	)

	validator, err := newValidator(cfg)
	if err != nil {
		return nil, err
	}
	if validator == nil {
		logger.WarnContext(ctx, "auth_secret is not set, every /v1 request will be refused")
	}

	a.limiter = api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	srv := api.NewServer(a.bus,
		api.WithValidator(validator),
		api.WithRegistry(registry),
		api.WithTaxonomy(taxonomy),
		api.WithResults(results),
		api.WithLayouts(layouts),
		api.WithRateLimiter(a.limiter),
		api.WithWaitTimeout(cfg.ExecTimeout+5*time.Second),
		api.WithLogger(logger.With("component", "api")),
	)
	a.handler = srv.Handler()
	ok = true
	return a, nil
}

// newValidator returns nil when no secret is configured.
func newValidator(cfg *config.Config) (*auth.Validator, error) {
	if cfg.AuthSecret == "" {
		return nil, nil
	}
	keys, err := auth.NewHMACKeySet("", []byte(cfg.AuthSecret))
	if err != nil {
		return nil, fmt.Errorf("auth keys: %w", err)
	}
	return auth.NewValidator(keys), nil
}

func (a *app) openLedger(ctx context.Context, cfg *config.Config) (store.ResultStore, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.db = db
		pg := store.NewPostgresResultStore(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres ledger: %w", err)
		}
		return pg, nil
	default:
		db, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One writer keeps SQLite from reporting SQLITE_BUSY under load.
		db.SetMaxOpenConns(1)
		a.db = db
		s, err := store.NewSQLiteResultStore(db)
		if err != nil {
			return nil, fmt.Errorf("sqlite ledger: %w", err)
		}
		return s, nil
	}
}

func (a *app) openLayouts(cfg *config.Config, emitter *telemetry.Emitter, logger *slog.Logger) (*layout.Manager, error) {
	var st layout.Store
	switch cfg.LayoutStore {
	case "memory":
		st = layout.NewMemoryStore()
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		st = layout.NewRedisStore(a.redis, "", 0)
	default:
		db := a.db
		if cfg.DatabaseDriver != "sqlite" {
			ldb, err := sql.Open("sqlite", cfg.LayoutPath)
			if err != nil {
				return nil, fmt.Errorf("open layout sqlite: %w", err)
			}
			ldb.SetMaxOpenConns(1)
			a.layoutDB = ldb
			db = ldb
		}
		s, err := layout.NewSQLiteStore(db)
		if err != nil {
			return nil, fmt.Errorf("layout store: %w", err)
		}
		st = s
	}
	return layout.NewManager(st, emitter).WithLogger(logger.With("component", "layout")), nil
}

func (a *app) close(ctx context.Context, logger *slog.Logger) {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.bus != nil {
		if n := a.bus.ExpireWaiting(ctx); n > 0 {
			logger.InfoContext(ctx, "expired actions awaiting a decision at shutdown", "count", n)
		}
		if err := a.bus.Drain(ctx); err != nil {
			logger.WarnContext(ctx, "in-flight actions abandoned at shutdown", "error", err)
		}
	}
	if a.httpSink != nil {
		if err := a.httpSink.Close(ctx); err != nil {
			logger.WarnContext(ctx, "telemetry queue not drained", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.layoutDB != nil {
		_ = a.layoutDB.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			logger.WarnContext(ctx, "telemetry provider shutdown failed", "error", err)
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "runway api listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.InfoContext(ctx, "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.WarnContext(shutdownCtx, "http shutdown", "error", serr)
	}
	a.close(shutdownCtx, logger)
	return err
}
