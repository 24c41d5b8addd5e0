package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"cdr.dev/slog/v3/sloggers/slogjson"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"

	"github.com/bryanwahyu/errorhub/internal/application"
	appgroups "github.com/bryanwahyu/errorhub/internal/application/errorgroups"
	appingest "github.com/bryanwahyu/errorhub/internal/application/ingest"
	"github.com/bryanwahyu/errorhub/internal/config"
	"github.com/bryanwahyu/errorhub/internal/domain/events"
	"github.com/bryanwahyu/errorhub/internal/domain/scopes"
	mysqlp "github.com/bryanwahyu/errorhub/internal/infra/db/mysql"
	"github.com/bryanwahyu/errorhub/internal/infra/db/postgres"
	"github.com/bryanwahyu/errorhub/internal/infra/db/sqlite"
	"github.com/bryanwahyu/errorhub/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/errorhub/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/errorhub/internal/infra/storage"
	"github.com/bryanwahyu/errorhub/internal/middleware"
)

func main() {
	flags := pflag.NewFlagSet("errorhub", pflag.ExitOnError)
	path := flags.StringP("config", "c", os.Getenv("CONFIG_PATH"), "path to the YAML config file (env CONFIG_PATH)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*path)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(ctx, "server exited", slog.Error(err))
	}
}

func newLogger(cfg *config.Config) slog.Logger {
	sink := sloghuman.Sink(os.Stderr)
	if cfg.Log.Format == "json" {
		sink = slogjson.Sink(os.Stderr)
	}
	// Validated at load time.
	level, _ := cfg.LogLevel()
	return slog.Make(sink).Leveled(level)
}

func connect(ctx context.Context, cfg *config.Config) (*sqlx.DB, sqlstore.Dialect, error) {
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		return db, mysqlp.Dialect{}, err
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		return db, postgres.Dialect{}, err
	default:
		db, err := sqlite.Connect(ctx, cfg.Database.Path)
		return db, sqlite.Dialect{}, err
	}
}

func run(ctx context.Context, cfg *config.Config, logger slog.Logger) error {
	clock := application.SystemClock()

	db, dialect, err := connect(ctx, cfg)
	if err != nil {
		return xerrors.Errorf("connect %s: %w", cfg.Database.Driver, err)
	}
	store := sqlstore.New(db, dialect, sqlstore.WithMaxRetries(cfg.Database.MaxRetries))
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	for _, sc := range cfg.Scopes {
		if err := store.SaveScope(ctx, &scopes.Scope{ID: sc.ID, Name: sc.Name, CreatedAt: clock.Now().Unix()}); err != nil {
			return xerrors.Errorf("seed scope %d: %w", sc.ID, err)
		}
	}
	logger.Info(ctx, "database ready",
		slog.F("driver", dialect.Name()),
		slog.F("scopes", len(cfg.Scopes)),
	)

	health := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}

	ingestSvc := &appingest.Service{
		Scopes:          store,
		Keys:            scopes.NewKeyRing(cfg.Ingest.Keys, cfg.Ingest.ScopeKeys),
		Groups:          store,
		Sessions:        store,
		Transactions:    store,
		Attachments:     store,
		Grouper:         events.Grouper{Normalize: cfg.Grouping.Normalize},
		Clock:           clock,
		Logger:          logger.Named("ingest"),
		MaxDecompressed: cfg.Ingest.MaxDecompressedBytes,
	}

	if cfg.Minio.Endpoint != "" {
		blobs, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return xerrors.Errorf("minio init: %w", err)
		}
		ingestSvc.Blobs = blobs
		health["minio"] = blobs
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if ingestSvc.Metrics, err = appingest.NewMetrics(reg); err != nil {
		return err
	}
	httpMetrics, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		return err
	}

	if len(cfg.Admin.APIKeys) == 0 {
		logger.Warn(ctx, "no admin api keys configured, operator API is locked")
	}

	handler := httpserver.NewRouter(httpserver.Options{
		Ingest: ingestSvc,
		Groups: &appgroups.Service{
			Repo:        store,
			Attachments: store,
			Clock:       clock,
			Logger:      logger.Named("errorgroups"),
		},
		Scopes:       store,
		Sessions:     store,
		Transactions: store,
		Logger:       logger,
		Clock:        clock,
		Metrics:      httpMetrics,
		Gatherer:     reg,
		Health:       health,
		AdminKeys:    cfg.Admin.APIKeys,
		CORSOrigins:  cfg.Server.CORSOrigins,
		RateLimit:    cfg.Server.RateLimit.Requests,
		RateWindow:   cfg.Server.RateLimit.Window,
		MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server listening", slog.F("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !xerrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info(context.Background(), "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return xerrors.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
