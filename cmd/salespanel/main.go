// Package main is the entry point for the sales panel server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/catalog"
	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/internal/legacy"
	"github.com/pitabwire/salespanel/internal/observability"
	"github.com/pitabwire/salespanel/internal/salespanel"
	"github.com/pitabwire/salespanel/internal/search"
	"github.com/pitabwire/salespanel/internal/status"
	"github.com/pitabwire/salespanel/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	envFile := flag.String("env-file", "", "optional dotenv file loaded before the configuration")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
			return 1
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "salespanel", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Backend clients.
	searchClient := backend.NewSearchClient(backend.NewClient("search", cfg.Backends.Search, metrics, logger))
	processClient := backend.NewProcessClient(backend.NewClient("process", cfg.Backends.Process, metrics, logger), cfg.Process.Name)
	ticketClient := backend.NewTicketClient(backend.NewClient("ticket", cfg.Backends.Ticket, metrics, logger))

	trees, err := legacy.FromProcess(processClient, cfg.Process.Versions)
	if err != nil {
		logger.Error("process version registry failed", zap.Error(err))
		return 1
	}

	// Status catalog: source plus cache.
	source, closeSource, err := buildCatalogSource(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("status catalog initialization failed", zap.Error(err))
		return 1
	}
	defer closeSource()

	cache, closeCache, err := buildCatalogCache(ctx, cfg.Catalog.Cache, logger)
	if err != nil {
		logger.Error("status catalog cache initialization failed", zap.Error(err))
		return 1
	}
	defer closeCache()

	names := catalog.NewLookup(source, cache, metrics, logger)
	resolver := status.NewResolver(trees, names, metrics, logger)
	driver := search.NewDriver(searchClient, cfg.Search, metrics, logger)

	panel := salespanel.NewService(driver, resolver, ticketClient,
		salespanel.WithMetrics(metrics),
		salespanel.WithLogger(logger),
		salespanel.WithCityDedup(cfg.Cities.DedupPolicy),
	)

	keys := transport.NewKeySet(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Panel:        panel,
		Authenticate: transport.Authenticate(cfg.Identity, keys, logger),
		Readiness: observability.ReadinessChecks{
			SearchBackend: searchClient,
			ProcessEngine: processClient,
			TicketService: ticketClient,
			StatusCatalog: names,
			CatalogCache:  observability.CheckFunc(names.CacheHealth),
		},
		Logger: logger,
	})

	handler := metrics.MetricsMiddleware(observability.TracingMiddleware(router))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Strings("process_versions", trees.Versions()),
		zap.String("catalog_source", cfg.Catalog.Source),
		zap.String("catalog_cache", cache.Kind()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildCatalogSource creates the status name source selected by
// catalog.source.
func buildCatalogSource(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (catalog.Source, func(), error) {
	switch cfg.Catalog.Source {
	case "http":
		c := backend.NewClient("catalog", cfg.Backends.Catalog, metrics, logger)
		return catalog.NewHTTPSource(c), func() {}, nil
	case "postgres":
		dsn := os.Getenv(cfg.Catalog.Store.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("catalog store: %s environment variable not set", cfg.Catalog.Store.DSNEnv)
		}
		src, err := catalog.OpenPostgres(ctx, dsn, cfg.Catalog.Store)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres status catalog", zap.String("table", cfg.Catalog.Store.Table))
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported catalog source: %q", cfg.Catalog.Source)
	}
}

// buildCatalogCache creates the status name cache selected by
// catalog.cache.driver.
func buildCatalogCache(ctx context.Context, cfg config.CatalogCacheConfig, logger *zap.Logger) (catalog.Cache, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		return catalog.NewMemoryCache(cfg.TTL, cfg.MaxEntries), func() {}, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("catalog cache: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("catalog cache: ping: %w", err)
		}
		logger.Info("using redis status catalog cache", zap.Int("db", cfg.DB))
		return catalog.NewRedisCache(client, cfg.TTL), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported catalog cache driver: %q", cfg.Driver)
	}
}
