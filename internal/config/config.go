// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Backends      BackendsConfig      `yaml:"backends"`
	Search        SearchConfig        `yaml:"search"`
	Process       ProcessConfig       `yaml:"process"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Cities        CitiesConfig        `yaml:"cities"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT and identity provider settings.
type IdentityConfig struct {
	Issuer       string            `yaml:"issuer"`
	Audience     string            `yaml:"audience"`
	JWKSURL      string            `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration     `yaml:"jwks_cache_ttl"`
	Algorithms   []string          `yaml:"algorithms"`
	ClaimPaths   map[string]string `yaml:"claim_paths"`
}

// BackendsConfig groups the external collaborators of the panel.
type BackendsConfig struct {
	Search  ServiceConfig `yaml:"search"`
	Process ServiceConfig `yaml:"process"`
	Ticket  ServiceConfig `yaml:"ticket"`
	Catalog ServiceConfig `yaml:"catalog"`
}

// ServiceConfig describes a backend service.
type ServiceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig describes circuit breaker settings per service.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`
	SuccessThreshold   int           `yaml:"success_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
	ErrorRateWindow    time.Duration `yaml:"error_rate_window"`
}

// RetryConfig describes retry settings per service. MaxAttempts of 1 means
// a single attempt.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// SearchConfig describes the search backend indexes and paging limits.
type SearchConfig struct {
	SalesIndex    string `yaml:"sales_index"`
	RegionalIndex string `yaml:"regional_index"`
	PageSize      int    `yaml:"page_size"`
	ResultWindow  int    `yaml:"result_window"`
	TimeZone      string `yaml:"time_zone"`
	CitiesSize    int    `yaml:"cities_size"`
}

// ProcessConfig lists the legacy process versions whose task trees can be
// loaded from the process engine.
type ProcessConfig struct {
	Name     string   `yaml:"name"`
	Versions []string `yaml:"versions"`
}

// CatalogConfig describes where milestone display names come from.
type CatalogConfig struct {
	Source string             `yaml:"source"`
	Store  CatalogStoreConfig `yaml:"store"`
	Cache  CatalogCacheConfig `yaml:"cache"`
}

// CatalogStoreConfig describes the PostgreSQL catalog source.
type CatalogStoreConfig struct {
	DSNEnv          string        `yaml:"dsn_env"`
	Table           string        `yaml:"table"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CatalogCacheConfig describes the catalog name cache.
type CatalogCacheConfig struct {
	Driver     string        `yaml:"driver"`
	AddrEnv    string        `yaml:"addr_env"`
	DB         int           `yaml:"db"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// CitiesConfig describes the city listing.
type CitiesConfig struct {
	DedupPolicy string `yaml:"dedup_policy"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func defaultService(timeout time.Duration) ServiceConfig {
	return ServiceConfig{
		Timeout: timeout,
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:       1,
			BackoffInitial:    100 * time.Millisecond,
			BackoffMultiplier: 2,
			BackoffMax:        2 * time.Second,
		},
	}
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			HandlerTimeout:  55 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
			ClaimPaths: map[string]string{
				"subject_id": "sub",
				"email":      "email",
			},
		},
		Backends: BackendsConfig{
			Search:  defaultService(30 * time.Second),
			Process: defaultService(10 * time.Second),
			Ticket:  defaultService(10 * time.Second),
			Catalog: defaultService(5 * time.Second),
		},
		Search: SearchConfig{
			SalesIndex:    "venda",
			RegionalIndex: "regional",
			PageSize:      10,
			ResultWindow:  10000,
			TimeZone:      "-03:00",
			CitiesSize:    30,
		},
		Process: ProcessConfig{
			Name: "venda",
		},
		Catalog: CatalogConfig{
			Source: "http",
			Store: CatalogStoreConfig{
				Table:           "sale_status",
				MaxOpenConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Cache: CatalogCacheConfig{
				Driver:     "memory",
				TTL:        10 * time.Minute,
				MaxEntries: 1000,
			},
		},
		Cities: CitiesConfig{
			DedupPolicy: "identity",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.JWKSURL == "" {
		errs = append(errs, "identity.jwks_url is required")
	}
	if c.Identity.Audience == "" {
		errs = append(errs, "identity.audience is required")
	}

	if c.Backends.Search.BaseURL == "" {
		errs = append(errs, "backends.search.base_url is required")
	}
	if c.Backends.Process.BaseURL == "" {
		errs = append(errs, "backends.process.base_url is required")
	}
	if c.Backends.Ticket.BaseURL == "" {
		errs = append(errs, "backends.ticket.base_url is required")
	}

	if c.Search.SalesIndex == "" || c.Search.RegionalIndex == "" {
		errs = append(errs, "search.sales_index and search.regional_index are required")
	}
	if c.Search.PageSize < 1 {
		errs = append(errs, "search.page_size must be positive")
	}
	if c.Search.PageSize > 0 && c.Search.ResultWindow < 2*c.Search.PageSize {
		errs = append(errs, "search.result_window must hold at least two pages")
	}

	switch c.Catalog.Source {
	case "http":
		if c.Backends.Catalog.BaseURL == "" {
			errs = append(errs, "backends.catalog.base_url is required for catalog.source http")
		}
	case "postgres":
		if c.Catalog.Store.DSNEnv == "" {
			errs = append(errs, "catalog.store.dsn_env is required for catalog.source postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("catalog.source %q is not one of http, postgres", c.Catalog.Source))
	}

	switch c.Catalog.Cache.Driver {
	case "memory", "":
	case "redis":
		if c.Catalog.Cache.AddrEnv == "" {
			errs = append(errs, "catalog.cache.addr_env is required for the redis cache")
		}
	default:
		errs = append(errs, fmt.Sprintf("catalog.cache.driver %q is not one of memory, redis", c.Catalog.Cache.Driver))
	}

	switch c.Cities.DedupPolicy {
	case "identity", "id":
	default:
		errs = append(errs, fmt.Sprintf("cities.dedup_policy %q is not one of identity, id", c.Cities.DedupPolicy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads SALESPANEL_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SALESPANEL_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SALESPANEL_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("SALESPANEL_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("SALESPANEL_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("SALESPANEL_SEARCH_BASE_URL"); v != "" {
		cfg.Backends.Search.BaseURL = v
	}
	if v := os.Getenv("SALESPANEL_PROCESS_BASE_URL"); v != "" {
		cfg.Backends.Process.BaseURL = v
	}
	if v := os.Getenv("SALESPANEL_TICKET_BASE_URL"); v != "" {
		cfg.Backends.Ticket.BaseURL = v
	}
	if v := os.Getenv("SALESPANEL_CATALOG_BASE_URL"); v != "" {
		cfg.Backends.Catalog.BaseURL = v
	}
	if v := os.Getenv("SALESPANEL_CATALOG_SOURCE"); v != "" {
		cfg.Catalog.Source = v
	}
	if v := os.Getenv("SALESPANEL_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
