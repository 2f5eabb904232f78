// Package integration runs the panel end to end: the real router, auth,
// service and backend clients against fake search, process engine,
// ticketing and catalog servers.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/backend/backendtest"
	"github.com/pitabwire/salespanel/internal/catalog"
	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/internal/legacy"
	"github.com/pitabwire/salespanel/internal/observability"
	"github.com/pitabwire/salespanel/internal/salespanel"
	"github.com/pitabwire/salespanel/internal/search"
	"github.com/pitabwire/salespanel/internal/status"
	"github.com/pitabwire/salespanel/internal/transport"
)

// TestHarness is a running panel server with its fake collaborators.
type TestHarness struct {
	Server   *httptest.Server
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Search  *backendtest.Server
	Process *MockBackend
	Tickets *MockBackend
	Catalog *MockBackend
	Redis   *miniredis.Miniredis

	tokens *tokenIssuer
	t      *testing.T
}

// HarnessOption customizes the configuration before the server starts.
type HarnessOption func(*harnessOptions)

type harnessOptions struct {
	handlerTimeout time.Duration
	backendTimeout time.Duration
	cityDedup      string
	versions       []string
	redisCache     bool
	breaker        config.CircuitBreakerConfig
	statusNames    map[string]string
}

// WithHandlerTimeout overrides the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(o *harnessOptions) { o.handlerTimeout = d }
}

// WithBackendTimeout overrides the timeout of every backend client.
func WithBackendTimeout(d time.Duration) HarnessOption {
	return func(o *harnessOptions) { o.backendTimeout = d }
}

// WithCityDedup selects the city deduplication policy.
func WithCityDedup(policy string) HarnessOption {
	return func(o *harnessOptions) { o.cityDedup = policy }
}

// WithProcessVersions sets the legacy process versions with task trees.
func WithProcessVersions(versions ...string) HarnessOption {
	return func(o *harnessOptions) { o.versions = versions }
}

// WithRedisCache caches catalog names in an in-process redis.
func WithRedisCache() HarnessOption {
	return func(o *harnessOptions) { o.redisCache = true }
}

// WithCircuitBreaker sets the breaker settings of every backend client.
func WithCircuitBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	return func(o *harnessOptions) { o.breaker = cb }
}

// WithStatusNames replaces the catalog served by the fake catalog service.
func WithStatusNames(names map[string]string) HarnessOption {
	return func(o *harnessOptions) { o.statusNames = names }
}

// NewTestHarness starts a panel server wired to fresh fakes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	o := harnessOptions{
		handlerTimeout: 10 * time.Second,
		backendTimeout: 5 * time.Second,
		cityDedup:      salespanel.DedupIdentity,
		versions:       []string{"1.0", "2.0"},
		breaker: config.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
		},
		statusNames: StatusNames(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	h := &TestHarness{
		t:       t,
		tokens:  newTokenIssuer(t),
		Search:  backendtest.NewServer(t),
		Process: newMockBackend(t, "process", ProcessRoutes()),
		Tickets: newMockBackend(t, "ticket", TicketRoutes()),
		Catalog: newMockBackend(t, "catalog", CatalogRoutes()),
	}
	h.serveCatalog(o.statusNames)

	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = o.handlerTimeout
	cfg.Server.CORS.AllowedOrigins = []string{"https://panel.test"}
	cfg.Identity.Issuer = h.tokens.Issuer()
	cfg.Identity.Audience = h.tokens.Audience()
	cfg.Identity.JWKSURL = h.tokens.JWKSURL()
	cfg.Process.Versions = o.versions
	cfg.Cities.DedupPolicy = o.cityDedup

	service := func(url string) config.ServiceConfig {
		sc := cfg.Backends.Search
		sc.BaseURL = url
		sc.Timeout = o.backendTimeout
		sc.CircuitBreaker = o.breaker
		return sc
	}
	cfg.Backends.Search = service(h.Search.URL)
	cfg.Backends.Process = service(h.Process.URL())
	cfg.Backends.Ticket = service(h.Tickets.URL())
	cfg.Backends.Catalog = service(h.Catalog.URL())
	h.Config = cfg

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	h.Registry = prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(h.Registry)

	searchClient := backend.NewSearchClient(backend.NewClient("search", cfg.Backends.Search, h.Metrics, logger))
	processClient := backend.NewProcessClient(backend.NewClient("process", cfg.Backends.Process, h.Metrics, logger), cfg.Process.Name)
	ticketClient := backend.NewTicketClient(backend.NewClient("ticket", cfg.Backends.Ticket, h.Metrics, logger))

	trees, err := legacy.FromProcess(processClient, cfg.Process.Versions)
	if err != nil {
		t.Fatalf("legacy registry: %v", err)
	}

	var cache catalog.Cache = catalog.NewMemoryCache(cfg.Catalog.Cache.TTL, cfg.Catalog.Cache.MaxEntries)
	if o.redisCache {
		h.Redis = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: h.Redis.Addr()})
		t.Cleanup(func() { client.Close() })
		cache = catalog.NewRedisCache(client, cfg.Catalog.Cache.TTL)
	}
	source := catalog.NewHTTPSource(backend.NewClient("catalog", cfg.Backends.Catalog, h.Metrics, logger))
	names := catalog.NewLookup(source, cache, h.Metrics, logger)

	resolver := status.NewResolver(trees, names, h.Metrics, logger)
	driver := search.NewDriver(searchClient, cfg.Search, h.Metrics, logger)
	panel := salespanel.NewService(driver, resolver, ticketClient,
		salespanel.WithMetrics(h.Metrics),
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

	h.Server = httptest.NewServer(h.Metrics.MetricsMiddleware(observability.TracingMiddleware(router)))
	t.Cleanup(h.Server.Close)
	return h
}

// serveCatalog answers catalog lookups from names, 404 for anything else.
func (h *TestHarness) serveCatalog(names map[string]string) {
	h.Catalog.OnOperation("get_status").RespondWithFunc(func(r *http.Request) (int, any) {
		id := r.PathValue("id")
		name, ok := names[id]
		if !ok {
			return http.StatusNotFound, map[string]string{"error": "not found"}
		}
		return http.StatusOK, map[string]string{"_id": id, "name": name}
	})
}

// GenerateToken issues a valid bearer token.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.tokens.GenerateToken(claims)
}

// GenerateExpiredToken issues a token that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.tokens.GenerateExpiredToken(claims)
}

// POST sends body to path with the given bearer token. An empty token sends
// no Authorization header.
func (h *TestHarness) POST(path, token, body string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPost, path, token, body, nil)
}

// Do sends a request to the panel server.
func (h *TestHarness) Do(method, path, token, body string, headers map[string]string) *http.Response {
	h.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, h.Server.URL+path, rd)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ParseJSON decodes the response body into out.
func ParseJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody returns the full response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return string(b)
}

// AssertStatus fails the test when the response status differs.
func AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

// ErrorCode decodes a platform error response and returns its code.
func ErrorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	ParseJSON(t, resp, &body)
	return body.Error.Code
}

// SellerClaims are the claims of an ordinary panel user.
func SellerClaims() TestClaims {
	return TestClaims{
		SubjectID: "seller-1",
		Email:     "seller@example.com",
	}
}
