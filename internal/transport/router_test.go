package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/internal/observability"
	"github.com/pitabwire/salespanel/model"
)

// stubPanel answers every operation with canned outputs and records what it
// was called with.
type stubPanel struct {
	mu      sync.Mutex
	raw     []byte
	rctx    *model.RequestContext
	list    *model.SalesListOutput
	detail  *model.SaleDetailOutput
	cities  *model.CitiesOutput
	err     error
	panicky bool
}

func (p *stubPanel) record(ctx context.Context, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raw = raw
	p.rctx = model.RequestContextFrom(ctx)
}

func (p *stubPanel) GetSalesList(ctx context.Context, raw []byte) (*model.SalesListOutput, error) {
	p.record(ctx, raw)
	if p.panicky {
		panic("boom")
	}
	return p.list, p.err
}

func (p *stubPanel) GetSaleDetail(ctx context.Context, raw []byte) (*model.SaleDetailOutput, error) {
	p.record(ctx, raw)
	return p.detail, p.err
}

func (p *stubPanel) GetCities(ctx context.Context, raw []byte) (*model.CitiesOutput, error) {
	p.record(ctx, raw)
	return p.cities, p.err
}

type checker struct{ err error }

func (c checker) HealthCheck(context.Context) error { return c.err }

// testDeps returns Dependencies with sensible defaults for testing.
func testDeps(p Panel) Dependencies {
	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://panel.example.com"}
	cfg.Server.HandlerTimeout = 5 * time.Second
	return Dependencies{
		Config:    cfg,
		Panel:     p,
		Readiness: observability.ReadinessChecks{SearchBackend: checker{}},
	}
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- Router tests ---

func TestNewRouter_health(t *testing.T) {
	r := NewRouter(testDeps(nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	deps := testDeps(nil)
	r := NewRouter(deps)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}

	deps.Readiness.CatalogCache = checker{err: errors.New("redis down")}
	r = NewRouter(deps)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 with a failing cache", w.Code)
	}
}

func TestNewRouter_metrics(t *testing.T) {
	r := NewRouter(testDeps(nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}

	deps := testDeps(nil)
	deps.Config.Observability.Metrics.Enabled = false
	w = httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 with metrics disabled", w.Code)
	}
}

func TestNewRouter_panelRoutes(t *testing.T) {
	p := &stubPanel{
		list:   &model.SalesListOutput{Envelope: model.Success(), Sales: []model.SalesRow{{ID: "s-1"}}, TotalResults: 1, Pages: 1},
		detail: &model.SaleDetailOutput{Envelope: model.Success()},
		cities: &model.CitiesOutput{Envelope: model.Success(), Cities: []model.City{{ID: "c1", Name: "Alpha"}}},
	}
	r := NewRouter(testDeps(p))

	tests := []struct {
		path string
		body string
		want string
	}{
		{"/panel/sales", `{"sellers":["a"]}`, `"sales":[{"saleCreationDate":"","_id":"s-1"`},
		{"/panel/sales/detail", `{"saleId":"s-1"}`, `{"status":200,"message":"Sucesso"}`},
		{"/panel/cities", `{}`, `"cities":[{"_id":"c1","name":"Alpha"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := post(t, r, tt.path, tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body = %s, want it to contain %s", w.Body.String(), tt.want)
			}
			if string(p.raw) != tt.body {
				t.Errorf("operation got %q, want the raw body %q", p.raw, tt.body)
			}
		})
	}
}

func TestNewRouter_onlyPost(t *testing.T) {
	r := NewRouter(testDeps(&stubPanel{}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panel/sales", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestNewRouter_validationEnvelope(t *testing.T) {
	p := &stubPanel{list: &model.SalesListOutput{Envelope: model.BadRequest("Não há dados de entrada!")}}
	w := post(t, NewRouter(testDeps(p)), "/panel/sales", ``)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"status":400,"message":"Não há dados de entrada!"}` {
		t.Errorf("body = %s", got)
	}
}

func TestNewRouter_operationErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"circuit open", fmt.Errorf("search: %w", backend.ErrCircuitOpen), model.ErrBackendUnavailable},
		{"deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), model.ErrBackendTimeout},
		{"other", &backend.StatusError{Service: "search", Operation: "search", StatusCode: 503}, model.ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, NewRouter(testDeps(&stubPanel{err: tt.err})), "/panel/cities", `{}`)
			if w.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", w.Code)
			}
			var resp struct {
				Error model.ErrorEnvelope `json:"error"`
			}
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestNewRouter_bodyTooLarge(t *testing.T) {
	p := &stubPanel{}
	body := `{"sellers":["` + strings.Repeat("x", maxBodyBytes) + `"]}`
	w := post(t, NewRouter(testDeps(p)), "/panel/sales", body)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if p.raw != nil {
		t.Error("operation should not run for an oversized body")
	}
}

func TestNewRouter_authenticatesPanelOnly(t *testing.T) {
	deps := testDeps(&stubPanel{cities: &model.CitiesOutput{Envelope: model.Success()}})
	deps.Authenticate = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteError(r.Context(), w, model.NewUnauthorizedError("Missing or malformed bearer token"))
		})
	}
	r := NewRouter(deps)

	if w := post(t, r, "/panel/cities", `{}`); w.Code != http.StatusUnauthorized {
		t.Errorf("panel status = %d, want 401", w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestNewRouter_requestContextFromClaims(t *testing.T) {
	p := &stubPanel{cities: &model.CitiesOutput{Envelope: model.Success()}}
	deps := testDeps(p)
	deps.Authenticate = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := map[string]any{"sub": "seller-7", "email": "s7@example.com"}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/panel/cities", strings.NewReader(`{}`))
	req.Header.Set(HeaderCorrelationID, "corr-123")
	w := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(w, req)

	if p.rctx == nil {
		t.Fatal("RequestContext should reach the operation")
	}
	if p.rctx.SubjectID != "seller-7" || p.rctx.CorrelationID != "corr-123" {
		t.Errorf("RequestContext = %+v", p.rctx)
	}
}

// --- Middleware tests ---

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	deps := testDeps(&stubPanel{panicky: true})
	deps.Logger = zap.New(core)

	w := post(t, NewRouter(deps), "/panel/sales", `{}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Errorf("expected one panic log, got %v", logs.All())
	}
}

func TestCORS_allowedOrigin(t *testing.T) {
	r := NewRouter(testDeps(&stubPanel{}))
	req := httptest.NewRequest(http.MethodOptions, "/panel/sales", nil)
	req.Header.Set("Origin", "https://panel.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://panel.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestCORS_disallowedOrigin(t *testing.T) {
	r := NewRouter(testDeps(&stubPanel{}))
	req := httptest.NewRequest(http.MethodOptions, "/panel/sales", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestRequestID_generates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFrom(r.Context())
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", seen, err)
	}
	if got := w.Header().Get(HeaderCorrelationID); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
}

func TestRequestID_propagates(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := CorrelationIDFrom(r.Context()); got != "from-caller" {
			t.Errorf("correlation id = %q, want from-caller", got)
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCorrelationID, "from-caller")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderCorrelationID); got != "from-caller" {
		t.Errorf("response header = %q", got)
	}
}

func TestSecurityHeaders_onHealth(t *testing.T) {
	r := NewRouter(testDeps(nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if got := w.Header().Get(HeaderCorrelationID); got == "" {
		t.Error("health should still get X-Correlation-Id")
	}
}

func TestBuildRequestContext(t *testing.T) {
	claims := map[string]any{
		"sub":   "seller-42",
		"email": "seller@example.com",
	}

	handler := BuildRequestContext(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			t.Fatal("RequestContext should be in context")
		}
		if rctx.SubjectID != "seller-42" || rctx.Email != "seller@example.com" {
			t.Errorf("RequestContext = %+v", rctx)
		}
		if rctx.CorrelationID != "corr-1" {
			t.Errorf("CorrelationID = %q, want corr-1", rctx.CorrelationID)
		}
	}))

	ctx := WithClaims(context.Background(), claims)
	ctx = context.WithValue(ctx, correlationIDKey{}, "corr-1")
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
}

func TestBuildRequestContext_customPaths(t *testing.T) {
	claims := map[string]any{
		"preferred_username": "seller-99",
		"profile": map[string]any{
			"email": "seller99@example.com",
		},
	}
	paths := map[string]string{
		"subject_id": "preferred_username",
		"email":      "profile.email",
	}

	called := false
	handler := BuildRequestContext(paths, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		rctx := model.RequestContextFrom(r.Context())
		if rctx.SubjectID != "seller-99" {
			t.Errorf("SubjectID = %q, want seller-99", rctx.SubjectID)
		}
		if rctx.Email != "seller99@example.com" {
			t.Errorf("Email = %q, want seller99@example.com", rctx.Email)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithClaims(req.Context(), claims)))
	if !called {
		t.Fatal("handler not called")
	}
}

func TestHandlerTimeout(t *testing.T) {
	handler := HandlerTimeout(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Fatal("expected a deadline")
		}
		if time.Until(deadline) > 50*time.Millisecond {
			t.Errorf("deadline too far: %v", time.Until(deadline))
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	passthrough := HandlerTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("zero timeout should not set a deadline")
		}
	}))
	passthrough.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/panel/sales", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("got %d request logs, want 1", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn for a 400", entries[0].Level)
	}
	if got := entries[0].ContextMap()["status"]; got != int64(400) {
		t.Errorf("status field = %v, want 400", got)
	}
}

func TestHandleOperation_redactsDebugInput(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	deps := testDeps(&stubPanel{list: &model.SalesListOutput{Envelope: model.Success()}})
	deps.Logger = zap.New(core)

	post(t, NewRouter(deps), "/panel/sales", `{"sellers":["a"],"cpfCnpj":"12345678900","customerName":"Ana"}`)

	entries := logs.FilterMessage("panel: input").All()
	if len(entries) != 1 {
		t.Fatalf("got %d input logs, want 1", len(entries))
	}
	body, _ := entries[0].ContextMap()["body"].(map[string]any)
	if body["cpfCnpj"] != "[REDACTED]" || body["customerName"] != "[REDACTED]" {
		t.Errorf("body not redacted: %v", body)
	}
	if fmt.Sprint(body["sellers"]) != "[a]" {
		t.Errorf("sellers = %v, want untouched", body["sellers"])
	}
}
