package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/internal/milestone"
	"github.com/pitabwire/salespanel/model"
)

func TestResilience_searchFailure(t *testing.T) {
	h := NewTestHarness(t)
	h.Search.FailNext(1)

	resp := h.POST("/panel/cities", h.GenerateToken(SellerClaims()), `{}`)

	AssertStatus(t, resp, http.StatusInternalServerError)
	if code := ErrorCode(t, resp); code != model.ErrInternalError {
		t.Errorf("code = %q, want %q", code, model.ErrInternalError)
	}
}

func TestResilience_circuitBreakerOpens(t *testing.T) {
	h := NewTestHarness(t, WithCircuitBreaker(config.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	}))
	h.Search.FailNext(2)
	token := h.GenerateToken(SellerClaims())

	for i := 0; i < 2; i++ {
		AssertStatus(t, h.POST("/panel/cities", token, `{}`), http.StatusInternalServerError)
	}
	sent := len(h.Search.Requests())

	resp := h.POST("/panel/cities", token, `{}`)

	AssertStatus(t, resp, http.StatusInternalServerError)
	if code := ErrorCode(t, resp); code != model.ErrBackendUnavailable {
		t.Errorf("code = %q, want %q", code, model.ErrBackendUnavailable)
	}
	if got := len(h.Search.Requests()); got != sent {
		t.Errorf("search backend contacted while the breaker is open: %d requests, want %d", got, sent)
	}
}

func TestResilience_slowProcessEngine(t *testing.T) {
	h := NewTestHarness(t, WithBackendTimeout(200*time.Millisecond))
	h.Search.Index("venda", SaleDoc("s-legacy", "seller-1", milestone.StatusCancelled, "1.0", 5))
	h.Process.OnOperation("tree").RespondWithDelay(2*time.Second, http.StatusOK, TaskTree())

	resp := h.POST("/panel/sales/detail", h.GenerateToken(SellerClaims()), `{"saleId":"s-legacy"}`)

	AssertStatus(t, resp, http.StatusInternalServerError)
	if code := ErrorCode(t, resp); code != model.ErrBackendTimeout {
		t.Errorf("code = %q, want %q", code, model.ErrBackendTimeout)
	}
}

func TestResilience_handlerTimeout(t *testing.T) {
	h := NewTestHarness(t, WithHandlerTimeout(150*time.Millisecond))
	h.Search.Index("venda", SaleDoc("s-legacy", "seller-1", milestone.StatusCancelled, "1.0", 5))
	h.Process.OnOperation("tree").RespondWithDelay(2*time.Second, http.StatusOK, TaskTree())

	start := time.Now()
	resp := h.POST("/panel/sales/detail", h.GenerateToken(SellerClaims()), `{"saleId":"s-legacy"}`)

	AssertStatus(t, resp, http.StatusInternalServerError)
	if code := ErrorCode(t, resp); code != model.ErrBackendTimeout {
		t.Errorf("code = %q, want %q", code, model.ErrBackendTimeout)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("request took %v, want the handler timeout to cut it short", elapsed)
	}
}

func TestResilience_processTreeNotFound(t *testing.T) {
	h := NewTestHarness(t)
	h.Search.Index("venda", SaleDoc("s-legacy", "seller-1", milestone.StatusCancelled, "1.0", 5))
	h.Process.OnOperation("tree").RespondWith(http.StatusNotFound, map[string]string{"error": "no instance"})

	resp := h.POST("/panel/sales/detail", h.GenerateToken(SellerClaims()), `{"saleId":"s-legacy"}`)

	AssertStatus(t, resp, http.StatusOK)
	var out model.SaleDetailOutput
	ParseJSON(t, resp, &out)
	if out.SaleData == nil || out.SaleData.CurrentSaleState != "" {
		t.Errorf("saleData = %+v, want an empty current state", out.SaleData)
	}
}

func TestResilience_catalogUnreachable(t *testing.T) {
	h := NewTestHarness(t)
	h.Search.Index("venda", SaleDoc("s-1", "seller-1", MilestoneTechnical, "2.0", 1))
	h.Catalog.Reset()
	h.Catalog.OnOperation("get_status").RespondWithConnectionError()

	resp := h.POST("/panel/sales", h.GenerateToken(SellerClaims()),
		`{"sellers":["seller-1"],"period":"today","order":"dateGrowing","page":1}`)

	AssertStatus(t, resp, http.StatusInternalServerError)
}
