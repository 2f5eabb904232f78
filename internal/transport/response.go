// Package transport contains the HTTP router, middleware chain and the
// handlers that expose the panel operations.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/salespanel/internal/observability"
	"github.com/pitabwire/salespanel/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes. Backend
// faults surface as 500: the panel clients only distinguish success,
// validation failure and everything else.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrUnauthorized:       http.StatusUnauthorized,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendUnavailable: http.StatusInternalServerError,
	model.ErrBackendTimeout:     http.StatusInternalServerError,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes err as an ErrorEnvelope with the matching HTTP status.
// Errors that are not (and do not wrap) an *ErrorEnvelope become a generic
// 500 so backend details never reach the client.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	out := *ee
	if out.TraceID == "" && ctx != nil {
		out.TraceID = observability.TraceIDFromContext(ctx)
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: &out})
}

// WriteEnvelope writes a facade output using its envelope status as the HTTP
// status. A failed envelope is written alone, without the empty payload
// fields of the output type.
func WriteEnvelope(w http.ResponseWriter, env model.Envelope, out any) {
	if !env.OK() {
		WriteJSON(w, env.Status, env)
		return
	}
	WriteJSON(w, env.Status, out)
}
