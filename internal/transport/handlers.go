package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/observability"
	"github.com/pitabwire/salespanel/model"
)

// maxBodyBytes bounds the panel request bodies.
const maxBodyBytes = 1 << 20

// Panel is the set of operations served over HTTP.
type Panel interface {
	GetSalesList(ctx context.Context, raw []byte) (*model.SalesListOutput, error)
	GetSaleDetail(ctx context.Context, raw []byte) (*model.SaleDetailOutput, error)
	GetCities(ctx context.Context, raw []byte) (*model.CitiesOutput, error)
}

type enveloped interface {
	Base() model.Envelope
}

// handleOperation adapts a panel operation to an HTTP handler. The request
// body is passed through untouched; the operation owns validation.
func handleOperation[T enveloped](op string, run func(context.Context, []byte) (T, error), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		l := observability.RequestLogger(ctx, logger)

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(ctx, w, model.NewBadRequestError("Request body too large"))
				return
			}
			WriteError(ctx, w, model.NewBadRequestError("Unreadable request body"))
			return
		}

		if l.Core().Enabled(zapcore.DebugLevel) {
			var body map[string]any
			if json.Unmarshal(raw, &body) == nil {
				l.Debug("panel: input",
					zap.String("operation", op),
					zap.Any("body", observability.RedactBody(body, nil)),
				)
			}
		}

		out, err := run(ctx, raw)
		if err != nil {
			WriteError(ctx, w, platformError(ctx, err))
			return
		}
		WriteEnvelope(w, out.Base(), out)
	}
}

// platformError classifies an operation failure for the error envelope.
func platformError(ctx context.Context, err error) error {
	var ee *model.ErrorEnvelope
	switch {
	case errors.As(err, &ee):
		return ee
	case errors.Is(err, backend.ErrCircuitOpen):
		return model.NewBackendUnavailableError()
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return model.NewBackendTimeoutError()
	default:
		return model.NewInternalError()
	}
}
