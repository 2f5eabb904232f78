package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/model"
)

type loggerKey struct{}

// Redacted replaces personal data in debug logs.
const Redacted = "[REDACTED]"

// NewLogger creates the service's JSON logger. An unknown level falls back
// to info.
//
// Levels:
//   - error: backend failures, 5xx answers
//   - warn:  400 envelopes, rejected tokens, unsupported process versions
//   - info:  request completion, startup and shutdown
//   - debug: query shapes, redacted operation input
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields: map[string]any{
			"service": "salespanel",
			"version": Version,
		},
	}
	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in ctx, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger tagged with the caller and the
// correlation and trace ids of the request.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{zap.String("caller", rctx.Caller())}
	if rctx.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", rctx.CorrelationID))
	}
	traceID := rctx.TraceID
	if traceID == "" {
		traceID = TraceIDFromContext(ctx)
	}
	if traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	return logger.With(fields...)
}

// personalFields are the panel input fields that carry customer data.
var personalFields = map[string]bool{
	"cpfCnpj":       true,
	"cpf":           true,
	"cnpj":          true,
	"customerName":  true,
	"prospectName":  true,
	"authorization": true,
	"token":         true,
}

// RedactBody returns a copy of body with personal fields, and any listed in
// extra, replaced by Redacted. Nested objects and arrays are walked.
func RedactBody(body map[string]any, extra []string) map[string]any {
	if body == nil {
		return nil
	}
	set := personalFields
	if len(extra) > 0 {
		set = make(map[string]bool, len(personalFields)+len(extra))
		for k := range personalFields {
			set[k] = true
		}
		for _, f := range extra {
			set[f] = true
		}
	}
	return redactObject(body, set)
}

func redactObject(obj map[string]any, set map[string]bool) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if set[k] {
			out[k] = Redacted
			continue
		}
		out[k] = redactValue(v, set)
	}
	return out
}

func redactValue(v any, set map[string]bool) any {
	switch t := v.(type) {
	case map[string]any:
		return redactObject(t, set)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = redactValue(e, set)
		}
		return out
	default:
		return v
	}
}
