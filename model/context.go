package model

import "context"

// RequestContext describes the authenticated caller of a panel request and
// the ids that tie its logs, spans and backend calls together. It is built
// once per request and only read afterwards.
type RequestContext struct {
	SubjectID     string
	Email         string
	CorrelationID string
	TraceID       string
}

// Caller names the caller in logs: the subject, else the email.
func (rc *RequestContext) Caller() string {
	switch {
	case rc == nil:
		return "anonymous"
	case rc.SubjectID != "":
		return rc.SubjectID
	case rc.Email != "":
		return rc.Email
	default:
		return "anonymous"
	}
}

type requestContextKey struct{}

// WithRequestContext attaches rctx to ctx.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rctx)
}

// RequestContextFrom returns the RequestContext of ctx, or nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rctx
}
