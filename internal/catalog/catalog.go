// Package catalog resolves milestone identifiers to their display names.
// Names come from a Source (the status catalog service or its PostgreSQL
// table) and are kept in a Cache, since the set of milestones is small and
// rarely changes.
package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/salespanel/internal/observability"
)

// Source reads a display name from the authoritative catalog. found is
// false when the identifier is not in the catalog.
type Source interface {
	Name(ctx context.Context, id string) (name string, found bool, err error)
}

// Cache stores resolved names.
type Cache interface {
	Get(ctx context.Context, id string) (name string, found bool, err error)
	Set(ctx context.Context, id, name string) error
	// Kind labels the cache in metrics ("memory", "redis").
	Kind() string
}

// Lookup resolves display names through a cache in front of a source. It is
// safe for concurrent use.
type Lookup struct {
	source  Source
	cache   Cache
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewLookup creates a Lookup. cache may be nil to disable caching; metrics
// may be nil.
func NewLookup(source Source, cache Cache, metrics *observability.Metrics, logger *zap.Logger) *Lookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lookup{source: source, cache: cache, metrics: metrics, logger: logger}
}

// Name returns the display name of a milestone. An empty id or an id the
// catalog does not know yields "". Cache failures degrade to a source read;
// source failures are returned.
func (l *Lookup) Name(ctx context.Context, id string) (_ string, err error) {
	if id == "" {
		return "", nil
	}

	ctx, span := observability.StartSpan(ctx, "catalog.name")
	defer func() { observability.EndSpanWithError(span, err) }()

	if l.cache != nil {
		name, hit, err := l.cache.Get(ctx, id)
		span.SetAttributes(observability.AttrCacheHit.Bool(hit))
		switch {
		case err != nil:
			l.logger.Warn("catalog: cache read failed", zap.String("cache", l.cache.Kind()), zap.Error(err))
		case hit:
			l.metrics.RecordCatalogCacheHit(l.cache.Kind())
			return name, nil
		default:
			l.metrics.RecordCatalogCacheMiss(l.cache.Kind())
		}
	}

	name, found, err := l.source.Name(ctx, id)
	if err != nil {
		return "", fmt.Errorf("catalog: status %s: %w", id, err)
	}
	if !found {
		return "", nil
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, id, name); err != nil {
			l.logger.Warn("catalog: cache write failed", zap.String("cache", l.cache.Kind()), zap.Error(err))
		}
	}
	return name, nil
}

// HealthCheck reports the health of the source when it can report one.
func (l *Lookup) HealthCheck(ctx context.Context) error {
	if hc, ok := l.source.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// CacheHealth reports the health of the cache when it can report one.
func (l *Lookup) CacheHealth(ctx context.Context) error {
	if hc, ok := l.cache.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// defaultTTL applies when a cache is created with a non-positive TTL.
const defaultTTL = 10 * time.Minute
