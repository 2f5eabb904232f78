package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/internal/observability"
)

type stubSource struct {
	names map[string]string
	err   error
	calls atomic.Int32
}

func (s *stubSource) Name(_ context.Context, id string) (string, bool, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", false, s.err
	}
	name, ok := s.names[id]
	return name, ok, nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, string) error { return errors.New("cache down") }
func (brokenCache) Kind() string                              { return "broken" }

func TestLookup_Name_cachesHits(t *testing.T) {
	src := &stubSource{names: map[string]string{"m1": "Cadastro"}}
	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)
	l := NewLookup(src, NewMemoryCache(time.Minute, 10), metrics, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		name, err := l.Name(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "Cadastro", name)
	}

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CatalogCacheHitsTotal.WithLabelValues("memory")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CatalogCacheMissesTotal.WithLabelValues("memory")))
}

func TestLookup_Name_unknownAndEmpty(t *testing.T) {
	src := &stubSource{names: map[string]string{}}
	l := NewLookup(src, NewMemoryCache(time.Minute, 10), nil, nil)

	name, err := l.Name(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, int32(0), src.calls.Load())

	name, err = l.Name(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestLookup_Name_sourceError(t *testing.T) {
	src := &stubSource{err: errors.New("boom")}
	l := NewLookup(src, nil, nil, nil)

	_, err := l.Name(context.Background(), "m1")
	assert.ErrorContains(t, err, "boom")
}

func TestLookup_Name_cacheFailureFallsThrough(t *testing.T) {
	src := &stubSource{names: map[string]string{"m1": "Cadastro"}}
	l := NewLookup(src, brokenCache{}, nil, nil)

	name, err := l.Name(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Cadastro", name)
}

func TestMemoryCache_expires(t *testing.T) {
	c := NewMemoryCache(time.Minute, 10)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "A"))
	name, ok, _ := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "A", name)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestMemoryCache_capacity(t *testing.T) {
	c := NewMemoryCache(time.Minute, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "A"))
	require.NoError(t, c.Set(ctx, "b", "B"))
	require.NoError(t, c.Set(ctx, "c", "C"))
	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "c")
	assert.False(t, ok, "full cache drops new entries")

	now = now.Add(2 * time.Minute)
	require.NoError(t, c.Set(ctx, "c", "C"))
	assert.Equal(t, 1, c.Len())
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "m1", "Cadastro"))
	name, ok, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Cadastro", name)
	assert.True(t, mr.Exists("catalog:status:m1"))
	require.NoError(t, c.HealthCheck(ctx))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.SetError("ERR injected")
	_, _, err = c.Get(ctx, "m1")
	assert.Error(t, err)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sale-statuses/m1":
			_, _ = w.Write([]byte(`{"_id":"m1","name":"Cadastro"}`))
		case "/sale-statuses/bad":
			w.WriteHeader(http.StatusInternalServerError)
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := backend.NewClient("catalog", config.ServiceConfig{BaseURL: srv.URL, Timeout: time.Second}, nil, nil)
	s := NewHTTPSource(client)
	ctx := context.Background()

	name, ok, err := s.Name(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Cadastro", name)

	_, ok, err = s.Name(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Name(ctx, "bad")
	assert.Error(t, err)

	assert.NoError(t, NewLookup(s, nil, nil, nil).HealthCheck(ctx))
}

type fakeRow struct {
	name string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.name
	return nil
}

type fakePG struct {
	rows    map[string]string
	err     error
	lastSQL string
}

func (f *fakePG) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	name, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{name: name}
}

func (f *fakePG) Ping(context.Context) error { return f.err }

func TestPostgresSource(t *testing.T) {
	db := &fakePG{rows: map[string]string{"m1": "Cadastro"}}
	s := newPostgresSource(db, "sale_status")
	ctx := context.Background()

	name, ok, err := s.Name(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Cadastro", name)
	assert.Equal(t, `SELECT name FROM "sale_status" WHERE id = $1`, db.lastSQL)

	_, ok, err = s.Name(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	db.err = errors.New("conn reset")
	_, _, err = s.Name(ctx, "m1")
	assert.ErrorContains(t, err, "conn reset")
	assert.Error(t, s.HealthCheck(ctx))
	s.Close()
}
