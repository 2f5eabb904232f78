package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/config"
)

// --- HTTPSource ---

// HTTPSource reads names from the status catalog service:
// GET /sale-statuses/{id} answering {"_id": ..., "name": ...}.
type HTTPSource struct {
	client *backend.Client
}

// NewHTTPSource wraps a backend client for the catalog service.
func NewHTTPSource(c *backend.Client) *HTTPSource {
	return &HTTPSource{client: c}
}

// Name implements Source.
func (s *HTTPSource) Name(ctx context.Context, id string) (string, bool, error) {
	var out struct {
		ID   string `json:"_id"`
		Name string `json:"name"`
	}
	err := s.client.Do(ctx, "get_status", http.MethodGet, "/sale-statuses/"+url.PathEscape(id), nil, &out)
	if backend.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out.Name, true, nil
}

// HealthCheck pings the catalog service.
func (s *HTTPSource) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, "/health")
}

// --- PostgresSource ---

// pgConn is the part of *pgxpool.Pool the source uses.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresSource reads names from the catalog table (id, name).
type PostgresSource struct {
	db    pgConn
	query string
	close func()
}

// OpenPostgres connects a pool to dsn and returns a source reading
// cfg.Table.
func OpenPostgres(ctx context.Context, dsn string, cfg config.CatalogStoreConfig) (*PostgresSource, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: open pool: %w", err)
	}
	s := newPostgresSource(pool, cfg.Table)
	s.close = pool.Close
	return s, nil
}

func newPostgresSource(db pgConn, table string) *PostgresSource {
	if table == "" {
		table = "sale_status"
	}
	return &PostgresSource{
		db:    db,
		query: "SELECT name FROM " + pgx.Identifier{table}.Sanitize() + " WHERE id = $1",
		close: func() {},
	}
}

// Name implements Source.
func (s *PostgresSource) Name(ctx context.Context, id string) (string, bool, error) {
	var name string
	err := s.db.QueryRow(ctx, s.query, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query status name: %w", err)
	}
	return name, true, nil
}

// HealthCheck pings the database.
func (s *PostgresSource) HealthCheck(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresSource) Close() {
	s.close()
}
