package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/internal/observability"
	"github.com/pitabwire/salespanel/model"
)

// Query kinds, used as metric and span labels.
const (
	KindPage     = "page"
	KindProbe    = "probe"
	KindBlock    = "block"
	KindDetail   = "detail"
	KindRegional = "regional"
)

// Searcher runs one query against an index.
type Searcher interface {
	Search(ctx context.Context, index string, req backend.SearchRequest) (*backend.SearchResponse, error)
}

// Page is one listing page: at most PageSize hits carrying only sort
// tuples, plus the total number of matching sales.
type Page struct {
	Hits  []backend.Hit
	Total int
}

// Driver runs listing, detail and regional queries.
type Driver struct {
	search  Searcher
	cfg     config.SearchConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewDriver creates a Driver. Zero paging settings fall back to 10 rows per
// page and a 10000 row window.
func NewDriver(s Searcher, cfg config.SearchConfig, metrics *observability.Metrics, logger *zap.Logger) *Driver {
	if cfg.PageSize < 1 {
		cfg.PageSize = 10
	}
	if cfg.ResultWindow < cfg.PageSize {
		cfg.ResultWindow = 10000
	}
	if cfg.CitiesSize < 1 {
		cfg.CitiesSize = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{search: s, cfg: cfg, metrics: metrics, logger: logger}
}

// PageSize returns the number of rows per page.
func (d *Driver) PageSize() int { return d.cfg.PageSize }

// Search returns page (1-indexed) of the sales matching f in order o.
//
// The backend refuses from+size beyond its result window, so pages are
// grouped in blocks of window/pageSize pages. Pages of the first block are
// read directly. For later blocks the last row of every preceding block is
// located with a chain of single-row probes linked by search_after, and the
// page is then sliced out of one query that starts after that cursor.
func (d *Driver) Search(ctx context.Context, f Filters, o Order, page int) (_ Page, err error) {
	if !o.Valid() {
		return Page{}, fmt.Errorf("search: unsupported order %q", o)
	}
	if page < 1 {
		return Page{}, fmt.Errorf("search: page %d out of range", page)
	}

	ctx, span := observability.StartSpan(ctx, "search.listing",
		observability.AttrOrder.String(string(o)),
		observability.AttrPage.Int(page),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	size := d.cfg.PageSize
	pagesPerBlock := d.cfg.ResultWindow / size
	blockRows := pagesPerBlock * size
	block := (page - 1) / pagesPerBlock
	offset := ((page - 1) % pagesPerBlock) * size

	base := backend.SearchRequest{
		Query:          BuildQuery(f, d.cfg.TimeZone),
		Sort:           o.Sort(),
		Source:         new(bool),
		TrackTotalHits: true,
	}

	queries := 0
	defer func() { d.metrics.RecordListingQueries(queries) }()

	if block == 0 {
		req := base
		req.From, req.Size = offset, size
		queries++
		resp, err := d.run(ctx, KindPage, req)
		if err != nil {
			return Page{}, err
		}
		return Page{Hits: resp.Hits.Hits, Total: int(resp.Hits.Total)}, nil
	}

	var cursor []any
	for i := 0; i < block; i++ {
		req := base
		req.From, req.Size, req.SearchAfter = blockRows-1, 1, cursor
		queries++
		resp, err := d.run(ctx, KindProbe, req)
		if err != nil {
			return Page{}, err
		}
		if len(resp.Hits.Hits) == 0 {
			return Page{Total: int(resp.Hits.Total)}, nil
		}
		cursor = resp.Hits.Hits[len(resp.Hits.Hits)-1].Sort
	}

	req := base
	req.From, req.Size, req.SearchAfter = 0, offset+size, cursor
	queries++
	resp, err := d.run(ctx, KindBlock, req)
	if err != nil {
		return Page{}, err
	}

	hits := resp.Hits.Hits
	if offset >= len(hits) {
		hits = nil
	} else {
		end := offset + size
		if end > len(hits) {
			end = len(hits)
		}
		hits = hits[offset:end]
	}
	return Page{Hits: hits, Total: int(resp.Hits.Total)}, nil
}

// Sale fetches one sale by id. A missing sale returns nil without error.
func (d *Driver) Sale(ctx context.Context, saleID string) (*model.Sale, error) {
	req := backend.SearchRequest{
		Query: map[string]any{"term": map[string]any{"_id": saleID}},
		Size:  1,
	}
	resp, err := d.run(ctx, KindDetail, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Hits.Hits) == 0 {
		return nil, nil
	}

	hit := resp.Hits.Hits[0]
	var sale model.Sale
	if err := json.Unmarshal(hit.Source, &sale); err != nil {
		return nil, fmt.Errorf("search: decode sale %s: %w", saleID, err)
	}
	if sale.ID == "" {
		sale.ID = hit.ID
	}
	return &sale, nil
}

// Regionals fetches regional documents, restricted to ids when given.
func (d *Driver) Regionals(ctx context.Context, ids []string) ([]backend.Hit, error) {
	req := backend.SearchRequest{Size: d.cfg.CitiesSize}
	if len(ids) > 0 {
		req.Query = map[string]any{"terms": map[string]any{"_id": ids}}
	}
	resp, err := d.runIndex(ctx, d.cfg.RegionalIndex, KindRegional, req)
	if err != nil {
		return nil, err
	}
	return resp.Hits.Hits, nil
}

func (d *Driver) run(ctx context.Context, kind string, req backend.SearchRequest) (*backend.SearchResponse, error) {
	return d.runIndex(ctx, d.cfg.SalesIndex, kind, req)
}

func (d *Driver) runIndex(ctx context.Context, index, kind string, req backend.SearchRequest) (_ *backend.SearchResponse, err error) {
	ctx, span := observability.StartSpan(ctx, "search.query",
		observability.AttrQueryKind.String(kind),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	observability.RequestLogger(ctx, d.logger).Debug("search: query",
		zap.String("index", index),
		zap.String("kind", kind),
		zap.Int("from", req.From),
		zap.Int("size", req.Size),
		zap.Bool("after_cursor", len(req.SearchAfter) > 0),
	)

	start := time.Now()
	resp, err := d.search.Search(ctx, index, req)
	d.metrics.RecordSearchQuery(kind, time.Since(start))
	if err != nil {
		return nil, err
	}
	return resp, nil
}
