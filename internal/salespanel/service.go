// Package salespanel implements the monitoring panel operations: the paged
// sales listing, the single sale detail view and the city listing.
package salespanel

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/observability"
	"github.com/pitabwire/salespanel/internal/search"
	"github.com/pitabwire/salespanel/model"
)

// Operation names, used in metrics, spans and logs.
const (
	OpSalesList  = "GetSalesList"
	OpSaleDetail = "GetSaleDetail"
	OpCities     = "GetCities"
)

// SaleSearch reads sales and regionals from the search backend.
type SaleSearch interface {
	Search(ctx context.Context, f search.Filters, o search.Order, page int) (search.Page, error)
	Sale(ctx context.Context, saleID string) (*model.Sale, error)
	Regionals(ctx context.Context, ids []string) ([]backend.Hit, error)
	PageSize() int
}

// StatusResolver names the milestones of a sale.
type StatusResolver interface {
	Name(ctx context.Context, st model.SaleState) (string, error)
	History(ctx context.Context, st model.SaleState) ([]string, error)
}

// TicketLookup fetches installation ticket data.
type TicketLookup interface {
	InstallationData(ctx context.Context, saleID, ticketCode string) (model.TicketData, error)
}

// Service runs the panel operations. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	search      SaleSearch
	resolver    StatusResolver
	tickets     TicketLookup
	metrics     *observability.Metrics
	logger      *zap.Logger
	cityPolicy  string
	concurrency int
}

// Option configures optional Service settings.
type Option func(*Service)

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the fallback logger used when the request carries none.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCityDedup selects the city deduplication policy.
func WithCityDedup(policy string) Option {
	return func(s *Service) {
		if policy != "" {
			s.cityPolicy = policy
		}
	}
}

// WithResolveConcurrency bounds how many listing rows resolve their
// milestone at once.
func WithResolveConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a Service.
func NewService(ss SaleSearch, resolver StatusResolver, tickets TicketLookup, opts ...Option) *Service {
	s := &Service{
		search:      ss,
		resolver:    resolver,
		tickets:     tickets,
		logger:      zap.NewNop(),
		cityPolicy:  DedupIdentity,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSalesList validates raw and returns one page of the matching sales.
// Invalid input yields a 400 envelope, not an error.
func (s *Service) GetSalesList(ctx context.Context, raw []byte) (_ *model.SalesListOutput, err error) {
	ctx, done := s.begin(ctx, OpSalesList)
	status := http.StatusOK
	defer func() { done(status, err) }()

	in, verr := ParseListInput(raw)
	if verr != nil {
		status = http.StatusBadRequest
		return &model.SalesListOutput{Envelope: s.rejected(ctx, OpSalesList, verr)}, nil
	}

	out := &model.SalesListOutput{Envelope: model.Success(), Sales: []model.SalesRow{}}

	page, err := s.search.Search(ctx, in.Filters, in.Order, in.Page)
	if err != nil {
		return nil, err
	}

	rows := make([]model.SalesRow, len(page.Hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, hit := range page.Hits {
		p := search.Project(hit, in.Order)
		g.Go(func() error {
			name, err := s.resolver.Name(gctx, p.State())
			if err != nil {
				return err
			}
			rows[i] = p.Row(name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.Sales = rows
	out.TotalResults = page.Total
	out.Pages = pages(page.Total, s.search.PageSize())
	return out, nil
}

// GetSaleDetail validates raw and returns the detail view of one sale. A
// sale that does not exist yields a success envelope without data.
func (s *Service) GetSaleDetail(ctx context.Context, raw []byte) (_ *model.SaleDetailOutput, err error) {
	ctx, done := s.begin(ctx, OpSaleDetail)
	status := http.StatusOK
	defer func() { done(status, err) }()

	in, verr := ParseDetailInput(raw)
	if verr != nil {
		status = http.StatusBadRequest
		return &model.SaleDetailOutput{Envelope: s.rejected(ctx, OpSaleDetail, verr)}, nil
	}

	out := &model.SaleDetailOutput{Envelope: model.Success()}

	sale, err := s.search.Sale(ctx, in.SaleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return out, nil
	}

	var (
		history []string
		air     model.TicketData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := s.resolver.History(gctx, sale.State())
		history = h
		return err
	})
	if code := sale.AirTicketCode.String(); code != "" {
		g.Go(func() error {
			t, err := s.tickets.InstallationData(gctx, sale.ID, code)
			air = t
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.SaleData = saleData(sale, history, air)
	return out, nil
}

// GetCities validates raw and returns the cities served by the requested
// regionals, or by all regionals when none are named.
func (s *Service) GetCities(ctx context.Context, raw []byte) (_ *model.CitiesOutput, err error) {
	ctx, done := s.begin(ctx, OpCities)
	status := http.StatusOK
	defer func() { done(status, err) }()

	in, verr := ParseCitiesInput(raw)
	if verr != nil {
		status = http.StatusBadRequest
		return &model.CitiesOutput{Envelope: s.rejected(ctx, OpCities, verr)}, nil
	}

	out := &model.CitiesOutput{Envelope: model.Success(), Cities: []model.City{}}

	hits, err := s.search.Regionals(ctx, in.RegionalIDs)
	if err != nil {
		return nil, err
	}
	cities, err := flattenCities(hits, s.cityPolicy)
	if err != nil {
		return nil, err
	}
	out.Cities = cities
	return out, nil
}

// begin opens the operation span and returns a completion func that closes
// it and records the outcome.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(status int, err error)) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "panel."+op, observability.AttrOperation.String(op))
	return ctx, func(status int, err error) {
		observability.EndSpanWithError(span, err)
		if err != nil {
			status = http.StatusInternalServerError
			observability.RequestLogger(ctx, s.logger).Error("panel: operation failed",
				zap.String("operation", op),
				zap.Error(err),
			)
		}
		s.metrics.RecordOperation(op, status, time.Since(start))
	}
}

func (s *Service) rejected(ctx context.Context, op string, verr *ValidationError) model.Envelope {
	s.metrics.RecordValidationFailure(op)
	observability.RequestLogger(ctx, s.logger).Warn("panel: input rejected",
		zap.String("operation", op),
		zap.String("reason", verr.Message),
	)
	return model.BadRequest(verr.Message)
}

func pages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
