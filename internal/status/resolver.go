// Package status resolves the current milestone of a sale and the milestone
// history shown in the detail view.
package status

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/salespanel/internal/legacy"
	"github.com/pitabwire/salespanel/internal/milestone"
	"github.com/pitabwire/salespanel/internal/observability"
	"github.com/pitabwire/salespanel/internal/tasktree"
	"github.com/pitabwire/salespanel/model"
)

// Resolution paths, used as metric labels.
const (
	PathDirect             = "direct"
	PathBeforeCancellation = "before_cancellation"
	PathLegacy             = "legacy"
)

// Resolution outcomes, used as metric labels.
const (
	OutcomeResolved    = "resolved"
	OutcomeMiss        = "miss"
	OutcomeUnsupported = "unsupported_version"
	OutcomeError       = "error"
)

// NameLookup resolves milestone display names.
type NameLookup interface {
	Name(ctx context.Context, id string) (string, error)
}

// TreeSource loads legacy task trees.
type TreeSource interface {
	Tree(ctx context.Context, version, saleID string) (*tasktree.Tree, error)
}

// Resolver maps sale states onto milestones. It keeps no per-call state and
// is safe for concurrent use.
type Resolver struct {
	trees   TreeSource
	names   NameLookup
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewResolver creates a Resolver. metrics may be nil.
func NewResolver(trees TreeSource, names NameLookup, metrics *observability.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{trees: trees, names: names, metrics: metrics, logger: logger}
}

// Resolve returns the current milestone of a sale, or "" when it cannot be
// determined. Only transport failures of the process engine are errors.
func (r *Resolver) Resolve(ctx context.Context, st model.SaleState) (string, error) {
	anchor, err := r.anchor(ctx, st)
	if err != nil {
		return "", err
	}
	m, _ := milestone.Of(anchor)
	return m, nil
}

// Name returns the display name of the current milestone of a sale.
func (r *Resolver) Name(ctx context.Context, st model.SaleState) (string, error) {
	m, err := r.Resolve(ctx, st)
	if err != nil || m == "" {
		return "", err
	}
	name, err := r.names.Name(ctx, m)
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}
	return name, nil
}

// History returns the display names of the milestones a sale has gone
// through, first lifecycle milestone first, ending with the current one.
// Names are deduplicated preserving order; milestones the catalog does not
// know are left out.
func (r *Resolver) History(ctx context.Context, st model.SaleState) ([]string, error) {
	anchor, err := r.anchor(ctx, st)
	if err != nil {
		return nil, err
	}

	ids := milestone.History(anchor)
	names := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		name, err := r.names.Name(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// anchor picks the status identifier that stands for the sale's position in
// the lifecycle. For cancelled sales that is the status held before the
// cancellation, falling back to the legacy task tree.
func (r *Resolver) anchor(ctx context.Context, st model.SaleState) (string, error) {
	if !milestone.IsCancellation(st.StatusID) {
		r.record(PathDirect, st.StatusID)
		return st.StatusID, nil
	}
	if st.BeforeCancellationID != "" {
		r.record(PathBeforeCancellation, st.BeforeCancellationID)
		return st.BeforeCancellationID, nil
	}
	return r.legacy(ctx, st)
}

func (r *Resolver) legacy(ctx context.Context, st model.SaleState) (_ string, err error) {
	ctx, span := observability.StartSpan(ctx, "status.legacy_walk",
		observability.AttrSaleID.String(st.SaleID),
		observability.AttrVersion.String(st.VersionLabel),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	tree, err := r.trees.Tree(ctx, st.VersionLabel, st.SaleID)
	if errors.Is(err, legacy.ErrUnsupportedVersion) {
		r.metrics.RecordResolution(PathLegacy, OutcomeUnsupported)
		r.metrics.RecordUnsupportedVersion(st.VersionLabel)
		observability.RequestLogger(ctx, r.logger).Warn("status: unsupported process version",
			zap.String("sale_id", st.SaleID),
			zap.String("version", st.VersionLabel),
		)
		return "", nil
	}
	if err != nil {
		r.metrics.RecordResolution(PathLegacy, OutcomeError)
		return "", fmt.Errorf("status: legacy walk %s: %w", st.SaleID, err)
	}
	if tree.Root == nil {
		r.metrics.RecordResolution(PathLegacy, OutcomeMiss)
		return "", nil
	}

	entry, ok := tasktree.LatestMatching(tree.Root.Nexts, milestone.IsMilestoneTask)
	if !ok {
		r.metrics.RecordResolution(PathLegacy, OutcomeMiss)
		return "", nil
	}
	m, _ := milestone.OfTask(entry.Identifier)
	r.metrics.RecordResolution(PathLegacy, OutcomeResolved)
	return m, nil
}

func (r *Resolver) record(path, statusID string) {
	if _, ok := milestone.Of(statusID); ok {
		r.metrics.RecordResolution(path, OutcomeResolved)
		return
	}
	r.metrics.RecordResolution(path, OutcomeMiss)
}
