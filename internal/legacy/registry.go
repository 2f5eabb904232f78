// Package legacy gives access to the task-execution trees of sales that run
// on older process versions, where the current milestone is not stored on the
// sale record and has to be reconstructed from executed tasks.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/tasktree"
)

// ErrUnsupportedVersion is returned for a process version label with no
// registered loader.
var ErrUnsupportedVersion = errors.New("legacy: unsupported process version")

// TreeLoader loads the task tree of one sale instance for a fixed process
// version.
type TreeLoader interface {
	Tree(ctx context.Context, saleID string) (*tasktree.Tree, error)
}

// TreeLoaderFunc adapts a function to TreeLoader.
type TreeLoaderFunc func(ctx context.Context, saleID string) (*tasktree.Tree, error)

// Tree calls f.
func (f TreeLoaderFunc) Tree(ctx context.Context, saleID string) (*tasktree.Tree, error) {
	return f(ctx, saleID)
}

// Registry maps process version labels ("1.0") to tree loaders. It is
// immutable after construction and safe for concurrent use.
type Registry struct {
	loaders map[string]TreeLoader
}

// NewRegistry validates and freezes a label to loader mapping.
func NewRegistry(loaders map[string]TreeLoader) (*Registry, error) {
	r := &Registry{loaders: make(map[string]TreeLoader, len(loaders))}
	for label, l := range loaders {
		if strings.TrimSpace(label) == "" {
			return nil, errors.New("legacy: empty version label")
		}
		if l == nil {
			return nil, fmt.Errorf("legacy: nil loader for version %q", label)
		}
		r.loaders[label] = l
	}
	return r, nil
}

// FromProcess builds a registry with one loader per version label, each
// reading trees from the process engine under that label's version key.
func FromProcess(pc *backend.ProcessClient, versions []string) (*Registry, error) {
	loaders := make(map[string]TreeLoader, len(versions))
	for _, label := range versions {
		if _, dup := loaders[label]; dup {
			return nil, fmt.Errorf("legacy: duplicate version %q", label)
		}
		key := VersionKey(label)
		loaders[label] = TreeLoaderFunc(func(ctx context.Context, saleID string) (*tasktree.Tree, error) {
			tree, err := pc.Tree(ctx, key, saleID)
			if backend.IsNotFound(err) {
				return &tasktree.Tree{}, nil
			}
			return tree, err
		})
	}
	return NewRegistry(loaders)
}

// Tree loads the task tree of a sale running on version.
func (r *Registry) Tree(ctx context.Context, version, saleID string) (*tasktree.Tree, error) {
	l, ok := r.loaders[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	tree, err := l.Tree(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("legacy: load tree %s@%s: %w", saleID, version, err)
	}
	if tree == nil {
		tree = &tasktree.Tree{}
	}
	return tree, nil
}

// Versions returns the registered labels, sorted.
func (r *Registry) Versions() []string {
	out := make([]string, 0, len(r.loaders))
	for label := range r.loaders {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// VersionKey turns a version label into the process engine's deployment
// key: "1.0" becomes "v1_0". Only the first dot is replaced.
func VersionKey(label string) string {
	return "v" + strings.Replace(label, ".", "_", 1)
}
