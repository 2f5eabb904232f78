package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pitabwire/salespanel/internal/tasktree"
)

// ProcessClient reads task-execution trees from the process engine.
type ProcessClient struct {
	client  *Client
	process string
}

// NewProcessClient wraps a backend client for the process engine. process
// is the engine's name for the sale process definition.
func NewProcessClient(c *Client, process string) *ProcessClient {
	return &ProcessClient{client: c, process: process}
}

// Tree loads the task tree of one sale instance under a deployed version
// key such as "v1_0".
func (p *ProcessClient) Tree(ctx context.Context, versionKey, saleID string) (*tasktree.Tree, error) {
	path := fmt.Sprintf("/processes/%s/%s/instances/%s/tree",
		url.PathEscape(p.process), url.PathEscape(versionKey), url.PathEscape(saleID))

	var tree tasktree.Tree
	if err := p.client.Do(ctx, "tree", http.MethodGet, path, nil, &tree); err != nil {
		return nil, fmt.Errorf("process tree %s/%s: %w", versionKey, saleID, err)
	}
	return &tree, nil
}

// HealthCheck pings the process engine.
func (p *ProcessClient) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx, "/health")
}
