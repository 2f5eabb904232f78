package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// SearchRequest is a search-backend query body.
type SearchRequest struct {
	Query       any   `json:"query,omitempty"`
	From        int   `json:"from"`
	Size        int   `json:"size"`
	Sort        []any `json:"sort,omitempty"`
	Source      *bool `json:"_source,omitempty"`
	SearchAfter []any `json:"search_after,omitempty"`
	// TrackTotalHits asks for an exact total. Without it the backend stops
	// counting at 10000.
	TrackTotalHits bool `json:"track_total_hits,omitempty"`
}

// SearchResponse is the part of a search-backend answer the panel reads.
type SearchResponse struct {
	Hits struct {
		Total Total `json:"total"`
		Hits  []Hit `json:"hits"`
	} `json:"hits"`
}

// Hit is one matched document. With _source disabled only ID and Sort are
// populated.
type Hit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source,omitempty"`
	Sort   []any           `json:"sort,omitempty"`
}

// Total decodes both the bare-number and the {"value": n} forms of the hit
// count.
type Total int64

// UnmarshalJSON implements json.Unmarshaler.
func (t *Total) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Value int64 `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*t = Total(obj.Value)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = Total(n)
	return nil
}

// SearchClient queries the indexed-search backend.
type SearchClient struct {
	client *Client
}

// NewSearchClient wraps a backend client for the search service.
func NewSearchClient(c *Client) *SearchClient {
	return &SearchClient{client: c}
}

// Search runs req against index.
func (s *SearchClient) Search(ctx context.Context, index string, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	path := "/" + url.PathEscape(index) + "/_search"
	if err := s.client.Do(ctx, "search", http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	return &resp, nil
}

// HealthCheck pings the search backend root.
func (s *SearchClient) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, "/")
}
