package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/salespanel/internal/backend/backendtest"
)

func TestTotal_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Total
	}{
		{`42`, 42},
		{`{"value": 7, "relation": "eq"}`, 7},
		{`0`, 0},
	}
	for _, tt := range tests {
		var got Total
		require.NoError(t, json.Unmarshal([]byte(tt.in), &got), tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	var bad Total
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &bad))
}

func TestSearchClient_Search(t *testing.T) {
	fake := backendtest.NewServer(t)
	fake.Index("venda",
		backendtest.Doc{ID: "b", Source: map[string]any{"name": "beta"}},
		backendtest.Doc{ID: "a", Source: map[string]any{"name": "alpha"}},
	)
	sc := NewSearchClient(NewClient("search", testService(fake.URL), nil, nil))

	resp, err := sc.Search(context.Background(), "venda", SearchRequest{
		Size: 10,
		Sort: []any{map[string]any{"name.keyword": map[string]any{"order": "asc"}}},
	})

	require.NoError(t, err)
	assert.Equal(t, Total(2), resp.Hits.Total)
	require.Len(t, resp.Hits.Hits, 2)
	assert.Equal(t, "a", resp.Hits.Hits[0].ID)
	assert.Equal(t, []any{"alpha"}, resp.Hits.Hits[0].Sort)
	assert.JSONEq(t, `{"name":"alpha"}`, string(resp.Hits.Hits[0].Source))
	require.NoError(t, sc.HealthCheck(context.Background()))
}

func TestSearchClient_Search_windowExceeded(t *testing.T) {
	fake := backendtest.NewServer(t)
	sc := NewSearchClient(NewClient("search", testService(fake.URL), nil, nil))

	_, err := sc.Search(context.Background(), "venda", SearchRequest{From: 9995, Size: 10})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

func TestSearchClient_Search_trackTotalHits(t *testing.T) {
	fake := backendtest.NewServer(t)
	docs := make([]backendtest.Doc, backendtest.TrackTotalLimit+5)
	for i := range docs {
		docs[i] = backendtest.Doc{ID: fmt.Sprintf("s-%05d", i), Source: map[string]any{}}
	}
	fake.Index("venda", docs...)
	sc := NewSearchClient(NewClient("search", testService(fake.URL), nil, nil))

	capped, err := sc.Search(context.Background(), "venda", SearchRequest{Size: 0})
	require.NoError(t, err)
	assert.Equal(t, Total(backendtest.TrackTotalLimit), capped.Hits.Total)

	exact, err := sc.Search(context.Background(), "venda", SearchRequest{Size: 0, TrackTotalHits: true})
	require.NoError(t, err)
	assert.Equal(t, Total(backendtest.TrackTotalLimit+5), exact.Hits.Total)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.NotContains(t, reqs[0].Body, "track_total_hits")
	assert.True(t, reqs[1].TrackTotalHits)
}

func TestSearchClient_Search_sourceDisabled(t *testing.T) {
	fake := backendtest.NewServer(t)
	fake.Index("venda", backendtest.Doc{ID: "a", Source: map[string]any{"name": "alpha"}})
	sc := NewSearchClient(NewClient("search", testService(fake.URL), nil, nil))

	off := false
	resp, err := sc.Search(context.Background(), "venda", SearchRequest{Size: 1, Source: &off})

	require.NoError(t, err)
	require.Len(t, resp.Hits.Hits, 1)
	assert.Empty(t, resp.Hits.Hits[0].Source)
}

func TestProcessClient_Tree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/processes/venda/v1_0/instances/s-1/tree" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"tree":{"identifier":"root","lastUpdateDate":1614600000000,"nexts":[
			{"identifier":"task-a","lastUpdateDate":"2021-03-01T12:01:00Z"}
		]}}`))
	}))
	defer srv.Close()

	pc := NewProcessClient(NewClient("process", testService(srv.URL), nil, nil), "venda")
	tree, err := pc.Tree(context.Background(), "v1_0", "s-1")

	require.NoError(t, err)
	require.NotNil(t, tree.Root)
	assert.Equal(t, "root", tree.Root.Identifier)
	require.Len(t, tree.Root.Nexts, 1)
	assert.Equal(t, "task-a", tree.Root.Nexts[0].Identifier)

	_, err = pc.Tree(context.Background(), "v9_9", "s-1")
	assert.True(t, IsNotFound(err))
}

func TestTicketClient_InstallationData(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantFound bool
		wantID    string
	}{
		{
			name: "found",
			response: `{"result":{"success":true,"response":{
				"num_chamado":12345,"data_instalacao":"2024-03-02","fila":"INSTALACAO","motivo_os":"Nova"}}}`,
			wantFound: true,
			wantID:    "12345",
		},
		{
			name:     "unsuccessful",
			response: `{"result":{"success":false}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/integrations/air/installation-data", r.URL.Path)
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "s-1", body["objects"])
				assert.Equal(t, map[string]any{"codigoChamadoAir": "T-9"}, body["payload"])
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			tc := NewTicketClient(NewClient("ticket", testService(srv.URL), nil, nil))
			data, err := tc.InstallationData(context.Background(), "s-1", "T-9")

			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, data.Found)
			assert.Equal(t, tt.wantID, data.TicketID)
		})
	}
}
