// Package backendtest provides an in-memory search backend for tests. It
// speaks the subset of the search query language the panel emits: bool,
// term, terms, wildcard and range clauses (range is accepted but not
// evaluated), multi-field sort with search_after, the result window
// limit on from+size, and totals capped at TrackTotalLimit unless
// track_total_hits is set.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
)

// DefaultWindow is the result window enforced unless overridden.
const DefaultWindow = 10000

// TrackTotalLimit is the hit count reported, with relation "gte", when a
// query does not ask for exact totals.
const TrackTotalLimit = 10000

// Doc is an indexed document.
type Doc struct {
	ID     string
	Source map[string]any
}

// Request is a recorded search call.
type Request struct {
	Index          string
	From           int
	Size           int
	SearchAfter    []any
	TrackTotalHits bool
	Body           map[string]any
}

// Server is a fake search backend.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	window   int
	indexes  map[string][]Doc
	requests []Request
	fail     int
}

// NewServer starts a fake search backend that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{window: DefaultWindow, indexes: make(map[string][]Doc)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"tagline": "You Know, for Search"})
	})
	mux.HandleFunc("POST /{index}/_search", s.handleSearch)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetWindow changes the result window limit.
func (s *Server) SetWindow(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = n
}

// FailNext makes the next n searches answer 503.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = n
}

// Index appends documents to an index.
func (s *Server) Index(index string, docs ...Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[index] = append(s.indexes[index], docs...)
}

// Requests returns the searches received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Reset forgets recorded requests.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

type sortKey struct {
	field string
	desc  bool
}

type searchBody struct {
	Query       map[string]any   `json:"query"`
	From        int              `json:"from"`
	Size        *int             `json:"size"`
	Sort        []map[string]any `json:"sort"`
	Source      *bool            `json:"_source"`
	SearchAfter []any            `json:"search_after"`
	TrackTotal  bool             `json:"track_total_hits"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	index := r.PathValue("index")

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "parse_exception", err.Error())
		return
	}
	encoded, _ := json.Marshal(raw)
	var body searchBody
	if err := json.Unmarshal(encoded, &body); err != nil {
		writeError(w, http.StatusBadRequest, "parse_exception", err.Error())
		return
	}
	size := 10
	if body.Size != nil {
		size = *body.Size
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Index: index, From: body.From, Size: size, SearchAfter: body.SearchAfter,
		TrackTotalHits: body.TrackTotal, Body: raw,
	})
	if s.fail > 0 {
		s.fail--
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "unavailable", "injected failure")
		return
	}
	window := s.window
	docs := append([]Doc(nil), s.indexes[index]...)
	s.mu.Unlock()

	if body.From+size > window {
		writeError(w, http.StatusBadRequest, "illegal_argument_exception",
			fmt.Sprintf("Result window is too large, from + size must be less than or equal to: [%d] but was [%d].", window, body.From+size))
		return
	}

	keys := make([]sortKey, 0, len(body.Sort))
	for _, entry := range body.Sort {
		for field, opts := range entry {
			desc := false
			if m, ok := opts.(map[string]any); ok && m["order"] == "desc" {
				desc = true
			}
			keys = append(keys, sortKey{field: field, desc: desc})
		}
	}

	var matched []Doc
	for _, d := range docs {
		if matches(d, body.Query) {
			matched = append(matched, d)
		}
	}
	total, relation := len(matched), "eq"
	if !body.TrackTotal && total > TrackTotalLimit {
		total, relation = TrackTotalLimit, "gte"
	}

	tuples := make(map[string][]any, len(matched))
	for _, d := range matched {
		tuples[d.ID] = tupleOf(d, keys)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return compareTuples(tuples[matched[i].ID], tuples[matched[j].ID], keys) < 0
	})

	if len(body.SearchAfter) > 0 {
		cut := len(matched)
		for i, d := range matched {
			if compareTuples(tuples[d.ID], body.SearchAfter, keys) > 0 {
				cut = i
				break
			}
		}
		matched = matched[cut:]
	}

	if body.From >= len(matched) {
		matched = nil
	} else {
		end := body.From + size
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[body.From:end]
	}

	hits := make([]map[string]any, 0, len(matched))
	for _, d := range matched {
		h := map[string]any{"_index": index, "_id": d.ID}
		if body.Source == nil || *body.Source {
			h["_source"] = d.Source
		}
		if len(keys) > 0 {
			h["sort"] = tuples[d.ID]
		}
		hits = append(hits, h)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": total, "relation": relation},
			"hits":  hits,
		},
	})
}

// lookup resolves a dotted field path. "_id" and a trailing ".keyword" are
// handled the way the real backend maps them.
func lookup(d Doc, field string) any {
	if field == "_id" {
		return d.ID
	}
	field = strings.TrimSuffix(field, ".keyword")
	var cur any = d.Source
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func tupleOf(d Doc, keys []sortKey) []any {
	t := make([]any, len(keys))
	for i, k := range keys {
		v := lookup(d, k.field)
		switch v.(type) {
		case string, float64, nil:
			t[i] = v
		default:
			t[i] = fmt.Sprint(v)
		}
	}
	return t
}

// compareTuples orders two sort tuples. Missing values sort last in both
// directions.
func compareTuples(a, b []any, keys []sortKey) int {
	for i, k := range keys {
		var av, bv any
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		switch {
		case av == nil && bv == nil:
			continue
		case av == nil:
			return 1
		case bv == nil:
			return -1
		}
		c := compareValues(av, bv)
		if k.desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareValues(a, b any) int {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func matches(d Doc, q map[string]any) bool {
	if len(q) == 0 {
		return true
	}
	for kind, body := range q {
		m, _ := body.(map[string]any)
		switch kind {
		case "match_all":
		case "bool":
			if !matchBool(d, m) {
				return false
			}
		case "term":
			for field, want := range m {
				if inner, ok := want.(map[string]any); ok {
					want = inner["value"]
				}
				if !containsValue(lookup(d, field), want) {
					return false
				}
			}
		case "terms":
			for field, list := range m {
				values, _ := list.([]any)
				hit := false
				for _, want := range values {
					if containsValue(lookup(d, field), want) {
						hit = true
						break
					}
				}
				if !hit {
					return false
				}
			}
		case "wildcard":
			for field, opts := range m {
				pattern := ""
				if inner, ok := opts.(map[string]any); ok {
					pattern, _ = inner["value"].(string)
				} else {
					pattern, _ = opts.(string)
				}
				v := lookup(d, field)
				if v == nil || !wildcard(pattern, strings.ToLower(fmt.Sprint(v))) {
					return false
				}
			}
		case "range":
		default:
			return false
		}
	}
	return true
}

func matchBool(d Doc, b map[string]any) bool {
	for _, clause := range asList(b["must"]) {
		if !matches(d, clause) {
			return false
		}
	}
	for _, clause := range asList(b["filter"]) {
		if !matches(d, clause) {
			return false
		}
	}
	should := asList(b["should"])
	if len(should) == 0 {
		return true
	}
	minimum := 0
	if v, ok := b["minimum_should_match"].(float64); ok {
		minimum = int(v)
	} else if len(asList(b["must"])) == 0 && len(asList(b["filter"])) == 0 {
		minimum = 1
	}
	n := 0
	for _, clause := range should {
		if matches(d, clause) {
			n++
		}
	}
	return n >= minimum
}

func asList(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		return []map[string]any{t}
	}
	return nil
}

func containsValue(field, want any) bool {
	if list, ok := field.([]any); ok {
		for _, v := range list {
			if containsValue(v, want) {
				return true
			}
		}
		return false
	}
	if field == nil {
		return false
	}
	return fmt.Sprint(field) == fmt.Sprint(want)
}

func wildcard(pattern, value string) bool {
	var b strings.Builder
	b.WriteString("^")
	for _, part := range strings.Split(pattern, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	expr := strings.TrimSuffix(b.String(), ".*") + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, reason string) {
	writeJSON(w, status, map[string]any{
		"error":  map[string]any{"type": kind, "reason": reason},
		"status": status,
	})
}
