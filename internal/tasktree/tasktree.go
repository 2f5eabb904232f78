// Package tasktree flattens the task-execution trees of legacy sale process
// instances.
package tasktree

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// Node is one executed step of a process instance.
type Node struct {
	Identifier     string    `json:"identifier"`
	LastUpdateDate Timestamp `json:"lastUpdateDate"`
	Nexts          []Node    `json:"nexts"`
}

// Tree is the process engine's view of an instance. Root is nil when the
// engine has no tree for the instance.
type Tree struct {
	Root *Node `json:"tree"`
}

// Entry is a flattened node.
type Entry struct {
	Identifier     string
	LastUpdateDate time.Time
}

// Flatten returns every descendant of children, depth-first in pre-order.
// An explicit stack is used so tree depth is not bounded by the goroutine
// stack.
func Flatten(children []Node) []Entry {
	var out []Entry
	stack := make([]*Node, 0, len(children))
	for i := len(children) - 1; i >= 0; i-- {
		stack = append(stack, &children[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, Entry{Identifier: n.Identifier, LastUpdateDate: n.LastUpdateDate.Time})
		for i := len(n.Nexts) - 1; i >= 0; i-- {
			stack = append(stack, &n.Nexts[i])
		}
	}
	return out
}

// LatestMatching flattens children, orders the entries by last update, most
// recent first, and returns the first one accepted by match. Entries with the
// same timestamp keep their traversal order.
func LatestMatching(children []Node, match func(identifier string) bool) (Entry, bool) {
	entries := Flatten(children)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastUpdateDate.After(entries[j].LastUpdateDate)
	})
	for _, e := range entries {
		if match(e.Identifier) {
			return e, true
		}
	}
	return Entry{}, false
}

// timestampLayouts are tried in order. Zoneless values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp decodes either an ISO 8601 string or epoch milliseconds.
// Unparsable values decode as the zero time.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	ts.Time = time.Time{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		ts.Time = parseTimestamp(s)
		return nil
	}
	if ms, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		ts.Time = time.UnixMilli(ms).UTC()
	}
	return nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
