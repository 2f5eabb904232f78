package tasktree

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) Timestamp {
	return Timestamp{Time: base.Add(time.Duration(minutes) * time.Minute)}
}

func identifiers(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Identifier
	}
	return out
}

func TestFlatten_preOrder(t *testing.T) {
	children := []Node{
		{Identifier: "a", Nexts: []Node{
			{Identifier: "a1", Nexts: []Node{{Identifier: "a1x"}}},
			{Identifier: "a2"},
		}},
		{Identifier: "b"},
	}
	assert.Equal(t, []string{"a", "a1", "a1x", "a2", "b"}, identifiers(Flatten(children)))
}

func TestFlatten_empty(t *testing.T) {
	assert.Empty(t, Flatten(nil))
}

func TestFlatten_deepChainDoesNotRecurse(t *testing.T) {
	const depth = 100000
	root := Node{Identifier: "n0"}
	cur := &root
	for i := 1; i < depth; i++ {
		cur.Nexts = []Node{{Identifier: fmt.Sprintf("n%d", i)}}
		cur = &cur.Nexts[0]
	}
	entries := Flatten([]Node{root})
	require.Len(t, entries, depth)
	assert.Equal(t, "n99999", entries[depth-1].Identifier)
}

func TestLatestMatching_picksMostRecentRecognizedTask(t *testing.T) {
	known := map[string]bool{"technicalViabilityTask": true, "eventAddressRegister": true}
	children := []Node{
		{Identifier: "eventAddressRegister", LastUpdateDate: at(1), Nexts: []Node{
			{Identifier: "gateway", LastUpdateDate: at(50)},
			{Identifier: "deep", LastUpdateDate: at(2), Nexts: []Node{
				{Identifier: "technicalViabilityTask", LastUpdateDate: at(30)},
			}},
		}},
		{Identifier: "unknownLater", LastUpdateDate: at(90)},
	}

	e, ok := LatestMatching(children, func(id string) bool { return known[id] })
	require.True(t, ok)
	assert.Equal(t, "technicalViabilityTask", e.Identifier)
	assert.Equal(t, at(30).Time, e.LastUpdateDate)
}

func TestLatestMatching_tiesKeepTraversalOrder(t *testing.T) {
	children := []Node{
		{Identifier: "first", LastUpdateDate: at(5)},
		{Identifier: "second", LastUpdateDate: at(5)},
	}
	e, ok := LatestMatching(children, func(string) bool { return true })
	require.True(t, ok)
	assert.Equal(t, "first", e.Identifier)
}

func TestLatestMatching_noneRecognized(t *testing.T) {
	children := []Node{{Identifier: "x", LastUpdateDate: at(1)}}
	_, ok := LatestMatching(children, func(string) bool { return false })
	assert.False(t, ok)
}

func TestTree_decodesBothTimestampForms(t *testing.T) {
	raw := `{"tree": {"identifier": "start", "nexts": [
		{"identifier": "a", "lastUpdateDate": "2021-03-01T12:00:00.000Z", "nexts": []},
		{"identifier": "b", "lastUpdateDate": 1614600060000, "nexts": []},
		{"identifier": "c", "lastUpdateDate": "garbage"}
	]}}`
	var tree Tree
	require.NoError(t, json.Unmarshal([]byte(raw), &tree))
	require.NotNil(t, tree.Root)

	entries := Flatten(tree.Root.Nexts)
	require.Len(t, entries, 3)
	assert.Equal(t, base, entries[0].LastUpdateDate.UTC())
	assert.Equal(t, base.Add(time.Minute), entries[1].LastUpdateDate)
	assert.True(t, entries[2].LastUpdateDate.IsZero())
}

func TestTimestamp_UnmarshalJSON_layouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2021-03-01T12:00:00Z"`, base},
		{`"2021-03-01T09:00:00.000-03:00"`, base},
		{`"2021-03-01T09:00:00.000-0300"`, base},
		{`"2021-03-01T09:00:00-0300"`, base},
		{`"2021-03-01T12:00:00.250"`, base.Add(250 * time.Millisecond)},
		{`"2021-03-01"`, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
		{`1614600000000`, base},
		{`"01/03/2021"`, time.Time{}},
		{`null`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %v, want %v", ts.Time, tt.want)
		})
	}
}

func TestLatestMatching_comparesAcrossOffsets(t *testing.T) {
	raw := `{"tree": {"identifier": "start", "nexts": [
		{"identifier": "eventAddressRegister", "lastUpdateDate": "2021-03-01T10:00:00.000Z"},
		{"identifier": "technicalViabilityTask", "lastUpdateDate": "2021-03-01T12:00:00.000-0300"}
	]}}`
	var tree Tree
	require.NoError(t, json.Unmarshal([]byte(raw), &tree))

	e, ok := LatestMatching(tree.Root.Nexts, func(string) bool { return true })

	require.True(t, ok)
	assert.Equal(t, "technicalViabilityTask", e.Identifier)
	assert.True(t, e.LastUpdateDate.Equal(base.Add(3*time.Hour)))
}

func TestTree_missingRoot(t *testing.T) {
	var tree Tree
	require.NoError(t, json.Unmarshal([]byte(`{}`), &tree))
	assert.Nil(t, tree.Root)
}
