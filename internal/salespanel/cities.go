package salespanel

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/model"
)

// City deduplication policies.
const (
	// DedupIdentity drops a city only when both id and name repeat.
	DedupIdentity = "identity"
	// DedupID keeps the first city seen for each id.
	DedupID = "id"
)

type regionalSource struct {
	Cities []model.City `json:"cities"`
}

// flattenCities collects the cities of every regional hit, sorts them by
// name (stable, so equal names keep regional order) and drops duplicates
// under policy.
func flattenCities(hits []backend.Hit, policy string) ([]model.City, error) {
	cities := []model.City{}
	for _, h := range hits {
		if len(h.Source) == 0 {
			continue
		}
		var src regionalSource
		if err := json.Unmarshal(h.Source, &src); err != nil {
			return nil, fmt.Errorf("salespanel: decode regional %s: %w", h.ID, err)
		}
		cities = append(cities, src.Cities...)
	}

	sort.SliceStable(cities, func(i, j int) bool { return cities[i].Name < cities[j].Name })

	key := func(c model.City) string { return c.ID + "\x00" + c.Name }
	if policy == DedupID {
		key = func(c model.City) string { return c.ID }
	}

	seen := make(map[string]bool, len(cities))
	out := cities[:0]
	for _, c := range cities {
		k := key(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out, nil
}
