package integration

import (
	"fmt"

	"github.com/pitabwire/salespanel/internal/backend/backendtest"
	"github.com/pitabwire/salespanel/internal/milestone"
)

// Milestone identifiers used across the end-to-end tests.
const (
	MilestoneAddress   = "5ee3aec2b42c2a6b6224489a"
	MilestoneTechnical = "5e99b4f7abc8283d1effa39d"
	MilestoneFinancial = "5e99b51fabc8283d1effa3d5"
)

// StatusNames is the catalog served by the fake catalog service.
func StatusNames() map[string]string {
	return map[string]string{
		MilestoneAddress:   "Cadastro de Endereço",
		MilestoneTechnical: "Análise Técnica",
		MilestoneFinancial: "Análise Financeira",
		milestone.Finished: "Venda Concluída",
	}
}

// SaleDoc builds a sale document for the sales index. statusID is the sale
// status; versionLabel is the process version the sale runs on.
func SaleDoc(id, seller, statusID, versionLabel string, day int) backendtest.Doc {
	return backendtest.Doc{
		ID: id,
		Source: map[string]any{
			"_creationDate":      fmt.Sprintf("2024-03-%02dT09:00:00Z", day),
			"_lastUpdateDate":    fmt.Sprintf("2024-03-%02dT18:00:00Z", day),
			"prospect":           map[string]any{"name": "Cliente " + id},
			"cpf":                "12345678901",
			"salesChannel":       map[string]any{"_id": "ch-1", "name": "Loja Centro"},
			"responsibleForSale": map[string]any{"_id": seller, "user": map[string]any{"name": "Ana"}},
			"_processVersion":    map[string]any{"versionLabel": versionLabel},
			"_status":            map[string]any{"_id": "ps-open", "identifier": "open"},
			"saleStatus":         map[string]any{"_id": statusID},
		},
	}
}

// RegionalDoc builds a regional document holding cities given as id, name
// pairs.
func RegionalDoc(id string, cityPairs ...string) backendtest.Doc {
	cities := make([]any, 0, len(cityPairs)/2)
	for i := 0; i+1 < len(cityPairs); i += 2 {
		cities = append(cities, map[string]any{"_id": cityPairs[i], "name": cityPairs[i+1]})
	}
	return backendtest.Doc{ID: id, Source: map[string]any{"cities": cities}}
}

// TaskTree builds a process engine tree answer whose root has the given
// children, each a task identifier executed at the given timestamp.
func TaskTree(tasks ...TreeTask) map[string]any {
	nexts := make([]any, 0, len(tasks))
	for _, t := range tasks {
		nexts = append(nexts, map[string]any{
			"identifier":     t.Identifier,
			"lastUpdateDate": t.At,
			"nexts":          []any{},
		})
	}
	return map[string]any{
		"tree": map[string]any{
			"identifier":     "start",
			"lastUpdateDate": "2024-03-01T08:00:00Z",
			"nexts":          nexts,
		},
	}
}

// TreeTask is one executed task of a legacy process instance.
type TreeTask struct {
	Identifier string
	At         string
}
