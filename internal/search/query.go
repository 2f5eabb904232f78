package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pitabwire/salespanel/internal/milestone"
)

// Period is a creation-date window.
type Period string

// Supported periods.
const (
	Today        Period = "today"
	Last5Days    Period = "last5Days"
	Last10Days   Period = "last10Days"
	Last20Days   Period = "last20Days"
	CurrentMonth Period = "currentMonth"
	LastMonth    Period = "lastMonth"
	PerPeriod    Period = "perPeriod"
)

// Valid reports whether p is a supported period.
func (p Period) Valid() bool {
	switch p {
	case Today, Last5Days, Last10Days, Last20Days, CurrentMonth, LastMonth, PerPeriod:
		return true
	}
	return false
}

// Filters are the listing filters. Sellers and Period are required; the
// rest are optional and ignored when empty.
type Filters struct {
	Sellers         []string
	Period          Period
	From            string
	Until           string
	CustomerName    string
	ExternalCode    string
	States          []string
	RegionalIDs     []string
	SalesChannelIDs []string
	CPFCNPJ         string
	Milestones      []string
}

// BuildQuery renders the filters as a backend query. Each alternative
// group (tax id, milestone) becomes its own nested bool requiring one match,
// so combining groups requires both.
func BuildQuery(f Filters, timeZone string) map[string]any {
	must := []any{
		map[string]any{"terms": map[string]any{"responsibleForSale._id": f.Sellers}},
		DateRange(f.Period, f.From, f.Until, timeZone),
	}

	for _, tok := range NameTokens(f.CustomerName) {
		must = append(must, map[string]any{
			"wildcard": map[string]any{"prospect.name": map[string]any{"value": "*" + tok + "*"}},
		})
	}
	if f.ExternalCode != "" {
		must = append(must, map[string]any{"term": map[string]any{"airContractCode.keyword": f.ExternalCode}})
	}
	if len(f.States) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"_status.identifier.keyword": f.States}})
	}
	if len(f.RegionalIDs) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"regional._id": f.RegionalIDs}})
	}
	if len(f.SalesChannelIDs) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"salesChannel._id": f.SalesChannelIDs}})
	}

	if f.CPFCNPJ != "" {
		pattern := "*" + f.CPFCNPJ + "*"
		must = append(must, anyOf(
			map[string]any{"wildcard": map[string]any{"cpf": map[string]any{"value": pattern}}},
			map[string]any{"wildcard": map[string]any{"cnpj": map[string]any{"value": pattern}}},
		))
	}
	if len(f.Milestones) > 0 {
		members := milestone.Members(f.Milestones...)
		if members == nil {
			members = []string{}
		}
		must = append(must, anyOf(
			map[string]any{"terms": map[string]any{"saleStatus._id": members}},
			map[string]any{"terms": map[string]any{"saleStatusBeforeCancelation._id": members}},
		))
	}

	return map[string]any{"bool": map[string]any{"must": must}}
}

func anyOf(clauses ...any) map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"should":               clauses,
			"minimum_should_match": 1,
		},
	}
}

// DateRange renders the creation-date window of a period using the
// backend's date math, rounded in timeZone.
func DateRange(p Period, from, until, timeZone string) map[string]any {
	r := map[string]any{"time_zone": timeZone}
	switch p {
	case Today:
		r["gte"] = "now/d"
	case Last5Days:
		r["gte"] = "now-4d/d"
	case Last10Days:
		r["gte"] = "now-9d/d"
	case Last20Days:
		r["gte"] = "now-19d/d"
	case CurrentMonth:
		r["gte"] = "now/M"
	case LastMonth:
		r["gte"] = "now-1M/M"
		r["lte"] = "now-1M/M"
	default:
		r["gte"] = from
		r["lte"] = until
	}
	return map[string]any{"range": map[string]any{"_creationDate": r}}
}

// NameTokens lower-cases a customer name, strips diacritics and splits it
// on whitespace.
func NameTokens(name string) []string {
	if name == "" {
		return nil
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(name))
	if err != nil {
		folded = strings.ToLower(name)
	}
	return strings.Fields(folded)
}
