// Package search builds the sale listing queries, drives deep pagination over
// the search backend's bounded result window, and projects returned sort
// tuples into listing rows.
package search

// Order is a listing sort order.
type Order string

// Supported orders.
const (
	DateGrowing                Order = "dateGrowing"
	DateDescending             Order = "dateDescending"
	ProspectNameGrowing        Order = "prospectNameGrowing"
	ProspectNameDescending     Order = "prospectNameDescending"
	CPFCNPJGrowing             Order = "cpfCnpjGrowing"
	CPFCNPJDescending          Order = "cpfCnpjDescending"
	SalesChannelNameGrowing    Order = "salesChannelNameGrowing"
	SalesChannelNameDescending Order = "salesChannelNameDescending"
)

// Field is a sale attribute that takes part in a sort chain.
type Field int

// Sort chain fields.
const (
	FieldCreationDate Field = iota
	FieldID
	FieldProspectName
	FieldCPF
	FieldCNPJ
	FieldChannelName
	FieldVersion
	FieldProcessState
	FieldSaleStatus
	FieldBeforeCancellation
)

var fieldPaths = [...]string{
	FieldCreationDate:       "_creationDate.keyword",
	FieldID:                 "_id",
	FieldProspectName:       "prospect.name.keyword",
	FieldCPF:                "cpf.keyword",
	FieldCNPJ:               "cnpj.keyword",
	FieldChannelName:        "salesChannel.name.keyword",
	FieldVersion:            "_processVersion.versionLabel.keyword",
	FieldProcessState:       "_status._id",
	FieldSaleStatus:         "saleStatus._id",
	FieldBeforeCancellation: "saleStatusBeforeCancelation._id",
}

// Path returns the backend field path sorted on.
func (f Field) Path() string { return fieldPaths[f] }

// Every chain lists all ten fields, so any sort tuple carries everything a
// row needs. The record id always follows the leading key.
var (
	byDate = []Field{
		FieldCreationDate, FieldID, FieldProspectName, FieldCPF, FieldCNPJ,
		FieldChannelName, FieldVersion, FieldProcessState, FieldSaleStatus, FieldBeforeCancellation,
	}
	byProspect = []Field{
		FieldProspectName, FieldID, FieldCPF, FieldCNPJ, FieldChannelName,
		FieldCreationDate, FieldVersion, FieldProcessState, FieldSaleStatus, FieldBeforeCancellation,
	}
	byTaxID = []Field{
		FieldCPF, FieldCNPJ, FieldID, FieldChannelName, FieldCreationDate,
		FieldProspectName, FieldVersion, FieldProcessState, FieldSaleStatus, FieldBeforeCancellation,
	}
	byChannel = []Field{
		FieldChannelName, FieldID, FieldCreationDate, FieldProspectName, FieldCPF,
		FieldCNPJ, FieldVersion, FieldProcessState, FieldSaleStatus, FieldBeforeCancellation,
	}
)

type schema struct {
	chain     []Field
	desc      bool
	positions map[Field]int
}

var schemas = map[Order]*schema{
	DateGrowing:                newSchema(byDate, false),
	DateDescending:             newSchema(byDate, true),
	ProspectNameGrowing:        newSchema(byProspect, false),
	ProspectNameDescending:     newSchema(byProspect, true),
	CPFCNPJGrowing:             newSchema(byTaxID, false),
	CPFCNPJDescending:          newSchema(byTaxID, true),
	SalesChannelNameGrowing:    newSchema(byChannel, false),
	SalesChannelNameDescending: newSchema(byChannel, true),
}

func newSchema(chain []Field, desc bool) *schema {
	s := &schema{chain: chain, desc: desc, positions: make(map[Field]int, len(chain))}
	for i, f := range chain {
		s.positions[f] = i
	}
	return s
}

// ParseOrder validates an order name.
func ParseOrder(s string) (Order, bool) {
	o := Order(s)
	_, ok := schemas[o]
	return o, ok
}

// Valid reports whether o is a supported order.
func (o Order) Valid() bool {
	_, ok := schemas[o]
	return ok
}

// Chain returns the fields o sorts on, in priority order.
func (o Order) Chain() []Field {
	s := schemas[o]
	if s == nil {
		return nil
	}
	out := make([]Field, len(s.chain))
	copy(out, s.chain)
	return out
}

// Position returns the index of f in the sort tuples of o, or -1.
func (o Order) Position(f Field) int {
	s := schemas[o]
	if s == nil {
		return -1
	}
	if i, ok := s.positions[f]; ok {
		return i
	}
	return -1
}

// Sort renders the backend sort clause of o. Every key uses the same
// direction.
func (o Order) Sort() []any {
	s := schemas[o]
	if s == nil {
		return nil
	}
	dir := "asc"
	if s.desc {
		dir = "desc"
	}
	out := make([]any, len(s.chain))
	for i, f := range s.chain {
		out[i] = map[string]any{f.Path(): map[string]any{"order": dir}}
	}
	return out
}
