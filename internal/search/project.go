package search

import (
	"strconv"

	"github.com/pitabwire/salespanel/internal/backend"
	"github.com/pitabwire/salespanel/internal/milestone"
	"github.com/pitabwire/salespanel/model"
)

// Tag colors of listing rows.
const (
	TagFinished        = "#20770A"
	TagProcessFinished = "#C77700"
	TagInProgress      = "#0A5077"
)

// Projection is the row data read from a hit's sort tuple.
type Projection struct {
	ID                 string
	CreationDate       string
	ProspectName       string
	CPFCNPJ            string
	ChannelName        string
	Version            string
	ProcessState       string
	SaleStatus         string
	BeforeCancellation string
}

// Project reads a sort tuple produced by order o. Missing values read as "".
func Project(hit backend.Hit, o Order) Projection {
	get := func(f Field) string {
		i := o.Position(f)
		if i < 0 || i >= len(hit.Sort) {
			return ""
		}
		return sortString(hit.Sort[i])
	}

	p := Projection{
		ID:                 get(FieldID),
		CreationDate:       get(FieldCreationDate),
		ProspectName:       get(FieldProspectName),
		CPFCNPJ:            get(FieldCPF),
		ChannelName:        get(FieldChannelName),
		Version:            get(FieldVersion),
		ProcessState:       get(FieldProcessState),
		SaleStatus:         get(FieldSaleStatus),
		BeforeCancellation: get(FieldBeforeCancellation),
	}
	if p.CPFCNPJ == "" {
		p.CPFCNPJ = get(FieldCNPJ)
	}
	return p
}

// State returns the identifiers needed to resolve the row's milestone.
func (p Projection) State() model.SaleState {
	return model.SaleState{
		SaleID:               p.ID,
		StatusID:             p.SaleStatus,
		BeforeCancellationID: p.BeforeCancellation,
		VersionLabel:         p.Version,
	}
}

// Row builds the listing row; currentState is the resolved milestone name.
func (p Projection) Row(currentState string) model.SalesRow {
	return model.SalesRow{
		SaleCreationDate: p.CreationDate,
		ID:               p.ID,
		ProspectName:     p.ProspectName,
		CPFCNPJ:          p.CPFCNPJ,
		CurrentSaleState: currentState,
		SalesChannelName: p.ChannelName,
		TagColor:         TagColor(p.SaleStatus, p.ProcessState),
	}
}

// TagColor picks the row color from the raw sale status and the coarse
// process state.
func TagColor(saleStatusID, processStateID string) string {
	switch {
	case milestone.IsFinished(saleStatusID):
		return TagFinished
	case processStateID == milestone.ProcessFinished:
		return TagProcessFinished
	default:
		return TagInProgress
	}
}

func sortString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
