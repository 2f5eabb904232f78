package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Sale is a sale-process record as stored in the search backend. It is owned
// by the process-execution backend and only ever read here.
type Sale struct {
	ID                       string          `json:"_id"`
	Prospect                 *Ref            `json:"prospect,omitempty"`
	CPF                      FlexString      `json:"cpf"`
	CNPJ                     FlexString      `json:"cnpj"`
	SalesChannel             *Ref            `json:"salesChannel,omitempty"`
	Regional                 *Ref            `json:"regional,omitempty"`
	ResponsibleForSale       *Seller         `json:"responsibleForSale,omitempty"`
	CreationDate             string          `json:"_creationDate"`
	LastUpdateDate           string          `json:"_lastUpdateDate"`
	AirContractCode          FlexString      `json:"airContractCode"`
	AirTicketCode            FlexString      `json:"airTicketCode"`
	SaleStatus               *Ref            `json:"saleStatus,omitempty"`
	StatusBeforeCancellation *Ref            `json:"saleStatusBeforeCancelation,omitempty"`
	ProcessState             *ProcessState   `json:"_status,omitempty"`
	ProcessVersion           *ProcessVersion `json:"_processVersion,omitempty"`
	InstallationAddress      *Address        `json:"installationAddressProcess,omitempty"`
	ContractPlan             *Ref            `json:"customizedContractPlan,omitempty"`
	Offer                    *Ref            `json:"offer,omitempty"`

	TechnicalAnalysisReason Text `json:"reasonAutomaticNonApprovalTechnicalAnalysis"`
	FinancialAnalysisReason Text `json:"rulesNotMetFinancialAnalysis"`
}

// Ref is an embedded reference to another backend entity.
type Ref struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// Seller is the responsible-seller reference of a sale.
type Seller struct {
	ID                string `json:"_id"`
	User              *Ref   `json:"user,omitempty"`
	OutsourcedCompany *Ref   `json:"outsourcedCompanie,omitempty"`
}

// ProcessState is the process engine's coarse state of a sale instance.
type ProcessState struct {
	ID         string `json:"_id"`
	Identifier string `json:"identifier"`
}

// ProcessVersion identifies the workflow definition a sale runs on.
type ProcessVersion struct {
	VersionLabel string `json:"versionLabel"`
}

// Address is the installation address recorded on a sale.
type Address struct {
	City       string `json:"city"`
	Zipcode    string `json:"zipcode"`
	Street     string `json:"street"`
	Quarter    string `json:"quarter"`
	Number     string `json:"number"`
	Complement string `json:"complement"`
}

// State extracts the identifiers the status resolver needs.
func (s Sale) State() SaleState {
	st := SaleState{SaleID: s.ID}
	if s.SaleStatus != nil {
		st.StatusID = s.SaleStatus.ID
	}
	if s.StatusBeforeCancellation != nil {
		st.BeforeCancellationID = s.StatusBeforeCancellation.ID
	}
	if s.ProcessVersion != nil {
		st.VersionLabel = s.ProcessVersion.VersionLabel
	}
	return st
}

// SaleState is the minimal view of a sale used to resolve its milestone.
type SaleState struct {
	SaleID               string
	StatusID             string
	BeforeCancellationID string
	VersionLabel         string
}

// FlexString decodes a JSON string, number or null into a string. Backend
// documents are not consistent about numeric codes.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the decoded value.
func (f FlexString) String() string { return string(f) }

// Text is a free-text backend field that is either a single string or a list
// of sentences.
type Text struct {
	Values []string
	List   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*t = Text{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*t = Text{Values: list, List: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != "" {
		t.Values = []string{s}
	}
	return nil
}

// IsZero reports whether no text was recorded.
func (t Text) IsZero() bool { return len(t.Values) == 0 }

// Join renders the text: a single string verbatim, a list as
// "first. second." with each entry followed by a period.
func (t Text) Join() string {
	if !t.List {
		if len(t.Values) == 0 {
			return ""
		}
		return t.Values[0]
	}
	var b strings.Builder
	for _, s := range t.Values {
		b.WriteString(s)
		b.WriteString(". ")
	}
	return strings.TrimSuffix(b.String(), " ")
}
