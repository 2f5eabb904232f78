package model

import (
	"encoding/json"
	"net/http"
)

// MessageSuccess is the message of every successful envelope.
const MessageSuccess = "Sucesso"

// Envelope is the status/message pair shared by every facade output.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the envelope represents a successful operation.
func (e Envelope) OK() bool { return e.Status == http.StatusOK }

// Base returns the envelope itself. Outputs embedding Envelope expose it
// through this method.
func (e Envelope) Base() Envelope { return e }

// Success returns the 200 envelope.
func Success() Envelope {
	return Envelope{Status: http.StatusOK, Message: MessageSuccess}
}

// BadRequest returns the 400 envelope carrying a validation failure reason.
func BadRequest(msg string) Envelope {
	return Envelope{Status: http.StatusBadRequest, Message: msg}
}

// SalesListOutput is the output of GetSalesList.
type SalesListOutput struct {
	Envelope
	Sales        []SalesRow `json:"sales"`
	TotalResults int        `json:"totalResults"`
	Pages        int        `json:"pages"`
}

// SalesRow is the flattened per-sale summary shown in the panel listing.
type SalesRow struct {
	SaleCreationDate string `json:"saleCreationDate"`
	ID               string `json:"_id"`
	ProspectName     string `json:"prospectName"`
	CPFCNPJ          string `json:"cpfCnpj"`
	CurrentSaleState string `json:"currentSaleState"`
	SalesChannelName string `json:"salesChannelName"`
	TagColor         string `json:"tagColor"`
}

// SaleDetailOutput is the output of GetSaleDetail. SaleData is nil when the
// sale does not exist.
type SaleDetailOutput struct {
	Envelope
	SaleData *SaleData `json:"saleData,omitempty"`
}

// SaleData is the detail view of a single sale.
type SaleData struct {
	ProspectName         string     `json:"prospectName"`
	CPFCNPJ              string     `json:"cpfCnpj"`
	SalesChannelName     string     `json:"salesChannelName"`
	Seller               string     `json:"seller"`
	SaleCreationDate     string     `json:"saleCreationDate"`
	DateOfLastSaleChange string     `json:"dateOfLastSaleChange"`
	SaleID               string     `json:"saleId"`
	CurrentSaleState     string     `json:"currentSaleState"`
	AirContractCode      string     `json:"airContractCode"`
	SaleStatus           []string   `json:"saleStatus"`
	Reason               string     `json:"reason"`
	HasFailed            bool       `json:"hasFailed"`
	InstallationAddress  *Address   `json:"installationAddress,omitempty"`
	AirData              TicketData `json:"airData"`
	PlanOffer            string     `json:"planOffer"`
}

// TicketData is the installation ticket detail fetched from the external
// ticketing system. It renders as an empty object when the lookup was not
// successful.
type TicketData struct {
	Found            bool   `json:"-"`
	TicketID         string `json:"num_chamado"`
	InstallationDate string `json:"data_instalacao"`
	Queue            string `json:"fila"`
	Reason           string `json:"motivo_os"`
}

// MarshalJSON implements json.Marshaler.
func (t TicketData) MarshalJSON() ([]byte, error) {
	if !t.Found {
		return []byte("{}"), nil
	}
	type plain TicketData
	return json.Marshal(plain(t))
}

// CitiesOutput is the output of GetCities.
type CitiesOutput struct {
	Envelope
	Cities []City `json:"cities"`
}

// City is a city served by a regional.
type City struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}
