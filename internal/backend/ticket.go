package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pitabwire/salespanel/model"
)

type ticketRequest struct {
	Payload struct {
		TicketCode string `json:"codigoChamadoAir"`
	} `json:"payload"`
	Objects string `json:"objects"`
}

type ticketResponse struct {
	Result struct {
		Success  bool `json:"success"`
		Response *struct {
			TicketID         model.FlexString `json:"num_chamado"`
			InstallationDate model.FlexString `json:"data_instalacao"`
			Queue            model.FlexString `json:"fila"`
			Reason           model.FlexString `json:"motivo_os"`
		} `json:"response"`
	} `json:"result"`
}

// TicketClient queries the ticketing integration for installation data.
type TicketClient struct {
	client *Client
}

// NewTicketClient wraps a backend client for the ticketing integration.
func NewTicketClient(c *Client) *TicketClient {
	return &TicketClient{client: c}
}

// InstallationData looks up the installation ticket of a sale. An
// unsuccessful lookup is not an error: it returns a TicketData with Found
// unset.
func (t *TicketClient) InstallationData(ctx context.Context, saleID, ticketCode string) (model.TicketData, error) {
	var req ticketRequest
	req.Payload.TicketCode = ticketCode
	req.Objects = saleID

	var resp ticketResponse
	if err := t.client.Do(ctx, "installation_data", http.MethodPost, "/integrations/air/installation-data", req, &resp); err != nil {
		return model.TicketData{}, fmt.Errorf("ticket lookup %s: %w", saleID, err)
	}
	if !resp.Result.Success || resp.Result.Response == nil {
		return model.TicketData{}, nil
	}
	r := resp.Result.Response
	return model.TicketData{
		Found:            true,
		TicketID:         r.TicketID.String(),
		InstallationDate: r.InstallationDate.String(),
		Queue:            r.Queue.String(),
		Reason:           r.Reason.String(),
	}, nil
}

// HealthCheck pings the ticketing integration.
func (t *TicketClient) HealthCheck(ctx context.Context) error {
	return t.client.Ping(ctx, "/health")
}
