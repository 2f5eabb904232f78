package model

import (
	"encoding/json"
	"testing"
)

func TestSale_decodesBackendDocument(t *testing.T) {
	raw := `{
		"_id": "sale-1",
		"prospect": {"name": "Maria"},
		"cpf": 12345678900,
		"airContractCode": "AC-9",
		"saleStatus": {"_id": "5ea34de6e2a4942ab81c110f", "name": "Cancelada"},
		"saleStatusBeforeCancelation": {"_id": "5e99b4f7abc8283d1effa39d", "name": "Viabilidade técnica"},
		"_processVersion": {"versionLabel": "1.2"},
		"rulesNotMetFinancialAnalysis": ["Score baixo", "Restrição"],
		"reasonAutomaticNonApprovalTechnicalAnalysis": "Sem porta"
	}`
	var s Sale
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s.CPF != "12345678900" {
		t.Errorf("CPF = %q, want numeric value as string", s.CPF)
	}
	if got := s.FinancialAnalysisReason.Join(); got != "Score baixo. Restrição." {
		t.Errorf("FinancialAnalysisReason.Join() = %q", got)
	}
	if got := s.TechnicalAnalysisReason.Join(); got != "Sem porta" {
		t.Errorf("TechnicalAnalysisReason.Join() = %q", got)
	}

	st := s.State()
	want := SaleState{
		SaleID:               "sale-1",
		StatusID:             "5ea34de6e2a4942ab81c110f",
		BeforeCancellationID: "5e99b4f7abc8283d1effa39d",
		VersionLabel:         "1.2",
	}
	if st != want {
		t.Errorf("State() = %+v, want %+v", st, want)
	}
}

func TestText_singleElementList(t *testing.T) {
	var txt Text
	if err := json.Unmarshal([]byte(`["Score baixo"]`), &txt); err != nil {
		t.Fatal(err)
	}
	if got := txt.Join(); got != "Score baixo." {
		t.Errorf("Join() = %q, want %q", got, "Score baixo.")
	}
}

func TestTicketData_MarshalJSON(t *testing.T) {
	b, _ := json.Marshal(TicketData{})
	if string(b) != "{}" {
		t.Errorf("not found ticket = %s, want {}", b)
	}
	b, _ = json.Marshal(TicketData{Found: true, TicketID: "123"})
	want := `{"num_chamado":"123","data_instalacao":"","fila":"","motivo_os":""}`
	if string(b) != want {
		t.Errorf("found ticket = %s, want %s", b, want)
	}
}
