package salespanel

import (
	"github.com/pitabwire/salespanel/internal/milestone"
	"github.com/pitabwire/salespanel/model"
)

// defaultCompany is shown for sellers with no outsourced company.
const defaultCompany = "Sumicity"

// Failure reasons keyed by the sale status that ended the process.
var reasons = map[string]string{
	"5eeb56d8e2a4942ab8321681": "Condomínio não liberado para venda.",
	"610163d0dac85a2706a73f8b": "Bloco do condomínio não liberado para venda.",
	"5f5bc337428dd6389777b188": "Condomínio com restrições quanto a venda e não liberado pelo Back Office.",
	"5fb2723eb90b5939d8017fda": "Endereço já possuí cliente ou possui restrições quanto a venda e não foi liberado pelo Back Office.",
	"5f593894428dd6389745b0f3": "Endereço não encontrado e não liberado pela Engenharia.",
	"600966b11f58fc6e35309fb6": "Cliente não aceitou o pagamento de instalação antecipada.",
	"5f49457b603d5c30450ccda1": "Pagamento de instalação antecipada não realizada até o prazo de 5 dias após o vencimento.",
	"5e99e4baabc8283d1e00ac95": "A instalação não pode ser realizada.",
	"5fb57352b3a60d685bab59c4": "Cliente reprovado pelo Qualify por não atender as regras de restriçaõ financeira.",
}

const (
	statusNoTechnicalViability = "5ea34c99e2a4942ab81c01e8"
	statusNoFinancialViability = "5ea34cb0e2a4942ab81c0221"
)

// reason explains why a sale failed, or returns "" for sales that did not.
func reason(s *model.Sale) string {
	if s.SaleStatus == nil {
		return ""
	}
	switch id := s.SaleStatus.ID; id {
	case milestone.StatusCancelled:
		if s.StatusBeforeCancellation != nil {
			return "Processo cancelado manualmente na etapa \"" + s.StatusBeforeCancellation.Name + "\"."
		}
		return "Processo cancelado manualmente."
	case milestone.StatusCancelledForIdleness:
		if s.StatusBeforeCancellation != nil {
			return "Processo cancelado por ociosidade na etapa \"" + s.StatusBeforeCancellation.Name + "\"."
		}
		return "Processo cancelado por ociosidade."
	case statusNoTechnicalViability:
		if !s.TechnicalAnalysisReason.IsZero() {
			return s.TechnicalAnalysisReason.Join()
		}
		return "Endereço sem viabilidade técnica."
	case statusNoFinancialViability:
		if !s.FinancialAnalysisReason.IsZero() {
			return s.FinancialAnalysisReason.Join()
		}
		return "Cliente sem viabilidade financeira."
	default:
		return reasons[id]
	}
}

// hasFailed reports a process that finished without the sale finishing.
func hasFailed(s *model.Sale) bool {
	if s.SaleStatus == nil || s.ProcessState == nil || s.SaleStatus.ID == "" || s.ProcessState.ID == "" {
		return false
	}
	return s.ProcessState.ID == milestone.ProcessFinished && s.SaleStatus.ID != milestone.Finished
}

// sellerName renders "user / company", or "" without a user name.
func sellerName(s *model.Seller) string {
	if s == nil || s.User == nil || s.User.Name == "" {
		return ""
	}
	company := defaultCompany
	if s.OutsourcedCompany != nil && s.OutsourcedCompany.Name != "" {
		company = s.OutsourcedCompany.Name
	}
	return s.User.Name + " / " + company
}

// planOffer renders "plan / offer", either half alone when the other is
// missing.
func planOffer(s *model.Sale) string {
	var plan, offer string
	if s.ContractPlan != nil {
		plan = s.ContractPlan.Name
	}
	if s.Offer != nil {
		offer = s.Offer.Name
	}
	switch {
	case plan != "" && offer != "":
		return plan + " / " + offer
	case plan != "":
		return plan
	default:
		return offer
	}
}

// taxID prefers the business id over the personal one.
func taxID(s *model.Sale) string {
	if c := s.CNPJ.String(); c != "" {
		return c
	}
	return s.CPF.String()
}

func refName(r *model.Ref) string {
	if r == nil {
		return ""
	}
	return r.Name
}

// saleData assembles the detail view from the sale record and the results
// of the concurrent lookups.
func saleData(s *model.Sale, history []string, air model.TicketData) *model.SaleData {
	if history == nil {
		history = []string{}
	}
	current := ""
	if len(history) > 0 {
		current = history[len(history)-1]
	}
	return &model.SaleData{
		ProspectName:         refName(s.Prospect),
		CPFCNPJ:              taxID(s),
		SalesChannelName:     refName(s.SalesChannel),
		Seller:               sellerName(s.ResponsibleForSale),
		SaleCreationDate:     s.CreationDate,
		DateOfLastSaleChange: s.LastUpdateDate,
		SaleID:               s.ID,
		CurrentSaleState:     current,
		AirContractCode:      s.AirContractCode.String(),
		SaleStatus:           history,
		Reason:               reason(s),
		HasFailed:            hasFailed(s),
		InstallationAddress:  s.InstallationAddress,
		AirData:              air,
		PlanOffer:            planOffer(s),
	}
}
