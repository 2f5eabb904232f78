package salespanel

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pitabwire/salespanel/internal/search"
)

// Validation messages returned with status 400.
const (
	MsgNoInput            = "Não há dados de entrada!"
	MsgSellersMissing     = "Não foram informados os vendedores!"
	MsgSellersNotArray    = "A entrada de vendedores não é do tipo array!"
	MsgSellersEmpty       = "A entrada de vendedores não possui nenhum vendedor!"
	MsgPeriodMissing      = "Não foi informado o periodo!"
	MsgPeriodInvalid      = "Não foi informada uma opção válida. Ela deve ter ser \"Hoje\", \"Últimos 5 dias\", \"Últimos 10 dias\", \"Últimos 20 dias\", \"Mês atual\", \"Último mês\" ou \"Por período\""
	MsgFromMissing        = "Não foi informada a data de início do período!"
	MsgUntilMissing       = "Não foi informada a data de término do período!"
	MsgOrderMissing       = "Não foi informado a ordem!"
	MsgOrderInvalid       = "Ordem solicitada é inválida"
	MsgPageMissing        = "Não foi informado a pagina!"
	MsgPageInvalid        = "Pagina inválida!"
	MsgSaleIDMissing      = "Não foi informado o id da venda!"
	MsgRegionalIDNotArray = "A entrada de regionais não é do tipo array!"
)

// ValidationError carries the message of a rejected input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) *ValidationError { return &ValidationError{Message: msg} }

// ListInput is a validated GetSalesList request.
type ListInput struct {
	Filters search.Filters
	Order   search.Order
	Page    int
}

// DetailInput is a validated GetSaleDetail request.
type DetailInput struct {
	SaleID string
}

// CitiesInput is a validated GetCities request.
type CitiesInput struct {
	RegionalIDs []string
}

// ParseListInput validates a raw GetSalesList body. Checks run in a fixed
// order (sellers, period, order, page) and the first failure wins.
func ParseListInput(raw []byte) (ListInput, *ValidationError) {
	in, ok := decodeObject(raw)
	if !ok {
		return ListInput{}, invalid(MsgNoInput)
	}

	var out ListInput

	sellers := in["sellers"]
	if !truthy(sellers) {
		return ListInput{}, invalid(MsgSellersMissing)
	}
	list, isList := sellers.([]any)
	if !isList {
		return ListInput{}, invalid(MsgSellersNotArray)
	}
	if len(list) == 0 {
		return ListInput{}, invalid(MsgSellersEmpty)
	}
	out.Filters.Sellers = stringList(list)

	period := in["period"]
	if !truthy(period) {
		return ListInput{}, invalid(MsgPeriodMissing)
	}
	p, _ := period.(string)
	out.Filters.Period = search.Period(p)
	if !out.Filters.Period.Valid() {
		return ListInput{}, invalid(MsgPeriodInvalid)
	}
	if out.Filters.Period == search.PerPeriod {
		if !truthy(in["from"]) {
			return ListInput{}, invalid(MsgFromMissing)
		}
		if !truthy(in["until"]) {
			return ListInput{}, invalid(MsgUntilMissing)
		}
		out.Filters.From = scalar(in["from"])
		out.Filters.Until = scalar(in["until"])
	}

	if !truthy(in["order"]) {
		return ListInput{}, invalid(MsgOrderMissing)
	}
	name, _ := in["order"].(string)
	o, known := search.ParseOrder(name)
	if !known {
		return ListInput{}, invalid(MsgOrderInvalid)
	}
	out.Order = o

	if !truthy(in["page"]) {
		return ListInput{}, invalid(MsgPageMissing)
	}
	page, valid := pageNumber(in["page"])
	if !valid {
		return ListInput{}, invalid(MsgPageInvalid)
	}
	out.Page = page

	out.Filters.CustomerName, _ = in["customerName"].(string)
	out.Filters.ExternalCode = scalar(in["externalCode"])
	out.Filters.CPFCNPJ = scalar(in["cpfCnpj"])
	out.Filters.States = optionalList(in["status"])
	out.Filters.RegionalIDs = optionalList(in["regionalId"])
	out.Filters.SalesChannelIDs = optionalList(in["salesChannelIds"])
	out.Filters.Milestones = optionalList(in["saleStatus"])
	return out, nil
}

// ParseDetailInput validates a raw GetSaleDetail body.
func ParseDetailInput(raw []byte) (DetailInput, *ValidationError) {
	in, ok := decodeObject(raw)
	if !ok {
		return DetailInput{}, invalid(MsgNoInput)
	}
	if !truthy(in["saleId"]) {
		return DetailInput{}, invalid(MsgSaleIDMissing)
	}
	return DetailInput{SaleID: scalar(in["saleId"])}, nil
}

// ParseCitiesInput validates a raw GetCities body. regionalId is optional.
func ParseCitiesInput(raw []byte) (CitiesInput, *ValidationError) {
	in, ok := decodeObject(raw)
	if !ok {
		return CitiesInput{}, invalid(MsgNoInput)
	}
	v := in["regionalId"]
	if !truthy(v) {
		return CitiesInput{}, nil
	}
	list, isList := v.([]any)
	if !isList {
		return CitiesInput{}, invalid(MsgRegionalIDNotArray)
	}
	return CitiesInput{RegionalIDs: stringList(list)}, nil
}

// decodeObject reads raw as a JSON object. An empty body, null, or anything
// that is not an object counts as missing input.
func decodeObject(raw []byte) (map[string]any, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var in map[string]any
	if err := dec.Decode(&in); err != nil || in == nil {
		return nil, false
	}
	return in, true
}

// truthy mirrors the loose presence test the panel clients rely on: null,
// false, zero and "" count as absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func stringList(list []any) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s := scalar(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// optionalList reads an optional array filter; any other shape is ignored.
func optionalList(v any) []string {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	return stringList(list)
}

// pageNumber accepts a positive integral page given as a number or a
// numeric string.
func pageNumber(v any) (int, bool) {
	var f float64
	var err error
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, false
	}
	if err != nil || f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
