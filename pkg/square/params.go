package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// OrderLineParams is one line of a Square order. Prices are in minor units.
type OrderLineParams struct {
	Name           string
	Quantity       int
	UnitPriceMinor int64
	Note           string
}

// OrderCreateParams holds the inputs for a Square order.
type OrderCreateParams struct {
	LocationID     string
	ReferenceID    string
	Currency       string
	AmountMinor    int64
	LineItems      []OrderLineParams
	IdempotencyKey string
}

// toSquareRequest builds the order. Without line items a single ad hoc line
// carries the full amount so Square's total matches ours.
func (p OrderCreateParams) toSquareRequest(idempotencyKey string) *sq.CreateOrderRequest {
	order := &sq.Order{
		LocationID: p.LocationID,
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		order.ReferenceID = ptrString(trimmed)
	}
	for _, line := range p.LineItems {
		item := &sq.OrderLineItem{
			Name:           ptrString(line.Name),
			Quantity:       strconv.Itoa(line.Quantity),
			BasePriceMoney: moneyPtr(line.UnitPriceMinor, p.Currency),
		}
		if trimmed := strings.TrimSpace(line.Note); trimmed != "" {
			item.Note = ptrString(trimmed)
		}
		order.LineItems = append(order.LineItems, item)
	}
	if len(order.LineItems) == 0 && p.AmountMinor > 0 {
		order.LineItems = []*sq.OrderLineItem{{
			Name:           ptrString(p.ReferenceID),
			Quantity:       "1",
			BasePriceMoney: moneyPtr(p.AmountMinor, p.Currency),
		}}
	}
	return &sq.CreateOrderRequest{
		Order:          order,
		IdempotencyKey: ptrString(idempotencyKey),
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
