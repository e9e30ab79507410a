package checkout

import (
	"context"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ShippingCalculator prices delivery for an order.
type ShippingCalculator interface {
	Shipping(ctx context.Context, itemsTotal decimal.Decimal, itemCount int) (decimal.Decimal, error)
}

// TaxCalculator prices tax for an order.
type TaxCalculator interface {
	Tax(ctx context.Context, itemsTotal decimal.Decimal) (decimal.Decimal, error)
}

// FlatShipping charges the same amount on every non-empty order.
type FlatShipping struct {
	Amount decimal.Decimal
}

func (f FlatShipping) Shipping(_ context.Context, _ decimal.Decimal, itemCount int) (decimal.Decimal, error) {
	if itemCount == 0 || f.Amount.IsNegative() {
		return decimal.Zero, nil
	}
	return f.Amount.Round(2), nil
}

// PercentTax charges RatePercent of the items total.
type PercentTax struct {
	RatePercent decimal.Decimal
}

func (p PercentTax) Tax(_ context.Context, itemsTotal decimal.Decimal) (decimal.Decimal, error) {
	if p.RatePercent.IsNegative() {
		return decimal.Zero, nil
	}
	return Percent(itemsTotal, p.RatePercent), nil
}

// Percent returns round(amount * rate / 100, 2).
func Percent(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(ratePercent).Div(hundred).Round(2)
}

// Split is the commission breakdown of one order line.
type Split struct {
	ItemTotal        decimal.Decimal
	CommissionAmount decimal.Decimal
	SellerEarnings   decimal.Decimal
}

// LineSplit computes item_total, the platform commission and the seller share.
// The two shares always add back up to the item total.
func LineSplit(price decimal.Decimal, quantity int, ratePercent decimal.Decimal) Split {
	itemTotal := price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	commission := Percent(itemTotal, ratePercent)
	return Split{
		ItemTotal:        itemTotal,
		CommissionAmount: commission,
		SellerEarnings:   itemTotal.Sub(commission),
	}
}

// MinorUnits converts a base currency amount into the integer minor units a
// payment gateway expects.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
