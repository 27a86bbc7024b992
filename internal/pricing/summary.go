package pricing

import (
	"github.com/noah-isme/toko-checkout/internal/money"
)

// Rules carries the injected pricing configuration. The engine never hard
// codes business constants.
type Rules struct {
	Currency              string
	TaxBps                int
	FreeShippingThreshold money.Money
	StandardShippingFee   money.Money
}

// OrderSummary is the aggregate view over a set of priced lines.
// GrandTotal = PriceTotal + ShippingCost always holds.
type OrderSummary struct {
	Subtotal     money.Money
	Tax          money.Money
	PriceTotal   money.Money
	ShippingCost money.Money
	GrandTotal   money.Money
	ItemCount    int
}

// Summarize folds priced lines into an order summary. It is a pure function:
// identical input yields identical output, and it never mutates its input.
// Shipping is the flat standard fee, waived entirely once the price total
// reaches the free-shipping threshold.
func Summarize(lines []PricedLine, rules Rules) (OrderSummary, error) {
	subtotal := money.Zero(rules.Currency)
	tax := money.Zero(rules.Currency)
	priceTotal := money.Zero(rules.Currency)
	itemCount := 0

	var err error
	for _, line := range lines {
		if priceTotal, err = priceTotal.Add(line.UnitEffectivePrice.MulInt(line.Quantity)); err != nil {
			return OrderSummary{}, err
		}
		if subtotal, err = subtotal.Add(line.UnitSubtotal.MulInt(line.Quantity)); err != nil {
			return OrderSummary{}, err
		}
		if tax, err = tax.Add(line.UnitTax.MulInt(line.Quantity)); err != nil {
			return OrderSummary{}, err
		}
		itemCount += line.Quantity
	}

	shipping := money.Zero(rules.Currency)
	if itemCount > 0 && !priceTotal.GreaterOrEqual(rules.FreeShippingThreshold) {
		shipping = rules.StandardShippingFee
	}
	grand, err := priceTotal.Add(shipping)
	if err != nil {
		return OrderSummary{}, err
	}
	return OrderSummary{
		Subtotal:     subtotal,
		Tax:          tax,
		PriceTotal:   priceTotal,
		ShippingCost: shipping,
		GrandTotal:   grand,
		ItemCount:    itemCount,
	}, nil
}
