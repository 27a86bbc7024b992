package pricing

import (
	"errors"
	"fmt"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/money"
)

// ErrUnresolvableLine marks a cart entry with no matching catalog product.
var ErrUnresolvableLine = errors.New("pricing: no catalog product for line")

// ErrInvalidQuantity marks a non-positive line quantity.
var ErrInvalidQuantity = errors.New("pricing: quantity must be positive")

// CartLine is the closed set of raw cart representations. Authenticated
// carts carry server-recorded minor-unit prices; guest carts carry only
// product and quantity and are priced entirely from the catalog.
type CartLine interface {
	ProductID() string
	Quantity() int
	cartLine()
}

// ServerLine is a line from the server-tracked cart of an authenticated
// shopper. The stored unit figures may be stale relative to the catalog.
type ServerLine struct {
	Product           string
	Qty               int
	UnitPriceMinor    int64
	UnitTaxMinor      int64
	UnitSubtotalMinor int64
}

func (l ServerLine) ProductID() string { return l.Product }
func (l ServerLine) Quantity() int     { return l.Qty }
func (ServerLine) cartLine()           {}

// GuestLine is a line from a locally persisted anonymous cart.
type GuestLine struct {
	Product string
	Qty     int
}

func (l GuestLine) ProductID() string { return l.Product }
func (l GuestLine) Quantity() int     { return l.Qty }
func (GuestLine) cartLine()           {}

// Override is an authority-accepted per-line unit price. It takes precedence
// over the catalog's sale price; discounts never stack.
type Override struct {
	UnitPriceMinor int64
	PromotionID    *string
}

// PricedLine is the canonical priced representation of one cart row.
// Invariants: UnitEffectivePrice = UnitSubtotal + UnitTax exactly, and
// UnitEffectivePrice <= UnitListPrice. A new value replaces the old one on
// every recomputation; lines are never mutated in place.
type PricedLine struct {
	ProductID          string
	Quantity           int
	UnitListPrice      money.Money
	UnitEffectivePrice money.Money
	UnitTax            money.Money
	UnitSubtotal       money.Money
	AppliedPromotionID *string
}

// ResolveEffective applies the discount precedence rules and returns the
// effective unit price in minor units plus the promotion that supplied it.
func ResolveEffective(product catalog.Product, override *Override) (int64, *string) {
	if override != nil && override.UnitPriceMinor <= product.ListPrice {
		return override.UnitPriceMinor, override.PromotionID
	}
	return product.EffectivePrice(), nil
}

// Normalize converts one raw cart line plus its catalog product into a
// PricedLine. Tax is derived as effective price times the tax rate and the
// subtotal as the remainder, always recomputed in decimal form: a stale tax
// figure stored on a server cart line is never trusted once the catalog's
// current effective price disagrees with the stored unit price.
func Normalize(line CartLine, product catalog.Product, taxBps int, currency string, override *Override) (PricedLine, error) {
	if line.Quantity() <= 0 {
		return PricedLine{}, fmt.Errorf("product %s: %w", line.ProductID(), ErrInvalidQuantity)
	}
	// The stored figures on a ServerLine are deliberately ignored here: if
	// the server cart recorded a different price than the catalog now
	// reports, a promotion started or ended mid-session and the catalog
	// price wins. Deriving tax and subtotal from the effective price keeps
	// the line internally consistent either way.
	effectiveMinor, promoID := ResolveEffective(product, override)
	effective := money.FromMinorUnits(effectiveMinor, currency)
	list := money.FromMinorUnits(product.ListPrice, currency)
	tax := effective.MulBps(taxBps)
	subtotal, err := effective.Sub(tax)
	if err != nil {
		return PricedLine{}, err
	}
	return PricedLine{
		ProductID:          line.ProductID(),
		Quantity:           line.Quantity(),
		UnitListPrice:      list,
		UnitEffectivePrice: effective,
		UnitTax:            tax,
		UnitSubtotal:       subtotal,
		AppliedPromotionID: promoID,
	}, nil
}

// Normalized is the result of pricing a whole cart. Unpriced counts lines
// excluded because their product could not be resolved; Repriced counts
// server lines whose stored price was stale against the catalog.
type Normalized struct {
	Lines    []PricedLine
	Unpriced int
	Repriced int
}

// NormalizeAll prices every line it can and excludes (but counts) the rest.
// An unresolvable line is dropped rather than priced as zero.
func NormalizeAll(lines []CartLine, products map[string]catalog.Product, taxBps int, currency string, overrides map[string]Override) (Normalized, error) {
	out := Normalized{Lines: make([]PricedLine, 0, len(lines))}
	for _, line := range lines {
		product, ok := products[line.ProductID()]
		if !ok {
			out.Unpriced++
			continue
		}
		var override *Override
		if o, ok := overrides[line.ProductID()]; ok {
			override = &o
		}
		priced, err := Normalize(line, product, taxBps, currency, override)
		if err != nil {
			return Normalized{}, err
		}
		if sl, ok := line.(ServerLine); ok && sl.UnitPriceMinor != priced.UnitEffectivePrice.MinorUnits() {
			out.Repriced++
		}
		out.Lines = append(out.Lines, priced)
	}
	return out, nil
}
