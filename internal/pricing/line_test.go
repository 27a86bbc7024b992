package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

const (
	testCurrency = "EUR"
	testTaxBps   = 1900
)

func product(id string, list int64, discounted *int64) catalog.Product {
	return catalog.Product{ID: id, Title: id, Slug: id, ListPrice: list, DiscountedPrice: discounted}
}

func ptr[T any](v T) *T { return &v }

func TestNormalizeGuestLineUsesListPrice(t *testing.T) {
	line := pricing.GuestLine{Product: "p1", Qty: 2}
	priced, err := pricing.Normalize(line, product("p1", 3000, nil), testTaxBps, testCurrency, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3000), priced.UnitEffectivePrice.MinorUnits())
	require.Equal(t, 2, priced.Quantity)
	require.Nil(t, priced.AppliedPromotionID)
}

func TestNormalizePrefersSalePriceBelowList(t *testing.T) {
	priced, err := pricing.Normalize(
		pricing.GuestLine{Product: "p1", Qty: 1},
		product("p1", 5000, ptr(int64(4000))),
		testTaxBps, testCurrency, nil,
	)
	require.NoError(t, err)
	require.Equal(t, int64(4000), priced.UnitEffectivePrice.MinorUnits())
	require.Equal(t, int64(5000), priced.UnitListPrice.MinorUnits())
}

func TestNormalizeIgnoresDiscountNotBelowList(t *testing.T) {
	priced, err := pricing.Normalize(
		pricing.GuestLine{Product: "p1", Qty: 1},
		product("p1", 5000, ptr(int64(5000))),
		testTaxBps, testCurrency, nil,
	)
	require.NoError(t, err)
	require.Equal(t, int64(5000), priced.UnitEffectivePrice.MinorUnits())
}

func TestNormalizeTaxSplitIsExact(t *testing.T) {
	priced, err := pricing.Normalize(
		pricing.GuestLine{Product: "p1", Qty: 1},
		product("p1", 2999, nil),
		testTaxBps, testCurrency, nil,
	)
	require.NoError(t, err)
	sum, err := priced.UnitSubtotal.Add(priced.UnitTax)
	require.NoError(t, err)
	require.True(t, priced.UnitEffectivePrice.Equal(sum), "effective price must equal subtotal+tax exactly")
	require.True(t, priced.UnitListPrice.GreaterOrEqual(priced.UnitEffectivePrice))
}

func TestNormalizeRepricesStaleServerLine(t *testing.T) {
	// The server cart recorded 50.00 but the catalog has since discounted
	// the product to 40.00: the stored figures must be discarded.
	stale := pricing.ServerLine{
		Product:           "p1",
		Qty:               1,
		UnitPriceMinor:    5000,
		UnitTaxMinor:      950,
		UnitSubtotalMinor: 4050,
	}
	priced, err := pricing.Normalize(stale, product("p1", 5000, ptr(int64(4000))), testTaxBps, testCurrency, nil)
	require.NoError(t, err)
	require.Equal(t, int64(4000), priced.UnitEffectivePrice.MinorUnits())
	sum, err := priced.UnitSubtotal.Add(priced.UnitTax)
	require.NoError(t, err)
	require.True(t, priced.UnitEffectivePrice.Equal(sum))
}

func TestNormalizeRejectsNonPositiveQuantity(t *testing.T) {
	_, err := pricing.Normalize(pricing.GuestLine{Product: "p1", Qty: 0}, product("p1", 100, nil), testTaxBps, testCurrency, nil)
	require.ErrorIs(t, err, pricing.ErrInvalidQuantity)
}

func TestResolveEffectivePrecedence(t *testing.T) {
	prod := product("p1", 5000, ptr(int64(4000)))

	// Authority override wins over the catalog sale price.
	eff, promo := pricing.ResolveEffective(prod, &pricing.Override{UnitPriceMinor: 3900, PromotionID: ptr("promo-1")})
	require.Equal(t, int64(3900), eff)
	require.Equal(t, "promo-1", *promo)

	// An override above list is ignored.
	eff, promo = pricing.ResolveEffective(prod, &pricing.Override{UnitPriceMinor: 6000})
	require.Equal(t, int64(4000), eff)
	require.Nil(t, promo)

	// Without an override the sale price applies.
	eff, _ = pricing.ResolveEffective(prod, nil)
	require.Equal(t, int64(4000), eff)

	// Without any discount the list price applies.
	eff, _ = pricing.ResolveEffective(product("p2", 2000, nil), nil)
	require.Equal(t, int64(2000), eff)
}

func TestNormalizeAllExcludesAndCountsUnresolvableLines(t *testing.T) {
	lines := []pricing.CartLine{
		pricing.GuestLine{Product: "known", Qty: 1},
		pricing.GuestLine{Product: "ghost", Qty: 3},
	}
	products := map[string]catalog.Product{"known": product("known", 1000, nil)}

	out, err := pricing.NormalizeAll(lines, products, testTaxBps, testCurrency, nil)
	require.NoError(t, err)
	require.Len(t, out.Lines, 1)
	require.Equal(t, 1, out.Unpriced)
	require.Equal(t, "known", out.Lines[0].ProductID)
}

func TestNormalizeAllCountsRepricedServerLines(t *testing.T) {
	lines := []pricing.CartLine{
		pricing.ServerLine{Product: "p1", Qty: 1, UnitPriceMinor: 5000},
		pricing.ServerLine{Product: "p2", Qty: 1, UnitPriceMinor: 2000},
	}
	products := map[string]catalog.Product{
		"p1": product("p1", 5000, ptr(int64(4000))),
		"p2": product("p2", 2000, nil),
	}
	out, err := pricing.NormalizeAll(lines, products, testTaxBps, testCurrency, nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.Repriced)
}
