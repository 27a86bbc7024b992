package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/money"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/pricevalidation"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// ErrCartEmpty is returned when submission is attempted on an empty cart.
var ErrCartEmpty = errors.New("checkout: cart is empty")

// ErrValidationPending blocks submission while a price validation is
// debouncing or in flight.
var ErrValidationPending = errors.New("checkout: price validation pending")

// ErrPricesChanged blocks submission after an authority-confirmed mismatch
// beyond tolerance; the cart must be refreshed first.
var ErrPricesChanged = errors.New("checkout: prices changed beyond tolerance")

// CartSource reads the raw lines of a cart.
type CartSource interface {
	Snapshot(ctx context.Context, ref cart.Ref) (cart.Snapshot, error)
}

// ProductSource batch-loads catalog products.
type ProductSource interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// OrderRecorder persists a submitted order.
type OrderRecorder interface {
	Insert(ctx context.Context, order Order) (string, error)
}

// View is the checkout summary presented to the shopper: the computed totals,
// the priced lines behind them, and the validation gate state.
type View struct {
	Summary         pricing.OrderSummary
	Lines           []pricing.PricedLine
	Unpriced        int
	Validation      pricevalidation.Status
	Mismatched      []string
	CanSubmit       bool
	AuthorityPriced bool
}

// Receipt is the result of a successful submission.
type Receipt struct {
	OrderID    string
	Summary    pricing.OrderSummary
	Validation pricevalidation.Status
}

// Service computes checkout summaries and gates order submission on the
// price validation reconciler.
type Service struct {
	Carts      CartSource
	Products   ProductSource
	Reconciler *pricevalidation.Reconciler
	Orders     OrderRecorder
	Locker     *lock.Locker
	LockTTL    time.Duration
	Events     *events.Bus
	Rules      pricing.Rules
	Logger     zerolog.Logger
}

// Summary prices the referenced cart and reports the current validation
// state. When the last reconciliation is valid and still describes the cart,
// the authority's figures replace the locally computed ones.
func (s *Service) Summary(ctx context.Context, ref cart.Ref) (View, error) {
	if s == nil || s.Carts == nil || s.Products == nil {
		return View{}, errors.New("checkout: service not configured")
	}
	view, _, err := s.compute(ctx, ref)
	return view, err
}

// Revalidate recomputes the cart's expected prices and hands them to the
// reconciler. Call it after every cart mutation: it bumps the generation so
// any in-flight validation result becomes stale.
func (s *Service) Revalidate(ctx context.Context, ref cart.Ref) error {
	if s == nil || s.Reconciler == nil {
		return nil
	}
	snap, err := s.Carts.Snapshot(ctx, ref)
	if err != nil {
		return err
	}
	expected, unpriced, err := s.expectedLines(ctx, snap)
	if err != nil {
		return err
	}
	if unpriced > 0 && obs.UnpricedLinesTotal != nil {
		obs.UnpricedLinesTotal.Add(float64(unpriced))
	}
	s.Reconciler.CartChanged(ref.Key(), expected)
	return nil
}

// Submit places the order if and only if the validation gate allows it.
func (s *Service) Submit(ctx context.Context, ref cart.Ref) (Receipt, error) {
	if s == nil || s.Orders == nil {
		return Receipt{}, errors.New("checkout: service not configured")
	}
	key := ref.Key()
	if err := s.gate(key); err != nil {
		if errors.Is(err, ErrPricesChanged) && s.Events != nil {
			_, _ = s.Events.Emit(ctx, events.TopicValidationMismatch, key, map[string]any{
				"mismatchedProductIds": s.Reconciler.Mismatched(key),
			})
		}
		return Receipt{}, err
	}

	var receipt Receipt
	submit := func(ctx context.Context) error {
		view, _, err := s.compute(ctx, ref)
		if err != nil {
			return err
		}
		// Re-check under the lock: the cart may have mutated between the
		// first gate check and lock acquisition.
		if err := s.gate(key); err != nil {
			return err
		}
		if view.Summary.ItemCount == 0 {
			return ErrCartEmpty
		}
		orderID, err := s.Orders.Insert(ctx, orderFrom(key, s.Rules.Currency, view))
		if err != nil {
			return err
		}
		s.Reconciler.Forget(key)
		if obs.OrdersSubmittedTotal != nil {
			obs.OrdersSubmittedTotal.WithLabelValues(string(view.Validation)).Inc()
		}
		receipt = Receipt{OrderID: orderID, Summary: view.Summary, Validation: view.Validation}
		if s.Events != nil {
			if view.Validation == pricevalidation.StatusLocal {
				_, _ = s.Events.Emit(ctx, events.TopicValidationFallback, key, map[string]any{
					"orderId": orderID,
				})
			}
			_, _ = s.Events.Emit(ctx, events.TopicOrderSubmitted, key, map[string]any{
				"orderId":         orderID,
				"grandTotalMinor": view.Summary.GrandTotal.MinorUnits(),
				"validation":      string(view.Validation),
			})
		}
		s.Logger.Info().Str("cart", key).Str("order_id", orderID).
			Str("validation", string(view.Validation)).
			Int64("grand_total_minor", view.Summary.GrandTotal.MinorUnits()).
			Msg("order submitted")
		return nil
	}
	if s.Locker != nil {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Second
		}
		if err := s.Locker.WithLock(ctx, "checkout:submit:"+key, ttl, submit); err != nil {
			return Receipt{}, err
		}
		return receipt, nil
	}
	if err := submit(ctx); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

func (s *Service) gate(key string) error {
	switch s.Reconciler.Status(key) {
	case pricevalidation.StatusPending:
		if obs.CheckoutGateDenials != nil {
			obs.CheckoutGateDenials.WithLabelValues("pending").Inc()
		}
		return ErrValidationPending
	case pricevalidation.StatusInvalid:
		if obs.CheckoutGateDenials != nil {
			obs.CheckoutGateDenials.WithLabelValues("mismatch").Inc()
		}
		return ErrPricesChanged
	default:
		return nil
	}
}

func (s *Service) compute(ctx context.Context, ref cart.Ref) (View, []pricevalidation.ExpectedLine, error) {
	snap, err := s.Carts.Snapshot(ctx, ref)
	if err != nil {
		return View{}, nil, err
	}
	products, err := s.Products.GetByIDs(ctx, snap.ProductIDs())
	if err != nil {
		return View{}, nil, err
	}
	norm, err := pricing.NormalizeAll(snap.Lines, products, s.Rules.TaxBps, s.Rules.Currency, nil)
	if err != nil {
		return View{}, nil, err
	}
	expected := toExpected(norm.Lines)
	key := ref.Key()

	view := View{
		Lines:      norm.Lines,
		Unpriced:   norm.Unpriced,
		Validation: s.Reconciler.Status(key),
		Mismatched: s.Reconciler.Mismatched(key),
	}

	accepted, totals, ok := s.Reconciler.Accepted(key, expected)
	if ok {
		overrides := make(map[string]pricing.Override, len(accepted))
		for id, price := range accepted {
			overrides[id] = pricing.Override{UnitPriceMinor: price.UnitPriceMinor, PromotionID: price.PromotionID}
		}
		renorm, err := pricing.NormalizeAll(snap.Lines, products, s.Rules.TaxBps, s.Rules.Currency, overrides)
		if err != nil {
			return View{}, nil, err
		}
		view.Lines = renorm.Lines
		view.Summary = s.authoritySummary(*totals, renorm.Lines)
		view.AuthorityPriced = true
	} else {
		summary, err := pricing.Summarize(norm.Lines, s.Rules)
		if err != nil {
			return View{}, nil, err
		}
		view.Summary = summary
	}
	view.CanSubmit = s.Reconciler.CanSubmit(key) && view.Summary.ItemCount > 0
	return view, expected, nil
}

// authoritySummary builds the displayed summary from the authority's totals;
// the shipping rule stays local because the authority prices items only.
func (s *Service) authoritySummary(totals pricevalidation.Totals, lines []pricing.PricedLine) pricing.OrderSummary {
	currency := s.Rules.Currency
	priceTotal := money.FromMinorUnits(totals.DiscountedPriceMinor, currency)
	itemCount := 0
	for _, line := range lines {
		itemCount += line.Quantity
	}
	shipping := money.Zero(currency)
	if itemCount > 0 && !priceTotal.GreaterOrEqual(s.Rules.FreeShippingThreshold) {
		shipping = s.Rules.StandardShippingFee
	}
	grand, _ := priceTotal.Add(shipping)
	return pricing.OrderSummary{
		Subtotal:     money.FromMinorUnits(totals.SubtotalMinor, currency),
		Tax:          money.FromMinorUnits(totals.TaxMinor, currency),
		PriceTotal:   priceTotal,
		ShippingCost: shipping,
		GrandTotal:   grand,
		ItemCount:    itemCount,
	}
}

func (s *Service) expectedLines(ctx context.Context, snap cart.Snapshot) ([]pricevalidation.ExpectedLine, int, error) {
	products, err := s.Products.GetByIDs(ctx, snap.ProductIDs())
	if err != nil {
		return nil, 0, err
	}
	norm, err := pricing.NormalizeAll(snap.Lines, products, s.Rules.TaxBps, s.Rules.Currency, nil)
	if err != nil {
		return nil, 0, err
	}
	return toExpected(norm.Lines), norm.Unpriced, nil
}

func toExpected(lines []pricing.PricedLine) []pricevalidation.ExpectedLine {
	out := make([]pricevalidation.ExpectedLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, pricevalidation.ExpectedLine{
			ProductID:              line.ProductID,
			Quantity:               line.Quantity,
			ExpectedUnitPriceMinor: line.UnitEffectivePrice.MinorUnits(),
		})
	}
	return out
}

func orderFrom(cartKey, currency string, view View) Order {
	return Order{
		CartKey:          cartKey,
		Currency:         currency,
		SubtotalMinor:    view.Summary.Subtotal.MinorUnits(),
		TaxMinor:         view.Summary.Tax.MinorUnits(),
		PriceTotalMinor:  view.Summary.PriceTotal.MinorUnits(),
		ShippingMinor:    view.Summary.ShippingCost.MinorUnits(),
		GrandTotalMinor:  view.Summary.GrandTotal.MinorUnits(),
		ItemCount:        view.Summary.ItemCount,
		ValidationStatus: string(view.Validation),
	}
}
