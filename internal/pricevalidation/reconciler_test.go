package pricevalidation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/pricevalidation"
)

type stubChecker struct {
	mu      sync.Mutex
	calls   [][]pricevalidation.ExpectedLine
	respond func(lines []pricevalidation.ExpectedLine) (*pricevalidation.Response, error)
}

func (s *stubChecker) Check(_ context.Context, lines []pricevalidation.ExpectedLine) (*pricevalidation.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, lines)
	respond := s.respond
	s.mu.Unlock()
	return respond(lines)
}

func (s *stubChecker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func ptr[T any](v T) *T { return &v }

// authorityResponse builds a structurally complete reply where each line is
// answered with the given unit price and isPriceValid=false, leaving the
// tolerance comparison to the reconciler.
func authorityResponse(lines []pricevalidation.ExpectedLine, prices map[string]int64) *pricevalidation.Response {
	resp := &pricevalidation.Response{
		IsValid:                        ptr(true),
		TotalOriginalPriceMinorUnits:   ptr[int64](0),
		TotalDiscountedPriceMinorUnits: ptr[int64](0),
		TotalDiscountAmountMinorUnits:  ptr[int64](0),
		TotalTaxMinorUnits:             ptr[int64](0),
		TotalSubtotalMinorUnits:        ptr[int64](0),
	}
	var total int64
	for _, l := range lines {
		price := prices[l.ProductID]
		tax := price * 19 / 119
		resp.Items = append(resp.Items, pricevalidation.ResponseItem{
			ProductID:                     ptr(l.ProductID),
			Quantity:                      ptr(l.Quantity),
			OriginalUnitPriceMinorUnits:   ptr(price),
			DiscountedUnitPriceMinorUnits: ptr(price),
			DiscountAmountMinorUnits:      ptr[int64](0),
			UnitTaxMinorUnits:             ptr(tax),
			UnitSubtotalMinorUnits:        ptr(price - tax),
			IsPriceValid:                  ptr(false),
		})
		total += price * int64(l.Quantity)
	}
	resp.TotalOriginalPriceMinorUnits = ptr(total)
	resp.TotalDiscountedPriceMinorUnits = ptr(total)
	return resp
}

func newReconciler(checker pricevalidation.Checker, tolerance int64) *pricevalidation.Reconciler {
	return pricevalidation.NewReconciler(checker, 5*time.Millisecond, tolerance, zerolog.Nop())
}

func TestReconcilerAcceptsWithinTolerance(t *testing.T) {
	lines := []pricevalidation.ExpectedLine{{ProductID: "prod-a", Quantity: 2, ExpectedUnitPriceMinor: 1000}}
	checker := &stubChecker{respond: func(l []pricevalidation.ExpectedLine) (*pricevalidation.Response, error) {
		return authorityResponse(l, map[string]int64{"prod-a": 1001}), nil
	}}
	r := newReconciler(checker, 1)

	r.CartChanged("cart-1", lines)
	require.Equal(t, pricevalidation.StatusPending, r.Status("cart-1"))
	require.False(t, r.CanSubmit("cart-1"))

	require.Eventually(t, func() bool {
		return r.Status("cart-1") == pricevalidation.StatusValid
	}, time.Second, time.Millisecond)
	require.True(t, r.CanSubmit("cart-1"))

	accepted, totals, ok := r.Accepted("cart-1", lines)
	require.True(t, ok)
	require.Equal(t, int64(1001), accepted["prod-a"].UnitPriceMinor)
	require.Equal(t, int64(2002), totals.DiscountedPriceMinor)
}

func TestReconcilerBlocksBeyondTolerance(t *testing.T) {
	lines := []pricevalidation.ExpectedLine{{ProductID: "prod-a", Quantity: 1, ExpectedUnitPriceMinor: 1000}}
	checker := &stubChecker{respond: func(l []pricevalidation.ExpectedLine) (*pricevalidation.Response, error) {
		return authorityResponse(l, map[string]int64{"prod-a": 1010}), nil
	}}
	r := newReconciler(checker, 1)

	r.CartChanged("cart-1", lines)
	require.Eventually(t, func() bool {
		return r.Status("cart-1") == pricevalidation.StatusInvalid
	}, time.Second, time.Millisecond)

	require.False(t, r.CanSubmit("cart-1"))
	require.Equal(t, []string{"prod-a"}, r.Mismatched("cart-1"))
	_, _, ok := r.Accepted("cart-1", lines)
	require.False(t, ok)
}

func TestReconcilerCoalescesRapidMutations(t *testing.T) {
	checker := &stubChecker{respond: func(l []pricevalidation.ExpectedLine) (*pricevalidation.Response, error) {
		return authorityResponse(l, map[string]int64{"prod-a": 1000}), nil
	}}
	r := newReconciler(checker, 1)

	for qty := 1; qty <= 5; qty++ {
		r.CartChanged("cart-1", []pricevalidation.ExpectedLine{
			{ProductID: "prod-a", Quantity: qty, ExpectedUnitPriceMinor: 1000},
		})
	}
	require.Eventually(t, func() bool {
		return r.Status("cart-1") == pricevalidation.StatusValid
	}, time.Second, time.Millisecond)
	require.Equal(t, 1, checker.callCount())

	accepted, _, ok := r.Accepted("cart-1", []pricevalidation.ExpectedLine{
		{ProductID: "prod-a", Quantity: 5, ExpectedUnitPriceMinor: 1000},
	})
	require.True(t, ok)
	require.Equal(t, int64(1000), accepted["prod-a"].UnitPriceMinor)
}

func TestReconcilerDiscardsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	checker := &stubChecker{}
	checker.respond = func(l []pricevalidation.ExpectedLine) (*pricevalidation.Response, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			<-release
		}
		return authorityResponse(l, map[string]int64{"prod-a": 1000}), nil
	}
	r := newReconciler(checker, 1)

	r.CartChanged("cart-1", []pricevalidation.ExpectedLine{
		{ProductID: "prod-a", Quantity: 1, ExpectedUnitPriceMinor: 1000},
	})
	require.Eventually(t, func() bool { return checker.callCount() == 1 }, time.Second, time.Millisecond)

	// Mutate while the first request is in flight, then let it complete.
	updated := []pricevalidation.ExpectedLine{
		{ProductID: "prod-a", Quantity: 3, ExpectedUnitPriceMinor: 1000},
	}
	r.CartChanged("cart-1", updated)
	require.Equal(t, pricevalidation.StatusPending, r.Status("cart-1"))
	close(release)

	require.Eventually(t, func() bool {
		return r.Status("cart-1") == pricevalidation.StatusValid
	}, time.Second, time.Millisecond)
	require.Equal(t, 2, checker.callCount())

	// The applied result answers the mutated cart, not the original one.
	_, _, ok := r.Accepted("cart-1", []pricevalidation.ExpectedLine{
		{ProductID: "prod-a", Quantity: 1, ExpectedUnitPriceMinor: 1000},
	})
	require.False(t, ok)
	_, totals, ok := r.Accepted("cart-1", updated)
	require.True(t, ok)
	require.Equal(t, int64(3000), totals.DiscountedPriceMinor)
}

func TestReconcilerFallsBackOnTransportFailure(t *testing.T) {
	checker := &stubChecker{respond: func([]pricevalidation.ExpectedLine) (*pricevalidation.Response, error) {
		return nil, pricevalidation.ErrTransport
	}}
	r := newReconciler(checker, 1)

	lines := []pricevalidation.ExpectedLine{{ProductID: "prod-a", Quantity: 1, ExpectedUnitPriceMinor: 1000}}
	r.CartChanged("cart-1", lines)
	require.Eventually(t, func() bool {
		return r.Status("cart-1") == pricevalidation.StatusLocal
	}, time.Second, time.Millisecond)

	require.True(t, r.CanSubmit("cart-1"))
	_, _, ok := r.Accepted("cart-1", lines)
	require.False(t, ok)
}

func TestReconcilerIgnoresUnansweredLines(t *testing.T) {
	checker := &stubChecker{respond: func(l []pricevalidation.ExpectedLine) (*pricevalidation.Response, error) {
		// Answer for a different product set than was asked.
		return authorityResponse([]pricevalidation.ExpectedLine{
			{ProductID: "prod-z", Quantity: 1},
		}, map[string]int64{"prod-z": 1}), nil
	}}
	r := newReconciler(checker, 1)

	r.CartChanged("cart-1", []pricevalidation.ExpectedLine{
		{ProductID: "prod-a", Quantity: 1, ExpectedUnitPriceMinor: 1000},
	})
	require.Eventually(t, func() bool {
		return r.Status("cart-1") == pricevalidation.StatusLocal
	}, time.Second, time.Millisecond)
}

func TestReconcilerEmptyCartClearsState(t *testing.T) {
	checker := &stubChecker{respond: func([]pricevalidation.ExpectedLine) (*pricevalidation.Response, error) {
		return nil, errors.New("should not be called")
	}}
	r := newReconciler(checker, 1)

	r.CartChanged("cart-1", nil)
	require.Equal(t, pricevalidation.StatusNone, r.Status("cart-1"))
	require.True(t, r.CanSubmit("cart-1"))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, checker.callCount())
}

func TestReconcilerForget(t *testing.T) {
	checker := &stubChecker{respond: func(l []pricevalidation.ExpectedLine) (*pricevalidation.Response, error) {
		return authorityResponse(l, map[string]int64{"prod-a": 1000}), nil
	}}
	r := newReconciler(checker, 1)

	lines := []pricevalidation.ExpectedLine{{ProductID: "prod-a", Quantity: 1, ExpectedUnitPriceMinor: 1000}}
	r.CartChanged("cart-1", lines)
	require.Eventually(t, func() bool {
		return r.Status("cart-1") == pricevalidation.StatusValid
	}, time.Second, time.Millisecond)

	r.Forget("cart-1")
	require.Equal(t, pricevalidation.StatusNone, r.Status("cart-1"))
}
