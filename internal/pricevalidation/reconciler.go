package pricevalidation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the reconciliation state of one cart.
type Status string

const (
	// StatusNone means no validation has been requested for the cart.
	StatusNone Status = "none"
	// StatusPending means a validation is debouncing or in flight.
	StatusPending Status = "pending"
	// StatusValid means every line was accepted by the authority or fell
	// within tolerance; the authority's totals are adopted.
	StatusValid Status = "valid"
	// StatusInvalid means at least one line disagreed beyond tolerance;
	// checkout is blocked until the cart is recomputed.
	StatusInvalid Status = "invalid"
	// StatusLocal means the authority could not be reached; locally
	// computed totals stand.
	StatusLocal Status = "local"
)

// Checker is the authority call the reconciler schedules.
type Checker interface {
	Check(ctx context.Context, lines []ExpectedLine) (*Response, error)
}

// Outcome is the applied result of one reconciliation attempt. A new attempt
// replaces the previous outcome wholesale; outcomes are never merged.
type Outcome struct {
	Status     Status
	Generation uint64
	Lines      []ExpectedLine
	Accepted   map[string]AcceptedPrice
	Totals     *Totals
	Mismatched []string
}

type cartState struct {
	generation uint64
	expected   []ExpectedLine
	timer      *time.Timer
	inFlight   bool
	awaiting   bool
	status     Status
	outcome    *Outcome
}

// Reconciler tracks per-cart validation state. Every cart mutation bumps a
// generation counter and re-arms a debounce timer; at most one authority
// request is in flight per cart, and a response is applied only when its
// generation and line set still match the cart.
type Reconciler struct {
	Client         Checker
	Debounce       time.Duration
	ToleranceMinor int64
	Logger         zerolog.Logger

	mu    sync.Mutex
	carts map[string]*cartState
}

// NewReconciler constructs a reconciler with the given debounce window and
// tolerance in minor units.
func NewReconciler(client Checker, debounce time.Duration, toleranceMinor int64, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		Client:         client,
		Debounce:       debounce,
		ToleranceMinor: toleranceMinor,
		Logger:         logger,
		carts:          make(map[string]*cartState),
	}
}

func (r *Reconciler) debounce() time.Duration {
	if r.Debounce <= 0 {
		return 500 * time.Millisecond
	}
	return r.Debounce
}

// CartChanged records a cart mutation. The previous result is discarded, any
// pending debounce timer restarts, and a request already in flight becomes
// stale: its response will be dropped and a fresh validation scheduled.
func (r *Reconciler) CartChanged(cartKey string, expected []ExpectedLine) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.carts[cartKey]
	if st == nil {
		st = &cartState{}
		if r.carts == nil {
			r.carts = make(map[string]*cartState)
		}
		r.carts[cartKey] = st
	}
	st.generation++
	st.expected = cloneLines(expected)
	st.outcome = nil
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if len(expected) == 0 {
		st.status = StatusNone
		st.awaiting = false
		return
	}
	st.status = StatusPending
	if st.inFlight {
		st.awaiting = true
		return
	}
	r.armLocked(cartKey, st)
}

func (r *Reconciler) armLocked(cartKey string, st *cartState) {
	gen := st.generation
	st.timer = time.AfterFunc(r.debounce(), func() {
		r.fire(cartKey, gen)
	})
}

func (r *Reconciler) fire(cartKey string, gen uint64) {
	r.mu.Lock()
	st := r.carts[cartKey]
	if st == nil || st.generation != gen || st.inFlight {
		r.mu.Unlock()
		return
	}
	st.inFlight = true
	lines := cloneLines(st.expected)
	r.mu.Unlock()

	// The request outlives the HTTP request that caused the mutation, so it
	// runs on its own context; the client applies its own timeout.
	resp, err := r.Client.Check(context.Background(), lines)
	r.apply(cartKey, gen, lines, resp, err)
}

func (r *Reconciler) apply(cartKey string, gen uint64, lines []ExpectedLine, resp *Response, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.carts[cartKey]
	if st == nil {
		return
	}
	st.inFlight = false
	if st.generation != gen {
		StaleResponsesTotal.Inc()
		r.Logger.Debug().Str("cart", cartKey).Uint64("generation", gen).
			Msg("discarding stale validation response")
		if st.awaiting {
			st.awaiting = false
			if len(st.expected) > 0 {
				r.armLocked(cartKey, st)
			}
		}
		return
	}

	outcome := r.evaluate(gen, lines, resp, err)
	st.status = outcome.Status
	st.outcome = outcome
	ValidationOutcomes.WithLabelValues(string(outcome.Status)).Inc()
	switch outcome.Status {
	case StatusLocal:
		r.Logger.Warn().Str("cart", cartKey).Err(err).
			Msg("price validation unavailable, proceeding on local totals")
	case StatusInvalid:
		r.Logger.Info().Str("cart", cartKey).Strs("products", outcome.Mismatched).
			Msg("price validation mismatch beyond tolerance")
	}
}

func (r *Reconciler) evaluate(gen uint64, lines []ExpectedLine, resp *Response, err error) *Outcome {
	if err != nil {
		return &Outcome{Status: StatusLocal, Generation: gen, Lines: lines}
	}
	byProduct := make(map[string]ResponseItem, len(resp.Items))
	for _, item := range resp.Items {
		byProduct[*item.ProductID] = item
	}
	accepted := make(map[string]AcceptedPrice, len(lines))
	var mismatched []string
	for _, line := range lines {
		item, ok := byProduct[line.ProductID]
		if !ok || *item.Quantity != line.Quantity {
			// The reply does not answer the question we asked; treat it
			// like no reply.
			return &Outcome{Status: StatusLocal, Generation: gen, Lines: lines}
		}
		authoritative := *item.DiscountedUnitPriceMinorUnits
		if *item.IsPriceValid || withinTolerance(line.ExpectedUnitPriceMinor, authoritative, r.ToleranceMinor) {
			accepted[line.ProductID] = AcceptedPrice{
				UnitPriceMinor: authoritative,
				PromotionID:    item.AppliedPromotionID,
			}
			continue
		}
		mismatched = append(mismatched, line.ProductID)
	}
	if len(mismatched) > 0 {
		return &Outcome{Status: StatusInvalid, Generation: gen, Lines: lines, Mismatched: mismatched}
	}
	totals := totalsFrom(resp)
	return &Outcome{Status: StatusValid, Generation: gen, Lines: lines, Accepted: accepted, Totals: &totals}
}

// Status returns the reconciliation state for the cart.
func (r *Reconciler) Status(cartKey string) Status {
	if r == nil {
		return StatusNone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.carts[cartKey]
	if st == nil {
		return StatusNone
	}
	return st.status
}

// CanSubmit reports whether checkout submission is permitted: not while a
// validation is pending and not while the last result is a mismatch.
func (r *Reconciler) CanSubmit(cartKey string) bool {
	switch r.Status(cartKey) {
	case StatusPending, StatusInvalid:
		return false
	default:
		return true
	}
}

// Accepted returns the authority's per-line prices and totals, but only when
// the last result is valid and still describes the given lines. A result
// computed for a different line set is never applied.
func (r *Reconciler) Accepted(cartKey string, current []ExpectedLine) (map[string]AcceptedPrice, *Totals, bool) {
	if r == nil {
		return nil, nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.carts[cartKey]
	if st == nil || st.outcome == nil || st.outcome.Status != StatusValid {
		return nil, nil, false
	}
	if !sameLines(st.outcome.Lines, current) {
		return nil, nil, false
	}
	return st.outcome.Accepted, st.outcome.Totals, true
}

// Mismatched returns the products that failed tolerance on the last result.
func (r *Reconciler) Mismatched(cartKey string) []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.carts[cartKey]
	if st == nil || st.outcome == nil {
		return nil
	}
	return st.outcome.Mismatched
}

// Forget drops all state for the cart, cancelling any pending timer.
func (r *Reconciler) Forget(cartKey string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.carts[cartKey]
	if st == nil {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	delete(r.carts, cartKey)
}

func withinTolerance(a, b, tolerance int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func cloneLines(lines []ExpectedLine) []ExpectedLine {
	out := make([]ExpectedLine, len(lines))
	copy(out, lines)
	return out
}

func sameLines(a, b []ExpectedLine) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[ExpectedLine]int, len(a))
	for _, l := range a {
		seen[l]++
	}
	for _, l := range b {
		seen[l]--
		if seen[l] < 0 {
			return false
		}
	}
	return true
}
