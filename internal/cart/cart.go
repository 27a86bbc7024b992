package cart

import (
	"errors"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart: not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("cart: invalid input")

// Ref identifies the cart a request operates on. An authenticated shopper is
// keyed by user id (server-tracked cart); an anonymous shopper passes the id
// of a locally persisted guest cart.
type Ref struct {
	UserID string
	CartID string
}

// Authenticated reports whether the reference resolves to a server cart.
func (r Ref) Authenticated() bool {
	return r.UserID != ""
}

// Key returns a stable identifier used for reconciler and lock keys.
func (r Ref) Key() string {
	if r.Authenticated() {
		return "user:" + r.UserID
	}
	return "guest:" + r.CartID
}

// Snapshot is a read of a cart's lines in their raw, source-specific shape.
// Both sources normalize into the same canonical priced line downstream.
type Snapshot struct {
	Ref   Ref
	Lines []pricing.CartLine
}

// ProductIDs returns the distinct product ids in the snapshot.
func (s Snapshot) ProductIDs() []string {
	seen := make(map[string]struct{}, len(s.Lines))
	ids := make([]string, 0, len(s.Lines))
	for _, line := range s.Lines {
		id := line.ProductID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
