package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/money"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Service presents the two cart sources behind one API. Authenticated
// shoppers get a server-tracked Postgres cart whose lines record minor-unit
// prices; anonymous shoppers get a Redis-persisted cart holding only product
// and quantity.
type Service struct {
	PG       *PGStore
	Guest    *GuestStore
	Catalog  *catalog.Store
	TaxBps   int
	Currency string
}

// CreateGuestCart allocates an empty anonymous cart.
func (s *Service) CreateGuestCart(ctx context.Context) (string, error) {
	if s == nil || s.Guest == nil {
		return "", errors.New("cart: service not configured")
	}
	return s.Guest.Create(ctx)
}

// Snapshot reads the current lines for the referenced cart.
func (s *Service) Snapshot(ctx context.Context, ref Ref) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, errors.New("cart: service not configured")
	}
	var (
		lines []pricing.CartLine
		err   error
	)
	if ref.Authenticated() {
		lines, err = s.PG.Lines(ctx, ref.UserID)
	} else {
		lines, err = s.Guest.Lines(ctx, ref.CartID)
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Ref: ref, Lines: lines}, nil
}

// AddItem adds qty units of a product to the referenced cart. For server
// carts the catalog's current unit figures are recorded on the line.
func (s *Service) AddItem(ctx context.Context, ref Ref, productID string, qty int) error {
	if s == nil {
		return errors.New("cart: service not configured")
	}
	if !ref.Authenticated() {
		return s.Guest.AddItem(ctx, ref.CartID, productID, qty)
	}
	unit, err := s.currentUnit(ctx, productID)
	if err != nil {
		return err
	}
	return s.PG.AddItem(ctx, ref.UserID, productID, qty, unit)
}

// UpdateQty sets the quantity of an existing line.
func (s *Service) UpdateQty(ctx context.Context, ref Ref, productID string, qty int) error {
	if s == nil {
		return errors.New("cart: service not configured")
	}
	if ref.Authenticated() {
		return s.PG.UpdateQty(ctx, ref.UserID, productID, qty)
	}
	return s.Guest.UpdateQty(ctx, ref.CartID, productID, qty)
}

// RemoveItem deletes a line.
func (s *Service) RemoveItem(ctx context.Context, ref Ref, productID string) error {
	if s == nil {
		return errors.New("cart: service not configured")
	}
	if ref.Authenticated() {
		return s.PG.RemoveItem(ctx, ref.UserID, productID)
	}
	return s.Guest.RemoveItem(ctx, ref.CartID, productID)
}

func (s *Service) currentUnit(ctx context.Context, productID string) (StoredUnit, error) {
	products, err := s.Catalog.GetByIDs(ctx, []string{productID})
	if err != nil {
		return StoredUnit{}, err
	}
	product, ok := products[productID]
	if !ok {
		return StoredUnit{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	effMinor, _ := pricing.ResolveEffective(product, nil)
	eff := money.FromMinorUnits(effMinor, s.Currency)
	taxMinor := eff.MulBps(s.TaxBps).MinorUnits()
	return StoredUnit{
		PriceMinor:    effMinor,
		TaxMinor:      taxMinor,
		SubtotalMinor: effMinor - taxMinor,
	}, nil
}
