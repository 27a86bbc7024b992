package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Order is the persisted record of a submitted checkout. Monetary figures are
// minor units in the order's currency.
type Order struct {
	ID               string
	CartKey          string
	Currency         string
	SubtotalMinor    int64
	TaxMinor         int64
	PriceTotalMinor  int64
	ShippingMinor    int64
	GrandTotalMinor  int64
	ItemCount        int
	ValidationStatus string
}

// PGOrders persists orders in Postgres.
type PGOrders struct {
	Pool *pgxpool.Pool
}

// Insert writes the order and returns its id.
func (s *PGOrders) Insert(ctx context.Context, order Order) (string, error) {
	if s == nil || s.Pool == nil {
		return "", errors.New("checkout: order store not configured")
	}
	id := uuid.New()
	var pgID pgtype.UUID
	copy(pgID.Bytes[:], id[:])
	pgID.Valid = true

	const q = `
INSERT INTO orders (
    id, cart_key, currency,
    subtotal, tax, price_total, shipping_cost, grand_total,
    item_count, validation_status, status, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'PENDING_PAYMENT', now())`
	_, err := s.Pool.Exec(ctx, q,
		pgID, order.CartKey, order.Currency,
		order.SubtotalMinor, order.TaxMinor, order.PriceTotalMinor,
		order.ShippingMinor, order.GrandTotalMinor,
		int32(order.ItemCount), order.ValidationStatus,
	)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}
	return id.String(), nil
}
