package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// StoredUnit carries the minor-unit figures recorded on a server cart line
// at the time the item was added. They may go stale if the catalog price
// changes afterwards; the pricing engine detects and corrects that.
type StoredUnit struct {
	PriceMinor    int64
	TaxMinor      int64
	SubtotalMinor int64
}

// PGStore persists authenticated shoppers' carts in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
	TTL  time.Duration
	Now  func() time.Time
}

func (s *PGStore) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *PGStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EnsureCart loads or creates the active cart for a user and returns its id.
func (s *PGStore) EnsureCart(ctx context.Context, userID string) (string, error) {
	if s == nil || s.Pool == nil {
		return "", errors.New("cart: pg store not configured")
	}
	uid, err := toUUID(userID)
	if err != nil {
		return "", fmt.Errorf("parse user id: %w", err)
	}
	expires := s.now().Add(s.ttl())

	var id pgtype.UUID
	err = s.Pool.QueryRow(ctx, `
		SELECT id FROM carts
		WHERE user_id = $1 AND expires_at > now()
		ORDER BY created_at DESC LIMIT 1`, uid).Scan(&id)
	if err == nil {
		_, _ = s.Pool.Exec(ctx, `UPDATE carts SET expires_at = $2, updated_at = now() WHERE id = $1`, id, expires)
		return uuidString(id), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("load cart: %w", err)
	}
	err = s.Pool.QueryRow(ctx, `
		INSERT INTO carts (user_id, expires_at) VALUES ($1, $2)
		RETURNING id`, uid, expires).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create cart: %w", err)
	}
	return uuidString(id), nil
}

// Lines returns the server cart lines with their stored minor-unit figures.
func (s *PGStore) Lines(ctx context.Context, userID string) ([]pricing.CartLine, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("cart: pg store not configured")
	}
	cartID, err := s.EnsureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	cid, err := toUUID(cartID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT product_id, qty, unit_price, unit_tax, unit_subtotal
		FROM cart_items WHERE cart_id = $1 ORDER BY created_at`, cid)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var lines []pricing.CartLine
	for rows.Next() {
		var (
			productID pgtype.UUID
			qty       int32
			unit      StoredUnit
		)
		if err := rows.Scan(&productID, &qty, &unit.PriceMinor, &unit.TaxMinor, &unit.SubtotalMinor); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		lines = append(lines, pricing.ServerLine{
			Product:           uuidString(productID),
			Qty:               int(qty),
			UnitPriceMinor:    unit.PriceMinor,
			UnitTaxMinor:      unit.TaxMinor,
			UnitSubtotalMinor: unit.SubtotalMinor,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return lines, nil
}

// AddItem inserts or increments a line, recording the unit figures current
// at add time.
func (s *PGStore) AddItem(ctx context.Context, userID, productID string, qty int, unit StoredUnit) error {
	if s == nil || s.Pool == nil {
		return errors.New("cart: pg store not configured")
	}
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	cartID, err := s.EnsureCart(ctx, userID)
	if err != nil {
		return err
	}
	cid, err := toUUID(cartID)
	if err != nil {
		return err
	}
	pid, err := toUUID(productID)
	if err != nil {
		return fmt.Errorf("parse product id: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, qty, unit_price, unit_tax, unit_subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET qty = cart_items.qty + EXCLUDED.qty, updated_at = now()`,
		cid, pid, qty, unit.PriceMinor, unit.TaxMinor, unit.SubtotalMinor)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

// UpdateQty sets the quantity for an existing line.
func (s *PGStore) UpdateQty(ctx context.Context, userID, productID string, qty int) error {
	if s == nil || s.Pool == nil {
		return errors.New("cart: pg store not configured")
	}
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	cartID, err := s.EnsureCart(ctx, userID)
	if err != nil {
		return err
	}
	cid, err := toUUID(cartID)
	if err != nil {
		return err
	}
	pid, err := toUUID(productID)
	if err != nil {
		return fmt.Errorf("parse product id: %w", err)
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE cart_items SET qty = $3, updated_at = now()
		WHERE cart_id = $1 AND product_id = $2`, cid, pid, qty)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveItem deletes a line from the cart.
func (s *PGStore) RemoveItem(ctx context.Context, userID, productID string) error {
	if s == nil || s.Pool == nil {
		return errors.New("cart: pg store not configured")
	}
	cartID, err := s.EnsureCart(ctx, userID)
	if err != nil {
		return err
	}
	cid, err := toUUID(cartID)
	if err != nil {
		return err
	}
	pid, err := toUUID(productID)
	if err != nil {
		return fmt.Errorf("parse product id: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cid, pid)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func toUUID(value string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}
