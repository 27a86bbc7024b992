package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

const guestKeyPrefix = "cart:guest:"

// guestDoc is the persisted shape of an anonymous cart. Guest lines carry no
// price data at all; they are priced from the catalog on every computation.
type guestDoc struct {
	Lines []guestDocLine `json:"lines"`
}

type guestDocLine struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

// GuestStore persists anonymous shoppers' carts as JSON documents in Redis.
type GuestStore struct {
	R   *redis.Client
	TTL time.Duration
}

func (s *GuestStore) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 72 * time.Hour
	}
	return s.TTL
}

// Create allocates an empty guest cart and returns its id.
func (s *GuestStore) Create(ctx context.Context) (string, error) {
	if s == nil || s.R == nil {
		return "", errors.New("cart: guest store not configured")
	}
	id := uuid.NewString()
	if err := s.save(ctx, id, guestDoc{Lines: []guestDocLine{}}); err != nil {
		return "", err
	}
	return id, nil
}

// Lines returns the guest cart lines.
func (s *GuestStore) Lines(ctx context.Context, cartID string) ([]pricing.CartLine, error) {
	doc, err := s.load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	lines := make([]pricing.CartLine, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		lines = append(lines, pricing.GuestLine{Product: l.ProductID, Qty: l.Qty})
	}
	return lines, nil
}

// AddItem adds or increments a line.
func (s *GuestStore) AddItem(ctx context.Context, cartID, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	doc, err := s.load(ctx, cartID)
	if err != nil {
		return err
	}
	for i := range doc.Lines {
		if doc.Lines[i].ProductID == productID {
			doc.Lines[i].Qty += qty
			return s.save(ctx, cartID, doc)
		}
	}
	doc.Lines = append(doc.Lines, guestDocLine{ProductID: productID, Qty: qty})
	return s.save(ctx, cartID, doc)
}

// UpdateQty sets the quantity for an existing line.
func (s *GuestStore) UpdateQty(ctx context.Context, cartID, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	doc, err := s.load(ctx, cartID)
	if err != nil {
		return err
	}
	for i := range doc.Lines {
		if doc.Lines[i].ProductID == productID {
			doc.Lines[i].Qty = qty
			return s.save(ctx, cartID, doc)
		}
	}
	return ErrNotFound
}

// RemoveItem deletes a line.
func (s *GuestStore) RemoveItem(ctx context.Context, cartID, productID string) error {
	doc, err := s.load(ctx, cartID)
	if err != nil {
		return err
	}
	kept := doc.Lines[:0]
	for _, l := range doc.Lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	doc.Lines = kept
	return s.save(ctx, cartID, doc)
}

func (s *GuestStore) load(ctx context.Context, cartID string) (guestDoc, error) {
	if s == nil || s.R == nil {
		return guestDoc{}, errors.New("cart: guest store not configured")
	}
	if cartID == "" {
		return guestDoc{}, fmt.Errorf("cart id required: %w", ErrInvalidInput)
	}
	data, err := s.R.Get(ctx, guestKeyPrefix+cartID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return guestDoc{}, ErrNotFound
		}
		return guestDoc{}, fmt.Errorf("load guest cart: %w", err)
	}
	var doc guestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return guestDoc{}, fmt.Errorf("decode guest cart: %w", err)
	}
	return doc, nil
}

func (s *GuestStore) save(ctx context.Context, cartID string, doc guestDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}
	if err := s.R.Set(ctx, guestKeyPrefix+cartID, data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}
	return nil
}
