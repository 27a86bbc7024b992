package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Product carries the pricing-relevant fields of a catalog record.
// Prices are integer minor units.
type Product struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	ListPrice       int64  `json:"listPrice"`
	DiscountedPrice *int64 `json:"discountedPrice,omitempty"`
}

// EffectivePrice returns the discounted price when it is strictly below the
// list price, otherwise the list price.
func (p Product) EffectivePrice() int64 {
	if p.DiscountedPrice != nil && *p.DiscountedPrice < p.ListPrice {
		return *p.DiscountedPrice
	}
	return p.ListPrice
}

// Store loads product pricing from Postgres with a Redis read-through cache.
type Store struct {
	Pool  *pgxpool.Pool
	Cache *Cache
}

// GetByIDs batch-loads products for the distinct ids. Unknown ids are simply
// absent from the result map; callers decide how to treat unresolvable lines.
func (s *Store) GetByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("catalog: store not configured")
	}
	result := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	distinct := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}

	missing := distinct
	if s.Cache != nil {
		cached, miss, err := s.Cache.GetProducts(ctx, distinct)
		if err == nil {
			for id, p := range cached {
				result[id] = p
			}
			missing = miss
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	// Ids that do not parse are treated like unknown products: absent from
	// the result, so the line surfaces as unresolvable instead of failing
	// the whole batch.
	uuids := make([]pgtype.UUID, 0, len(missing))
	for _, id := range missing {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		uuids = append(uuids, pgtype.UUID{Bytes: parsed, Valid: true})
	}
	if len(uuids) == 0 {
		return result, nil
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT id, title, slug, price, compare_at
		FROM products
		WHERE id = ANY($1) AND published = TRUE`, uuids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        pgtype.UUID
			title     string
			slug      string
			price     int64
			compareAt pgtype.Int8
		)
		if err := rows.Scan(&id, &title, &slug, &price, &compareAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		product := Product{
			ID:        uuid.UUID(id.Bytes).String(),
			Title:     title,
			Slug:      slug,
			ListPrice: price,
		}
		// compare_at is the pre-discount list price; price is the current
		// selling price. A valid compare_at above price means a sale is on.
		if compareAt.Valid && price < compareAt.Int64 {
			discounted := price
			product.ListPrice = compareAt.Int64
			product.DiscountedPrice = &discounted
		}
		result[product.ID] = product
		if s.Cache != nil {
			_ = s.Cache.SetProduct(ctx, product)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}
