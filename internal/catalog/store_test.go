package catalog

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestGetByIDsSkipsUnparseableIDs(t *testing.T) {
	// The pool connects lazily; because every id is skipped before the
	// query, no connection is ever attempted.
	cfg, err := pgxpool.ParseConfig("postgres://127.0.0.1:1/catalog")
	require.NoError(t, err)
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer pool.Close()

	store := &Store{Pool: pool}
	products, err := store.GetByIDs(context.Background(), []string{"not-a-uuid", "also-bad"})
	require.NoError(t, err)
	require.Empty(t, products)
}

func TestEffectivePrice(t *testing.T) {
	discounted := int64(4000)
	require.Equal(t, int64(4000), Product{ListPrice: 5000, DiscountedPrice: &discounted}.EffectivePrice())

	tooHigh := int64(6000)
	require.Equal(t, int64(5000), Product{ListPrice: 5000, DiscountedPrice: &tooHigh}.EffectivePrice())

	require.Equal(t, int64(5000), Product{ListPrice: 5000}.EffectivePrice())
}
