package pricevalidation_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/pricevalidation"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

func newClient(srv *httptest.Server) *pricevalidation.Client {
	return &pricevalidation.Client{
		HTTP: &resilience.HTTPClient{
			Client:      srv.Client(),
			Breaker:     resilience.NewBreaker(1, 1, time.Second),
			MaxAttempts: 1,
			Timeout:     time.Second,
			Target:      "price-authority",
		},
		BaseURL: srv.URL,
	}
}

func TestClientCheckDecodesResponse(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		require.Equal(t, "/v1/prices/validate", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"isValid": true,
			"items": [{
				"productId": "prod-a",
				"quantity": 2,
				"originalUnitPriceMinorUnits": 2500,
				"discountedUnitPriceMinorUnits": 2000,
				"discountAmountMinorUnits": 500,
				"unitTaxMinorUnits": 380,
				"unitSubtotalMinorUnits": 1620,
				"appliedPromotionId": "promo-1",
				"isPriceValid": true
			}],
			"totalOriginalPriceMinorUnits": 5000,
			"totalDiscountedPriceMinorUnits": 4000,
			"totalDiscountAmountMinorUnits": 1000,
			"totalTaxMinorUnits": 760,
			"totalSubtotalMinorUnits": 3240
		}`))
	}))
	t.Cleanup(srv.Close)

	resp, err := newClient(srv).Check(context.Background(), []pricevalidation.ExpectedLine{
		{ProductID: "prod-a", Quantity: 2, ExpectedUnitPriceMinor: 2000},
	})
	require.NoError(t, err)

	var sent struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	require.Len(t, sent.Items, 1)
	require.Equal(t, "prod-a", sent.Items[0]["productId"])
	require.Equal(t, float64(2), sent.Items[0]["quantity"])
	require.Equal(t, float64(2000), sent.Items[0]["expectedUnitPriceMinorUnits"])

	require.True(t, *resp.IsValid)
	require.Len(t, resp.Items, 1)
	require.Equal(t, int64(2000), *resp.Items[0].DiscountedUnitPriceMinorUnits)
	require.Equal(t, "promo-1", *resp.Items[0].AppliedPromotionID)
	require.Equal(t, int64(4000), *resp.TotalDiscountedPriceMinorUnits)
}

func TestClientCheckRejectsMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// isPriceValid and the totals are absent.
		_, _ = w.Write([]byte(`{"isValid": true, "items": [{"productId": "prod-a", "quantity": 1}]}`))
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(srv).Check(context.Background(), []pricevalidation.ExpectedLine{
		{ProductID: "prod-a", Quantity: 1, ExpectedUnitPriceMinor: 100},
	})
	require.ErrorIs(t, err, pricevalidation.ErrMalformedResponse)
	require.ErrorIs(t, err, pricevalidation.ErrTransport)
}

func TestClientCheckRejectsWrongTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isValid": "yes"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(srv).Check(context.Background(), []pricevalidation.ExpectedLine{
		{ProductID: "prod-a", Quantity: 1, ExpectedUnitPriceMinor: 100},
	})
	require.ErrorIs(t, err, pricevalidation.ErrTransport)
}

func TestClientCheckTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(srv).Check(context.Background(), []pricevalidation.ExpectedLine{
		{ProductID: "prod-a", Quantity: 1, ExpectedUnitPriceMinor: 100},
	})
	require.ErrorIs(t, err, pricevalidation.ErrTransport)
}
