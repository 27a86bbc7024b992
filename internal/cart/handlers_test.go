package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
)

type revalidateSpy struct {
	refs []cart.Ref
}

func (s *revalidateSpy) Revalidate(_ context.Context, ref cart.Ref) error {
	s.refs = append(s.refs, ref)
	return nil
}

func newCartRouter(t *testing.T) (http.Handler, *revalidateSpy) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	spy := &revalidateSpy{}
	h := &cart.Handler{
		Svc:        &cart.Service{Guest: &cart.GuestStore{R: client}},
		Revalidate: spy,
		Logger:     zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Use(common.Identity)
	r.Post("/carts", h.Create)
	r.Get("/carts/{id}", h.Get)
	r.Post("/carts/{id}/items", h.AddItem)
	r.Patch("/carts/{id}/items/{productId}", h.UpdateQty)
	r.Delete("/carts/{id}/items/{productId}", h.RemoveItem)
	return r, spy
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func createGuestCart(t *testing.T, router http.Handler) string {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/carts", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var body struct {
		Data struct {
			CartID string `json:"cartId"`
			Server bool   `json:"server"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.CartID)
	require.False(t, body.Data.Server)
	return body.Data.CartID
}

func TestCreateReturnsServerCartForAuthenticatedShopper(t *testing.T) {
	router, _ := newCartRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/carts", strings.NewReader(""))
	req.Header.Set("X-User-ID", "u-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data struct {
			CartID string `json:"cartId"`
			Server bool   `json:"server"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Data.Server)
	require.Empty(t, body.Data.CartID)
}

func TestGuestCartHTTPLifecycle(t *testing.T) {
	router, spy := newCartRouter(t)
	id := createGuestCart(t, router)

	rr := do(t, router, http.MethodPost, "/carts/"+id+"/items", `{"productId":"prod-a","qty":2}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, router, http.MethodGet, "/carts/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var getBody struct {
		Data struct {
			Items []map[string]any `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &getBody))
	require.Len(t, getBody.Data.Items, 1)
	require.Equal(t, "prod-a", getBody.Data.Items[0]["productId"])
	require.Equal(t, float64(2), getBody.Data.Items[0]["qty"])

	rr = do(t, router, http.MethodPatch, "/carts/"+id+"/items/prod-a", `{"qty":5}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodDelete, "/carts/"+id+"/items/prod-a", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, "/carts/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &getBody))
	require.Empty(t, getBody.Data.Items)

	// each mutation must nudge the reconciler
	require.Len(t, spy.refs, 3)
	require.Equal(t, "guest:"+id, spy.refs[0].Key())
}

func TestAddItemRejectsInvalidPayload(t *testing.T) {
	router, spy := newCartRouter(t)
	id := createGuestCart(t, router)

	rr := do(t, router, http.MethodPost, "/carts/"+id+"/items", `{"qty":2}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/carts/"+id+"/items", `{"productId":"prod-a","qty":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	require.Empty(t, spy.refs)
}

func TestUpdateQtyUnknownLine(t *testing.T) {
	router, _ := newCartRouter(t)
	id := createGuestCart(t, router)

	rr := do(t, router, http.MethodPatch, "/carts/"+id+"/items/prod-x", `{"qty":3}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetUnknownCart(t *testing.T) {
	router, _ := newCartRouter(t)

	rr := do(t, router, http.MethodGet, "/carts/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}
