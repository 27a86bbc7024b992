package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Revalidator is notified after every cart mutation so the price validation
// generation advances and any in-flight result goes stale.
type Revalidator interface {
	Revalidate(ctx context.Context, ref Ref) error
}

// Handler wires cart operations to HTTP.
type Handler struct {
	Svc        *Service
	Revalidate Revalidator
	Logger     zerolog.Logger
}

// Create allocates a guest cart. Authenticated shoppers do not need one:
// their server cart is keyed by user id.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	if userID, ok := common.UserID(r.Context()); ok && userID != "" {
		common.JSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"cartId": "", "server": true},
		})
		return
	}
	id, err := h.Svc.CreateGuestCart(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{"cartId": id, "server": false},
	})
}

// Get returns the raw cart lines.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	snap, err := h.Svc.Snapshot(r.Context(), ref)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		item := map[string]any{
			"productId": line.ProductID(),
			"qty":       line.Quantity(),
		}
		if sl, isServer := line.(pricing.ServerLine); isServer {
			item["unitPriceMinorUnits"] = sl.UnitPriceMinor
			item["unitTaxMinorUnits"] = sl.UnitTaxMinor
			item["unitSubtotalMinorUnits"] = sl.UnitSubtotalMinor
		}
		items = append(items, item)
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"items": items},
	})
}

type addItemInput struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

// AddItem adds qty units of a product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	var payload addItemInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.ProductID = strings.TrimSpace(payload.ProductID)
	if payload.ProductID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "productId is required", nil)
		return
	}
	if err := h.Svc.AddItem(r.Context(), ref, payload.ProductID, payload.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	h.mutated(r.Context(), ref, "add")
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"ok": true}})
}

type updateQtyInput struct {
	Qty int `json:"qty"`
}

// UpdateQty sets the quantity of an existing line.
func (h *Handler) UpdateQty(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productId")
	var payload updateQtyInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.UpdateQty(r.Context(), ref, productID, payload.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	h.mutated(r.Context(), ref, "update")
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productId")
	if err := h.Svc.RemoveItem(r.Context(), ref, productID); err != nil {
		h.writeError(w, err)
		return
	}
	h.mutated(r.Context(), ref, "remove")
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true}})
}

// mutated notifies the reconciler and records the mutation. Revalidation
// failure never fails the mutation itself; it is logged and the next
// mutation or summary read recovers.
func (h *Handler) mutated(ctx context.Context, ref Ref, op string) {
	if obs.CartMutationsTotal != nil {
		obs.CartMutationsTotal.WithLabelValues(op).Inc()
	}
	if h.Revalidate == nil {
		return
	}
	if err := h.Revalidate.Revalidate(ctx, ref); err != nil {
		h.Logger.Warn().Err(err).Str("cart", ref.Key()).Msg("revalidation trigger failed")
	}
}

func (h *Handler) ref(w http.ResponseWriter, r *http.Request) (Ref, bool) {
	if userID, ok := common.UserID(r.Context()); ok && userID != "" {
		return Ref{UserID: userID}, true
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cart id is required", nil)
		return Ref{}, false
	}
	return Ref{CartID: id}, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart or line not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart operation failed", nil)
	}
}
