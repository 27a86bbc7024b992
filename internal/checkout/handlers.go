package checkout

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/money"
)

// Handler exposes the checkout summary and the gated submission endpoint.
type Handler struct {
	Svc *Service
}

type amountView struct {
	MinorUnits int64  `json:"minorUnits"`
	Formatted  string `json:"formatted"`
}

func amount(m money.Money) amountView {
	return amountView{MinorUnits: m.MinorUnits(), Formatted: m.Format()}
}

type lineView struct {
	ProductID          string     `json:"productId"`
	Quantity           int        `json:"quantity"`
	UnitListPrice      amountView `json:"unitListPrice"`
	UnitEffectivePrice amountView `json:"unitEffectivePrice"`
	UnitTax            amountView `json:"unitTax"`
	UnitSubtotal       amountView `json:"unitSubtotal"`
	AppliedPromotionID *string    `json:"appliedPromotionId"`
}

type summaryView struct {
	Currency     string     `json:"currency"`
	Subtotal     amountView `json:"subtotal"`
	Tax          amountView `json:"tax"`
	PriceTotal   amountView `json:"priceTotal"`
	ShippingCost amountView `json:"shippingCost"`
	GrandTotal   amountView `json:"grandTotal"`
	ItemCount    int        `json:"itemCount"`
}

type validationView struct {
	Status               string   `json:"status"`
	MismatchedProductIDs []string `json:"mismatchedProductIds,omitempty"`
	AuthorityPriced      bool     `json:"authorityPriced"`
}

type viewPayload struct {
	Summary       summaryView    `json:"summary"`
	Lines         []lineView     `json:"lines"`
	UnpricedCount int            `json:"unpricedCount"`
	Validation    validationView `json:"validation"`
	CanSubmit     bool           `json:"canSubmit"`
}

func payloadFrom(currency string, view View) viewPayload {
	lines := make([]lineView, 0, len(view.Lines))
	for _, l := range view.Lines {
		lines = append(lines, lineView{
			ProductID:          l.ProductID,
			Quantity:           l.Quantity,
			UnitListPrice:      amount(l.UnitListPrice),
			UnitEffectivePrice: amount(l.UnitEffectivePrice),
			UnitTax:            amount(l.UnitTax),
			UnitSubtotal:       amount(l.UnitSubtotal),
			AppliedPromotionID: l.AppliedPromotionID,
		})
	}
	return viewPayload{
		Summary: summaryView{
			Currency:     currency,
			Subtotal:     amount(view.Summary.Subtotal),
			Tax:          amount(view.Summary.Tax),
			PriceTotal:   amount(view.Summary.PriceTotal),
			ShippingCost: amount(view.Summary.ShippingCost),
			GrandTotal:   amount(view.Summary.GrandTotal),
			ItemCount:    view.Summary.ItemCount,
		},
		Lines:         lines,
		UnpricedCount: view.Unpriced,
		Validation: validationView{
			Status:               string(view.Validation),
			MismatchedProductIDs: view.Mismatched,
			AuthorityPriced:      view.AuthorityPriced,
		},
		CanSubmit: view.CanSubmit,
	}
}

// Summary handles GET /api/v1/checkout/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	ref, ok := refFrom(w, r, r.URL.Query().Get("cartId"))
	if !ok {
		return
	}
	view, err := h.Svc.Summary(r.Context(), ref)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": payloadFrom(h.Svc.Rules.Currency, view)})
}

type submitInput struct {
	CartID string `json:"cartId"`
}

// Submit handles POST /api/v1/checkout.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload submitInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	ref, ok := refFrom(w, r, payload.CartID)
	if !ok {
		return
	}
	receipt, err := h.Svc.Submit(r.Context(), ref)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"orderId":    receipt.OrderID,
		"validation": string(receipt.Validation),
		"grandTotal": amount(receipt.Summary.GrandTotal),
	}})
}

func refFrom(w http.ResponseWriter, r *http.Request, cartID string) (cart.Ref, bool) {
	if userID, ok := common.UserID(r.Context()); ok && userID != "" {
		return cart.Ref{UserID: userID}, true
	}
	if cartID == "" {
		common.JSONError(w, http.StatusBadRequest, "CART_REQUIRED", "cartId is required for guest checkout", nil)
		return cart.Ref{}, false
	}
	return cart.Ref{CartID: cartID}, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
	case errors.Is(err, ErrValidationPending):
		common.JSONError(w, http.StatusConflict, "VALIDATION_PENDING", "price validation in progress, retry shortly", nil)
	case errors.Is(err, ErrPricesChanged):
		common.JSONError(w, http.StatusConflict, "PRICES_CHANGED", "prices have changed, please refresh your cart", nil)
	case errors.Is(err, ErrCartEmpty):
		common.JSONError(w, http.StatusBadRequest, "CART_EMPTY", "cart is empty", nil)
	case errors.Is(err, cart.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "CART_NOT_FOUND", "cart not found", nil)
	case errors.Is(err, cart.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusBadRequest
			}
			common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout failed", nil)
	}
}
