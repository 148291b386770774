package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/orders"
	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	Create(ctx context.Context, in orders.CreateInput) (orders.OrderView, error)
	FindOne(ctx context.Context, id string) (orders.OrderView, error)
	ByBuyer(ctx context.Context, buyerID string, p orders.PageRequest) (orders.Page[orders.OrderView], error)
	BySeller(ctx context.Context, sellerID string, p orders.PageRequest) (orders.Page[orders.OrderView], error)
	Cancel(ctx context.Context, id, buyerID string) (orders.Order, error)
	CompletePending(ctx context.Context) (int64, error)
}

type OrdersHandler struct {
	Svc  OrderService
	Auth *Auth
}

func (h *OrdersHandler) Mount(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.With(h.Auth.Optional).Post("/", h.create)
		r.Post("/complete-pending", h.completePending)
		r.Get("/buyer/{buyerId}", h.byBuyer)
		r.Get("/seller/{sellerId}", h.bySeller)
		r.Get("/{id}", h.get)
		r.With(h.Auth.Required).Patch("/{id}/cancel", h.cancel)
	})
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	// buyer yang login selalu menang atas body
	if u, ok := UserFrom(r.Context()); ok {
		in.BuyerID = u.ID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	v, err := h.Svc.Create(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	v, err := h.Svc.FindOne(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) byBuyer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	page, err := h.Svc.ByBuyer(ctx, chi.URLParam(r, "buyerId"), pageRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) bySeller(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	page, err := h.Svc.BySeller(ctx, chi.URLParam(r, "sellerId"), pageRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, apperr.Unauthorized("Missing bearer token"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.Cancel(ctx, chi.URLParam(r, "id"), u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) completePending(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.CompletePending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func pageRequest(r *http.Request) orders.PageRequest {
	return orders.PageRequest{Page: queryInt(r, "page"), Limit: queryInt(r, "limit")}
}
