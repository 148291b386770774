package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/products"
	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/go-chi/chi/v5"
)

type ProductService interface {
	Create(ctx context.Context, in products.CreateInput) (products.Product, error)
	Get(ctx context.Context, id string) (products.Product, error)
	List(ctx context.Context) ([]products.Product, error)
	BySeller(ctx context.Context, sellerID string) ([]products.Product, error)
	Details(ctx context.Context, ids []string) ([]products.Product, error)
	Update(ctx context.Context, id, sellerID string, in products.UpdateInput) error
	SoftDelete(ctx context.Context, id, sellerID string) error
	Delete(ctx context.Context, id, sellerID string) error
}

type ProductsHandler struct {
	Svc  ProductService
	Auth *Auth
}

type bulkRequest struct {
	ProductIDs []string `json:"productIds" validate:"required,min=1,max=500"`
}

func (h *ProductsHandler) Mount(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/bulk", h.bulk)
		r.Get("/seller/{sellerId}", h.bySeller)
		r.Get("/{id}", h.get)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Required, RequireRole(users.RoleSeller))
			r.Post("/", h.create)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.softDelete)
			r.Delete("/{id}/hard", h.delete)
		})
	})
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Svc.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Svc.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) bySeller(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Svc.BySeller(ctx, chi.URLParam(r, "sellerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ps, err := h.Svc.Details(ctx, req.ProductIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in products.CreateInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.Price.IsNegative() {
		writeError(w, apperr.BadRequest("price must not be negative"))
		return
	}
	u, _ := UserFrom(r.Context())
	in.SellerID = u.ID

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Svc.Create(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	var in products.UpdateInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.Price.IsNegative() {
		writeError(w, apperr.BadRequest("price must not be negative"))
		return
	}
	u, _ := UserFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Update(ctx, chi.URLParam(r, "id"), u.ID, in); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) softDelete(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, h.Svc.SoftDelete)
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, h.Svc.Delete)
}

func (h *ProductsHandler) remove(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, sellerID string) error) {
	u, _ := UserFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := fn(ctx, chi.URLParam(r, "id"), u.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
