package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/go-chi/chi/v5"
)

type UserService interface {
	Register(ctx context.Context, in users.RegisterInput) (string, error)
	Login(ctx context.Context, in users.LoginInput) (string, error)
}

type UsersHandler struct {
	Svc  UserService
	Auth *Auth
}

func (h *UsersHandler) Mount(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.With(h.Auth.Required).Get("/me", h.me)
	})
}

func (h *UsersHandler) register(w http.ResponseWriter, r *http.Request) {
	var in users.RegisterInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	token, err := h.Svc.Register(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, users.TokenResponse{AccessToken: token})
}

func (h *UsersHandler) login(w http.ResponseWriter, r *http.Request) {
	var in users.LoginInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	token, err := h.Svc.Login(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users.TokenResponse{AccessToken: token})
}

func (h *UsersHandler) me(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFrom(r.Context())
	writeJSON(w, http.StatusOK, u)
}
