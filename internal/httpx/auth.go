package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TokenValidator is users.Client in product/order services and *users.Service
// in the user service itself.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (users.User, error)
}

type ctxKey struct{}

// Auth resolves bearer tokens to users. Valid tokens are cached for a short
// TTL; rejections are not.
type Auth struct {
	validator TokenValidator
	cache     *expirable.LRU[string, users.User]
}

func NewAuth(v TokenValidator, size int, ttl time.Duration) *Auth {
	if size <= 0 {
		size = 1024
	}
	return &Auth{validator: v, cache: expirable.NewLRU[string, users.User](size, nil, ttl)}
}

// Required rejects requests without a valid bearer token.
func (a *Auth) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			writeError(w, apperr.Unauthorized("Missing bearer token"))
			return
		}
		u, err := a.resolve(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// Optional attaches the user when a valid token is present and otherwise
// lets the request through anonymously.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearer(r); ok {
			if u, err := a.resolve(r.Context(), token); err == nil {
				r = r.WithContext(WithUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) resolve(ctx context.Context, token string) (users.User, error) {
	if u, ok := a.cache.Get(token); ok {
		return u, nil
	}
	u, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindBadRequest:
			return users.User{}, apperr.Unauthorized("Invalid token")
		case apperr.KindUnauthorized:
			return users.User{}, err
		}
		// remote failure, bukan token yang salah
		return users.User{}, apperr.ServiceUnavailable("User service unavailable", err)
	}
	a.cache.Add(token, u)
	return u, nil
}

// RequireRole must run after Required.
func RequireRole(role users.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFrom(r.Context())
			if !ok || u.Role != role {
				writeJSON(w, http.StatusForbidden, errorBody{StatusCode: http.StatusForbidden, Error: "Forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUser(ctx context.Context, u users.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFrom(ctx context.Context) (users.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(users.User)
	return u, ok
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
