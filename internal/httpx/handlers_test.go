package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/orders"
	"github.com/ariefcatur/go-marketplace/internal/products"
	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyerID  = "6f1c2a3e-1111-4b8e-9d55-0a1b2c3d4e5f"
	sellerID = "7a2d3b4f-2222-4c9f-8e66-1b2c3d4e5f60"
	prodID   = "8b3e4c50-3333-4da0-9f77-2c3d4e5f6071"
)

type fakeTokens struct {
	mu    sync.Mutex
	calls int
	users map[string]users.User
	err   error
}

func (f *fakeTokens) ValidateToken(ctx context.Context, token string) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return users.User{}, f.err
	}
	u, ok := f.users[token]
	if !ok {
		return users.User{}, apperr.Unauthorized("Invalid token")
	}
	return u, nil
}

func newTokens() *fakeTokens {
	return &fakeTokens{users: map[string]users.User{
		"buyer-token":  {ID: buyerID, Email: "b@x.io", Role: users.RoleBuyer},
		"seller-token": {ID: sellerID, Email: "s@x.io", Role: users.RoleSeller},
	}}
}

type fakeOrders struct {
	created orders.CreateInput
	page    orders.PageRequest
	cancel  [2]string
	err     error
}

func (f *fakeOrders) Create(ctx context.Context, in orders.CreateInput) (orders.OrderView, error) {
	f.created = in
	if f.err != nil {
		return orders.OrderView{}, f.err
	}
	return orders.OrderView{Order: orders.Order{ID: "o1", BuyerID: in.BuyerID, Status: orders.StatusPending}, TotalPrice: decimal.NewFromInt(200)}, nil
}

func (f *fakeOrders) FindOne(ctx context.Context, id string) (orders.OrderView, error) {
	if f.err != nil {
		return orders.OrderView{}, f.err
	}
	return orders.OrderView{Order: orders.Order{ID: id}}, nil
}

func (f *fakeOrders) ByBuyer(ctx context.Context, id string, p orders.PageRequest) (orders.Page[orders.OrderView], error) {
	f.page = p
	return orders.Page[orders.OrderView]{Data: []orders.OrderView{}, CurrentPage: p.Page, PageSize: p.Limit}, nil
}

func (f *fakeOrders) BySeller(ctx context.Context, id string, p orders.PageRequest) (orders.Page[orders.OrderView], error) {
	f.page = p
	return orders.Page[orders.OrderView]{Data: []orders.OrderView{}}, nil
}

func (f *fakeOrders) Cancel(ctx context.Context, id, buyer string) (orders.Order, error) {
	f.cancel = [2]string{id, buyer}
	if f.err != nil {
		return orders.Order{}, f.err
	}
	return orders.Order{ID: id, Status: orders.StatusCancelled}, nil
}

func (f *fakeOrders) CompletePending(ctx context.Context) (int64, error) { return 3, nil }

type fakeProducts struct {
	created products.CreateInput
	removed [2]string
	err     error
}

func (f *fakeProducts) Create(ctx context.Context, in products.CreateInput) (products.Product, error) {
	f.created = in
	return products.Product{ID: prodID, Code: in.Code, SellerID: in.SellerID}, f.err
}
func (f *fakeProducts) Get(ctx context.Context, id string) (products.Product, error) {
	return products.Product{}, f.err
}
func (f *fakeProducts) List(ctx context.Context) ([]products.Product, error) { return nil, f.err }
func (f *fakeProducts) BySeller(ctx context.Context, id string) ([]products.Product, error) {
	return []products.Product{}, f.err
}
func (f *fakeProducts) Details(ctx context.Context, ids []string) ([]products.Product, error) {
	out := make([]products.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, products.Product{ID: id})
	}
	return out, f.err
}
func (f *fakeProducts) Update(ctx context.Context, id, seller string, in products.UpdateInput) error {
	return f.err
}
func (f *fakeProducts) SoftDelete(ctx context.Context, id, seller string) error {
	f.removed = [2]string{id, seller}
	return f.err
}
func (f *fakeProducts) Delete(ctx context.Context, id, seller string) error { return f.err }

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, rec.Code, b.StatusCode)
	return b.Error
}

const orderBody = `{"email":"a@b.com","address":"Jl. 1","city":"Bandung","country":"ID","shipping":"Deliver","shippingCost":"10",
	"productQuantities":[{"productId":"` + prodID + `","quantity":2,"unitPrice":"50"}]}`

func TestHealthz(t *testing.T) {
	rec := do(t, NewRouter(), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCreateOrderGuestAndLoggedIn(t *testing.T) {
	svc := &fakeOrders{}
	router := NewRouter(&OrdersHandler{Svc: svc, Auth: NewAuth(newTokens(), 16, time.Minute)})

	rec := do(t, router, http.MethodPost, "/orders", "", orderBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, svc.created.BuyerID)
	assert.Equal(t, "a@b.com", svc.created.Email)
	require.Len(t, svc.created.Items, 1)
	assert.Equal(t, 2, svc.created.Items[0].Quantity)
	assert.Contains(t, rec.Body.String(), `"totalPrice":"200"`)

	rec = do(t, router, http.MethodPost, "/orders", "buyer-token", orderBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, buyerID, svc.created.BuyerID)
}

func TestCreateOrderValidation(t *testing.T) {
	router := NewRouter(&OrdersHandler{Svc: &fakeOrders{}, Auth: NewAuth(newTokens(), 16, time.Minute)})

	rec := do(t, router, http.MethodPost, "/orders", "", `{"address":"x","city":"y","country":"z","shipping":"Drone","productQuantities":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg := errorOf(t, rec)
	assert.Contains(t, msg, "shipping must be one of [Deliver Pickup]")
	assert.Contains(t, msg, "productQuantities must be at least 1")

	rec = do(t, router, http.MethodPost, "/orders", "", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid json", errorOf(t, rec))
}

func TestOrderErrorsRenderPublicMessage(t *testing.T) {
	svc := &fakeOrders{err: apperr.Internal("get order", errors.New("pq: relation does not exist"))}
	router := NewRouter(&OrdersHandler{Svc: svc, Auth: NewAuth(newTokens(), 16, time.Minute)})

	rec := do(t, router, http.MethodGet, "/orders/o1", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", errorOf(t, rec))

	svc.err = apperr.ServiceUnavailable("Failed to fetch product details", nil)
	rec = do(t, router, http.MethodGet, "/orders/o1", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Failed to fetch product details", errorOf(t, rec))
}

func TestOrderListsPassPaging(t *testing.T) {
	svc := &fakeOrders{}
	router := NewRouter(&OrdersHandler{Svc: svc, Auth: NewAuth(newTokens(), 16, time.Minute)})

	rec := do(t, router, http.MethodGet, "/orders/buyer/"+buyerID+"?page=2&limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.PageRequest{Page: 2, Limit: 5}, svc.page)

	rec = do(t, router, http.MethodGet, "/orders/seller/"+sellerID+"?page=abc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.PageRequest{}, svc.page)
}

func TestCancelOrderNeedsBuyer(t *testing.T) {
	svc := &fakeOrders{}
	router := NewRouter(&OrdersHandler{Svc: svc, Auth: NewAuth(newTokens(), 16, time.Minute)})

	rec := do(t, router, http.MethodPatch, "/orders/o1/cancel", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodPatch, "/orders/o1/cancel", "buyer-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"o1", buyerID}, svc.cancel)

	svc.err = apperr.BadRequest("Order is already cancelled")
	rec = do(t, router, http.MethodPatch, "/orders/o1/cancel", "buyer-token", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Order is already cancelled", errorOf(t, rec))
}

func TestCompletePendingTrigger(t *testing.T) {
	router := NewRouter(&OrdersHandler{Svc: &fakeOrders{}, Auth: NewAuth(newTokens(), 16, time.Minute)})

	rec := do(t, router, http.MethodPost, "/orders/complete-pending", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":3}`, rec.Body.String())
}

func TestProductMutationsNeedSeller(t *testing.T) {
	svc := &fakeProducts{}
	router := NewRouter(&ProductsHandler{Svc: svc, Auth: NewAuth(newTokens(), 16, time.Minute)})
	body := `{"code":"W-1","name":"Widget","price":"12.50","stock":3}`

	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodPost, "/products", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodPost, "/products", "forged", body).Code)
	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodPost, "/products", "buyer-token", body).Code)

	rec := do(t, router, http.MethodPost, "/products", "seller-token", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, sellerID, svc.created.SellerID)

	rec = do(t, router, http.MethodPost, "/products", "seller-token", `{"code":"W-2","name":"x","price":"-1","stock":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, "/products/"+prodID, "seller-token", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, [2]string{prodID, sellerID}, svc.removed)

	svc.err = apperr.NotFound("Product not found or you are not the owner")
	rec = do(t, router, http.MethodPut, "/products/"+prodID, "seller-token", `{"name":"n","price":"1","stock":0}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductBulk(t *testing.T) {
	router := NewRouter(&ProductsHandler{Svc: &fakeProducts{}, Auth: NewAuth(newTokens(), 16, time.Minute)})

	rec := do(t, router, http.MethodPost, "/products/bulk", "", `{"productIds":["a","b"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []products.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	rec = do(t, router, http.MethodPost, "/products/bulk", "", `{"productIds":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthCachesValidTokensOnly(t *testing.T) {
	tokens := newTokens()
	auth := NewAuth(tokens, 16, time.Minute)
	ok := auth.Required(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFrom(r.Context())
		_, _ = w.Write([]byte(u.ID))
	}))

	for i := 0; i < 3; i++ {
		rec := do(t, ok, http.MethodGet, "/", "buyer-token", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, buyerID, rec.Body.String())
	}
	assert.Equal(t, 1, tokens.calls)

	do(t, ok, http.MethodGet, "/", "nope", "")
	do(t, ok, http.MethodGet, "/", "nope", "")
	assert.Equal(t, 3, tokens.calls)
}

func TestAuthUserServiceDown(t *testing.T) {
	tokens := newTokens()
	tokens.err = apperr.ServiceUnavailable("user.validate.token: no reply", context.DeadlineExceeded)
	auth := NewAuth(tokens, 16, time.Minute)
	h := auth.Required(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := do(t, h, http.MethodGet, "/", "buyer-token", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	tokens.err = apperr.NotFound("User not found")
	rec = do(t, h, http.MethodGet, "/", "buyer-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", errorOf(t, rec))
}

func TestAuthRemoteInternalErrorIsUnavailable(t *testing.T) {
	tokens := newTokens()
	tokens.err = apperr.Internal("db: connection reset", nil)
	auth := NewAuth(tokens, 16, time.Minute)
	h := auth.Required(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := do(t, h, http.MethodGet, "/", "buyer-token", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "User service unavailable", errorOf(t, rec))

	tokens.err = apperr.Unauthorized("token expired")
	rec = do(t, h, http.MethodGet, "/", "buyer-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", errorOf(t, rec))
}

func TestBearerParsing(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc":  true,
		"bearer abc":  true,
		"Basic abc":   false,
		"Bearer":      false,
		"Bearer    ":  false,
		"":            false,
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		_, ok := bearer(req)
		assert.Equal(t, want, ok, header)
	}
}

type fakeUsers struct{ err error }

func (f fakeUsers) Register(ctx context.Context, in users.RegisterInput) (string, error) {
	return "tok-" + in.Email, f.err
}
func (f fakeUsers) Login(ctx context.Context, in users.LoginInput) (string, error) {
	return "tok", f.err
}

func TestUsersHandler(t *testing.T) {
	router := NewRouter(&UsersHandler{Svc: fakeUsers{}, Auth: NewAuth(newTokens(), 16, time.Minute)})

	rec := do(t, router, http.MethodPost, "/users/register", "",
		`{"firstName":"A","lastName":"B","email":"a@b.com","password":"secret123","role":"Buyer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"accessToken":"tok-a@b.com"}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/users/register", "", `{"firstName":"A","lastName":"B","email":"nope","password":"short","role":"Admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg := errorOf(t, rec)
	assert.Contains(t, msg, "email must be an email")
	assert.Contains(t, msg, "password must be at least 8")

	rec = do(t, router, http.MethodGet, "/users/me", "seller-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), sellerID)

	router = NewRouter(&UsersHandler{Svc: fakeUsers{err: apperr.BadRequest("Please complete your registration")}, Auth: NewAuth(newTokens(), 16, time.Minute)})
	rec = do(t, router, http.MethodPost, "/users/login", "", `{"email":"a@b.com","password":"secret123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please complete your registration", errorOf(t, rec))
}
