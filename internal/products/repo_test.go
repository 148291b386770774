package products

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/logging"
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/ariefcatur/go-marketplace/internal/retry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// integration: butuh POSTGRES_DSN
func testRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := postgres.Connect(ctx, dsn, retry.Fixed(1, 0), logging.Discard())
	if err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool, Schema...))
	return &Repo{DB: pool}
}

func seedProduct(t *testing.T, r *Repo, stock int) Product {
	t.Helper()
	code := uuid.NewString()[:8]
	p, err := r.Create(context.Background(), CreateInput{
		Code: "T-" + code, Name: "Test " + code, Price: decimal.RequireFromString("12.50"),
		Stock: stock, SellerID: uuid.NewString(),
	})
	require.NoError(t, err)
	return p
}

func TestRepoCreateConflict(t *testing.T) {
	r := testRepo(t)
	p := seedProduct(t, r, 1)

	_, err := r.Create(context.Background(), CreateInput{Code: p.Code, Name: "other " + p.Code, SellerID: p.SellerID})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestRepoLedgerRollsBack(t *testing.T) {
	r := testRepo(t)
	a := seedProduct(t, r, 5)
	b := seedProduct(t, r, 1)
	l := NewLedger(r, nil, logging.Discard())

	_, _, err := l.commit(context.Background(), uuid.NewString(), "", Decrease, []StockItem{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 2},
	})
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))

	got, err := r.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
	assert.Equal(t, 0, got.OrderCount)
}

func TestRepoLedgerRecordsEvent(t *testing.T) {
	r := testRepo(t)
	p := seedProduct(t, r, 5)
	l := NewLedger(r, nil, logging.Discard())
	ev := uuid.NewString()
	items := []StockItem{{ProductID: p.ID, Quantity: 2}}

	_, res, err := l.commit(context.Background(), ev, "", Decrease, items)
	require.NoError(t, err)
	assert.Equal(t, batchApplied, res)
	_, res, err = l.commit(context.Background(), ev, "", Decrease, items)
	require.NoError(t, err)
	assert.Equal(t, batchDuplicate, res)

	got, err := r.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
	assert.Equal(t, 1, got.OrderCount)
}

func TestRepoLedgerPairsByOrder(t *testing.T) {
	r := testRepo(t)
	p := seedProduct(t, r, 1)
	l := NewLedger(r, nil, logging.Discard())
	order := uuid.NewString()
	items := []StockItem{{ProductID: p.ID, Quantity: 2}}

	_, _, err := l.commit(context.Background(), uuid.NewString(), order, Decrease, items)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
	_, res, err := l.commit(context.Background(), uuid.NewString(), order, Increase, items)
	require.NoError(t, err)
	assert.Equal(t, batchUnpaired, res)

	got, err := r.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)
}

func TestRepoOwnerScopedDelete(t *testing.T) {
	r := testRepo(t)
	p := seedProduct(t, r, 1)

	assert.True(t, errors.Is(r.SoftDelete(context.Background(), p.ID, uuid.NewString()), apperr.ErrNotFound))
	require.NoError(t, r.SoftDelete(context.Background(), p.ID, p.SellerID))

	_, err := r.Get(context.Background(), p.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	many, err := r.GetMany(context.Background(), []string{p.ID, "not-a-uuid"})
	require.NoError(t, err)
	assert.Len(t, many, 1)
}
