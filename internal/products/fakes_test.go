package products

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/logging"
	"github.com/ariefcatur/go-marketplace/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// memLedger serialises transactions with one lock, which is what FOR UPDATE
// gives two batches touching the same rows.
type memLedger struct {
	lock sync.Mutex

	mu      sync.Mutex
	rows    map[string]stockRow
	applied map[string]Direction
	orders  map[orderMark]bool
	failOn  string
}

type orderMark struct {
	orderID string
	d       Direction
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[string]stockRow{}, applied: map[string]Direction{}, orders: map[orderMark]bool{}}
}

func (m *memLedger) put(id string, stock, orderCount int, seller string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id] = stockRow{Stock: stock, OrderCount: orderCount, SellerID: seller}
}

func (m *memLedger) get(id string) stockRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memLedger) BeginLedger(ctx context.Context) (LedgerTx, error) {
	m.lock.Lock()
	return &memTx{m: m, writes: map[string]stockRow{}}, nil
}

type memTx struct {
	m      *memLedger
	writes map[string]stockRow
	mark   map[string]Direction
	orders []orderMark
	done   bool
}

func (t *memTx) Applied(ctx context.Context, eventID string) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	_, ok := t.m.applied[eventID]
	return ok, nil
}

func (t *memTx) OrderApplied(ctx context.Context, orderID string, d Direction) (bool, error) {
	for _, o := range t.orders {
		if o == (orderMark{orderID, d}) {
			return true, nil
		}
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.orders[orderMark{orderID, d}], nil
}

func (t *memTx) MarkApplied(ctx context.Context, eventID, orderID string, d Direction) error {
	if eventID != "" {
		if t.mark == nil {
			t.mark = map[string]Direction{}
		}
		t.mark[eventID] = d
	}
	if orderID != "" {
		t.orders = append(t.orders, orderMark{orderID, d})
	}
	return nil
}

func (t *memTx) Lock(ctx context.Context, productID string) (stockRow, error) {
	if r, ok := t.writes[productID]; ok {
		return r, nil
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	r, ok := t.m.rows[productID]
	if !ok {
		return stockRow{}, apperr.NotFound("Product with ID %s not found", productID)
	}
	return r, nil
}

func (t *memTx) Save(ctx context.Context, productID string, s stockRow) error {
	if productID == t.m.failOn {
		return errors.New("connection reset")
	}
	t.writes[productID] = s
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	t.m.mu.Lock()
	for id, r := range t.writes {
		t.m.rows[id] = r
	}
	for id, d := range t.mark {
		t.m.applied[id] = d
	}
	for _, o := range t.orders {
		t.m.orders[o] = true
	}
	t.m.mu.Unlock()
	t.finish()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.finish()
	return nil
}

func (t *memTx) finish() {
	if !t.done {
		t.done = true
		t.m.lock.Unlock()
	}
}

func newTestCache(t *testing.T) (*redisx.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisx.NewCache(rdb, time.Minute, logging.Discard()), mr
}
