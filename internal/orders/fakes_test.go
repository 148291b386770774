package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/google/uuid"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]Order
	clock  time.Time
	err    error
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]Order{}, clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memStore) Create(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.clock = m.clock.Add(time.Second)
	o.ID = uuid.NewString()
	o.ReferenceNo = newReferenceNo()
	o.CreatedAt, o.UpdatedAt = m.clock, m.clock
	for i := range o.Items {
		o.Items[i].ID = uuid.NewString()
		o.Items[i].OrderID = o.ID
	}
	m.orders[o.ID] = clone(*o)
	return nil
}

func clone(o Order) Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

func (m *memStore) Get(ctx context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, apperr.NotFound("Order not found")
	}
	return clone(o), nil
}

func (m *memStore) newestFirst(match func(Order) bool, p PageRequest) ([]Order, int) {
	var all []Order
	for _, o := range m.orders {
		if match(o) {
			all = append(all, clone(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	lo := min(p.offset(), total)
	hi := min(lo+p.Limit, total)
	return all[lo:hi], total
}

func (m *memStore) ListByBuyer(ctx context.Context, buyerID string, p PageRequest) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, total := m.newestFirst(func(o Order) bool { return o.BuyerID == buyerID }, p)
	return list, total, nil
}

func (m *memStore) ListByProducts(ctx context.Context, ids []string, p PageRequest) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	list, total := m.newestFirst(func(o Order) bool {
		for _, it := range o.Items {
			if set[it.ProductID] {
				return true
			}
		}
		return false
	}, p)
	return list, total, nil
}

func (m *memStore) Cancel(ctx context.Context, id, buyerID string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.BuyerID != buyerID {
		return Order{}, apperr.NotFound("Order not found")
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return Order{}, apperr.BadRequest("Order is already %s", o.Status.lower())
	}
	o.Status = StatusCancelled
	m.orders[id] = o
	return clone(o), nil
}

func (m *memStore) CompletePending(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, o := range m.orders {
		if CanTransition(o.Status, StatusCompleted) {
			o.Status = StatusCompleted
			m.orders[id] = o
			n++
		}
	}
	return n, nil
}

type fakeDirectory struct {
	mu         sync.Mutex
	products   map[string]ProductInfo
	users      map[string]UserInfo
	bySeller   map[string][]string
	temps      map[string]string
	productErr error
	calls      map[string]int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		products: map[string]ProductInfo{},
		users:    map[string]UserInfo{},
		bySeller: map[string][]string{},
		temps:    map[string]string{},
		calls:    map[string]int{},
	}
}

func (d *fakeDirectory) count(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[name]
}

func (d *fakeDirectory) ProductIDsBySeller(ctx context.Context, sellerID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["ids"]++
	return append([]string{}, d.bySeller[sellerID]...), nil
}

func (d *fakeDirectory) Products(ctx context.Context, ids []string) ([]ProductInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["products"]++
	if d.productErr != nil {
		return nil, d.productErr
	}
	out := []ProductInfo{}
	for _, id := range ids {
		if p, ok := d.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *fakeDirectory) Users(ctx context.Context, ids []string) ([]UserInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["users"]++
	out := []UserInfo{}
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) CreateTempUser(ctx context.Context, u TempUser) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["temp"]++
	if id, ok := d.temps[u.Email]; ok {
		return id, nil
	}
	id := uuid.NewString()
	d.temps[u.Email] = id
	d.users[id] = UserInfo{ID: id, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Role: "Buyer"}
	return id, nil
}

type emitted struct {
	Topic string
	Key   string
	Event StockEvent
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (e *fakeEmitter) Emit(ctx context.Context, topic, key string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, emitted{Topic: topic, Key: key, Event: payload.(StockEvent)})
	return nil
}

type fakeOutbox struct {
	deferred []emitted
}

func (f *fakeOutbox) Defer(ctx context.Context, topic, key string, payload any) error {
	f.deferred = append(f.deferred, emitted{Topic: topic, Key: key, Event: payload.(StockEvent)})
	return nil
}
