package orders

import (
	"context"
	"log/slog"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	tracer = otel.Tracer("github.com/ariefcatur/go-marketplace/internal/orders")
	meter  = otel.Meter("github.com/ariefcatur/go-marketplace/internal/orders")
)

type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (Order, error)
	ListByBuyer(ctx context.Context, buyerID string, p PageRequest) ([]Order, int, error)
	ListByProducts(ctx context.Context, productIDs []string, p PageRequest) ([]Order, int, error)
	Cancel(ctx context.Context, id, buyerID string) (Order, error)
	CompletePending(ctx context.Context) (int64, error)
}

// Directory is the read side of the product and user services.
type Directory interface {
	ProductIDsBySeller(ctx context.Context, sellerID string) ([]string, error)
	Products(ctx context.Context, ids []string) ([]ProductInfo, error)
	Users(ctx context.Context, ids []string) ([]UserInfo, error)
	CreateTempUser(ctx context.Context, u TempUser) (string, error)
}

type Emitter interface {
	Emit(ctx context.Context, topic, key string, payload any) error
}

// Reconciler keeps stock events that could not be emitted for a later retry.
type Reconciler interface {
	Defer(ctx context.Context, topic, key string, payload any) error
}

// Service runs the order saga: it commits orders locally and drives the
// product stock ledger with events. There is no cross-service transaction.
type Service struct {
	Repo      Store
	Directory Directory
	Events    Emitter
	Outbox    Reconciler
	Log       *slog.Logger

	created      metric.Int64Counter
	cancelled    metric.Int64Counter
	completed    metric.Int64Counter
	emitFailures metric.Int64Counter
}

func NewService(repo Store, dir Directory, events Emitter, outbox Reconciler, log *slog.Logger) *Service {
	s := &Service{Repo: repo, Directory: dir, Events: events, Outbox: outbox, Log: log}
	s.created, _ = meter.Int64Counter("orders_created_total")
	s.cancelled, _ = meter.Int64Counter("orders_cancelled_total")
	s.completed, _ = meter.Int64Counter("orders_completed_total")
	s.emitFailures, _ = meter.Int64Counter("stock_emit_failures_total",
		metric.WithDescription("stock events handed to the outbox"))
	return s
}

func (s *Service) Create(ctx context.Context, in CreateInput) (_ OrderView, err error) {
	ctx, span := tracer.Start(ctx, "order.create")
	defer func() { endSpan(span, err) }()

	if err := validateCreate(in); err != nil {
		return OrderView{}, err
	}

	buyerID := in.BuyerID
	if buyerID == "" {
		buyerID, err = s.Directory.CreateTempUser(ctx, TempUser{Email: in.Email, FirstName: in.FirstName, LastName: in.LastName})
		if err != nil {
			return OrderView{}, err
		}
	}

	o := Order{
		Address:      in.Address,
		City:         in.City,
		Country:      in.Country,
		Shipping:     in.Shipping,
		ShippingCost: in.ShippingCost,
		Status:       StatusPending,
		BuyerID:      buyerID,
		Items:        make([]OrderItem, 0, len(in.Items)),
	}
	for _, it := range in.Items {
		o.Items = append(o.Items, OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	if err := s.Repo.Create(ctx, &o); err != nil {
		return OrderView{}, storeErr("create order", err)
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	add(ctx, s.created)

	// order sudah commit; stok dikurangi async oleh product service
	s.emitStock(ctx, TopicStockDecrease, o)
	s.Log.Info("order created", "order_id", o.ID, "reference_no", o.ReferenceNo, "buyer_id", o.BuyerID, "items", len(o.Items))
	return plainView(o), nil
}

func (s *Service) FindOne(ctx context.Context, id string) (OrderView, error) {
	o, err := s.Repo.Get(ctx, id)
	if err != nil {
		return OrderView{}, storeErr("get order", err)
	}
	views, err := s.enrich(ctx, []Order{o}, nil)
	if err != nil {
		return OrderView{}, err
	}
	return views[0], nil
}

func (s *Service) ByBuyer(ctx context.Context, buyerID string, p PageRequest) (Page[OrderView], error) {
	p = p.normalize()
	list, total, err := s.Repo.ListByBuyer(ctx, buyerID, p)
	if err != nil {
		return Page[OrderView]{}, storeErr("list buyer orders", err)
	}
	views, err := s.enrich(ctx, list, nil)
	if err != nil {
		return Page[OrderView]{}, err
	}
	return Page[OrderView]{Data: views, Total: total, CurrentPage: p.Page, PageSize: p.Limit}, nil
}

// BySeller pages the orders holding the seller's products. Each order only
// carries the seller's own line items.
func (s *Service) BySeller(ctx context.Context, sellerID string, p PageRequest) (Page[OrderView], error) {
	p = p.normalize()
	empty := Page[OrderView]{Data: []OrderView{}, CurrentPage: p.Page, PageSize: p.Limit}

	productIDs, err := s.Directory.ProductIDsBySeller(ctx, sellerID)
	if err != nil {
		return Page[OrderView]{}, err
	}
	if len(productIDs) == 0 {
		return empty, nil
	}
	list, total, err := s.Repo.ListByProducts(ctx, productIDs, p)
	if err != nil {
		return Page[OrderView]{}, storeErr("list seller orders", err)
	}
	keep := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		keep[id] = true
	}
	views, err := s.enrich(ctx, list, keep)
	if err != nil {
		return Page[OrderView]{}, err
	}
	return Page[OrderView]{Data: views, Total: total, CurrentPage: p.Page, PageSize: p.Limit}, nil
}

// Cancel only touches the buyer's own Pending order and releases exactly the
// quantities that were reserved at creation.
func (s *Service) Cancel(ctx context.Context, id, buyerID string) (_ Order, err error) {
	ctx, span := tracer.Start(ctx, "order.cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer func() { endSpan(span, err) }()

	o, err := s.Repo.Cancel(ctx, id, buyerID)
	if err != nil {
		return Order{}, storeErr("cancel order", err)
	}
	add(ctx, s.cancelled)
	s.emitStock(ctx, TopicStockIncrease, o)
	s.Log.Info("order cancelled", "order_id", o.ID, "buyer_id", buyerID)
	return o, nil
}

// CompletePending is the periodic sweep. Re-running it is a no-op.
func (s *Service) CompletePending(ctx context.Context) (_ int64, err error) {
	ctx, span := tracer.Start(ctx, "order.sweep")
	defer func() { endSpan(span, err) }()

	n, err := s.Repo.CompletePending(ctx)
	if err != nil {
		return 0, storeErr("complete pending orders", err)
	}
	if n > 0 {
		if s.completed != nil {
			s.completed.Add(ctx, n)
		}
		s.Log.Info("pending orders completed", "updated", n)
	}
	return n, nil
}

func (s *Service) emitStock(ctx context.Context, topic string, o Order) {
	ev := StockEvent{OrderID: o.ID, Items: stockItems(o.Items)}
	err := s.Events.Emit(ctx, topic, PartitionKey(o.ID), ev)
	if err == nil {
		return
	}
	if s.emitFailures != nil {
		s.emitFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
	}
	s.Log.Error("stock event not emitted", "topic", topic, "order_id", o.ID, "err", err)
	if s.Outbox == nil {
		return
	}
	if err := s.Outbox.Defer(ctx, topic, PartitionKey(o.ID), ev); err != nil {
		s.Log.Error("stock event lost", "topic", topic, "order_id", o.ID, "err", err)
	}
}

// enrich fetches products and buyers concurrently and merges them by id.
// With keep set, items of other products are dropped first.
func (s *Service) enrich(ctx context.Context, list []Order, keep map[string]bool) ([]OrderView, error) {
	if len(list) == 0 {
		return []OrderView{}, nil
	}
	if keep != nil {
		for i := range list {
			items := make([]OrderItem, 0, len(list[i].Items))
			for _, it := range list[i].Items {
				if keep[it.ProductID] {
					items = append(items, it)
				}
			}
			list[i].Items = items
		}
	}

	var productIDs, buyerIDs []string
	seenP, seenB := map[string]bool{}, map[string]bool{}
	for _, o := range list {
		if !seenB[o.BuyerID] {
			seenB[o.BuyerID] = true
			buyerIDs = append(buyerIDs, o.BuyerID)
		}
		for _, it := range o.Items {
			if !seenP[it.ProductID] {
				seenP[it.ProductID] = true
				productIDs = append(productIDs, it.ProductID)
			}
		}
	}

	var (
		products []ProductInfo
		buyers   []UserInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.Directory.Products(gctx, productIDs)
		return err
	})
	g.Go(func() (err error) {
		buyers, err = s.Directory.Users(gctx, buyerIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	productByID := make(map[string]*ProductInfo, len(products))
	for i := range products {
		productByID[products[i].ID] = &products[i]
	}
	buyerByID := make(map[string]*UserInfo, len(buyers))
	for i := range buyers {
		buyerByID[buyers[i].ID] = &buyers[i]
	}

	views := make([]OrderView, 0, len(list))
	for _, o := range list {
		v := plainView(o)
		for i := range v.Items {
			v.Items[i].Product = productByID[v.Items[i].ProductID]
		}
		v.Buyer = buyerByID[o.BuyerID]
		views = append(views, v)
	}
	return views, nil
}

func plainView(o Order) OrderView {
	v := OrderView{Order: o, Items: make([]ItemView, 0, len(o.Items)), TotalPrice: TotalPrice(o.Items)}
	for _, it := range o.Items {
		v.Items = append(v.Items, ItemView{OrderItem: it})
	}
	return v
}

func validateCreate(in CreateInput) error {
	if len(in.Items) == 0 {
		return apperr.BadRequest("order has no items")
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return apperr.BadRequest("item without product id")
		}
		if it.Quantity <= 0 {
			return apperr.BadRequest("quantity for product %s must be positive", it.ProductID)
		}
		if it.UnitPrice.IsNegative() {
			return apperr.BadRequest("unit price for product %s must not be negative", it.ProductID)
		}
	}
	if in.Shipping != ShippingDeliver && in.Shipping != ShippingPickup {
		return apperr.BadRequest("shipping must be Deliver or Pickup")
	}
	if in.ShippingCost.LessThan(decimal.Zero) {
		return apperr.BadRequest("shipping cost must not be negative")
	}
	if in.BuyerID == "" && in.Email == "" {
		return apperr.BadRequest("email is required without buyerId")
	}
	return nil
}

// storeErr passes typed errors through and hides the rest.
func storeErr(msg string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Internal(msg, err)
}

func add(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
