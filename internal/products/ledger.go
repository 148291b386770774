package products

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/redisx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("github.com/ariefcatur/go-marketplace/internal/products")
	meter  = otel.Meter("github.com/ariefcatur/go-marketplace/internal/products")
)

type LedgerStore interface {
	BeginLedger(ctx context.Context) (LedgerTx, error)
}

// LedgerTx is one stock batch. Rollback after Commit must be a no-op.
type LedgerTx interface {
	Applied(ctx context.Context, eventID string) (bool, error)
	// OrderApplied reports whether a batch of direction d was recorded for orderID.
	OrderApplied(ctx context.Context, orderID string, d Direction) (bool, error)
	MarkApplied(ctx context.Context, eventID, orderID string, d Direction) error
	Lock(ctx context.Context, productID string) (stockRow, error)
	Save(ctx context.Context, productID string, s stockRow) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Ledger owns stock and order_count. Every batch commits whole or not at all.
type Ledger struct {
	Store LedgerStore
	Cache *redisx.Cache
	Log   *slog.Logger

	batches metric.Int64Counter
}

func NewLedger(store LedgerStore, cache *redisx.Cache, log *slog.Logger) *Ledger {
	batches, err := meter.Int64Counter("ledger_batches_total",
		metric.WithDescription("stock ledger batches by direction and outcome"))
	if err != nil {
		log.Warn("ledger counter unavailable", "err", err)
	}
	return &Ledger{Store: store, Cache: cache, Log: log, batches: batches}
}

// Apply runs one batch. eventID may be empty for calls that are not redelivered;
// a non-empty eventID that was already applied only re-runs the cache invalidation.
//
// With an orderID the two directions pair up per order: an increase only restores
// stock that a decrease for the same order actually took, and a decrease arriving
// after the order's increase was recorded is skipped.
func (l *Ledger) Apply(ctx context.Context, eventID, orderID string, d Direction, items []StockItem) (err error) {
	ctx, span := tracer.Start(ctx, "ledger.apply", trace.WithAttributes(
		attribute.String("ledger.direction", string(d)),
		attribute.String("ledger.event_id", eventID),
		attribute.String("ledger.order_id", orderID),
		attribute.Int("ledger.items", len(items)),
	))
	outcome := "applied"
	defer func() {
		if err != nil {
			outcome = string(apperr.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if l.batches != nil {
			l.batches.Add(ctx, 1, metric.WithAttributes(
				attribute.String("direction", string(d)),
				attribute.String("outcome", outcome),
			))
		}
		span.End()
	}()

	if err := validateBatch(d, items); err != nil {
		return err
	}

	keys, result, err := l.commit(ctx, eventID, orderID, d, items)
	if err != nil {
		return err
	}
	switch result {
	case batchDuplicate:
		outcome = "duplicate"
		l.Log.Info("stock batch already applied", "event_id", eventID)
	case batchUnpaired:
		outcome = "unpaired"
		l.Log.Warn("stock batch skipped, no matching batch for order",
			"event_id", eventID, "order_id", orderID, "direction", d)
		return nil
	}

	// invalidate sebelum ack; kalau gagal, redelivery akan mengulang invalidasi
	if err := l.Cache.Invalidate(ctx, keys...); err != nil {
		return err
	}
	l.Log.Info("stock batch applied", "event_id", eventID, "direction", d, "items", len(items))
	return nil
}

type batchResult int

const (
	batchApplied batchResult = iota
	batchDuplicate
	// increase without a decrease to undo, or decrease for an order already released
	batchUnpaired
)

func (l *Ledger) commit(ctx context.Context, eventID, orderID string, d Direction, items []StockItem) (keys []string, result batchResult, err error) {
	tx, err := l.Store.BeginLedger(ctx)
	if err != nil {
		return nil, 0, apperr.Internal("begin stock batch", err)
	}
	defer tx.Rollback(ctx)

	if eventID != "" {
		replay, err := tx.Applied(ctx, eventID)
		if err != nil {
			return nil, 0, apperr.Internal("check stock event", err)
		}
		if replay {
			result = batchDuplicate
		}
	}

	// urutan lock tetap (by product id) supaya dua batch tidak deadlock
	sorted := append([]StockItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	seen := make(map[string]bool)
	for _, it := range sorted {
		row, err := tx.Lock(ctx, it.ProductID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return nil, 0, err
			}
			return nil, 0, apperr.Internal("lock product "+it.ProductID, err)
		}
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			keys = append(keys, redisx.ProductKeys(it.ProductID, row.SellerID)...)
		}
	}
	if result == batchDuplicate {
		if err := tx.Commit(ctx); err != nil {
			return nil, 0, apperr.Internal("commit stock batch", err)
		}
		return dedupe(keys), result, nil
	}

	// dicek setelah semua baris terkunci: batch lawan untuk order yang sama sudah commit
	if orderID != "" {
		paired, err := l.paired(ctx, tx, orderID, d)
		if err != nil {
			return nil, 0, err
		}
		if !paired {
			// increase dicatat untuk order, supaya decrease yang telat ikut dilewati
			mark := ""
			if d == Increase {
				mark = orderID
			}
			if eventID != "" || mark != "" {
				if err := tx.MarkApplied(ctx, eventID, mark, d); err != nil {
					return nil, 0, apperr.Internal("record stock event", err)
				}
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, 0, apperr.Internal("commit stock batch", err)
			}
			return nil, batchUnpaired, nil
		}
	}

	for _, it := range sorted {
		row, err := tx.Lock(ctx, it.ProductID)
		if err != nil {
			return nil, 0, apperr.Internal("lock product "+it.ProductID, err)
		}
		switch d {
		case Decrease:
			if row.Stock < it.Quantity {
				return nil, 0, apperr.InsufficientStock(it.ProductID)
			}
			row.Stock -= it.Quantity
			row.OrderCount++
		case Increase:
			row.Stock += it.Quantity
			row.OrderCount = max(0, row.OrderCount-1)
		}
		if err := tx.Save(ctx, it.ProductID, row); err != nil {
			return nil, 0, apperr.Internal("update stock "+it.ProductID, err)
		}
	}

	if eventID != "" || orderID != "" {
		if err := tx.MarkApplied(ctx, eventID, orderID, d); err != nil {
			return nil, 0, apperr.Internal("record stock event", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, apperr.Internal("commit stock batch", err)
	}
	return dedupe(keys), batchApplied, nil
}

// paired: a decrease is fine unless the order was already released, an increase
// needs a decrease to undo and no earlier increase.
func (l *Ledger) paired(ctx context.Context, tx LedgerTx, orderID string, d Direction) (bool, error) {
	released, err := tx.OrderApplied(ctx, orderID, Increase)
	if err != nil {
		return false, apperr.Internal("check order stock", err)
	}
	if released {
		return false, nil
	}
	if d == Decrease {
		return true, nil
	}
	taken, err := tx.OrderApplied(ctx, orderID, Decrease)
	if err != nil {
		return false, apperr.Internal("check order stock", err)
	}
	return taken, nil
}

func validateBatch(d Direction, items []StockItem) error {
	if d != Increase && d != Decrease {
		return apperr.BadRequest("unknown stock direction %q", d)
	}
	if len(items) == 0 {
		return apperr.BadRequest("stock batch has no items")
	}
	for _, it := range items {
		if it.ProductID == "" {
			return apperr.BadRequest("stock item without product id")
		}
		if it.Quantity <= 0 {
			return apperr.BadRequest("invalid quantity %d for product %s", it.Quantity, it.ProductID)
		}
	}
	return nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
