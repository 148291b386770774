package orders

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, reference_no, address, city, country, shipping, shipping_cost, status, buyer_id, created_at, updated_at`

func newReferenceNo() string { return "ORD-" + uuid.NewString()[:8] }

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ReferenceNo, &o.Address, &o.City, &o.Country, &o.Shipping,
		&o.ShippingCost, &o.Status, &o.BuyerID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// Create persists the order and its items in one transaction and fills in
// ids, reference number and timestamps.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	var err error
	// reference_no cuma 8 hex; tabrakan jarang, ulangi beberapa kali
	for attempt := 0; attempt < 3; attempt++ {
		o.ReferenceNo = newReferenceNo()
		if err = r.create(ctx, o); !postgres.IsUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("allocate reference number: %w", err)
}

func (r *Repo) create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o.ID = uuid.NewString()
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, reference_no, address, city, country, shipping, shipping_cost, status, buyer_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		o.ID, o.ReferenceNo, o.Address, o.City, o.Country, string(o.Shipping), o.ShippingCost, string(o.Status), o.BuyerID,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	b := &pgx.Batch{}
	for i := range o.Items {
		it := &o.Items[i]
		it.ID = uuid.NewString()
		it.OrderID = o.ID
		b.Queue(`INSERT INTO order_items (id, order_id, product_id, quantity, unit_price) VALUES ($1,$2,$3,$4,$5)`,
			it.ID, it.OrderID, it.ProductID, it.Quantity, it.UnitPrice)
	}
	br := tx.SendBatch(ctx, b)
	for range o.Items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	if uuid.Validate(id) != nil {
		return Order{}, apperr.NotFound("Order not found")
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if postgres.IsNoRows(err) {
		return Order{}, apperr.NotFound("Order not found")
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	list := []Order{o}
	if err := r.attachItems(ctx, list); err != nil {
		return Order{}, err
	}
	return list[0], nil
}

// ListByBuyer pages the buyer's orders, newest first.
func (r *Repo) ListByBuyer(ctx context.Context, buyerID string, p PageRequest) ([]Order, int, error) {
	if uuid.Validate(buyerID) != nil {
		return []Order{}, 0, nil
	}
	return r.page(ctx, `buyer_id = $1`, buyerID, p)
}

// ListByProducts pages orders holding at least one of productIDs, newest first.
// Items are not filtered here.
func (r *Repo) ListByProducts(ctx context.Context, productIDs []string, p PageRequest) ([]Order, int, error) {
	if len(productIDs) == 0 {
		return []Order{}, 0, nil
	}
	return r.page(ctx,
		`EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = orders.id AND i.product_id = ANY($1::uuid[]))`,
		productIDs, p)
}

func (r *Repo) page(ctx context.Context, where string, arg any, p PageRequest) ([]Order, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	if total == 0 || p.offset() >= total {
		return []Order{}, total, nil
	}

	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, arg, p.Limit, p.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	list := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachItems(ctx, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *Repo) attachItems(ctx context.Context, list []Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	idx := make(map[string]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		idx[o.ID] = i
		list[i].Items = []OrderItem{}
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, id`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return err
		}
		i := idx[it.OrderID]
		list[i].Items = append(list[i].Items, it)
	}
	return rows.Err()
}

// Cancel moves an order of buyerID to Cancelled in one statement, guarded by the
// statuses allowed to transition there, so two concurrent cancels cannot both succeed.
func (r *Repo) Cancel(ctx context.Context, id, buyerID string) (Order, error) {
	if uuid.Validate(id) != nil || uuid.Validate(buyerID) != nil {
		return Order{}, apperr.NotFound("Order not found")
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		WHERE id=$1 AND buyer_id=$2 AND status = ANY($4)
		RETURNING `+orderColumns,
		id, buyerID, string(StatusCancelled), sourcesOf(StatusCancelled)))
	if postgres.IsNoRows(err) {
		// bedakan: tidak ada / bukan milik buyer vs. sudah final
		var st Status
		err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 AND buyer_id=$2`, id, buyerID).Scan(&st)
		if postgres.IsNoRows(err) {
			return Order{}, apperr.NotFound("Order not found")
		}
		if err != nil {
			return Order{}, fmt.Errorf("get order %s: %w", id, err)
		}
		if st.Terminal() {
			return Order{}, apperr.BadRequest("Order is already %s", st.lower())
		}
		if !CanTransition(st, StatusCancelled) {
			return Order{}, apperr.BadRequest("Order cannot be cancelled while %s", st.lower())
		}
		// status berubah di antara UPDATE dan SELECT
		return Order{}, apperr.Conflict("Order %s changed, try again", id)
	}
	if err != nil {
		return Order{}, fmt.Errorf("cancel order %s: %w", id, err)
	}
	list := []Order{o}
	if err := r.attachItems(ctx, list); err != nil {
		return Order{}, err
	}
	return list[0], nil
}

// CompletePending moves every order that may complete (Pending) to Completed.
func (r *Repo) CompletePending(ctx context.Context) (int64, error) {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status=$1, updated_at=now() WHERE status = ANY($2)`,
		string(StatusCompleted), sourcesOf(StatusCompleted))
	if err != nil {
		return 0, fmt.Errorf("complete pending orders: %w", err)
	}
	return ct.RowsAffected(), nil
}
