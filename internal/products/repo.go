package products

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

const productColumns = `id, code, name, description, images, price, stock, order_count, is_deleted, seller_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Images, &p.Price,
		&p.Stock, &p.OrderCount, &p.IsDeleted, &p.SellerID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collect(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Create(ctx context.Context, in CreateInput) (Product, error) {
	images := in.Images
	if images == nil {
		images = []string{}
	}
	row := r.DB.QueryRow(ctx, `
		INSERT INTO products (id, code, name, description, images, price, stock, seller_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING `+productColumns,
		uuid.NewString(), in.Code, in.Name, in.Description, images, in.Price, in.Stock, in.SellerID)
	p, err := scanProduct(row)
	if postgres.IsUniqueViolation(err) {
		return Product{}, apperr.Conflict("Product with this name or code already exists")
	}
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// Get skips soft-deleted products.
func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	if uuid.Validate(id) != nil {
		return Product{}, apperr.NotFound("Product not found")
	}
	p, err := scanProduct(r.DB.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id=$1 AND NOT is_deleted`, id))
	if postgres.IsNoRows(err) {
		return Product{}, apperr.NotFound("Product not found")
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE NOT is_deleted ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return collect(rows)
}

// ListBySeller includes soft-deleted products; the seller still owns them.
func (r *Repo) ListBySeller(ctx context.Context, sellerID string) ([]Product, error) {
	if uuid.Validate(sellerID) != nil {
		return []Product{}, nil
	}
	rows, err := r.DB.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE seller_id=$1 ORDER BY created_at DESC, id`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list products of seller %s: %w", sellerID, err)
	}
	return collect(rows)
}

func (r *Repo) IDsBySeller(ctx context.Context, sellerID string) ([]string, error) {
	if uuid.Validate(sellerID) != nil {
		return []string{}, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT id FROM products WHERE seller_id=$1 ORDER BY id`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("product ids of seller %s: %w", sellerID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("product ids of seller %s: %w", sellerID, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// GetMany returns whatever exists of ids, soft-deleted included: order history
// still has to render them.
func (r *Repo) GetMany(ctx context.Context, ids []string) ([]Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if uuid.Validate(id) == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []Product{}, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, valid)
	if err != nil {
		return nil, fmt.Errorf("bulk products: %w", err)
	}
	return collect(rows)
}

// Update is scoped to the owning seller.
func (r *Repo) Update(ctx context.Context, id, sellerID string, in UpdateInput) error {
	if uuid.Validate(id) != nil {
		return errNotOwner
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET name=$3, description=$4, price=$5, stock=$6, updated_at=now()
		WHERE id=$1 AND seller_id=$2`,
		id, sellerID, in.Name, in.Description, in.Price, in.Stock)
	if postgres.IsUniqueViolation(err) {
		return apperr.Conflict("Product with this name or code already exists")
	}
	if err != nil {
		return fmt.Errorf("update product %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return errNotOwner
	}
	return nil
}

func (r *Repo) SoftDelete(ctx context.Context, id, sellerID string) error {
	if uuid.Validate(id) != nil {
		return errNotOwner
	}
	ct, err := r.DB.Exec(ctx,
		`UPDATE products SET is_deleted=TRUE, updated_at=now() WHERE id=$1 AND seller_id=$2`, id, sellerID)
	if err != nil {
		return fmt.Errorf("soft delete product %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return errNotOwner
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id, sellerID string) error {
	if uuid.Validate(id) != nil {
		return errNotOwner
	}
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1 AND seller_id=$2`, id, sellerID)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return errNotOwner
	}
	return nil
}

var errNotOwner = apperr.NotFound("Product not found or you are not the owner")

// BeginLedger opens the unit of work for one stock batch.
func (r *Repo) BeginLedger(ctx context.Context) (LedgerTx, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &pgLedgerTx{tx: tx}, nil
}

type pgLedgerTx struct{ tx pgx.Tx }

func (t *pgLedgerTx) Applied(ctx context.Context, eventID string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_ledger_events WHERE event_id=$1)`, eventID).Scan(&ok)
	return ok, err
}

func (t *pgLedgerTx) OrderApplied(ctx context.Context, orderID string, d Direction) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_ledger_events WHERE order_id=$1 AND direction=$2)`,
		orderID, string(d)).Scan(&ok)
	return ok, err
}

// MarkApplied records the batch. Calls without an event id still get a row when they
// carry an order id, keyed by a fresh id.
func (t *pgLedgerTx) MarkApplied(ctx context.Context, eventID, orderID string, d Direction) error {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO stock_ledger_events (event_id, order_id, direction) VALUES ($1, NULLIF($2,''), $3)`,
		eventID, orderID, string(d))
	return err
}

// Lock menahan baris product sampai commit/rollback (FOR UPDATE).
func (t *pgLedgerTx) Lock(ctx context.Context, productID string) (stockRow, error) {
	var s stockRow
	if uuid.Validate(productID) != nil {
		return s, apperr.NotFound("Product with ID %s not found", productID)
	}
	err := t.tx.QueryRow(ctx,
		`SELECT stock, order_count, seller_id FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&s.Stock, &s.OrderCount, &s.SellerID)
	if postgres.IsNoRows(err) {
		return s, apperr.NotFound("Product with ID %s not found", productID)
	}
	return s, err
}

func (t *pgLedgerTx) Save(ctx context.Context, productID string, s stockRow) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE products SET stock=$2, order_count=$3, updated_at=now() WHERE id=$1`,
		productID, s.Stock, s.OrderCount)
	return err
}

func (t *pgLedgerTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgLedgerTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
