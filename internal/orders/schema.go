package orders

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id            UUID PRIMARY KEY,
		reference_no  TEXT NOT NULL UNIQUE,
		address       TEXT NOT NULL,
		city          TEXT NOT NULL,
		country       TEXT NOT NULL,
		shipping      TEXT NOT NULL,
		shipping_cost NUMERIC(10,2) NOT NULL CHECK (shipping_cost >= 0),
		status        TEXT NOT NULL DEFAULT 'Pending',
		buyer_id      UUID NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_buyer_idx ON orders (buyer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_pending_idx ON orders (status) WHERE status = 'Pending'`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id         UUID PRIMARY KEY,
		order_id   UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id UUID NOT NULL,
		quantity   INT NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id)`,
	`CREATE INDEX IF NOT EXISTS order_items_product_idx ON order_items (product_id)`,
}
