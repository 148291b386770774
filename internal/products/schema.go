package products

// Schema bootstraps the product store.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          UUID PRIMARY KEY,
		code        TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL UNIQUE,
		description VARCHAR(100) NOT NULL DEFAULT '',
		images      TEXT[] NOT NULL DEFAULT '{}',
		price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		stock       INT NOT NULL CHECK (stock >= 0),
		order_count INT NOT NULL DEFAULT 0 CHECK (order_count >= 0),
		is_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
		seller_id   UUID NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS products_seller_idx ON products (seller_id)`,
	// event_id yang sudah diterapkan, supaya redelivery tidak dobel
	`CREATE TABLE IF NOT EXISTS stock_ledger_events (
		event_id   TEXT PRIMARY KEY,
		order_id   TEXT,
		direction  TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE stock_ledger_events ADD COLUMN IF NOT EXISTS order_id TEXT`,
	`CREATE INDEX IF NOT EXISTS stock_ledger_events_order_idx ON stock_ledger_events (order_id, direction)`,
}
