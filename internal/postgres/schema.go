package postgres

// InventorySchema backs the stock ledger service.
var InventorySchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		price      NUMERIC(19,2) NOT NULL CHECK (price >= 0),
		quantity   INTEGER NOT NULL CHECK (quantity >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS stock_reservations (
		reservation_key TEXT PRIMARY KEY,
		product_id      BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity        INTEGER NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// OrdersSchema backs the order service.
var OrdersSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id           UUID PRIMARY KEY,
		product_id   BIGINT NOT NULL,
		quantity     INTEGER NOT NULL CHECK (quantity > 0),
		total_amount NUMERIC(19,2) NOT NULL CHECK (total_amount >= 0),
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at)`,
}
