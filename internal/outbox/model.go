package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Entry is one stock event waiting to be re-emitted. Value is the encoded
// envelope, so a re-emit keeps the original event_id and the ledger can
// drop it if the first attempt got through after all.
type Entry struct {
	ID        int64
	Topic     string
	Key       []byte
	Value     []byte
	Status    Status
	Attempts  int
	LastError *string
	CreatedAt time.Time
}

// Schema creates the outbox table. Applied by the order service at boot.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS stock_event_outbox (
		id           BIGSERIAL PRIMARY KEY,
		topic        TEXT NOT NULL,
		msg_key      BYTEA,
		msg_value    BYTEA NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		attempts     INT NOT NULL DEFAULT 0,
		last_error   TEXT,
		locked_until TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_event_outbox_pending ON stock_event_outbox (id) WHERE status IN ('pending','in_progress')`,
}
