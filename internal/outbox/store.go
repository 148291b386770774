package outbox

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxAttempts before an entry is parked as failed and left for an operator.
const MaxAttempts = 10

type PGStore struct {
	DB *pgxpool.Pool
}

func (s *PGStore) Add(ctx context.Context, topic string, key, value []byte) error {
	_, err := s.DB.Exec(ctx,
		`INSERT INTO stock_event_outbox (topic, msg_key, msg_value) VALUES ($1,$2,$3)`,
		topic, key, value)
	if err != nil {
		return fmt.Errorf("outbox add %s: %w", topic, err)
	}
	return nil
}

// LockBatch leases up to n entries. A lease that ran out (relay crashed
// mid-batch) makes the entry available again.
func (s *PGStore) LockBatch(ctx context.Context, n int, lease time.Duration) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
		UPDATE stock_event_outbox SET status='in_progress', locked_until=now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM stock_event_outbox
			WHERE status='pending' OR (status='in_progress' AND locked_until < now())
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, topic, msg_key, msg_value, status, attempts, last_error, created_at`,
		n, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("outbox lock batch: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.Topic, &e.Key, &e.Value, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("outbox lock batch: %w", err)
	}
	// RETURNING tidak menjamin urutan
	slices.SortFunc(list, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return list, nil
}

func (s *PGStore) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, `
		UPDATE stock_event_outbox SET status='sent', sent_at=now(), locked_until=NULL
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("outbox mark sent: %w", err)
	}
	return nil
}

func (s *PGStore) MarkFailed(ctx context.Context, id int64, msg string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE stock_event_outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    locked_until = NULL,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1`, id, msg, MaxAttempts)
	if err != nil {
		return fmt.Errorf("outbox mark failed %d: %w", id, err)
	}
	return nil
}
