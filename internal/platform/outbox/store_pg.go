package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore reads and settles outbox rows across every facility schema.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// FacilitySchemas lists the schemas that carry an outbox table.
func (s *PGStore) FacilitySchemas(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT table_schema FROM information_schema.tables
		WHERE table_name = 'outbox' AND table_schema LIKE 'facility\_%'
		ORDER BY table_schema`)
	if err != nil {
		return nil, fmt.Errorf("list facility schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var schema string
		if err := rows.Scan(&schema); err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, rows.Err()
}

// Claim locks up to limit pending rows in schema and hands each to fn. A nil
// result marks the row processed; an error bumps its retry count. Locks are
// held until the batch transaction commits so concurrent relays skip them.
func (s *PGStore) Claim(ctx context.Context, schema string, limit, maxRetries int, fn func(ctx context.Context, e *Entry) error) (int, int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, 0, fmt.Errorf("begin outbox batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := pgx.Identifier{schema, "outbox"}.Sanitize()
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       topic, message_key, created_at, retry_count, last_error
		FROM %s
		WHERE processed_at IS NULL AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, table), maxRetries, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch outbox entries: %w", err)
	}

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Payload,
			&e.Topic, &e.MessageKey, &e.CreatedAt, &e.RetryCount, &e.LastError); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	var published, failed int
	for _, e := range entries {
		if perr := fn(ctx, e); perr != nil {
			failed++
			if _, err := tx.Exec(ctx, fmt.Sprintf(`
				UPDATE %s SET retry_count = retry_count + 1, last_error = $1, updated_at = NOW()
				WHERE id = $2`, table), perr.Error(), e.ID); err != nil {
				return published, failed, fmt.Errorf("record outbox failure: %w", err)
			}
			continue
		}
		published++
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE %s SET processed_at = NOW(), updated_at = NOW() WHERE id = $1`, table), e.ID); err != nil {
			return published, failed, fmt.Errorf("mark outbox entry processed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit outbox batch: %w", err)
	}
	return published, failed, nil
}

// Pending counts unprocessed rows still eligible for retry.
func (s *PGStore) Pending(ctx context.Context, schema string, maxRetries int) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE processed_at IS NULL AND retry_count < $1",
		pgx.Identifier{schema, "outbox"}.Sanitize()), maxRetries).Scan(&n)
	return n, err
}
