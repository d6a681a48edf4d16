// Package outbox implements the transactional outbox: events are written in
// the same transaction as the domain change and relayed to the event stream
// afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hms/hms/internal/platform/db"
)

// Entry is one pending event.
type Entry struct {
	ID            int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	Topic         string
	MessageKey    string
	CreatedAt     time.Time
	RetryCount    int
	LastError     *string
}

// ErrNoTransaction is returned when Write is called outside a unit of work.
var ErrNoTransaction = errors.New("outbox write requires an open transaction")

// Writer appends entries to the outbox table of the facility schema bound to
// the request.
type Writer struct {
	topic string
}

func NewWriter(topic string) *Writer {
	return &Writer{topic: topic}
}

// Write marshals payload and inserts an outbox row inside the transaction
// carried by ctx. The message key defaults to the aggregate id.
func (w *Writer) Write(ctx context.Context, aggregateType, aggregateID, eventType, key string, payload interface{}) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return ErrNoTransaction
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if key == "" {
		key = aggregateID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, topic, message_key)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		aggregateID, aggregateType, eventType, body, w.topic, key)
	if err != nil {
		return fmt.Errorf("write outbox entry: %w", err)
	}
	return nil
}
