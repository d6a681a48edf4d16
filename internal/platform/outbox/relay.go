package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/metrics"
)

// Publisher delivers one message to the event stream.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Store is the persistence side of the relay.
type Store interface {
	FacilitySchemas(ctx context.Context) ([]string, error)
	Claim(ctx context.Context, schema string, limit, maxRetries int, fn func(ctx context.Context, e *Entry) error) (published, failed int, err error)
	Pending(ctx context.Context, schema string, maxRetries int) (int64, error)
}

type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    100,
		PollInterval: 500 * time.Millisecond,
		MaxRetries:   5,
	}
}

// Relay polls the outbox of every facility schema and publishes pending
// entries in creation order.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewRelay(store Store, publisher Publisher, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
		metrics:   m,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().
		Int("batch_size", r.cfg.BatchSize).
		Dur("poll_interval", r.cfg.PollInterval).
		Msg("outbox relay started")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped")
			return nil
		case <-ticker.C:
			r.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce drains one batch from each facility schema and returns how many
// entries were published.
func (r *Relay) ProcessOnce(ctx context.Context) int {
	schemas, err := r.store.FacilitySchemas(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list facility schemas")
		return 0
	}

	total := 0
	var pending int64
	for _, schema := range schemas {
		published, failed, err := r.store.Claim(ctx, schema, r.cfg.BatchSize, r.cfg.MaxRetries, r.publish)
		if err != nil {
			r.logger.Error().Err(err).Str("schema", schema).Msg("failed to process outbox batch")
			continue
		}
		total += published
		if failed > 0 {
			r.logger.Warn().Str("schema", schema).Int("failed", failed).Msg("outbox entries failed to publish")
		}

		if n, err := r.store.Pending(ctx, schema, r.cfg.MaxRetries); err == nil {
			pending += n
		}
	}
	r.metrics.SetOutboxPending(pending)
	return total
}

func (r *Relay) publish(ctx context.Context, e *Entry) error {
	if err := r.publisher.Publish(ctx, e.Topic, e.MessageKey, e.Payload); err != nil {
		r.metrics.OutboxFailureInc()
		evt := r.logger.Warn()
		if e.RetryCount+1 >= r.cfg.MaxRetries {
			evt = r.logger.Error()
		}
		evt.Err(err).
			Int64("id", e.ID).
			Str("event_type", e.EventType).
			Int("retry_count", e.RetryCount+1).
			Msg("outbox publish failed")
		return err
	}

	r.metrics.OutboxPublishedInc()
	r.logger.Debug().
		Int64("id", e.ID).
		Str("event_type", e.EventType).
		Str("topic", e.Topic).
		Msg("outbox entry published")
	return nil
}
