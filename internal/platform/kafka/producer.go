// Package kafka publishes order events to Kafka/Redpanda through a circuit
// breaker.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hms/hms/internal/platform/metrics"
)

type ProducerConfig struct {
	Brokers        []string
	ClientID       string
	LingerMS       int64
	MaxRetries     int
	RetryBackoffMS int64
	// Breaker trips after this many consecutive failures.
	FailureThreshold uint32
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
}

func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:          brokers,
		ClientID:         "hms-server",
		LingerMS:         5,
		MaxRetries:       3,
		RetryBackoffMS:   100,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// syncClient is the subset of *kgo.Client the producer needs.
type syncClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Flush(ctx context.Context) error
	Close()
}

type Producer struct {
	client  syncClient
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewProducer(cfg ProducerConfig, logger zerolog.Logger, m *metrics.Metrics) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS)*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.Lz4Compression()),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Duration(cfg.RetryBackoffMS) * time.Millisecond * time.Duration(attempt+1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return newProducer(client, cfg, logger, m), nil
}

func newProducer(client syncClient, cfg ProducerConfig, logger zerolog.Logger, m *metrics.Metrics) *Producer {
	p := &Producer{
		client:  client,
		logger:  logger.With().Str("component", "kafka_producer").Logger(),
		metrics: m,
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			p.metrics.SetBreakerState(name, breakerStateValue(to))
		},
	})
	p.metrics.SetBreakerState("kafka-producer", 0)
	return p
}

// Publish produces one record and waits for the broker acknowledgement. While
// the breaker is open it fails fast with gobreaker.ErrOpenState.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		rec := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
		return nil, p.client.ProduceSync(ctx, rec).FirstErr()
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// State reports the breaker state as closed, open or half-open.
func (p *Producer) State() string {
	return p.breaker.State().String()
}

func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("error flushing on close")
	}
	p.client.Close()
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
