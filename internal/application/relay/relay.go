package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/storefrontlabs/checkout/internal/domain/outbox"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
)

// TransactionManager defines the interface for transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher emits envelopes onto a stream.
type Publisher interface {
	Publish(ctx context.Context, stream string, env event.Envelope) error
}

// Relay polls the transactional outbox and publishes pending entries to
// their streams. GetPending locks the claimed rows, so multiple relay
// instances can poll the same table without double-publishing.
type Relay struct {
	outboxRepo outbox.Repository
	txManager  TransactionManager
	publisher  Publisher
	interval   time.Duration
	batchSize  int
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func New(
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	publisher Publisher,
	interval time.Duration,
	batchSize int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Relay {
	return &Relay{
		outboxRepo: outboxRepo,
		txManager:  txManager,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		metrics:    metrics,
		logger:     logger.With().Str("component", "outbox_relay").Logger(),
	}
}

// Run polls on a ticker until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.ProcessBatch(ctx); err != nil {
				r.logger.Error().Err(err).Msg("outbox batch failed")
			}
		}
	}
}

// ProcessBatch claims one batch of pending entries and publishes them. A
// publish failure marks the entry for retry and moves on; the broker may see
// the same event twice, which every consumer tolerates.
func (r *Relay) ProcessBatch(ctx context.Context) error {
	return r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.outboxRepo.GetPending(txCtx, r.batchSize)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			if err := r.publisher.Publish(ctx, entry.Stream, entry.Envelope()); err != nil {
				r.logger.Error().Err(err).
					Str("outbox_id", entry.ID.String()).
					Str("stream", entry.Stream).
					Msg("publish outbox entry failed")
				r.metrics.OutboxPublished.WithLabelValues("failed").Inc()
				if err := r.outboxRepo.MarkFailed(txCtx, entry.ID); err != nil {
					return err
				}
				continue
			}
			if err := r.outboxRepo.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			r.metrics.OutboxPublished.WithLabelValues("published").Inc()
		}
		return nil
	})
}
