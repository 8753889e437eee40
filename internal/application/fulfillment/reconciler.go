package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/order"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
)

// Reconciler sweeps the tracker's deadline index for sagas that never reached
// a terminal state. Stuck orders are surfaced for manual compensation — an
// error log, a metric, and a DLQ entry — never auto-completed.
type Reconciler struct {
	orderRepo order.Repository
	deadlines DeadlineIndex
	publisher Publisher
	interval  time.Duration
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewReconciler(
	orderRepo order.Repository,
	deadlines DeadlineIndex,
	publisher Publisher,
	interval time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		orderRepo: orderRepo,
		deadlines: deadlines,
		publisher: publisher,
		interval:  interval,
		metrics:   metrics,
		logger:    logger.With().Str("component", "reconciler").Logger(),
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx, time.Now()); err != nil {
				r.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep processes every order whose deadline passed before now.
func (r *Reconciler) Sweep(ctx context.Context, now time.Time) error {
	due, err := r.deadlines.Due(ctx, now)
	if err != nil {
		return err
	}

	for _, orderID := range due {
		o, err := r.orderRepo.GetByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, domainErrors.ErrOrderNotFound) {
				// Nothing to reconcile; drop the index entry.
				if err := r.deadlines.Remove(ctx, orderID); err != nil {
					r.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("remove deadline failed")
				}
				continue
			}
			return fmt.Errorf("load order %s: %w", orderID, err)
		}

		if o.IsTerminal() {
			if err := r.deadlines.Remove(ctx, orderID); err != nil {
				r.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("remove deadline failed")
			}
			continue
		}

		r.logger.Error().Str("order_id", orderID.String()).Msg("saga stuck past deadline")
		r.metrics.StuckSagasTotal.Inc()

		env, err := event.NewEnvelope(orderID, event.TypeOrderStuck, event.OrderStuck{OrderID: orderID, ExpiredAt: now})
		if err != nil {
			return err
		}
		if err := r.publisher.PublishToDLQ(ctx, env, "saga deadline exceeded"); err != nil {
			return fmt.Errorf("publish stuck order %s: %w", orderID, err)
		}

		// Flag once; operators pick it up from the DLQ.
		if err := r.deadlines.Remove(ctx, orderID); err != nil {
			r.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("remove deadline failed")
		}
	}
	return nil
}
