package stock

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
	"github.com/storefrontlabs/checkout/pkg/retry"
)

// Compensator restores stock reserved for an order whose saga failed. The
// restock retries with backoff; a restock that still fails after the budget
// is parked on the DLQ for operators instead of looping forever.
type Compensator struct {
	inventoryRepo inventory.Repository
	txManager     TransactionManager
	publisher     Publisher
	guard         OnceGuard
	retryCfg      retry.Config
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

func NewCompensator(
	inventoryRepo inventory.Repository,
	txManager TransactionManager,
	publisher Publisher,
	guard OnceGuard,
	retryCfg retry.Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Compensator {
	return &Compensator{
		inventoryRepo: inventoryRepo,
		txManager:     txManager,
		publisher:     publisher,
		guard:         guard,
		retryCfg:      retryCfg,
		metrics:       metrics,
		logger:        logger.With().Str("component", "stock_compensator").Logger(),
	}
}

// Register wires the handler into a registry for the compensation stream.
func (c *Compensator) Register(reg *event.Registry) {
	reg.Register(event.TypeCompensateStock, c.HandleCompensateStock)
}

func (c *Compensator) HandleCompensateStock(ctx context.Context, env event.Envelope) error {
	var payload event.CompensateStock
	if err := env.Decode(&payload); err != nil {
		return err
	}

	guardKey := "restock:" + env.OrderID.String()
	claimed, err := c.guard.Begin(ctx, guardKey)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	err = retry.Do(ctx, c.retryCfg, func() error {
		return c.restock(ctx, payload)
	})
	if err != nil {
		c.metrics.CompensationsTotal.WithLabelValues("stock", "failed").Inc()
		c.logger.Error().Err(err).Str("order_id", env.OrderID.String()).Msg("restock exhausted retries")
		if dlqErr := c.publisher.PublishToDLQ(ctx, env, "stock compensation failed: "+err.Error()); dlqErr != nil {
			// Keep the message unacked so the broker redelivers it.
			if undoErr := c.guard.Undo(ctx, guardKey); undoErr != nil {
				c.logger.Warn().Err(undoErr).Str("key", guardKey).Msg("once-guard undo failed")
			}
			return dlqErr
		}
		return nil
	}

	c.metrics.CompensationsTotal.WithLabelValues("stock", "success").Inc()
	c.logger.Info().Str("order_id", env.OrderID.String()).Msg("stock restored")
	return nil
}

func (c *Compensator) restock(ctx context.Context, payload event.CompensateStock) error {
	return c.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, it := range payload.Items {
			item, err := c.inventoryRepo.GetForUpdate(txCtx, it.ItemID)
			if err != nil {
				return fmt.Errorf("load item %s: %w", it.ItemID, err)
			}
			if err := item.Increase(it.Quantity); err != nil {
				return err
			}
			if err := c.inventoryRepo.Update(txCtx, item); err != nil {
				return fmt.Errorf("update item %s: %w", it.ItemID, err)
			}
		}
		return nil
	})
}
