package voucherop

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/storefrontlabs/checkout/internal/domain/voucher"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
	"github.com/storefrontlabs/checkout/pkg/retry"
)

// Compensator restores a voucher consumed by an order whose saga failed.
// Restore is conditional on the voucher being held by that order, so the
// handler is idempotent without a guard.
type Compensator struct {
	voucherRepo voucher.Repository
	publisher   Publisher
	retryCfg    retry.Config
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func NewCompensator(
	voucherRepo voucher.Repository,
	publisher Publisher,
	retryCfg retry.Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Compensator {
	return &Compensator{
		voucherRepo: voucherRepo,
		publisher:   publisher,
		retryCfg:    retryCfg,
		metrics:     metrics,
		logger:      logger.With().Str("component", "voucher_compensator").Logger(),
	}
}

// Register wires the handler into a registry for the compensation stream.
func (c *Compensator) Register(reg *event.Registry) {
	reg.Register(event.TypeCompensateVoucher, c.HandleCompensateVoucher)
}

func (c *Compensator) HandleCompensateVoucher(ctx context.Context, env event.Envelope) error {
	var payload event.CompensateVoucher
	if err := env.Decode(&payload); err != nil {
		return err
	}

	err := retry.Do(ctx, c.retryCfg, func() error {
		return c.voucherRepo.Restore(ctx, payload.VoucherID, payload.OrderID)
	})
	if err != nil {
		c.metrics.CompensationsTotal.WithLabelValues("voucher", "failed").Inc()
		c.logger.Error().Err(err).
			Str("order_id", payload.OrderID.String()).
			Str("voucher_id", payload.VoucherID.String()).
			Msg("voucher restore exhausted retries")
		if dlqErr := c.publisher.PublishToDLQ(ctx, env, "voucher compensation failed: "+err.Error()); dlqErr != nil {
			return dlqErr
		}
		return nil
	}

	c.metrics.CompensationsTotal.WithLabelValues("voucher", "success").Inc()
	c.logger.Info().
		Str("order_id", payload.OrderID.String()).
		Str("voucher_id", payload.VoucherID.String()).
		Msg("voucher restored")
	return nil
}
