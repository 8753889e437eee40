package voucherop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/voucher"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
)

// Consumer handles voucher requests: it consumes the voucher with a single
// conditional update and reports the outcome to the coordinator. The
// conditional update is the idempotency mechanism; a redelivered request
// finds the voucher already held by the same order and re-emits the outcome.
type Consumer struct {
	voucherRepo voucher.Repository
	publisher   Publisher
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func NewConsumer(
	voucherRepo voucher.Repository,
	publisher Publisher,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Consumer {
	return &Consumer{
		voucherRepo: voucherRepo,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger.With().Str("component", "voucher_consumer").Logger(),
	}
}

// Register wires the handler into a registry for the voucher stream.
func (c *Consumer) Register(reg *event.Registry) {
	reg.Register(event.TypeVoucherRequested, c.HandleVoucherRequested)
}

func (c *Consumer) HandleVoucherRequested(ctx context.Context, env event.Envelope) error {
	var payload event.VoucherRequested
	if err := env.Decode(&payload); err != nil {
		return err
	}

	used, err := c.voucherRepo.MarkUsed(ctx, payload.VoucherID, payload.OrderID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrVoucherNotFound) {
			return c.publishFailed(ctx, payload, "voucher not found")
		}
		return fmt.Errorf("consume voucher: %w", err)
	}
	if used {
		c.logger.Info().
			Str("order_id", payload.OrderID.String()).
			Str("voucher_id", payload.VoucherID.String()).
			Msg("voucher consumed")
		return c.publishConsumed(ctx, payload)
	}

	// The conditional update matched nothing. Load the voucher to tell a
	// redelivered request apart from a genuine conflict.
	v, err := c.voucherRepo.GetByID(ctx, payload.VoucherID)
	if err != nil {
		return fmt.Errorf("load voucher: %w", err)
	}
	if v.Status == voucher.StatusUsed && v.UsedOrderID != nil && *v.UsedOrderID == payload.OrderID {
		// This order already holds it; the outcome just needs re-emitting.
		return c.publishConsumed(ctx, payload)
	}
	if v.IsExpired(time.Now()) {
		return c.publishFailed(ctx, payload, "voucher expired")
	}
	return c.publishFailed(ctx, payload, "voucher already used")
}

func (c *Consumer) publishConsumed(ctx context.Context, payload event.VoucherRequested) error {
	env, err := event.NewEnvelope(payload.OrderID, event.TypeVoucherConsumed,
		event.VoucherConsumed{OrderID: payload.OrderID})
	if err != nil {
		return err
	}
	if err := c.publisher.Publish(ctx, event.StreamOutcome, env); err != nil {
		return fmt.Errorf("publish voucher outcome: %w", err)
	}
	c.metrics.SagaEventsTotal.WithLabelValues(string(event.TypeVoucherConsumed), "ok").Inc()
	return nil
}

func (c *Consumer) publishFailed(ctx context.Context, payload event.VoucherRequested, reason string) error {
	env, err := event.NewEnvelope(payload.OrderID, event.TypeVoucherFailed,
		event.VoucherFailed{OrderID: payload.OrderID, Reason: reason})
	if err != nil {
		return err
	}
	if err := c.publisher.Publish(ctx, event.StreamOutcome, env); err != nil {
		return fmt.Errorf("publish voucher outcome: %w", err)
	}
	c.logger.Warn().
		Str("order_id", payload.OrderID.String()).
		Str("voucher_id", payload.VoucherID.String()).
		Str("reason", reason).
		Msg("voucher rejected")
	c.metrics.SagaEventsTotal.WithLabelValues(string(event.TypeVoucherFailed), "ok").Inc()
	return nil
}
