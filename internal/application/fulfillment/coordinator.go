package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/order"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
)

// Coordinator drives each order's fulfillment saga from branch outcomes to a
// terminal state. Every handler tolerates redelivery: terminal orders are
// left alone, the tracker claims the payment trigger exactly once, and
// compensations are once-guarded downstream.
type Coordinator struct {
	orderRepo order.Repository
	tracker   CompletionTracker
	publisher Publisher
	txManager TransactionManager
	payment   PaymentStep
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewCoordinator(
	orderRepo order.Repository,
	tracker CompletionTracker,
	publisher Publisher,
	txManager TransactionManager,
	payment PaymentStep,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		orderRepo: orderRepo,
		tracker:   tracker,
		publisher: publisher,
		txManager: txManager,
		payment:   payment,
		metrics:   metrics,
		logger:    logger.With().Str("component", "coordinator").Logger(),
	}
}

// Register wires the coordinator's handlers into a registry. The outcome and
// payment streams dispatch through it.
func (c *Coordinator) Register(r *event.Registry) {
	r.Register(event.TypeReservationSucceeded, c.HandleReservationSucceeded)
	r.Register(event.TypeReservationFailed, c.HandleReservationFailed)
	r.Register(event.TypeVoucherConsumed, c.HandleVoucherConsumed)
	r.Register(event.TypeVoucherFailed, c.HandleVoucherFailed)
	r.Register(event.TypePaymentRequested, c.HandlePaymentRequested)
}

// HandleReservationSucceeded records the reservation branch outcome. If the
// order already failed (the voucher branch lost the race), the reservation is
// rolled back immediately; otherwise the tracker join decides whether payment
// starts.
func (c *Coordinator) HandleReservationSucceeded(ctx context.Context, env event.Envelope) error {
	o, err := c.orderRepo.GetByID(ctx, env.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	if o.Status == order.StatusFailed {
		// Branch landed after the sibling already failed the order.
		return c.emitStockCompensation(ctx, o)
	}
	if o.Status == order.StatusPaid {
		return nil
	}

	ready, err := c.tracker.MarkReservationDone(ctx, o.ID)
	if err != nil {
		return err
	}
	c.metrics.SagaEventsTotal.WithLabelValues(string(env.Type), "ok").Inc()
	if !ready {
		return c.compensateIfFailed(ctx, o.ID, c.emitStockCompensation)
	}
	return c.requestPayment(ctx, o)
}

// HandleVoucherConsumed is the voucher-branch mirror of
// HandleReservationSucceeded.
func (c *Coordinator) HandleVoucherConsumed(ctx context.Context, env event.Envelope) error {
	o, err := c.orderRepo.GetByID(ctx, env.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	if o.Status == order.StatusFailed {
		return c.emitVoucherCompensation(ctx, o)
	}
	if o.Status == order.StatusPaid {
		return nil
	}

	ready, err := c.tracker.MarkVoucherDone(ctx, o.ID)
	if err != nil {
		return err
	}
	c.metrics.SagaEventsTotal.WithLabelValues(string(env.Type), "ok").Inc()
	if !ready {
		return c.compensateIfFailed(ctx, o.ID, c.emitVoucherCompensation)
	}
	return c.requestPayment(ctx, o)
}

// HandleReservationFailed fails the order and rolls back the voucher branch
// if it had already succeeded.
func (c *Coordinator) HandleReservationFailed(ctx context.Context, env event.Envelope) error {
	var payload event.ReservationFailed
	if err := env.Decode(&payload); err != nil {
		return err
	}
	return c.failOrder(ctx, env.OrderID, payload.Reason, func(ctx context.Context, o *order.Order) error {
		voucherDone, err := c.tracker.VoucherDone(ctx, o.ID)
		if err != nil {
			return err
		}
		if voucherDone {
			// No-op for orders without a voucher; the flag was pre-set.
			return c.emitVoucherCompensation(ctx, o)
		}
		// Voucher branch still in flight; HandleVoucherConsumed compensates
		// when it lands on the failed order.
		return nil
	})
}

// HandleVoucherFailed fails the order and rolls back the reservation branch
// if it had already succeeded.
func (c *Coordinator) HandleVoucherFailed(ctx context.Context, env event.Envelope) error {
	var payload event.VoucherFailed
	if err := env.Decode(&payload); err != nil {
		return err
	}
	return c.failOrder(ctx, env.OrderID, payload.Reason, func(ctx context.Context, o *order.Order) error {
		reservationDone, err := c.tracker.ReservationDone(ctx, o.ID)
		if err != nil {
			return err
		}
		if reservationDone {
			return c.emitStockCompensation(ctx, o)
		}
		return nil
	})
}

// HandlePaymentRequested performs the single wallet debit attempt. Success
// transitions the order to Paid and emits order-completed; failure fails the
// order and rolls back both branches.
func (c *Coordinator) HandlePaymentRequested(ctx context.Context, env event.Envelope) error {
	var payload event.PaymentRequested
	if err := env.Decode(&payload); err != nil {
		return err
	}

	start := time.Now()
	var paid *order.Order
	err := c.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		o, err := c.orderRepo.GetForUpdate(txCtx, env.OrderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if o.IsTerminal() {
			return nil
		}

		if err := c.payment.Debit(txCtx, o.UserID, o.FinalAmount); err != nil {
			return err
		}
		if err := o.MarkPaid(); err != nil {
			return err
		}
		if err := c.orderRepo.Update(txCtx, o); err != nil {
			return err
		}
		paid = o
		return nil
	})
	if err != nil {
		if !isPaymentDeclined(err) {
			// Infrastructure failure around the debit; redeliver rather than
			// terminally failing the order.
			return fmt.Errorf("payment attempt: %w", err)
		}
		c.metrics.PaymentDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		c.logger.Warn().Err(err).Str("order_id", env.OrderID.String()).Msg("payment declined")
		return c.failAfterPayment(ctx, env.OrderID, err.Error())
	}
	if paid == nil {
		// Already terminal; redelivered payment request.
		return nil
	}

	c.metrics.PaymentDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	c.metrics.OrdersTotal.WithLabelValues(string(order.StatusPaid)).Inc()
	c.metrics.OrderAmount.WithLabelValues(string(order.StatusPaid)).Observe(float64(paid.FinalAmount))

	if err := c.tracker.Clear(ctx, paid.ID); err != nil {
		c.logger.Warn().Err(err).Str("order_id", paid.ID.String()).Msg("clear tracker failed")
	}

	completedEnv, err := event.NewEnvelope(paid.ID, event.TypeOrderCompleted, event.OrderCompleted{OrderID: paid.ID})
	if err != nil {
		return err
	}
	if err := c.publisher.Publish(ctx, event.StreamCompleted, completedEnv); err != nil {
		return fmt.Errorf("publish order completed: %w", err)
	}

	c.logger.Info().Str("order_id", paid.ID.String()).Int64("amount", paid.FinalAmount).Msg("order paid")
	return nil
}

// isPaymentDeclined separates a business rejection of the debit from
// everything else. Only declines terminate the order; transient errors are
// surfaced so the broker redelivers the payment request.
func isPaymentDeclined(err error) bool {
	return errors.Is(err, domainErrors.ErrInsufficientBalance) ||
		errors.Is(err, domainErrors.ErrWalletNotFound)
}

// requestPayment emits the payment request after the join completes. The
// tracker's one-shot claim guarantees this runs once per order.
func (c *Coordinator) requestPayment(ctx context.Context, o *order.Order) error {
	env, err := event.NewEnvelope(o.ID, event.TypePaymentRequested, event.PaymentRequested{
		OrderID:     o.ID,
		UserID:      o.UserID,
		FinalAmount: o.FinalAmount,
	})
	if err != nil {
		return err
	}
	if err := c.publisher.Publish(ctx, event.StreamPayment, env); err != nil {
		return fmt.Errorf("publish payment request: %w", err)
	}
	c.logger.Info().Str("order_id", o.ID.String()).Msg("both branches done, payment requested")
	return nil
}

// compensateIfFailed re-reads the order after a mark that did not win the
// join. A sibling failure can commit between a success handler's status check
// and its mark: the failure handler reads this branch's flag as still unset,
// skips the compensation, and clears the tracker, after which the mark
// recreates the hash and can never report ready. The Failed commit
// happens-before the failure handler's flag read, so this re-read observes it
// whenever that flag read missed the mark — one of the two ends always emits.
// The overlapping case emits twice; the compensation handlers are idempotent.
func (c *Coordinator) compensateIfFailed(ctx context.Context, orderID uuid.UUID, emit func(context.Context, *order.Order) error) error {
	o, err := c.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("reload order: %w", err)
	}
	if o.Status != order.StatusFailed {
		return nil
	}
	if err := emit(ctx, o); err != nil {
		return err
	}
	// Drop the hash the mark recreated after the failure handler's clear.
	if err := c.tracker.Clear(ctx, o.ID); err != nil {
		c.logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("clear tracker failed")
	}
	return nil
}

// failOrder transitions the order to Failed under a row lock and then runs
// the sibling compensation decision. Terminal orders are left untouched.
func (c *Coordinator) failOrder(ctx context.Context, orderID uuid.UUID, reason string, compensate func(context.Context, *order.Order) error) error {
	var failed *order.Order
	err := c.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		o, err := c.orderRepo.GetForUpdate(txCtx, orderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if o.IsTerminal() {
			return nil
		}
		if err := o.MarkFailed(reason); err != nil {
			return err
		}
		if err := c.orderRepo.Update(txCtx, o); err != nil {
			return err
		}
		failed = o
		return nil
	})
	if err != nil {
		return err
	}
	if failed == nil {
		return nil
	}

	c.metrics.OrdersTotal.WithLabelValues(string(order.StatusFailed)).Inc()
	c.logger.Warn().Str("order_id", failed.ID.String()).Str("reason", reason).Msg("order failed")

	if err := compensate(ctx, failed); err != nil {
		return err
	}
	if err := c.tracker.Clear(ctx, failed.ID); err != nil {
		c.logger.Warn().Err(err).Str("order_id", failed.ID.String()).Msg("clear tracker failed")
	}
	return nil
}

// failAfterPayment handles a failed debit: both branches succeeded, so both
// get compensated.
func (c *Coordinator) failAfterPayment(ctx context.Context, orderID uuid.UUID, reason string) error {
	return c.failOrder(ctx, orderID, reason, func(ctx context.Context, o *order.Order) error {
		if err := c.emitStockCompensation(ctx, o); err != nil {
			return err
		}
		return c.emitVoucherCompensation(ctx, o)
	})
}

func (c *Coordinator) emitStockCompensation(ctx context.Context, o *order.Order) error {
	lines, err := c.orderRepo.ListLines(ctx, o.ID)
	if err != nil {
		return err
	}
	items := make([]event.ItemQuantity, 0, len(lines))
	for itemID, qty := range order.ItemQuantities(lines) {
		items = append(items, event.ItemQuantity{ItemID: itemID, Quantity: qty})
	}

	env, err := event.NewEnvelope(o.ID, event.TypeCompensateStock, event.CompensateStock{OrderID: o.ID, Items: items})
	if err != nil {
		return err
	}
	if err := c.publisher.Publish(ctx, event.StreamCompensation, env); err != nil {
		return fmt.Errorf("publish stock compensation: %w", err)
	}
	c.logger.Info().Str("order_id", o.ID.String()).Msg("stock compensation requested")
	return nil
}

func (c *Coordinator) emitVoucherCompensation(ctx context.Context, o *order.Order) error {
	lines, err := c.orderRepo.ListLines(ctx, o.ID)
	if err != nil {
		return err
	}
	voucherID := order.VoucherID(lines)
	if voucherID == nil {
		return nil
	}

	env, err := event.NewEnvelope(o.ID, event.TypeCompensateVoucher, event.CompensateVoucher{OrderID: o.ID, VoucherID: *voucherID})
	if err != nil {
		return err
	}
	if err := c.publisher.Publish(ctx, event.StreamCompensation, env); err != nil {
		return fmt.Errorf("publish voucher compensation: %w", err)
	}
	c.logger.Info().Str("order_id", o.ID.String()).Str("voucher_id", voucherID.String()).Msg("voucher compensation requested")
	return nil
}
