package fulfillment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/storefrontlabs/checkout/internal/domain/order"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
)

// PostCompletion runs the effects that follow a paid order: popularity score
// bumps and the analytics publish. A once-guard keyed by order id keeps
// redeliveries from double-counting sales.
type PostCompletion struct {
	orderRepo  order.Repository
	popularity PopularityStore
	analytics  AnalyticsPublisher
	guard      OnceGuard
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewPostCompletion(
	orderRepo order.Repository,
	popularity PopularityStore,
	analytics AnalyticsPublisher,
	guard OnceGuard,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PostCompletion {
	return &PostCompletion{
		orderRepo:  orderRepo,
		popularity: popularity,
		analytics:  analytics,
		guard:      guard,
		metrics:    metrics,
		logger:     logger.With().Str("component", "post_completion").Logger(),
	}
}

// Register wires the handler into a registry for the completed stream.
func (p *PostCompletion) Register(r *event.Registry) {
	r.Register(event.TypeOrderCompleted, p.HandleOrderCompleted)
}

func (p *PostCompletion) HandleOrderCompleted(ctx context.Context, env event.Envelope) error {
	o, err := p.orderRepo.GetByID(ctx, env.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if o.Status != order.StatusPaid {
		// Completion events only follow a Paid transition; anything else is a
		// stale redelivery.
		return nil
	}

	claimed, err := p.guard.Begin(ctx, "post:"+o.ID.String())
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	lines, err := p.orderRepo.ListLines(ctx, o.ID)
	if err != nil {
		p.undoGuard(ctx, o.ID.String())
		return err
	}

	if err := p.popularity.RecordSales(ctx, order.ItemQuantities(lines)); err != nil {
		p.undoGuard(ctx, o.ID.String())
		return fmt.Errorf("record sales: %w", err)
	}

	// Analytics is best effort: a down data platform must not block or fail
	// the completed order.
	data := event.OrderData{OrderID: o.ID, UserID: o.UserID, FinalAmount: o.FinalAmount}
	if o.PaidAt != nil {
		data.PaidAt = *o.PaidAt
	}
	if err := p.analytics.PublishOrderData(ctx, data); err != nil {
		p.logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("analytics publish failed")
	}

	p.metrics.SagaEventsTotal.WithLabelValues(string(event.TypeOrderCompleted), "ok").Inc()
	return nil
}

func (p *PostCompletion) undoGuard(ctx context.Context, orderID string) {
	if err := p.guard.Undo(ctx, "post:"+orderID); err != nil {
		p.logger.Warn().Err(err).Str("order_id", orderID).Msg("once-guard undo failed")
	}
}
