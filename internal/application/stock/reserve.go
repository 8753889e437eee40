package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
	"github.com/storefrontlabs/checkout/internal/lock"
)

// Reserver handles reservation requests: it decrements stock for every item
// in the order, all or nothing, and reports the outcome to the coordinator.
type Reserver struct {
	inventoryRepo inventory.Repository
	txManager     TransactionManager
	publisher     Publisher
	locker        lock.Locker
	guard         OnceGuard
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

func NewReserver(
	inventoryRepo inventory.Repository,
	txManager TransactionManager,
	publisher Publisher,
	locker lock.Locker,
	guard OnceGuard,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Reserver {
	return &Reserver{
		inventoryRepo: inventoryRepo,
		txManager:     txManager,
		publisher:     publisher,
		locker:        locker,
		guard:         guard,
		metrics:       metrics,
		logger:        logger.With().Str("component", "stock_reserver").Logger(),
	}
}

// Register wires the handler into a registry for the reservation stream.
func (r *Reserver) Register(reg *event.Registry) {
	reg.Register(event.TypeReservationRequested, r.HandleReservationRequested)
}

// HandleReservationRequested reserves stock for the order. The once-guard
// makes redelivery safe: a claim that already happened means the outcome was
// already published. Any failure before the outcome lands releases the guard
// so the redelivery retries the whole reservation.
func (r *Reserver) HandleReservationRequested(ctx context.Context, env event.Envelope) error {
	var payload event.ReservationRequested
	if err := env.Decode(&payload); err != nil {
		return err
	}

	guardKey := "reserve:" + env.OrderID.String()
	claimed, err := r.guard.Begin(ctx, guardKey)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	reserveErr := r.reserve(ctx, payload)
	if reserveErr != nil && !errors.Is(reserveErr, domainErrors.ErrInsufficientStock) {
		r.undoGuard(ctx, guardKey)
		return reserveErr
	}

	var outcome event.Envelope
	if reserveErr != nil {
		outcome, err = event.NewEnvelope(env.OrderID, event.TypeReservationFailed,
			event.ReservationFailed{OrderID: env.OrderID, Reason: "insufficient stock"})
	} else {
		outcome, err = event.NewEnvelope(env.OrderID, event.TypeReservationSucceeded,
			event.ReservationSucceeded{OrderID: env.OrderID})
	}
	if err == nil {
		if pubErr := r.publisher.Publish(ctx, event.StreamOutcome, outcome); pubErr != nil {
			err = fmt.Errorf("publish reservation outcome: %w", pubErr)
		}
	}
	if err != nil {
		// The decrement already committed, so it must be unwound before the
		// guard opens the door to a retry. If the unwind fails too, the guard
		// stays claimed: the saga goes stuck and the reconciler flags it
		// instead of the retry double-reserving.
		if reserveErr == nil {
			if rbErr := r.unreserve(ctx, payload); rbErr != nil {
				r.logger.Error().Err(rbErr).Str("order_id", env.OrderID.String()).Msg("reservation rollback failed")
				return err
			}
		}
		r.undoGuard(ctx, guardKey)
		return err
	}

	if reserveErr != nil {
		r.logger.Warn().Str("order_id", env.OrderID.String()).Msg("reservation rejected, insufficient stock")
	} else {
		r.logger.Info().Str("order_id", env.OrderID.String()).Msg("stock reserved")
	}
	r.metrics.SagaEventsTotal.WithLabelValues(string(outcome.Type), "ok").Inc()
	return nil
}

// reserve decrements every item under per-item locks in one transaction.
// Items lock in sorted order so two orders contending on overlapping item
// sets cannot deadlock.
func (r *Reserver) reserve(ctx context.Context, payload event.ReservationRequested) error {
	items := append([]event.ItemQuantity(nil), payload.Items...)
	sort.Slice(items, func(i, j int) bool {
		return items[i].ItemID.String() < items[j].ItemID.String()
	})

	releases := make([]lock.ReleaseFunc, 0, len(items))
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](ctx); err != nil {
				r.logger.Warn().Err(err).Msg("release item lock failed")
			}
		}
	}()
	for _, it := range items {
		release, err := r.locker.Acquire(ctx, "item:"+it.ItemID.String())
		if err != nil {
			return err
		}
		releases = append(releases, release)
	}

	return r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		loaded := make([]*inventory.Item, 0, len(items))
		for _, it := range items {
			item, err := r.inventoryRepo.GetForUpdate(txCtx, it.ItemID)
			if err != nil {
				return fmt.Errorf("load item %s: %w", it.ItemID, err)
			}
			if !item.HasEnough(it.Quantity) {
				return domainErrors.ErrInsufficientStock
			}
			loaded = append(loaded, item)
		}
		for i, it := range items {
			if err := loaded[i].Decrease(it.Quantity); err != nil {
				return err
			}
			if err := r.inventoryRepo.Update(txCtx, loaded[i]); err != nil {
				return fmt.Errorf("update item %s: %w", it.ItemID, err)
			}
		}
		return nil
	})
}

// unreserve restores quantities decremented by a reservation whose outcome
// never reached the broker.
func (r *Reserver) unreserve(ctx context.Context, payload event.ReservationRequested) error {
	return r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, it := range payload.Items {
			item, err := r.inventoryRepo.GetForUpdate(txCtx, it.ItemID)
			if err != nil {
				return fmt.Errorf("load item %s: %w", it.ItemID, err)
			}
			if err := item.Increase(it.Quantity); err != nil {
				return err
			}
			if err := r.inventoryRepo.Update(txCtx, item); err != nil {
				return fmt.Errorf("update item %s: %w", it.ItemID, err)
			}
		}
		return nil
	})
}

func (r *Reserver) undoGuard(ctx context.Context, key string) {
	if err := r.guard.Undo(ctx, key); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("once-guard undo failed")
	}
}
