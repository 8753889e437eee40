package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/storefrontlabs/checkout/internal/application/analytics"
	"github.com/storefrontlabs/checkout/internal/application/fulfillment"
	"github.com/storefrontlabs/checkout/internal/application/relay"
	"github.com/storefrontlabs/checkout/internal/application/stock"
	"github.com/storefrontlabs/checkout/internal/application/voucherop"
	"github.com/storefrontlabs/checkout/internal/bootstrap"
	"github.com/storefrontlabs/checkout/internal/event"
	infraRedis "github.com/storefrontlabs/checkout/internal/infrastructure/redis"
	"github.com/storefrontlabs/checkout/internal/repository/postgres"
	"github.com/storefrontlabs/checkout/pkg/retry"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "checkout-worker", "checkout_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	inventoryRepo := postgres.NewInventoryRepository(app.Pool)
	voucherRepo := postgres.NewVoucherRepository(app.Pool)
	walletRepo := postgres.NewWalletRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Redis infrastructure ---
	sagaCfg := app.Config.Saga
	producer := infraRedis.NewStreamProducer(app.Redis)
	tracker := infraRedis.NewCompletionTracker(app.Redis, sagaCfg.TrackerTTL)
	locker := infraRedis.NewScopedLocker(app.Redis, sagaCfg.LockTTL)
	guard := infraRedis.NewOnceGuard(app.Redis, sagaCfg.TrackerTTL)
	popularity := infraRedis.NewPopularityStore(app.Redis)

	compensationRetry := retry.Config{
		MaxAttempts:  uint(sagaCfg.CompensationMaxAttempts),
		InitialDelay: sagaCfg.CompensationRetryDelay,
		MaxDelay:     sagaCfg.CompensationRetryDelay * 8,
		Multiplier:   2.0,
	}

	// --- Saga components ---
	paymentStep := fulfillment.NewWalletPaymentStep(walletRepo, locker)
	coordinator := fulfillment.NewCoordinator(
		orderRepo, tracker, producer, txManager, paymentStep, app.Metrics, app.Logger,
	)
	analyticsClient := analytics.NewClient(producer, app.Config.Analytics, app.Metrics, app.Logger)
	postCompletion := fulfillment.NewPostCompletion(
		orderRepo, popularity, analyticsClient, guard, app.Metrics, app.Logger,
	)
	reconciler := fulfillment.NewReconciler(
		orderRepo, tracker, producer, sagaCfg.ReconcileInterval, app.Metrics, app.Logger,
	)
	stockReserver := stock.NewReserver(
		inventoryRepo, txManager, producer, locker, guard, app.Metrics, app.Logger,
	)
	stockCompensator := stock.NewCompensator(
		inventoryRepo, txManager, producer, guard, compensationRetry, app.Metrics, app.Logger,
	)
	voucherConsumer := voucherop.NewConsumer(voucherRepo, producer, app.Metrics, app.Logger)
	voucherCompensator := voucherop.NewCompensator(
		voucherRepo, producer, compensationRetry, app.Metrics, app.Logger,
	)
	outboxRelay := relay.New(
		outboxRepo, txManager, producer,
		app.Config.Worker.OutboxPollInterval, int(app.Config.Worker.BatchSize),
		app.Metrics, app.Logger,
	)

	// --- Stream registries ---
	// Each stream dispatches through its own registry; the outcome and
	// payment streams share the coordinator's.
	coordinatorRegistry := event.NewRegistry()
	coordinator.Register(coordinatorRegistry)

	reservationRegistry := event.NewRegistry()
	stockReserver.Register(reservationRegistry)

	voucherRegistry := event.NewRegistry()
	voucherConsumer.Register(voucherRegistry)

	completedRegistry := event.NewRegistry()
	postCompletion.Register(completedRegistry)

	compensationRegistry := event.NewRegistry()
	stockCompensator.Register(compensationRegistry)
	voucherCompensator.Register(compensationRegistry)

	streams := []struct {
		name     string
		registry *event.Registry
	}{
		{event.StreamReservation, reservationRegistry},
		{event.StreamVoucher, voucherRegistry},
		{event.StreamOutcome, coordinatorRegistry},
		{event.StreamPayment, coordinatorRegistry},
		{event.StreamCompleted, completedRegistry},
		{event.StreamCompensation, compensationRegistry},
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	workerCfg := app.Config.Worker
	for _, s := range streams {
		consumer := infraRedis.NewStreamConsumer(
			app.Redis, s.name, workerCfg.ConsumerGroup, app.Config.InstanceID,
			workerCfg.BatchSize, workerCfg.BlockDuration,
		)
		if err := consumer.CreateGroup(ctx); err != nil {
			app.Logger.Error().Err(err).Str("stream", s.name).Msg("Failed to create consumer group")
			os.Exit(1)
		}
		registry := s.registry
		g.Go(func() error {
			return runConsumer(gCtx, app, consumer, registry)
		})
	}

	g.Go(func() error {
		return outboxRelay.Run(gCtx)
	})

	g.Go(func() error {
		return reconciler.Run(gCtx)
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	app.Logger.Info().
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runConsumer reads one stream and dispatches every decoded envelope through
// the registry. A handler error leaves the message unacknowledged for
// redelivery; undecodable and unhandled messages are acked so they don't
// wedge the group.
func runConsumer(
	ctx context.Context,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	registry *event.Registry,
) error {
	stream := consumer.Stream()
	logger := app.Logger.With().Str("stream", stream).Logger()
	lastReclaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Periodically take over deliveries a dead consumer left pending.
		if time.Since(lastReclaim) >= app.Config.Worker.ReclaimInterval {
			lastReclaim = time.Now()
			msgs, err := consumer.ReclaimStale(ctx, app.Config.Worker.ReclaimMinIdle)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to reclaim stale messages")
			}
			for _, msg := range msgs {
				handleMessage(ctx, logger, app, consumer, registry, stream, msg)
			}
		}

		streams, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				handleMessage(ctx, logger, app, consumer, registry, stream, msg)
			}
		}
	}
}

func handleMessage(
	ctx context.Context,
	logger zerolog.Logger,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	registry *event.Registry,
	stream string,
	msg goredis.XMessage,
) {
	env, err := infraRedis.DecodeEnvelope(msg)
	if err != nil {
		logger.Error().Err(err).Str("message_id", msg.ID).Msg("Undecodable message, acking")
		app.Metrics.WorkerMessagesProcessed.WithLabelValues(stream, "invalid").Inc()
		consumer.Ack(ctx, msg.ID)
		return
	}

	start := time.Now()
	err = registry.Dispatch(ctx, env)
	app.Metrics.WorkerProcessingDuration.WithLabelValues(stream).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, event.ErrUnhandledType):
		logger.Warn().Str("event_type", string(env.Type)).Msg("No handler for event type, acking")
		app.Metrics.WorkerMessagesProcessed.WithLabelValues(stream, "skipped").Inc()
		consumer.Ack(ctx, msg.ID)
	case err != nil:
		logger.Error().Err(err).
			Str("event_type", string(env.Type)).
			Str("order_id", env.OrderID.String()).
			Msg("Handler failed, leaving message for redelivery")
		app.Metrics.WorkerMessagesProcessed.WithLabelValues(stream, "error").Inc()
	default:
		app.Metrics.WorkerMessagesProcessed.WithLabelValues(stream, "success").Inc()
		if ackErr := consumer.Ack(ctx, msg.ID); ackErr != nil {
			logger.Error().Err(ackErr).Str("message_id", msg.ID).Msg("Failed to ack message")
		}
	}
}
