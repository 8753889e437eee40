package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	checkoutApp "github.com/storefrontlabs/checkout/internal/application/checkout"
	"github.com/storefrontlabs/checkout/internal/bootstrap"
	"github.com/storefrontlabs/checkout/internal/controller"
	infraRedis "github.com/storefrontlabs/checkout/internal/infrastructure/redis"
	"github.com/storefrontlabs/checkout/internal/repository/postgres"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "checkout-api", "checkout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	inventoryRepo := postgres.NewInventoryRepository(app.Pool)
	voucherRepo := postgres.NewVoucherRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	tracker := infraRedis.NewCompletionTracker(app.Redis, app.Config.Saga.TrackerTTL)
	popularity := infraRedis.NewPopularityStore(app.Redis)

	// --- Use cases ---
	createOrderUC := checkoutApp.NewCreateOrderUseCase(
		orderRepo, inventoryRepo, voucherRepo, outboxRepo,
		txManager, tracker, app.Config.Saga.StuckDeadline,
		app.Metrics, app.Logger,
	)
	getOrderUC := checkoutApp.NewGetOrderUseCase(orderRepo)
	listOrdersUC := checkoutApp.NewListOrdersUseCase(orderRepo)
	popularItemsUC := checkoutApp.NewPopularItemsUseCase(inventoryRepo, popularity)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		CreateOrder:     createOrderUC,
		GetOrder:        getOrderUC,
		ListOrders:      listOrdersUC,
		PopularItems:    popularItemsUC,
		IdempotencyRepo: idempotencyRepo,
		Metrics:         app.Metrics,
		CORSConfig:      app.Config.Server.CORS,
		RateLimit:       app.Config.Server.RateLimit,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
