package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/storefrontlabs/checkout/internal/application/checkout"
	"github.com/storefrontlabs/checkout/internal/infrastructure/config"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
	customMW "github.com/storefrontlabs/checkout/internal/middleware"
	"github.com/storefrontlabs/checkout/internal/repository/postgres"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	CreateOrder     *checkout.CreateOrderUseCase
	GetOrder        *checkout.GetOrderUseCase
	ListOrders      *checkout.ListOrdersUseCase
	PopularItems    *checkout.PopularItemsUseCase
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	CORSConfig      config.CORSConfig
	RateLimit       int
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))
	if deps.RateLimit > 0 {
		r.Use(customMW.RateLimit(deps.RateLimit))
	}

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	checkoutH := NewCheckoutController(deps.CreateOrder)
	orderH := NewOrderController(deps.GetOrder, deps.ListOrders)
	itemH := NewItemController(deps.PopularItems)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating endpoints.
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

		r.With(idempotencyMW).Post("/checkout", checkoutH.Create)

		r.Get("/orders/{id}", orderH.Get)
		r.Get("/orders", orderH.List)

		r.Get("/items/popular", itemH.Popular)
	})

	return r
}
