package analytics

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/config"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
	"github.com/storefrontlabs/checkout/pkg/retry"
)

// Publisher emits envelopes onto a stream.
type Publisher interface {
	Publish(ctx context.Context, stream string, env event.Envelope) error
}

// Client ships completed-order data to the analytics stream. The data
// platform is outside our availability budget, so every publish goes through
// a circuit breaker with retries; callers treat failures as best effort.
type Client struct {
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]
	retryCfg  retry.Config
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewClient(publisher Publisher, cfg config.AnalyticsConfig, metrics *observability.Metrics, logger zerolog.Logger) *Client {
	c := &Client{
		publisher: publisher,
		retryCfg: retry.Config{
			MaxAttempts:  uint(cfg.MaxRetries),
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     cfg.RetryDelay * 8,
			Multiplier:   2.0,
		},
		metrics: metrics,
		logger:  logger.With().Str("component", "analytics").Logger(),
	}

	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "analytics",
		MaxRequests: 5,
		Timeout:     cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.CircuitBreakerThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("analytics breaker state change")
		},
	})
	return c
}

// PublishOrderData sends one completed order to the analytics stream.
func (c *Client) PublishOrderData(ctx context.Context, data event.OrderData) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, retry.Do(ctx, c.retryCfg, func() error {
			env, err := event.NewEnvelope(data.OrderID, event.TypeOrderData, data)
			if err != nil {
				return err
			}
			return c.publisher.Publish(ctx, event.StreamAnalytics, env)
		})
	})
	if err != nil {
		c.metrics.CircuitBreakerRequests.WithLabelValues("analytics", "failure").Inc()
		return fmt.Errorf("publish order data: %w", err)
	}
	c.metrics.CircuitBreakerRequests.WithLabelValues("analytics", "success").Inc()
	return nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
