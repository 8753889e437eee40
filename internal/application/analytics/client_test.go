package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/storefrontlabs/checkout/internal/application/analytics"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/config"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
	"github.com/storefrontlabs/checkout/internal/testutil"
)

func newAnalyticsClient(publisher *testutil.MockPublisher, threshold int) *analytics.Client {
	cfg := config.AnalyticsConfig{
		MaxRetries:              2,
		RetryDelay:              time.Millisecond,
		CircuitBreakerThreshold: threshold,
		CircuitBreakerTimeout:   50 * time.Millisecond,
	}
	return analytics.NewClient(publisher, cfg,
		observability.NewMetrics("test", prometheus.NewRegistry()), zerolog.Nop())
}

func TestAnalyticsClient_PublishesOrderData(t *testing.T) {
	ctx := context.Background()
	publisher := testutil.NewMockPublisher()
	client := newAnalyticsClient(publisher, 5)

	data := event.OrderData{OrderID: uuid.New(), UserID: uuid.New(), FinalAmount: 35_000, PaidAt: time.Now()}
	if err := client.PublishOrderData(ctx, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	published := publisher.Published(event.StreamAnalytics)
	if len(published) != 1 || published[0].Type != event.TypeOrderData {
		t.Fatalf("expected one order.data event, got %v", published)
	}
	var got event.OrderData
	if err := published[0].Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.FinalAmount != 35_000 {
		t.Errorf("wrong amount published: %d", got.FinalAmount)
	}
}

func TestAnalyticsClient_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	publisher := testutil.NewMockPublisher()
	client := newAnalyticsClient(publisher, 5)

	attempts := 0
	publisher.PublishFunc = func(ctx context.Context, stream string, env event.Envelope) error {
		attempts++
		if attempts < 2 {
			return errors.New("stream unavailable")
		}
		return nil
	}

	if err := client.PublishOrderData(ctx, event.OrderData{OrderID: uuid.New()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestAnalyticsClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	publisher := testutil.NewMockPublisher()
	client := newAnalyticsClient(publisher, 2)

	attempts := 0
	publisher.PublishFunc = func(ctx context.Context, stream string, env event.Envelope) error {
		attempts++
		return errors.New("stream unavailable")
	}

	// Two failed calls trip the breaker.
	for i := 0; i < 2; i++ {
		if err := client.PublishOrderData(ctx, event.OrderData{OrderID: uuid.New()}); err == nil {
			t.Fatal("expected error")
		}
	}

	attemptsBefore := attempts
	if err := client.PublishOrderData(ctx, event.OrderData{OrderID: uuid.New()}); err == nil {
		t.Fatal("expected open-breaker error")
	}
	if attempts != attemptsBefore {
		t.Errorf("open breaker must short-circuit without touching the stream, attempts went %d -> %d", attemptsBefore, attempts)
	}
}
