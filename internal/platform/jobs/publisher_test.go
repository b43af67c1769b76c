package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

type countingPublisher struct {
	calls int
	err   error
}

func (p *countingPublisher) Publish(context.Context, services.OrderEvent) error {
	p.calls++
	return p.err
}

func TestLogPublisherLogsEvent(t *testing.T) {
	var got map[string]any
	var name string
	publisher := NewLogPublisher(func(_ context.Context, event string, fields map[string]any) {
		name = event
		got = fields
	})

	err := publisher.Publish(context.Background(), services.OrderEvent{
		ID:      "evt-1",
		Type:    services.EventStatusChanged,
		OrderID: "ord-1",
		From:    "PENDING",
		To:      "CONFIRMED",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_event_published", name)
	assert.Equal(t, "CONFIRMED", got["to"])
	assert.NotContains(t, got, "amount")
}

func TestBreakerPublisherOpensAfterConsecutiveFailures(t *testing.T) {
	next := &countingPublisher{err: errors.New("sink down")}
	var transitions []string
	publisher, err := NewBreakerPublisher(next, BreakerSettings{
		FailureThreshold: 2,
		Cooldown:         time.Hour,
		Logger: func(_ context.Context, _ string, fields map[string]any) {
			transitions = append(transitions, fields["to"].(string))
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	event := services.OrderEvent{ID: "evt-1", OrderID: "ord-1"}
	assert.Error(t, publisher.Publish(ctx, event))
	assert.Error(t, publisher.Publish(ctx, event))
	assert.Equal(t, "open", publisher.State())

	err = publisher.Publish(ctx, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event sink unavailable")
	assert.Equal(t, 2, next.calls, "open breaker must not call the sink")
	assert.Equal(t, []string{"open"}, transitions)
}

func TestBreakerPublisherPassesThroughSuccess(t *testing.T) {
	next := &countingPublisher{}
	publisher, err := NewBreakerPublisher(next, BreakerSettings{})
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background(), services.OrderEvent{ID: "evt-1"}))
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, "closed", publisher.State())

	_, err = NewBreakerPublisher(nil, BreakerSettings{})
	assert.Error(t, err)
}
