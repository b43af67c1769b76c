package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

// LogPublisher writes events to the structured log. It is the sink used when no broker is configured.
type LogPublisher struct {
	logger services.Logger
}

// NewLogPublisher returns a publisher that never fails.
func NewLogPublisher(logger services.Logger) *LogPublisher {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event services.OrderEvent) error {
	fields := map[string]any{
		"eventId":     event.ID,
		"eventType":   event.Type,
		"orderId":     event.OrderID,
		"orderNumber": event.OrderNumber,
	}
	if event.From != "" {
		fields["from"] = event.From
	}
	if event.To != "" {
		fields["to"] = event.To
	}
	if event.Amount != 0 {
		fields["amount"] = event.Amount.String()
	}
	p.logger(ctx, "order_event_published", fields)
	return nil
}

// BreakerSettings tunes BreakerPublisher.
type BreakerSettings struct {
	Name             string
	FailureThreshold int
	Cooldown         time.Duration
	Logger           services.Logger
}

// BreakerPublisher stops calling a failing sink after FailureThreshold consecutive errors and
// probes it again once Cooldown has elapsed. Rejected calls return an error so the dispatcher
// keeps retrying with backoff.
type BreakerPublisher struct {
	next    services.EventPublisher
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerPublisher wraps next with a circuit breaker.
func NewBreakerPublisher(next services.EventPublisher, settings BreakerSettings) (*BreakerPublisher, error) {
	if next == nil {
		return nil, errors.New("breaker publisher: next publisher is required")
	}
	threshold := settings.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	name := settings.Name
	if name == "" {
		name = "order-events"
	}
	logger := settings.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			severity := "info"
			if to == gobreaker.StateOpen {
				severity = "warn"
			}
			logger(context.Background(), "event_sink_breaker_state", map[string]any{
				"breaker":  name,
				"from":     from.String(),
				"to":       to.String(),
				"severity": severity,
			})
		},
	})
	return &BreakerPublisher{next: next, breaker: breaker}, nil
}

func (p *BreakerPublisher) Publish(ctx context.Context, event services.OrderEvent) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.next.Publish(ctx, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("event sink unavailable: %w", err)
	}
	return err
}

// State reports the breaker state for health checks.
func (p *BreakerPublisher) State() string {
	return p.breaker.State().String()
}
