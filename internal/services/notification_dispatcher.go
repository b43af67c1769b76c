package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event types emitted after committed order mutations.
const (
	EventOrderCreated         = "order.created"
	EventStatusChanged        = "order.status_changed"
	EventPaymentStatusChanged = "order.payment_status_changed"
	EventRefundProcessed      = "order.refund_processed"
	EventOrderCancelled       = "order.cancelled"
	EventOrderReassigned      = "order.reassigned"
)

const (
	defaultDispatchWorkers = 4
	defaultDispatchQueue   = 256
	defaultDispatchTries   = 5
	defaultDispatchBackoff = 200 * time.Millisecond
	maxDispatchBackoff     = 10 * time.Second
	defaultEnqueueWait     = 250 * time.Millisecond
)

// ErrDispatcherClosed is returned by Close when called twice.
var ErrDispatcherClosed = errors.New("notification dispatcher: closed")

// OrderEvent is the payload handed to notification sinks. Subscribers must tolerate
// duplicates; ID is stable across redeliveries of the same event.
type OrderEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	OwnerKey    string    `json:"ownerKey,omitempty"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Amount      Money     `json:"amount,omitempty"`
	ActorID     string    `json:"actorId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// EventPublisher delivers one event to a sink. Implementations return an error for any
// delivery that should be retried.
type EventPublisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

// DeliveryObserver records delivery outcomes.
type DeliveryObserver interface {
	ObserveDelivery(eventType string, outcome string, attempts int)
}

// NotificationDispatcherDeps configures the background dispatcher.
type NotificationDispatcherDeps struct {
	Publisher   EventPublisher
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	EnqueueWait time.Duration
	Observer    DeliveryObserver
	Logger      Logger
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Dispatcher is a worker pool delivering order events at-least-once with bounded retries.
type Dispatcher struct {
	publisher   EventPublisher
	queue       chan OrderEvent
	attempts    int
	backoff     time.Duration
	enqueueWait time.Duration
	observer    DeliveryObserver
	logger      Logger
	sleep       func(ctx context.Context, d time.Duration) error

	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	drained chan struct{}
}

var _ NotificationDispatcher = (*Dispatcher)(nil)

// NewNotificationDispatcher starts the worker pool.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (*Dispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification dispatcher: publisher is required")
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = defaultDispatchQueue
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultDispatchTries
	}
	backoff := deps.Backoff
	if backoff <= 0 {
		backoff = defaultDispatchBackoff
	}
	enqueueWait := deps.EnqueueWait
	if enqueueWait <= 0 {
		enqueueWait = defaultEnqueueWait
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	d := &Dispatcher{
		publisher:   deps.Publisher,
		queue:       make(chan OrderEvent, queueSize),
		attempts:    attempts,
		backoff:     backoff,
		enqueueWait: enqueueWait,
		observer:    deps.Observer,
		logger:      logger,
		sleep:       sleep,
		stop:        make(chan struct{}),
		drained:     make(chan struct{}),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	go func() {
		d.wg.Wait()
		close(d.drained)
	}()
	return d, nil
}

// Dispatch queues event for delivery. It never returns an error. When the queue stays full
// past the enqueue wait the event is delivered on its own goroutine, which Close waits for.
// Only events arriving after Close are dropped, logged with the full event so they can be
// replayed.
func (d *Dispatcher) Dispatch(ctx context.Context, event OrderEvent) {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped(ctx, event, "dispatcher closed")
		return
	}

	timer := time.NewTimer(d.enqueueWait)
	defer timer.Stop()
	select {
	case d.queue <- event:
	case <-timer.C:
		d.observe(event.Type, "overflow", 0)
		d.logger(ctx, "notification.overflow", map[string]any{
			"severity": "warn",
			"eventId":  event.ID,
			"type":     event.Type,
			"orderId":  event.OrderID,
		})
		// Workers are still running while the dispatcher is open, so the group cannot be at zero.
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(event)
		}()
	}
}

// Close stops accepting events and waits for queued events to be delivered or for ctx to
// expire, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.drained:
		return nil
	case <-ctx.Done():
		close(d.stop)
		<-d.drained
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event OrderEvent) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-d.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := d.backoff
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		lastErr = d.publisher.Publish(ctx, event)
		if lastErr == nil {
			d.observe(event.Type, "delivered", attempt)
			d.logger(ctx, "notification.delivered", map[string]any{
				"eventId":  event.ID,
				"type":     event.Type,
				"orderId":  event.OrderID,
				"attempts": attempt,
			})
			return
		}
		if attempt == d.attempts {
			break
		}
		d.logger(ctx, "notification.retry", map[string]any{
			"eventId": event.ID,
			"type":    event.Type,
			"attempt": attempt,
			"error":   lastErr.Error(),
		})
		if err := d.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
		backoff *= 2
		if backoff > maxDispatchBackoff {
			backoff = maxDispatchBackoff
		}
	}
	d.observe(event.Type, "failed", d.attempts)
	d.logger(ctx, "notification.failed", map[string]any{
		"eventId": event.ID,
		"type":    event.Type,
		"orderId": event.OrderID,
		"error":   errorString(lastErr),
	})
}

func (d *Dispatcher) dropped(ctx context.Context, event OrderEvent, reason string) {
	d.observe(event.Type, "dropped", 0)
	d.logger(ctx, "notification.dropped", map[string]any{
		"reason":      reason,
		"eventId":     event.ID,
		"type":        event.Type,
		"orderId":     event.OrderID,
		"orderNumber": event.OrderNumber,
		"from":        event.From,
		"to":          event.To,
		"actorId":     event.ActorID,
	})
}

func (d *Dispatcher) observe(eventType, outcome string, attempts int) {
	if d.observer != nil {
		d.observer.ObserveDelivery(eventType, outcome, attempts)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// noopDispatcher discards events; used when no sink is configured.
type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, OrderEvent) {}
