package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

// ErrGatewayUnavailable is returned while the breaker is open.
var ErrGatewayUnavailable = errors.New("payments: refund gateway unavailable")

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeRefundConfig configures the StripeRefundGateway.
type StripeRefundConfig struct {
	APIKey           string
	AccountID        string
	Backends         *stripe.Backends
	Logger           StripeLogger
	FailureThreshold int
	Cooldown         time.Duration

	refunds stripeRefundAPI
}

// StripeRefundGateway forwards order refunds to Stripe. Calls go through a circuit breaker so
// a Stripe outage fails refunds fast instead of holding the order lock for the HTTP timeout.
type StripeRefundGateway struct {
	refunds stripeRefundAPI
	account string
	breaker *gobreaker.CircuitBreaker[*stripe.Refund]
	logger  StripeLogger
}

var _ services.RefundGateway = (*StripeRefundGateway)(nil)

// NewStripeRefundGateway constructs a gateway using the given configuration.
func NewStripeRefundGateway(cfg StripeRefundConfig) (*StripeRefundGateway, error) {
	api := cfg.refunds
	if api == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		api = client.New(apiKey, cfg.Backends).Refunds
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*stripe.Refund](gobreaker.Settings{
		Name:        "stripe-refunds",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		IsSuccessful: func(err error) bool {
			// Card and request errors mean Stripe answered; only transport and API failures trip.
			var stripeErr *stripe.Error
			if errors.As(err, &stripeErr) {
				return stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Type == stripe.ErrorTypeInvalidRequest
			}
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger(context.Background(), "payments.stripe.breaker", map[string]any{
				"breaker":  name,
				"from":     from.String(),
				"to":       to.String(),
				"severity": "warn",
			})
		},
	})

	return &StripeRefundGateway{
		refunds: api,
		account: strings.TrimSpace(cfg.AccountID),
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Refund creates a Stripe refund against the order's payment intent and returns the refund ID.
func (g *StripeRefundGateway) Refund(ctx context.Context, req services.RefundRequest) (string, error) {
	if g == nil {
		return "", errors.New("stripe: gateway is nil")
	}
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		return "", errors.New("stripe: payment intent is required")
	}
	if req.Amount <= 0 {
		return "", errors.New("stripe: refund amount must be positive")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Amount:        stripe.Int64(int64(req.Amount)),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	params.AddMetadata("orderId", req.OrderID)
	if req.OrderNumber != "" {
		params.AddMetadata("orderNumber", req.OrderNumber)
	}

	refund, err := g.breaker.Execute(func() (*stripe.Refund, error) {
		return g.refunds.New(params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if err != nil {
		return "", fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	g.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"orderId":       req.OrderID,
		"paymentIntent": req.PaymentIntentID,
		"refundId":      refund.ID,
		"amount":        req.Amount.String(),
	})
	return refund.ID, nil
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
