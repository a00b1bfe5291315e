package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeClient talks to the real Stripe API.
type StripeClient struct {
	webhookSecret string
}

// NewStripeClient configures the Stripe SDK with the account secret key and
// keeps the webhook signing secret for event verification.
func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{webhookSecret: webhookSecret}
}

var _ Client = (*StripeClient)(nil)

// CreateIntent creates a payment intent on the gateway.
func (c *StripeClient) CreateIntent(ctx context.Context, p CreateIntentParams) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return fromStripeIntent(pi), nil
}

// GetIntent retrieves the authoritative state of a payment intent.
func (c *StripeClient) GetIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, fmt.Errorf("intent %s: %w", id, ErrIntentNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve payment intent %s: %w", id, err)
	}
	return fromStripeIntent(pi), nil
}

// VerifyEvent checks the payload signature against the webhook signing
// secret and maps the event to the tagged kinds the reconciler handles.
func (c *StripeClient) VerifyEvent(payload []byte, signatureHeader string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, c.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{
		ID:   event.ID,
		Type: string(event.Type),
		Kind: EventIgnored,
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		out.Kind = EventPaymentSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		out.Kind = EventPaymentFailed
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to parse payment intent from event %s: %w", event.ID, err)
	}
	out.Intent = fromStripeIntent(&pi)
	return out, nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       mapIntentStatus(pi.Status),
		StatusDetail: string(pi.Status),
		Metadata:     pi.Metadata,
	}
}

// mapIntentStatus collapses the gateway lifecycle: succeeded and canceled
// are decisive, everything else (processing, requires_*) is still pending.
func mapIntentStatus(s stripe.PaymentIntentStatus) IntentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentCanceled
	default:
		return IntentPending
	}
}
