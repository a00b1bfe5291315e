// Package gateway wraps the payment gateway behind a small client interface
// so services, the demo-mode mock, and test fakes are interchangeable. All
// Stripe SDK types stay inside this package.
package gateway

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidSignature means the webhook payload failed authenticity
	// verification. Security boundary: reject, no retry.
	ErrInvalidSignature = errors.New("gateway: invalid event signature")
	// ErrIntentNotFound means the gateway does not know the payment intent id.
	ErrIntentNotFound = errors.New("gateway: payment intent not found")
)

// IntentStatus is the gateway-side lifecycle collapsed to what the
// reconciliation logic distinguishes.
type IntentStatus string

const (
	IntentSucceeded IntentStatus = "succeeded"
	IntentPending   IntentStatus = "pending"
	IntentCanceled  IntentStatus = "canceled"
)

// PaymentIntent is the gateway's view of one payment attempt.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       IntentStatus
	// StatusDetail keeps the raw gateway status string for diagnostics and
	// the payment-incomplete response body.
	StatusDetail string
	Metadata     map[string]string
}

// CreateIntentParams are the inputs to CreateIntent.
type CreateIntentParams struct {
	Amount       int64
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
}

// EventKind is the tagged dispatch over webhook notifications. Everything
// the reconciler does not care about collapses to EventIgnored, which must
// still be acknowledged.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventPaymentSucceeded
	EventPaymentFailed
)

// Event is one verified webhook notification.
type Event struct {
	ID   string
	Type string
	Kind EventKind
	// Intent is populated for succeeded/failed events, nil for ignored ones.
	Intent *PaymentIntent
}

// Client is the payment gateway contract consumed by the services.
type Client interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*PaymentIntent, error)
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}

// MockIntentPrefix marks synthetic intents issued by the demo-mode client.
// They must never be forwarded to the real gateway.
const MockIntentPrefix = "pi_mock_"

// IsMockIntent reports whether id was issued by the demo-mode client.
func IsMockIntent(id string) bool {
	return strings.HasPrefix(id, MockIntentPrefix)
}
