package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MockClient is the demo-mode gateway, selected when no Stripe secret key is
// configured. Intents succeed immediately so the checkout flow can be
// exercised end to end without gateway credentials.
type MockClient struct {
	signingSecret string

	mu      sync.RWMutex
	intents map[string]PaymentIntent
}

// NewMockClient creates a demo gateway. signingSecret doubles as the
// expected webhook signature header.
func NewMockClient(signingSecret string) *MockClient {
	return &MockClient{
		signingSecret: signingSecret,
		intents:       make(map[string]PaymentIntent),
	}
}

var _ Client = (*MockClient)(nil)

func (c *MockClient) CreateIntent(ctx context.Context, p CreateIntentParams) (*PaymentIntent, error) {
	id := MockIntentPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
	intent := PaymentIntent{
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, uuid.New().String()[:8]),
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       IntentSucceeded,
		StatusDetail: "succeeded",
		Metadata:     p.Metadata,
	}

	c.mu.Lock()
	c.intents[id] = intent
	c.mu.Unlock()

	out := intent
	return &out, nil
}

func (c *MockClient) GetIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	c.mu.RLock()
	intent, ok := c.intents[id]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("intent %s: %w", id, ErrIntentNotFound)
	}
	out := intent
	return &out, nil
}

// mockEvent is the demo webhook payload shape.
type mockEvent struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	PaymentIntentID string            `json:"payment_intent_id"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// VerifyEvent accepts a synthetic payload signed by echoing the signing
// secret in the signature header. Good enough for demos and handler tests;
// the real client does HMAC verification via the Stripe SDK.
func (c *MockClient) VerifyEvent(payload []byte, signatureHeader string) (*Event, error) {
	if signatureHeader != c.signingSecret {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}

	var ev mockEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: ev.ID, Type: ev.Type, Kind: EventIgnored}
	switch ev.Type {
	case "payment_intent.succeeded":
		out.Kind = EventPaymentSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		out.Kind = EventPaymentFailed
	default:
		return out, nil
	}

	intent, err := c.GetIntent(context.Background(), ev.PaymentIntentID)
	if err != nil {
		// Event for an intent this process never issued; still deliverable.
		intent = &PaymentIntent{
			ID:       ev.PaymentIntentID,
			Status:   IntentPending,
			Metadata: ev.Metadata,
		}
	}
	if len(ev.Metadata) > 0 {
		intent.Metadata = ev.Metadata
	}
	out.Intent = intent
	return out, nil
}
