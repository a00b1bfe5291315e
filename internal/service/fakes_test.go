package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
)

const testSignature = "whsec_test"

// fakeGateway is a controllable in-process gateway for service tests.
type fakeGateway struct {
	mu      sync.Mutex
	nextID  int
	intents map[string]gateway.PaymentIntent
	getErrs map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents: make(map[string]gateway.PaymentIntent),
		getErrs: make(map[string]error),
	}
}

func (f *fakeGateway) addIntent(intent gateway.PaymentIntent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[intent.ID] = intent
}

func (f *fakeGateway) failGet(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErrs[id] = err
}

func (f *fakeGateway) CreateIntent(ctx context.Context, p gateway.CreateIntentParams) (*gateway.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	intent := gateway.PaymentIntent{
		ID:           fmt.Sprintf("pi_test_%d", f.nextID),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", f.nextID),
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       gateway.IntentPending,
		StatusDetail: "requires_payment_method",
		Metadata:     p.Metadata,
	}
	f.intents[intent.ID] = intent
	out := intent
	return &out, nil
}

func (f *fakeGateway) GetIntent(ctx context.Context, id string) (*gateway.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.getErrs[id]; ok {
		return nil, err
	}
	intent, ok := f.intents[id]
	if !ok {
		return nil, fmt.Errorf("intent %s: %w", id, gateway.ErrIntentNotFound)
	}
	out := intent
	return &out, nil
}

// testEvent is the wire shape fake webhooks use.
type testEvent struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	PaymentIntentID string            `json:"payment_intent_id"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func (f *fakeGateway) VerifyEvent(payload []byte, signatureHeader string) (*gateway.Event, error) {
	if signatureHeader != testSignature {
		return nil, fmt.Errorf("%w: signature mismatch", gateway.ErrInvalidSignature)
	}

	var ev testEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", gateway.ErrInvalidSignature, err)
	}

	out := &gateway.Event{ID: ev.ID, Type: ev.Type, Kind: gateway.EventIgnored}
	switch ev.Type {
	case "payment_intent.succeeded":
		out.Kind = gateway.EventPaymentSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		out.Kind = gateway.EventPaymentFailed
	default:
		return out, nil
	}

	f.mu.Lock()
	intent, ok := f.intents[ev.PaymentIntentID]
	f.mu.Unlock()
	if !ok {
		intent = gateway.PaymentIntent{ID: ev.PaymentIntentID, Status: gateway.IntentPending}
	}
	if len(ev.Metadata) > 0 {
		intent.Metadata = ev.Metadata
	}
	out.Intent = &intent
	return out, nil
}

// stubPublisher captures published lifecycle events.
type stubPublisher struct {
	mu        sync.Mutex
	completed []*models.OrderCompletedEvent
	failed    []*models.OrderFailedEvent
}

func (p *stubPublisher) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, event)
	return nil
}

func (p *stubPublisher) PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, event)
	return nil
}

func (p *stubPublisher) completedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.completed)
}

func eventPayload(t *testing.T, ev testEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return data
}

// testEnv wires every service over the in-memory store and fake gateway.
type testEnv struct {
	store      *store.Memory
	gw         *fakeGateway
	pub        *stubPublisher
	users      *UserResolver
	checkout   *CheckoutService
	reconciler *Reconciler
	sweeper    *Sweeper
	orders     *OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemory()
	st.SeedProduct(models.Product{ID: 1, Name: "Widget", Price: 2999, Currency: "usd"})

	gw := newFakeGateway()
	pub := &stubPublisher{}
	users := NewUserResolver(st)

	return &testEnv{
		store:      st,
		gw:         gw,
		pub:        pub,
		users:      users,
		checkout:   NewCheckoutService(st, gw, nil, users),
		reconciler: NewReconciler(st, gw, users, pub, nil),
		sweeper:    NewSweeper(st, gw, pub),
		orders:     NewOrderService(st, gw),
	}
}
