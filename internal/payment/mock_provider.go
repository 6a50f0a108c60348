package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"

	"github.com/google/uuid"
)

// MockProvider implements Provider in memory for local runs and tests
type MockProvider struct {
	mu            sync.Mutex
	intents       map[string]*Intent
	byKey         map[string]string
	webhookSecret string
	autoSucceed   bool

	// FailCreate makes the next CreateIntent call fail once
	FailCreate error
	// SucceedOnCancel makes the next CancelIntent find the intent already paid
	SucceedOnCancel bool
}

func NewMockProvider(webhookSecret string, autoSucceed bool) *MockProvider {
	return &MockProvider{
		intents:       make(map[string]*Intent),
		byKey:         make(map[string]string),
		webhookSecret: webhookSecret,
		autoSucceed:   autoSucceed,
	}
}

func (m *MockProvider) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailCreate; err != nil {
		m.FailCreate = nil
		return nil, domain.NewProviderError("Could not start the payment, please try again", err)
	}
	if req.AmountMinor <= 0 {
		return nil, domain.NewProviderError("Could not start the payment, please try again", fmt.Errorf("amount must be positive"))
	}
	if id, ok := m.byKey[req.IdempotencyKey]; ok {
		logger.Debug("Mock provider replayed idempotent create", "idempotencyKey", req.IdempotencyKey, "paymentIntentID", id)
		return copyIntent(m.intents[id]), nil
	}

	id := "pi_mock_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	in := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.New().String()[:8],
		AmountMinor:  req.AmountMinor,
		Currency:     strings.ToLower(req.Currency),
		Status:       domain.PaymentStatusRequiresAction,
		Metadata:     req.Metadata,
	}
	m.intents[id] = in
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = id
	}
	return copyIntent(in), nil
}

func (m *MockProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intents[id]
	if !ok {
		return nil, domain.NewProviderError("Could not verify the payment, please try again", fmt.Errorf("no such payment intent: %s", id))
	}
	if m.autoSucceed && in.Status == domain.PaymentStatusRequiresAction {
		in.Status = domain.PaymentStatusSucceeded
	}
	return copyIntent(in), nil
}

func (m *MockProvider) CancelIntent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intents[id]
	if !ok {
		return domain.NewProviderError("Could not cancel the previous payment", fmt.Errorf("no such payment intent: %s", id))
	}
	if m.SucceedOnCancel {
		m.SucceedOnCancel = false
		in.Status = domain.PaymentStatusSucceeded
	}
	switch in.Status {
	case domain.PaymentStatusSucceeded:
		return ErrIntentSucceeded
	case domain.PaymentStatusCanceled:
		return nil
	}
	// failed attempts stay payable with their client secret until canceled
	in.Status = domain.PaymentStatusCanceled
	return nil
}

// SetStatus simulates the customer completing or failing a payment
func (m *MockProvider) SetStatus(id string, status domain.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.intents[id]; ok {
		in.Status = status
	}
}

// Count returns how many distinct intents were created
func (m *MockProvider) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.intents)
}

type mockEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	IntentID string `json:"payment_intent"`
	Status   string `json:"status"`
}

// ParseWebhook accepts a JSON body signed with hex(HMAC-SHA256(secret, body))
func (m *MockProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if m.webhookSecret != "" && !hmac.Equal([]byte(SignMockPayload(m.webhookSecret, payload)), []byte(signature)) {
		return nil, domain.NewValidationError("signature", "invalid webhook signature")
	}
	var ev mockEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domain.NewValidationError("payload", fmt.Sprintf("malformed event: %v", err))
	}
	if !strings.HasPrefix(ev.Type, "payment_intent.") {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[ev.IntentID]
	if !ok {
		return nil, domain.NewNotFoundError("payment intent", ev.IntentID)
	}
	if ev.Status != "" {
		in.Status = domain.PaymentStatus(ev.Status)
	}
	return &Event{ID: ev.ID, Type: ev.Type, Intent: *copyIntent(in)}, nil
}

// SignMockPayload computes the signature MockProvider expects
func SignMockPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func copyIntent(in *Intent) *Intent {
	c := *in
	return &c
}
