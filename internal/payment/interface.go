package payment

import (
	"context"
	"errors"

	"rentcar-backend/internal/domain"
)

// Intent is the provider-side view of one charge attempt
type Intent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
	Status       domain.PaymentStatus
	// Metadata echoes what was attached at creation (booking number, booking id)
	Metadata map[string]string
}

// CreateIntentRequest describes a charge to open with the provider
type CreateIntentRequest struct {
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// ErrIntentSucceeded is returned by CancelIntent when the customer completed the payment first
var ErrIntentSucceeded = errors.New("payment intent already succeeded")

// Event is a verified provider notification about an intent
type Event struct {
	ID     string
	Type   string
	Intent Intent
}

// Provider defines the interface for payment backends.
// Supports both mock (in-memory) and Stripe.
type Provider interface {
	// CreateIntent opens a charge. Repeating a request with the same
	// IdempotencyKey returns the intent created the first time.
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)

	// RetrieveIntent reads the current provider status of an intent
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)

	// CancelIntent voids an intent that is no longer wanted. Canceling an intent that is
	// already canceled is not an error; one that already succeeded returns ErrIntentSucceeded.
	CancelIntent(ctx context.Context, id string) error

	// ParseWebhook verifies the signature and decodes an intent event.
	// Returns nil, nil for event types that do not concern intents.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// Config holds payment provider configuration
type Config struct {
	Provider      string // "mock" or "stripe"
	SecretKey     string
	WebhookSecret string
	// AutoSucceed makes mock intents succeed on first retrieval
	AutoSucceed bool
}

// NewProvider builds the provider named by cfg.Provider
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "stripe":
		return NewStripeProvider(cfg.SecretKey, cfg.WebhookSecret), nil
	case "", "mock":
		return NewMockProvider(cfg.WebhookSecret, cfg.AutoSucceed), nil
	default:
		return nil, domain.NewValidationError("payment.provider", "unknown payment provider "+cfg.Provider)
	}
}
