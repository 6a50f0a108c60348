package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider with Stripe PaymentIntents
type StripeProvider struct {
	sc            *stripe.Client
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		sc:            stripe.NewClient(secretKey),
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	logger.ExternalServiceCallContext(ctx, "stripe", "PaymentIntents.Create", "amount", req.AmountMinor, "currency", req.Currency, "idempotencyKey", req.IdempotencyKey)

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := p.sc.V1PaymentIntents.Create(ctx, params)
	logger.ExternalServiceResult("stripe", "PaymentIntents.Create", err)
	if err != nil {
		return nil, providerError("Could not start the payment, please try again", err)
	}
	return fromStripe(pi), nil
}

func (p *StripeProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	logger.ExternalServiceCallContext(ctx, "stripe", "PaymentIntents.Retrieve", "paymentIntentID", id)
	pi, err := p.sc.V1PaymentIntents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
	logger.ExternalServiceResult("stripe", "PaymentIntents.Retrieve", err)
	if err != nil {
		return nil, providerError("Could not verify the payment, please try again", err)
	}
	return fromStripe(pi), nil
}

func (p *StripeProvider) CancelIntent(ctx context.Context, id string) error {
	logger.ExternalServiceCallContext(ctx, "stripe", "PaymentIntents.Cancel", "paymentIntentID", id)
	_, err := p.sc.V1PaymentIntents.Cancel(ctx, id, &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	})
	logger.ExternalServiceResult("stripe", "PaymentIntents.Cancel", err)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			// succeeded and canceled intents cannot be canceled; only the first is news
			return p.settledState(ctx, id)
		}
		return providerError("Could not cancel the previous payment", err)
	}
	return nil
}

func (p *StripeProvider) settledState(ctx context.Context, id string) error {
	in, err := p.RetrieveIntent(ctx, id)
	if err != nil {
		return err
	}
	return cancelOutcome(in.Status)
}

// cancelOutcome maps the status of an intent that refused cancellation
func cancelOutcome(status domain.PaymentStatus) error {
	if status == domain.PaymentStatusSucceeded {
		return ErrIntentSucceeded
	}
	return nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, domain.NewValidationError("signature", fmt.Sprintf("invalid webhook signature: %v", err))
	}
	if !strings.HasPrefix(string(event.Type), "payment_intent.") {
		logger.Debug("Ignoring stripe event", "eventID", event.ID, "type", event.Type)
		return nil, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, domain.NewValidationError("payload", fmt.Sprintf("malformed payment intent: %v", err))
	}
	return &Event{ID: event.ID, Type: string(event.Type), Intent: *fromStripe(&pi)}, nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       MapStripeStatus(pi.Status, pi.LastPaymentError != nil),
		Metadata:     pi.Metadata,
	}
}

// MapStripeStatus folds Stripe's intent lifecycle into the booking payment states.
// Anything that is neither settled nor definitely failed stays pending.
func MapStripeStatus(status stripe.PaymentIntentStatus, hasPaymentError bool) domain.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return domain.PaymentStatusFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if hasPaymentError {
			return domain.PaymentStatusFailed
		}
	}
	return domain.PaymentStatusRequiresAction
}

func providerError(reason string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
		return domain.NewProviderError(se.Msg, err)
	}
	return domain.NewProviderError(reason, err)
}
