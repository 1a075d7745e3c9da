// Package payment wraps the card processor used by the boost checkout:
// payment-intent verification and webhook signature checks.
package payment

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/paymentintent"
	"github.com/stripe/stripe-go/webhook"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/logger"
)

// Event types the gateway reacts to
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// Intent statuses surfaced to the checkout
const (
	StatusSucceeded      = "succeeded"
	StatusRequiresAction = "requires_action"
	StatusProcessing     = "processing"
)

// IntentGetter fetches a payment intent (paymentintent.Client)
type IntentGetter interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Config for the processor
type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// Intent is the processor's view of a payment
type Intent struct {
	ID           string
	Status       string
	Amount       decimal.Decimal
	Currency     string
	ClientSecret string
	Metadata     map[string]string
}

// WebhookEvent is a verified webhook delivery
type WebhookEvent struct {
	ID     string
	Type   string
	Intent *Intent
}

// Processor verifies payments with the card processor
type Processor struct {
	intents       IntentGetter
	webhookSecret string
	currency      string
	log           *logger.Logger
}

// NewProcessor talks to the live API with cfg.SecretKey
func NewProcessor(cfg Config) *Processor {
	return NewProcessorWithClient(cfg, &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey})
}

// NewProcessorWithClient uses the given intent client
func NewProcessorWithClient(cfg Config, intents IntentGetter) *Processor {
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	if cfg.SecretKey == "" {
		intents = nil
	}
	return &Processor{
		intents:       intents,
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		log:           logger.Default().With("component", "payment"),
	}
}

// Currency is the ISO code charged for boosts
func (p *Processor) Currency() string { return p.currency }

// CanVerify reports whether intents can be checked against the processor
func (p *Processor) CanVerify() bool { return p.intents != nil }

// VerifyIntent checks that intent id succeeded for exactly amount in the
// configured currency.
func (p *Processor) VerifyIntent(ctx context.Context, id string, amount decimal.Decimal) (*Intent, error) {
	if p.intents == nil {
		return nil, apperrors.PaymentProviderError("Card processor is not configured")
	}
	if id == "" {
		return nil, apperrors.MissingField("paymentIntentId")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.intents.Get(id, params)
	if err != nil {
		p.log.WithContext(ctx).WithError(err).Error("failed to fetch payment intent", "intent_id", id)
		return nil, apperrors.PaymentProviderError("Could not verify the payment").WithCause(err)
	}

	intent := fromStripe(pi)
	if intent.Status != StatusSucceeded {
		return intent, apperrors.PaymentFailed("Payment has not completed").WithField("status", intent.Status)
	}
	if !intent.Amount.Equal(amount.Round(2)) || intent.Currency != p.currency {
		p.log.WithContext(ctx).Warn("payment intent mismatch",
			"intent_id", id, "amount", intent.Amount.StringFixed(2), "expected", amount.StringFixed(2),
			"currency", intent.Currency)
		return intent, apperrors.PaymentFailed("Payment amount does not match the order")
	}
	return intent, nil
}

// ParseWebhook verifies the signature header and decodes payment-intent events
func (p *Processor) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, apperrors.PaymentProviderError("Webhook secret is not configured")
	}
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, apperrors.InvalidInput("Stripe-Signature", "Webhook signature verification failed").WithCause(err)
	}

	out := &WebhookEvent{ID: event.ID, Type: event.Type}
	if strings.HasPrefix(event.Type, "payment_intent.") && event.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, apperrors.InvalidInput("data", "Malformed payment intent").WithCause(err)
		}
		out.Intent = fromStripe(&pi)
	}
	return out, nil
}

// ToMinorUnits converts a decimal amount to cents
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts cents to a decimal amount
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		Amount:       FromMinorUnits(pi.Amount),
		Currency:     strings.ToLower(string(pi.Currency)),
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}
}
