package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/metrics"
	"github.com/event-admin-services/common/payment"
	"github.com/event-admin-services/common/scheduler"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/common/store"
	"github.com/event-admin-services/services/boost-lambda/models"
)

// seenTTL bounds how long processed intents are remembered
const (
	seenTTL = 24 * time.Hour

	// processor limit for idempotency keys
	maxIdempotencyKey = 255
)

// Repository is the backend boost API
type Repository interface {
	ListPlans(ctx context.Context, sess *session.Session) ([]models.Plan, error)
	CreateIntent(ctx context.Context, sess *session.Session, req models.IntentRequest) (*models.PaymentIntent, error)
	Activate(ctx context.Context, sess *session.Session, a models.Activation) (*models.Activation, error)
}

// Payments verifies intents and webhook deliveries (payment.Processor)
type Payments interface {
	Currency() string
	VerifyIntent(ctx context.Context, id string, amount decimal.Decimal) (*payment.Intent, error)
	ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error)
}

// BoostUseCase sells boosts: plans, the order summary, checkout and the
// processor webhook.
type BoostUseCase struct {
	repo     Repository
	store    *store.Store
	payments Payments
	clock    scheduler.Clock
	log      *logger.Logger

	mu        sync.Mutex
	activated map[string]time.Time // payment intent id -> activation time
}

// NewBoostUseCase creates a new boost use case
func NewBoostUseCase(repo Repository, st *store.Store, payments Payments, clock scheduler.Clock) *BoostUseCase {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &BoostUseCase{
		repo:      repo,
		store:     st,
		payments:  payments,
		clock:     clock,
		log:       logger.Default().With("component", "boost"),
		activated: make(map[string]time.Time),
	}
}

// Plans returns the plans sorted by price
func (uc *BoostUseCase) Plans(ctx context.Context, sess *session.Session) ([]models.Plan, error) {
	v, err := uc.store.Dispatch(ctx, sess.ID, store.BoostPlans, func(ctx context.Context) (interface{}, error) {
		return uc.repo.ListPlans(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	plans := append([]models.Plan(nil), v.([]models.Plan)...)
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Price.LessThan(plans[j].Price) })
	return plans, nil
}

func (uc *BoostUseCase) plan(ctx context.Context, sess *session.Session, id string) (*models.Plan, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.MissingField("planId")
	}
	plans, err := uc.Plans(ctx, sess)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].ID.String() == id {
			return &plans[i], nil
		}
	}
	return nil, apperrors.NotFound("Boost plan")
}

// Summary prices the selected plan
func (uc *BoostUseCase) Summary(ctx context.Context, sess *session.Session, planID string) (*models.Summary, error) {
	p, err := uc.plan(ctx, sess, planID)
	if err != nil {
		return nil, err
	}
	s := summarize(*p, uc.payments.Currency())
	return &s, nil
}

// summarize fixes the price to two decimals; no tax is applied
func summarize(p models.Plan, currency string) models.Summary {
	total := p.Price.Round(2)
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return models.Summary{
		PlanID:       p.ID.String(),
		PlanName:     p.Name,
		DurationDays: p.DurationDays,
		Features:     features,
		Currency:     strings.ToUpper(currency),
		Subtotal:     total.StringFixed(2),
		Total:        total.StringFixed(2),
	}
}

func validateCheckout(req models.CheckoutRequest) (models.CheckoutRequest, error) {
	req.EventID = strings.TrimSpace(req.EventID)
	req.PlanID = strings.TrimSpace(req.PlanID)
	req.PaymentMethodID = strings.TrimSpace(req.PaymentMethodID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	errs := apperrors.FieldErrors{}
	if req.EventID == "" {
		errs.Add("eventId", "Select an event to boost")
	}
	if req.PlanID == "" {
		errs.Add("planId", "Select a boost plan")
	}
	switch {
	case req.PaymentMethodID == "":
		errs.Add("paymentMethodId", "Card details are required")
	case !strings.HasPrefix(req.PaymentMethodID, "pm_"):
		errs.Add("paymentMethodId", "Card details were not tokenized")
	}
	if len(req.IdempotencyKey) > maxIdempotencyKey {
		errs.Add("idempotencyKey", "Idempotency key is too long")
	}
	return req, errs.Err()
}

// idempotencyKey keeps a double-submitted checkout on one payment intent. A
// new card tokenization yields a new payment method and so a new key.
func idempotencyKey(sess *session.Session, req models.CheckoutRequest) string {
	if req.IdempotencyKey != "" {
		return req.IdempotencyKey
	}
	name := strings.Join([]string{sess.ID, req.EventID, req.PlanID, req.PaymentMethodID}, "|")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Checkout charges the plan price for an event. A succeeded intent is
// verified with the card processor before the boost is activated; an intent
// that needs 3-D Secure hands its client secret back to the browser.
func (uc *BoostUseCase) Checkout(ctx context.Context, sess *session.Session, req models.CheckoutRequest) (*models.CheckoutResult, error) {
	req, err := validateCheckout(req)
	if err != nil {
		return nil, err
	}
	p, err := uc.plan(ctx, sess, req.PlanID)
	if err != nil {
		return nil, err
	}
	summary := summarize(*p, uc.payments.Currency())
	amount := p.Price.Round(2)
	log := uc.log.WithContext(ctx)

	pi, err := uc.repo.CreateIntent(ctx, sess, models.IntentRequest{
		EventID:         req.EventID,
		PlanID:          req.PlanID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          payment.ToMinorUnits(amount),
		Currency:        strings.ToLower(uc.payments.Currency()),
		IdempotencyKey:  idempotencyKey(sess, req),
	})
	if err != nil {
		metrics.TrackCheckout("failed")
		return nil, err
	}
	result := &models.CheckoutResult{Status: pi.Status, PaymentIntentID: pi.ID, Summary: summary}

	switch pi.Status {
	case payment.StatusSucceeded:
		if _, err := uc.payments.VerifyIntent(ctx, pi.ID, amount); err != nil {
			metrics.TrackCheckout("failed")
			log.WithError(err).Warn("boost payment rejected", "intent_id", pi.ID, "event_id", req.EventID)
			return nil, err
		}
		boost, err := uc.activate(ctx, sess, models.Activation{EventID: req.EventID, PlanID: req.PlanID, PaymentIntentID: pi.ID})
		if err != nil {
			metrics.TrackCheckout("failed")
			return nil, err
		}
		result.Boost = boost
		metrics.TrackCheckout("succeeded")
		log.Info("boost purchased", "intent_id", pi.ID, "event_id", req.EventID, "plan_id", req.PlanID, "by", sess.User.ID)

	case payment.StatusRequiresAction, "requires_confirmation":
		if pi.ClientSecret == "" {
			metrics.TrackCheckout("failed")
			return nil, apperrors.PaymentProviderError("Payment needs confirmation but no client secret was issued")
		}
		result.Status = payment.StatusRequiresAction
		result.ClientSecret = pi.ClientSecret
		metrics.TrackCheckout("requires_action")

	case payment.StatusProcessing:
		// the webhook activates the boost once the charge settles
		metrics.TrackCheckout("processing")

	default:
		metrics.TrackCheckout("failed")
		return nil, apperrors.PaymentFailed("Card was declined").WithField("status", pi.Status)
	}
	return result, nil
}

// HandleWebhook verifies a processor delivery and activates the boost on a
// succeeded intent. Deliveries for intents already activated are ignored.
func (uc *BoostUseCase) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	evt, err := uc.payments.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	log := uc.log.WithContext(ctx).With("webhook_id", evt.ID)

	switch evt.Type {
	case payment.EventIntentSucceeded:
	case payment.EventIntentFailed:
		if evt.Intent != nil {
			log.Warn("boost payment failed", "intent_id", evt.Intent.ID)
		}
		metrics.TrackCheckout("failed")
		return nil
	default:
		log.Debug("webhook ignored", "type", evt.Type)
		return nil
	}

	if evt.Intent == nil {
		return apperrors.InvalidInput("data", "Webhook carried no payment intent")
	}
	a := models.Activation{
		EventID:         evt.Intent.Metadata["eventId"],
		PlanID:          evt.Intent.Metadata["planId"],
		PaymentIntentID: evt.Intent.ID,
	}
	if a.EventID == "" || a.PlanID == "" {
		log.Warn("succeeded intent without boost metadata", "intent_id", evt.Intent.ID)
		return nil
	}
	if uc.seen(a.PaymentIntentID) {
		return nil
	}
	if _, err := uc.activate(ctx, nil, a); err != nil {
		return err
	}
	metrics.TrackCheckout("succeeded")
	log.Info("boost activated from webhook", "intent_id", a.PaymentIntentID, "event_id", a.EventID)
	return nil
}

func (uc *BoostUseCase) activate(ctx context.Context, sess *session.Session, a models.Activation) (*models.Activation, error) {
	out, err := uc.repo.Activate(ctx, sess, a)
	if err != nil {
		uc.log.WithContext(ctx).WithError(err).Error("boost activation failed", "intent_id", a.PaymentIntentID, "event_id", a.EventID)
		return nil, err
	}
	uc.markActivated(a.PaymentIntentID)
	return out, nil
}

func (uc *BoostUseCase) seen(intentID string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	_, ok := uc.activated[intentID]
	return ok
}

func (uc *BoostUseCase) markActivated(intentID string) {
	now := uc.clock.Now()
	uc.mu.Lock()
	defer uc.mu.Unlock()
	for id, at := range uc.activated {
		if now.Sub(at) > seenTTL {
			delete(uc.activated, id)
		}
	}
	uc.activated[intentID] = now
}
