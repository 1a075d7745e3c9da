package repository

import (
	"context"
	"net/http"

	"github.com/event-admin-services/common/backend"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/boost-lambda/models"
)

// Backend boost endpoints
const (
	pathPlans    = "/boost/plans"
	pathIntent   = "/payments/boost-intent"
	pathActivate = "/boost/activate"
)

// BoostRepository talks to the backend boost and payment API
type BoostRepository struct {
	client *backend.Client
}

// NewBoostRepository creates a new boost repository
func NewBoostRepository(client *backend.Client) *BoostRepository {
	return &BoostRepository{client: client}
}

// ListPlans returns the plans on sale
func (r *BoostRepository) ListPlans(ctx context.Context, sess *session.Session) ([]models.Plan, error) {
	var plans []models.Plan
	if err := r.client.Get(ctx, sess, pathPlans, nil, &plans); err != nil {
		return nil, err
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	return plans, nil
}

// CreateIntent asks the backend to create and confirm a payment intent
func (r *BoostRepository) CreateIntent(ctx context.Context, sess *session.Session, req models.IntentRequest) (*models.PaymentIntent, error) {
	var pi models.PaymentIntent
	if err := r.client.Post(ctx, sess, pathIntent, req, &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// Activate switches the boost on. A nil session authenticates with the
// service key (webhook deliveries).
func (r *BoostRepository) Activate(ctx context.Context, sess *session.Session, a models.Activation) (*models.Activation, error) {
	resp, err := r.client.Do(ctx, backend.Request{
		Method:  http.MethodPost,
		Path:    pathActivate,
		Body:    a,
		Session: sess,
		Service: sess == nil,
	})
	if err != nil {
		return nil, err
	}
	out := a
	if len(resp.Body) > 0 {
		if err := resp.Decode(&out); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
