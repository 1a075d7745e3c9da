package models

import (
	"time"

	"github.com/shopspring/decimal"

	common "github.com/event-admin-services/common/models"
)

// ============================================================
// Plans
// ============================================================

// Plan is a purchasable boost
type Plan struct {
	ID           common.ID       `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"durationDays"`
	Features     []string        `json:"features"`
	Popular      bool            `json:"popular,omitempty"`
}

// SummaryRequest selects a plan
type SummaryRequest struct {
	PlanID string `json:"planId"`
}

// Summary is the order shown before paying. Amounts are fixed to two
// decimals and no tax is added.
type Summary struct {
	PlanID       string   `json:"planId"`
	PlanName     string   `json:"planName"`
	DurationDays int      `json:"durationDays"`
	Features     []string `json:"features"`
	Currency     string   `json:"currency"`
	Subtotal     string   `json:"subtotal"`
	Total        string   `json:"total"`
}

// ============================================================
// Checkout
// ============================================================

// CheckoutRequest carries the payment method token produced by the card SDK
type CheckoutRequest struct {
	EventID         string `json:"eventId"`
	PlanID          string `json:"planId"`
	PaymentMethodID string `json:"paymentMethodId"`
	// IdempotencyKey is minted once per checkout attempt by the browser and
	// resent on retries. Derived from the purchase when empty.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// IntentRequest is sent to the backend payment-intent endpoint
type IntentRequest struct {
	EventID         string `json:"eventId"`
	PlanID          string `json:"planId"`
	PaymentMethodID string `json:"paymentMethodId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	IdempotencyKey  string `json:"idempotencyKey"`
}

// PaymentIntent is the backend's answer
type PaymentIntent struct {
	ID           string `json:"paymentIntentId"`
	Status       string `json:"status"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// Activation switches a boost on for an event
type Activation struct {
	EventID         string     `json:"eventId"`
	PlanID          string     `json:"planId"`
	PaymentIntentID string     `json:"paymentIntentId"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// CheckoutResult tells the client what to do next
type CheckoutResult struct {
	Status          string      `json:"status"`
	PaymentIntentID string      `json:"paymentIntentId"`
	ClientSecret    string      `json:"clientSecret,omitempty"`
	Summary         Summary     `json:"summary"`
	Boost           *Activation `json:"boost,omitempty"`
}
