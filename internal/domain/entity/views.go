package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type PlanView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Interval      string          `json:"interval"`
	IntervalCount int             `json:"interval_count"`
}

// SessionView is the verified session returned to the hosted checkout page
type SessionView struct {
	User      UserView `json:"user"`
	Plan      PlanView `json:"plan"`
	Action    string   `json:"action"`
	ReturnURL string   `json:"return_url"`
}

type SubscriptionView struct {
	UserID                string     `json:"user_id"`
	PlanID                string     `json:"plan_id"`
	Status                string     `json:"status"`
	GatewaySubscriptionID string     `json:"gateway_subscription_id,omitempty"`
	TrialEndsAt           *time.Time `json:"trial_ends_at,omitempty"`
	CurrentPeriodStart    *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd      *time.Time `json:"current_period_end,omitempty"`
	GracePeriodEndsAt     *time.Time `json:"grace_period_ends_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
}

type PaymentView struct {
	GatewayPaymentID string          `json:"gateway_payment_id"`
	GatewayOrderID   string          `json:"gateway_order_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Method           string          `json:"method,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// CheckoutSession carries everything the checkout widget needs
type CheckoutSession struct {
	KeyID                 string          `json:"key_id"`
	Kind                  string          `json:"kind"`
	GatewaySubscriptionID string          `json:"gateway_subscription_id,omitempty"`
	GatewayOrderID        string          `json:"gateway_order_id,omitempty"`
	GatewayCustomerID     string          `json:"gateway_customer_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
}

// PaymentConfirmation is what the checkout widget hands back on success
type PaymentConfirmation struct {
	GatewayPaymentID      string `json:"gateway_payment_id" validate:"required"`
	GatewayOrderID        string `json:"gateway_order_id,omitempty"`
	GatewaySubscriptionID string `json:"gateway_subscription_id,omitempty"`
	Signature             string `json:"signature" validate:"required,hexadecimal"`
}
