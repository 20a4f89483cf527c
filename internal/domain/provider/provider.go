package provider

import (
	"context"
	"time"
)

// Gateway defines the payment gateway operations the billing core depends on
type Gateway interface {
	CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*Customer, error)
	CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*Subscription, error)
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error)

	FetchSubscription(ctx context.Context, id string) (*Subscription, error)
	FetchOrder(ctx context.Context, id string) (*Order, error)
	FetchPayment(ctx context.Context, id string) (*Payment, error)

	// ParseWebhookEvent normalizes an already verified webhook body
	ParseWebhookEvent(body []byte, eventID string) (*WebhookEvent, error)

	// KeyID is the public key handed to the checkout widget
	KeyID() string

	GetProviderName() string
}

// Note keys written on every gateway object this service creates
const (
	NoteUserID = "user_id"
	NotePlanID = "plan_id"
	NoteAction = "action"
)

type CreateCustomerRequest struct {
	Name  string
	Email string
	Notes Notes
}

type Customer struct {
	ID    string
	Email string
	Notes Notes
}

type CreateSubscriptionRequest struct {
	GatewayPlanID string
	CustomerID    string
	// TotalCount is the number of billing cycles
	TotalCount int
	StartAt    *time.Time
	Notes      Notes
}

// Subscription is the gateway's view of a recurring subscription
type Subscription struct {
	ID           string
	PlanID       string
	CustomerID   string
	Status       string
	CurrentStart *time.Time
	CurrentEnd   *time.Time
	ShortURL     string
	Notes        Notes
}

type CreateOrderRequest struct {
	// Amount is in minor units
	Amount   int64
	Currency string
	Receipt  string
	Notes    Notes
}

type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
	Notes    Notes
}

type Payment struct {
	ID               string
	OrderID          string
	InvoiceID        string
	CustomerID       string
	Amount           int64
	Currency         string
	Status           string
	Method           string
	ErrorDescription string
	Notes            Notes
	CreatedAt        time.Time
}

// Webhook event types handled by the reconciler
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionPending   = "subscription.pending"
	EventSubscriptionHalted    = "subscription.halted"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventPaymentCaptured       = "payment.captured"
	EventPaymentFailed         = "payment.failed"
)

// WebhookEvent is a normalized gateway webhook envelope
type WebhookEvent struct {
	EventID      string
	Type         string
	Subscription *Subscription
	Payment      *Payment
	CreatedAt    time.Time
}

// ProviderError is a non-2xx gateway response
type ProviderError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Retryable reports whether the call may succeed if repeated
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}
