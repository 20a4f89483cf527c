package entity

import "time"

// Session actions
const (
	ActionSubscribe  = "subscribe"
	ActionChangePlan = "change_plan"
	ActionReactivate = "reactivate"
)

// AllowedActions lists every action a session token may carry
var AllowedActions = []string{ActionSubscribe, ActionChangePlan, ActionReactivate}

// PaymentSessionClaims is the claim set carried by a payment session token
type PaymentSessionClaims struct {
	UserID    string    `json:"user_id"`
	PlanID    string    `json:"plan_id"`
	Action    string    `json:"action"`
	ReturnURL string    `json:"return_url"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidationResult is the outcome of claim validation
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Invalid builds a failed ValidationResult
func Invalid(msg string) ValidationResult {
	return ValidationResult{Valid: false, Error: msg}
}

// SessionToken is returned when a session is started
type SessionToken struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	CheckoutURL string    `json:"checkout_url,omitempty"`
}
