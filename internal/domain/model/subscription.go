package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrial       SubscriptionStatus = "trial"
	SubscriptionStatusActive      SubscriptionStatus = "active"
	SubscriptionStatusGracePeriod SubscriptionStatus = "grace_period"
	SubscriptionStatusExpired     SubscriptionStatus = "expired"
	SubscriptionStatusCancelled   SubscriptionStatus = "cancelled"
)

// GracePeriod is how long access survives a pending charge
const GracePeriod = 7 * 24 * time.Hour

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusTrial
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// IsTerminal reports whether no further transitions are allowed
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled
}

// CanCancel reports whether a cancellation applies from s
func (s SubscriptionStatus) CanCancel() bool {
	switch s {
	case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusGracePeriod:
		return true
	}
	return false
}

// Subscription is the single subscription row held per user
type Subscription struct {
	ID                    int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	PlanID                uuid.UUID          `gorm:"type:uuid;not null;index" json:"plan_id"`
	Status                SubscriptionStatus `gorm:"size:20;not null;default:'trial'" json:"status"`
	GatewaySubscriptionID *string            `gorm:"column:gateway_subscription_id;size:100;index" json:"gateway_subscription_id,omitempty"`
	GatewayCustomerID     string             `gorm:"column:gateway_customer_id;size:100" json:"gateway_customer_id"`
	TrialEndsAt           *time.Time         `json:"trial_ends_at,omitempty"`
	CurrentPeriodStart    *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd      *time.Time         `json:"current_period_end,omitempty"`
	GracePeriodEndsAt     *time.Time         `json:"grace_period_ends_at,omitempty"`
	CancelledAt           *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt             time.Time          `gorm:"default:now()" json:"created_at"`
	UpdatedAt             time.Time          `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// GatewaySubscription returns the gateway id or an empty string
func (s *Subscription) GatewaySubscription() string {
	if s.GatewaySubscriptionID == nil {
		return ""
	}
	return *s.GatewaySubscriptionID
}

// ExtendPeriod moves the billing period forward by one plan interval
// from the later of the current end and now.
func (s *Subscription) ExtendPeriod(plan *Plan, now time.Time) {
	start := now
	if s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.After(now) {
		start = *s.CurrentPeriodEnd
	}
	end := plan.NextPeriodEnd(start)
	s.CurrentPeriodStart = &start
	s.CurrentPeriodEnd = &end
}
