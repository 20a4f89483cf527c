package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan intervals
const (
	PlanIntervalMonthly = "monthly"
	PlanIntervalYearly  = "yearly"
)

// Plan is a purchasable subscription plan mirrored on the gateway
type Plan struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"size:200;not null" json:"name"`
	GatewayPlanID string    `gorm:"column:gateway_plan_id;size:100;not null" json:"gateway_plan_id"`
	// AmountMinor is the price in the currency's minor unit (paise, cents)
	AmountMinor   int64     `gorm:"not null" json:"amount_minor"`
	Currency      string    `gorm:"size:3;not null;default:'INR'" json:"currency"`
	Interval      string    `gorm:"size:20;not null;default:'monthly'" json:"interval"`
	IntervalCount int       `gorm:"not null;default:1" json:"interval_count"`
	TrialDays     int       `gorm:"not null;default:0" json:"trial_days"`
	IsActive      bool      `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Plan) TableName() string {
	return "plans"
}

// Amount returns the price in major units
func (p *Plan) Amount() decimal.Decimal {
	return MinorToMajor(p.AmountMinor)
}

// NextPeriodEnd returns the end of a billing period starting at from
func (p *Plan) NextPeriodEnd(from time.Time) time.Time {
	count := p.IntervalCount
	if count < 1 {
		count = 1
	}
	if p.Interval == PlanIntervalYearly {
		return from.AddDate(count, 0, 0)
	}
	return from.AddDate(0, count, 0)
}

// MinorToMajor converts an amount in minor units to a decimal in major units
func MinorToMajor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
