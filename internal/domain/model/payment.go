package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the outcome recorded in the ledger
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment is an append-only ledger row. GatewayPaymentID is unique.
type Payment struct {
	ID                    int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	GatewayPaymentID      string          `gorm:"column:gateway_payment_id;size:100;not null;uniqueIndex" json:"gateway_payment_id"`
	GatewayOrderID        *string         `gorm:"column:gateway_order_id;size:100" json:"gateway_order_id,omitempty"`
	GatewayInvoiceID      *string         `gorm:"column:gateway_invoice_id;size:100" json:"gateway_invoice_id,omitempty"`
	GatewaySubscriptionID *string         `gorm:"column:gateway_subscription_id;size:100;index" json:"gateway_subscription_id,omitempty"`
	Amount                decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency              string          `gorm:"size:3;not null" json:"currency"`
	Status                PaymentStatus   `gorm:"size:20;not null" json:"status"`
	Method                string          `gorm:"size:50" json:"method"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	FailureReason         *string         `json:"failure_reason,omitempty"`
	// PeriodApplied is set once by whichever delivery moved the billing period for this payment
	PeriodApplied         bool            `gorm:"not null;default:false" json:"-"`
	CreatedAt             time.Time       `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}
