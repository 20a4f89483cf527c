package model

import (
	"database/sql/driver"
	"time"
)

// WebhookStatus represents the processing status of a webhook
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusDropped   WebhookStatus = "dropped"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// Scan implements sql.Scanner interface
func (w *WebhookStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*w = WebhookStatus(v)
	case []byte:
		*w = WebhookStatus(v)
	default:
		*w = WebhookStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (w WebhookStatus) Value() (driver.Value, error) {
	return string(w), nil
}

// WebhookEvent logs a verified gateway delivery. Payload is a sealed CryptoBox envelope.
type WebhookEvent struct {
	ID                 int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID            string        `gorm:"column:event_id;size:255;not null;uniqueIndex" json:"event_id"`
	EventType          string        `gorm:"size:100;not null;index" json:"event_type"`
	Status             WebhookStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Payload            JSONB         `gorm:"type:jsonb;not null" json:"payload"`
	ProcessingAttempts int           `gorm:"default:0" json:"processing_attempts"`
	LastError          *string       `json:"last_error,omitempty"`
	ProcessedAt        *time.Time    `json:"processed_at,omitempty"`
	GatewayCreatedAt   *time.Time    `json:"gateway_created_at,omitempty"`
	CreatedAt          time.Time     `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
