package model

import (
	"time"

	"github.com/google/uuid"
)

// Gateway object kinds a reference can point at
const (
	GatewayRefSubscription = "subscription"
	GatewayRefOrder        = "order"
)

// GatewayReference records a gateway object this service created, and for whom.
// Webhook ownership is only trusted when it matches one of these rows.
type GatewayReference struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GatewayRefID string    `gorm:"column:gateway_ref_id;size:100;not null;uniqueIndex" json:"gateway_ref_id"`
	Kind         string    `gorm:"size:20;not null" json:"kind"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	PlanID       uuid.UUID `gorm:"type:uuid;not null" json:"plan_id"`
	Action       string    `gorm:"size:20;not null" json:"action"`
	CreatedAt    time.Time `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (GatewayReference) TableName() string {
	return "gateway_references"
}
