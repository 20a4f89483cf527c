package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a subscriber known to the platform
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:320;not null" json:"email"`
	Name      string    `gorm:"size:200" json:"name"`
	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}
