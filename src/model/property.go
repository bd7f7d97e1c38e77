package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Property is a rental unit managed on behalf of an owner.
type Property struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OwnerID     uint            `gorm:"index" json:"owner_id"`
	Name        string          `gorm:"size:120;not null" json:"name"`
	Address     string          `gorm:"size:255" json:"address"`
	City        string          `gorm:"size:100;index" json:"city"`
	NightlyRate decimal.Decimal `gorm:"type:numeric(12,2)" json:"nightly_rate"`
	MaxGuests   int             `json:"max_guests"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreatePropertyPayload is the body accepted by POST /api/properties.
type CreatePropertyPayload struct {
	OwnerID     uint   `json:"owner_id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	NightlyRate string `json:"nightly_rate"`
	MaxGuests   int    `json:"max_guests"`
}
