package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a product in the store.
// The cart and checkout engines only ever read it; catalog administration owns writes.
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Title       string          `json:"title" gorm:"type:varchar(200);not null" validate:"required,min=2,max=200"`
	Description string          `json:"description" validate:"omitempty,max=2000"`
	Category    string          `json:"category" gorm:"type:varchar(100);index" validate:"omitempty,max=100"`
	ImageURL    string          `json:"image_url,omitempty" validate:"omitempty,url"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Stock       int             `json:"stock" validate:"gte=0"`
	IsActive    bool            `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `json:"-" gorm:"index"`
}
