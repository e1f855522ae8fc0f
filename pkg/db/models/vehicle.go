package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
)

// Vehicle is a used-car listing offered for sale.
type Vehicle struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID  uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Make      string              `gorm:"column:make;type:text;not null"`
	Model     string              `gorm:"column:model;type:text;not null"`
	Year      int                 `gorm:"column:year;not null"`
	Mileage   *int                `gorm:"column:mileage"`
	Price     decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Currency  enums.Currency      `gorm:"column:currency;type:text;not null;default:'MXN'"`
	Status    enums.VehicleStatus `gorm:"column:status;type:vehicle_status;not null;default:'available'"`
	ImageURL  *string             `gorm:"column:image_url;type:text"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
