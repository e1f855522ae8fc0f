package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
)

// Transaction is one escrow purchase attempt against a vehicle listing.
//
// ProviderRef correlates the row with the payment provider session; the
// partial unique index on (vehicle_id) where status is non-terminal keeps
// a listing from carrying two live escrows at once.
type Transaction struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	VehicleID       uuid.UUID               `gorm:"column:vehicle_id;type:uuid;not null"`
	BuyerID         uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID        uuid.UUID               `gorm:"column:seller_id;type:uuid;not null"`
	VehiclePrice    decimal.Decimal         `gorm:"column:vehicle_price;type:numeric(12,2);not null"`
	BuyerCommission decimal.Decimal         `gorm:"column:buyer_commission;type:numeric(12,2);not null"`
	Currency        enums.Currency          `gorm:"column:currency;type:text;not null;default:'MXN'"`
	Provider        enums.PaymentProvider   `gorm:"column:provider;type:payment_provider;not null"`
	ProviderRef     *string                 `gorm:"column:provider_ref;type:text;uniqueIndex"`
	HandoverToken   *string                 `gorm:"column:handover_token;type:text;uniqueIndex"`
	Status          enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'created'"`
	ReservedUntil   time.Time               `gorm:"column:reserved_until;not null"`
	FundedAt        *time.Time              `gorm:"column:funded_at"`
	ReleasedAt      *time.Time              `gorm:"column:released_at"`
	ExpiredAt       *time.Time              `gorm:"column:expired_at"`
	FailureReason   *string                 `gorm:"column:failure_reason;type:text"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// Amount is the total the buyer pays: vehicle price plus the fixed commission.
func (t Transaction) Amount() decimal.Decimal {
	return t.VehiclePrice.Add(t.BuyerCommission)
}
