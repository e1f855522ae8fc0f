package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
)

// SessionParams describes the payment session to open for a transaction.
type SessionParams struct {
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	Currency      enums.Currency
	VehicleTitle  string
	SuccessURL    string
	CancelURL     string
}

// Session is the provider-side handle for a funding attempt. Reference is
// the correlation id the funding webhook reports back.
type Session struct {
	Reference   string
	RedirectURL string
}

// Gateway opens hosted payment sessions with a provider.
type Gateway interface {
	Provider() enums.PaymentProvider
	CreateSession(ctx context.Context, params SessionParams) (*Session, error)
}

// MinorUnits converts an MXN amount to centavos for provider APIs. Amounts
// with sub-centavo precision or non-positive values are rejected.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	cents := amount.Mul(decimal.NewFromInt(100))
	if !cents.Equal(cents.Truncate(0)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount has sub-centavo precision")
	}
	value := cents.IntPart()
	if value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return value, nil
}

func validateSessionParams(params SessionParams) error {
	if params.TransactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if !params.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	if !params.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return nil
}
