package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinkar-mx/clinkar-backend/api/responses"
	"github.com/clinkar-mx/clinkar-backend/api/validators"
	"github.com/clinkar-mx/clinkar-backend/internal/escrow"
	"github.com/clinkar-mx/clinkar-backend/pkg/db/models"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
)

type transactionResponse struct {
	ID              uuid.UUID  `json:"id"`
	VehicleID       uuid.UUID  `json:"vehicleId"`
	BuyerID         uuid.UUID  `json:"buyerId"`
	SellerID        uuid.UUID  `json:"sellerId"`
	VehiclePrice    string     `json:"vehiclePrice"`
	BuyerCommission string     `json:"buyerCommission"`
	Total           string     `json:"total"`
	Currency        string     `json:"currency"`
	Provider        string     `json:"provider"`
	Status          string     `json:"status"`
	ReservedUntil   time.Time  `json:"reservedUntil"`
	FundedAt        *time.Time `json:"fundedAt,omitempty"`
	ReleasedAt      *time.Time `json:"releasedAt,omitempty"`
	ExpiredAt       *time.Time `json:"expiredAt,omitempty"`
	FailureReason   *string    `json:"failureReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func toTransactionResponse(transaction *models.Transaction) transactionResponse {
	return transactionResponse{
		ID:              transaction.ID,
		VehicleID:       transaction.VehicleID,
		BuyerID:         transaction.BuyerID,
		SellerID:        transaction.SellerID,
		VehiclePrice:    transaction.VehiclePrice.StringFixed(2),
		BuyerCommission: transaction.BuyerCommission.StringFixed(2),
		Total:           transaction.Amount().StringFixed(2),
		Currency:        string(transaction.Currency),
		Provider:        string(transaction.Provider),
		Status:          string(transaction.Status),
		ReservedUntil:   transaction.ReservedUntil,
		FundedAt:        transaction.FundedAt,
		ReleasedAt:      transaction.ReleasedAt,
		ExpiredAt:       transaction.ExpiredAt,
		FailureReason:   transaction.FailureReason,
		CreatedAt:       transaction.CreatedAt,
	}
}

type initiateCheckoutRequest struct {
	VehicleID string `json:"vehicleId" validate:"required,uuid"`
	Provider  string `json:"provider" validate:"required,oneof=stripe spei"`
}

// InitiateCheckout starts an escrow purchase: reserves the vehicle, opens a
// payment session, and returns the redirect URL for funding.
func InitiateCheckout(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		actor, err := actorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req initiateCheckoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vehicleID, err := uuid.Parse(req.VehicleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle id"))
			return
		}
		provider, err := enums.ParsePaymentProvider(strings.ToLower(req.Provider))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider"))
			return
		}

		result, err := svc.Initiate(r.Context(), actor.UserID, escrow.InitiateInput{
			VehicleID: vehicleID,
			Provider:  provider,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"transaction": toTransactionResponse(result.Transaction),
			"redirectUrl": result.RedirectURL,
		})
	}
}

// GetTransaction returns one escrow transaction visible to the caller.
func GetTransaction(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		actor, err := actorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction id"))
			return
		}

		transaction, err := svc.GetTransaction(r.Context(), id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionResponse(transaction))
	}
}

// IssueHandoverToken mints the buyer's single-use handover QR payload.
func IssueHandoverToken(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		actor, err := actorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction id"))
			return
		}

		issue, err := svc.IssueHandoverToken(r.Context(), id, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"token":     issue.Token,
			"verifyUrl": issue.VerifyURL,
		})
	}
}
