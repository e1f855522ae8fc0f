package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinkar-mx/clinkar-backend/api/responses"
	"github.com/clinkar-mx/clinkar-backend/internal/escrow"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
)

// VerifyHandover redeems a handover token scanned at the physical meeting.
// The endpoint is public: possession of the token is the credential.
func VerifyHandover(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		result, err := svc.Redeem(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transaction": toTransactionResponse(result.Transaction),
			"message":     "handover verified, funds released",
		})
	}
}
