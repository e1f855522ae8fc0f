package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinkar-mx/clinkar-backend/api/responses"
	"github.com/clinkar-mx/clinkar-backend/api/validators"
	"github.com/clinkar-mx/clinkar-backend/internal/listings"
	"github.com/clinkar-mx/clinkar-backend/pkg/db/models"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
	"github.com/clinkar-mx/clinkar-backend/pkg/pagination"
)

type createListingRequest struct {
	Make     string  `json:"make" validate:"required,max=60"`
	Model    string  `json:"model" validate:"required,max=60"`
	Year     int     `json:"year" validate:"required"`
	Mileage  *int    `json:"mileage" validate:"omitempty,min=0"`
	Price    string  `json:"price" validate:"required"`
	ImageURL *string `json:"imageUrl" validate:"omitempty,url"`
}

type vehicleResponse struct {
	ID       uuid.UUID `json:"id"`
	SellerID uuid.UUID `json:"sellerId"`
	Make     string    `json:"make"`
	Model    string    `json:"model"`
	Year     int       `json:"year"`
	Mileage  *int      `json:"mileage,omitempty"`
	Price    string    `json:"price"`
	Currency string    `json:"currency"`
	Status   string    `json:"status"`
	ImageURL *string   `json:"imageUrl,omitempty"`
}

func toVehicleResponse(vehicle *models.Vehicle) vehicleResponse {
	return vehicleResponse{
		ID:       vehicle.ID,
		SellerID: vehicle.SellerID,
		Make:     vehicle.Make,
		Model:    vehicle.Model,
		Year:     vehicle.Year,
		Mileage:  vehicle.Mileage,
		Price:    vehicle.Price.StringFixed(2),
		Currency: string(vehicle.Currency),
		Status:   string(vehicle.Status),
		ImageURL: vehicle.ImageURL,
	}
}

// CreateListing publishes a new vehicle for the authenticated seller.
func CreateListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}

		actor, err := actorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createListingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price"))
			return
		}

		vehicle, err := svc.Create(r.Context(), actor.UserID, listings.CreateInput{
			Make:     strings.TrimSpace(req.Make),
			Model:    strings.TrimSpace(req.Model),
			Year:     req.Year,
			Mileage:  req.Mileage,
			Price:    price,
			ImageURL: req.ImageURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toVehicleResponse(vehicle))
	}
}

// GetListing returns one vehicle by id.
func GetListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "vehicleId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle id"))
			return
		}

		vehicle, err := svc.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toVehicleResponse(vehicle))
	}
}

// ListListings returns a paginated page of vehicles, newest first.
func ListListings(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), listings.ListParams{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]vehicleResponse, len(result.Items))
		for i := range result.Items {
			items[i] = toVehicleResponse(&result.Items[i])
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  items,
			"cursor": result.Cursor,
		})
	}
}
