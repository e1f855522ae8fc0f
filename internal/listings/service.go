package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinkar-mx/clinkar-backend/pkg/db/models"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	"github.com/clinkar-mx/clinkar-backend/pkg/pagination"
)

const (
	minListingYear = 1960
	maxYearAhead   = 1
)

// Service defines listing browse/create operations.
type Service interface {
	Create(ctx context.Context, sellerID uuid.UUID, input CreateInput) (*models.Vehicle, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// CreateInput carries seller-provided listing fields.
type CreateInput struct {
	Make     string
	Model    string
	Year     int
	Mileage  *int
	Price    decimal.Decimal
	ImageURL *string
}

// ListParams configures pagination and filtering for the browse surface.
type ListParams struct {
	Status string
	Limit  int
	Cursor string
}

// ListResult wraps returned vehicles and the cursor for the next page.
type ListResult struct {
	Items  []models.Vehicle `json:"items"`
	Cursor string           `json:"cursor"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires listing dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "listings repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, sellerID uuid.UUID, input CreateInput) (*models.Vehicle, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if input.Make == "" || input.Model == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "make and model required")
	}
	currentYear := s.now().UTC().Year()
	if input.Year < minListingYear || input.Year > currentYear+maxYearAhead {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle year out of range")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}

	vehicle := &models.Vehicle{
		SellerID: sellerID,
		Make:     input.Make,
		Model:    input.Model,
		Year:     input.Year,
		Mileage:  input.Mileage,
		Price:    input.Price,
		Currency: enums.CurrencyMXN,
		Status:   enums.VehicleStatusAvailable,
		ImageURL: input.ImageURL,
	}
	if err := s.repo.Create(ctx, vehicle); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
	}
	return vehicle, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	vehicle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if vehicle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
	}
	return vehicle, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listVehiclesParams{Limit: params.Limit}
	if params.Status != "" {
		status, err := enums.ParseVehicleStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = status
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vehicles")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}
