package listings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clinkar-mx/clinkar-backend/pkg/db/models"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	"github.com/clinkar-mx/clinkar-backend/pkg/pagination"
)

type stubListingsRepo struct {
	created  *models.Vehicle
	findByID func(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	list     func(ctx context.Context, params listVehiclesParams) ([]models.Vehicle, *pagination.Cursor, error)
}

func (s *stubListingsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubListingsRepo) Create(ctx context.Context, vehicle *models.Vehicle) error {
	vehicle.ID = uuid.New()
	s.created = vehicle
	return nil
}

func (s *stubListingsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	if s.findByID != nil {
		return s.findByID(ctx, id)
	}
	return nil, nil
}

func (s *stubListingsRepo) List(ctx context.Context, params listVehiclesParams) ([]models.Vehicle, *pagination.Cursor, error) {
	if s.list != nil {
		return s.list(ctx, params)
	}
	return nil, nil, nil
}

func (s *stubListingsRepo) TryReserve(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubListingsRepo) Release(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubListingsRepo) MarkSold(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()

	repo := &stubListingsRepo{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"missing make", CreateInput{Model: "Jetta", Year: 2020, Price: decimal.RequireFromString("150000")}},
		{"year too old", CreateInput{Make: "VW", Model: "Jetta", Year: 1940, Price: decimal.RequireFromString("150000")}},
		{"zero price", CreateInput{Make: "VW", Model: "Jetta", Year: 2020, Price: decimal.Zero}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), uuid.New(), tc.input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateDefaultsStatusAndCurrency(t *testing.T) {
	t.Parallel()

	repo := &stubListingsRepo{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	sellerID := uuid.New()
	vehicle, err := svc.Create(context.Background(), sellerID, CreateInput{
		Make:  "Toyota",
		Model: "Corolla",
		Year:  2022,
		Price: decimal.RequireFromString("310000.00"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if vehicle.Status != enums.VehicleStatusAvailable {
		t.Fatalf("expected available status, got %s", vehicle.Status)
	}
	if vehicle.Currency != enums.CurrencyMXN {
		t.Fatalf("expected MXN currency, got %s", vehicle.Currency)
	}
	if vehicle.SellerID != sellerID {
		t.Fatalf("expected seller id to be kept")
	}
	if repo.created == nil {
		t.Fatalf("expected vehicle persisted")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	t.Parallel()

	svc, err := NewService(&stubListingsRepo{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.GetByID(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListRejectsBadStatusFilter(t *testing.T) {
	t.Parallel()

	svc, err := NewService(&stubListingsRepo{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.List(context.Background(), ListParams{Status: "melted"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
