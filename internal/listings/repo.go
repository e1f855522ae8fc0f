package listings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinkar-mx/clinkar-backend/pkg/db/models"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	"github.com/clinkar-mx/clinkar-backend/pkg/pagination"
)

// Repository exposes persistence helpers for vehicle listings.
//
// All status writes are conditional on the expected prior status so that
// concurrent buyers cannot both reserve the same vehicle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, vehicle *models.Vehicle) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	List(ctx context.Context, params listVehiclesParams) ([]models.Vehicle, *pagination.Cursor, error)
	TryReserve(ctx context.Context, id uuid.UUID) (bool, error)
	Release(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSold(ctx context.Context, id uuid.UUID) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a listings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listVehiclesParams struct {
	Status enums.VehicleStatus
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, vehicle *models.Vehicle) error {
	if vehicle.ID == uuid.Nil {
		vehicle.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(vehicle).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&vehicle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vehicle, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listVehiclesParams) ([]models.Vehicle, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Vehicle{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var vehicles []models.Vehicle
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&vehicles).Error; err != nil {
		return nil, nil, err
	}

	if len(vehicles) > normalized {
		next := vehicles[normalized]
		vehicles = vehicles[:normalized]
		return vehicles, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return vehicles, nil, nil
}

// TryReserve flips an available vehicle to reserved. A false return means the
// vehicle was not available; exactly one of two concurrent callers wins.
func (r *repositoryImpl) TryReserve(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.updateStatus(ctx, id, enums.VehicleStatusAvailable, enums.VehicleStatusReserved)
}

// Release returns a reserved vehicle to the available pool.
func (r *repositoryImpl) Release(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.updateStatus(ctx, id, enums.VehicleStatusReserved, enums.VehicleStatusAvailable)
}

// MarkSold finalizes a reserved vehicle after handover verification.
func (r *repositoryImpl) MarkSold(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.updateStatus(ctx, id, enums.VehicleStatusReserved, enums.VehicleStatusSold)
}

func (r *repositoryImpl) updateStatus(ctx context.Context, id uuid.UUID, from, to enums.VehicleStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Vehicle{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
