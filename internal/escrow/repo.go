package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinkar-mx/clinkar-backend/pkg/db/models"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
)

// Repository exposes persistence helpers for escrow transactions.
//
// Status writes are compare-and-set on the expected prior status. A false
// return means another writer got there first; callers re-read and decide
// whether that is an idempotent replay or a real conflict.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transaction *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByProviderRef(ctx context.Context, provider enums.PaymentProvider, providerRef string) (*models.Transaction, error)
	FindByHandoverToken(ctx context.Context, token string) (*models.Transaction, error)
	FindExpiredCreated(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus, updates map[string]any) (bool, error)
	SetHandoverToken(ctx context.Context, id uuid.UUID, token string) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, transaction *models.Transaction) error {
	if transaction.ID == uuid.Nil {
		transaction.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

func (r *repositoryImpl) FindByProviderRef(ctx context.Context, provider enums.PaymentProvider, providerRef string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_ref = ?", provider, providerRef).
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

func (r *repositoryImpl) FindByHandoverToken(ctx context.Context, token string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := r.db.WithContext(ctx).Where("handover_token = ?", token).First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// FindExpiredCreated returns unfunded transactions whose reservation window
// has lapsed, oldest first, capped at limit.
func (r *repositoryImpl) FindExpiredCreated(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND reserved_until < ?", enums.TransactionStatusCreated, now).
		Order("reserved_until ASC").
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *repositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus, updates map[string]any) (bool, error) {
	if !enums.CanTransition(from, to) {
		return false, nil
	}

	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetHandoverToken attaches the token only while funds are vaulted and no
// token was issued yet, so a token is minted exactly once per transaction.
func (r *repositoryImpl) SetHandoverToken(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ? AND handover_token IS NULL", id, enums.TransactionStatusInVault).
		UpdateColumn("handover_token", token)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
