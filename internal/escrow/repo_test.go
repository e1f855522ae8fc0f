package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clinkar-mx/clinkar-backend/pkg/db/models"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:escrow_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Transaction{}); err != nil {
		t.Fatalf("migrate transactions: %v", err)
	}
	return db
}

func seedTransaction(t *testing.T, db *gorm.DB, status enums.TransactionStatus) *models.Transaction {
	t.Helper()
	ref := "cs_test_" + uuid.NewString()
	transaction := &models.Transaction{
		ID:              uuid.New(),
		VehicleID:       uuid.New(),
		BuyerID:         uuid.New(),
		SellerID:        uuid.New(),
		VehiclePrice:    decimal.RequireFromString("245000.00"),
		BuyerCommission: decimal.RequireFromString("3448.00"),
		Currency:        enums.CurrencyMXN,
		Provider:        enums.PaymentProviderStripe,
		ProviderRef:     &ref,
		Status:          status,
		ReservedUntil:   time.Now().UTC().Add(30 * time.Minute),
	}
	if err := db.Create(transaction).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return transaction
}

func TestUpdateStatusIsCompareAndSet(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	transaction := seedTransaction(t, db, enums.TransactionStatusCreated)

	now := time.Now().UTC()
	moved, err := repo.UpdateStatus(ctx, transaction.ID,
		enums.TransactionStatusCreated, enums.TransactionStatusInVault,
		map[string]any{"funded_at": now})
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if !moved {
		t.Fatalf("expected first update to win")
	}

	moved, err = repo.UpdateStatus(ctx, transaction.ID,
		enums.TransactionStatusCreated, enums.TransactionStatusInVault, nil)
	if err != nil {
		t.Fatalf("replay update: %v", err)
	}
	if moved {
		t.Fatalf("expected replay to be a no-op")
	}

	var stored models.Transaction
	if err := db.First(&stored, "id = ?", transaction.ID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if stored.Status != enums.TransactionStatusInVault {
		t.Fatalf("expected in_vault, got %s", stored.Status)
	}
	if stored.FundedAt == nil {
		t.Fatalf("expected funded_at to be set")
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	transaction := seedTransaction(t, db, enums.TransactionStatusReleased)

	moved, err := repo.UpdateStatus(ctx, transaction.ID,
		enums.TransactionStatusReleased, enums.TransactionStatusCreated, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if moved {
		t.Fatalf("expected terminal status to stay put")
	}
}

func TestSetHandoverTokenIsSingleShot(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	transaction := seedTransaction(t, db, enums.TransactionStatusInVault)

	set, err := repo.SetHandoverToken(ctx, transaction.ID, "aaaabbbbccccddddeeeeffff00001111")
	if err != nil {
		t.Fatalf("first set: %v", err)
	}
	if !set {
		t.Fatalf("expected first token write to succeed")
	}

	set, err = repo.SetHandoverToken(ctx, transaction.ID, "11110000ffffeeeeddddccccbbbbaaaa")
	if err != nil {
		t.Fatalf("second set: %v", err)
	}
	if set {
		t.Fatalf("expected second token write to be rejected")
	}

	found, err := repo.FindByHandoverToken(ctx, "aaaabbbbccccddddeeeeffff00001111")
	if err != nil {
		t.Fatalf("find by token: %v", err)
	}
	if found == nil || found.ID != transaction.ID {
		t.Fatalf("expected to find transaction by its first token")
	}
}

func TestSetHandoverTokenRequiresVaultedFunds(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	transaction := seedTransaction(t, db, enums.TransactionStatusCreated)

	set, err := repo.SetHandoverToken(ctx, transaction.ID, "aaaabbbbccccddddeeeeffff00001111")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if set {
		t.Fatalf("expected token write to be rejected before funding")
	}
}

func TestFindByProviderRefScopedToProvider(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	transaction := seedTransaction(t, db, enums.TransactionStatusCreated)

	found, err := repo.FindByProviderRef(ctx, enums.PaymentProviderStripe, *transaction.ProviderRef)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != transaction.ID {
		t.Fatalf("expected to find transaction by provider ref")
	}

	found, err = repo.FindByProviderRef(ctx, enums.PaymentProviderSPEI, *transaction.ProviderRef)
	if err != nil {
		t.Fatalf("find with wrong provider: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no match under a different provider")
	}
}

func TestFindExpiredCreated(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := seedTransaction(t, db, enums.TransactionStatusCreated)
	if err := db.Model(stale).UpdateColumn("reserved_until", now.Add(-time.Minute)).Error; err != nil {
		t.Fatalf("age transaction: %v", err)
	}
	seedTransaction(t, db, enums.TransactionStatusCreated)

	funded := seedTransaction(t, db, enums.TransactionStatusInVault)
	if err := db.Model(funded).UpdateColumn("reserved_until", now.Add(-time.Minute)).Error; err != nil {
		t.Fatalf("age funded transaction: %v", err)
	}

	expired, err := repo.FindExpiredCreated(ctx, now, 10)
	if err != nil {
		t.Fatalf("find expired: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected 1 stale transaction, got %d", len(expired))
	}
	if expired[0].ID != stale.ID {
		t.Fatalf("expected the aged created transaction")
	}
}
