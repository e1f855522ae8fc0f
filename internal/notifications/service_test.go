package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clinkar-mx/clinkar-backend/pkg/db/models"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Notification{}); err != nil {
		t.Fatalf("migrate notifications: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedNotification(t *testing.T, db *gorm.DB, userID uuid.UUID, createdAt time.Time, read bool) *models.Notification {
	t.Helper()
	notification := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      enums.NotificationTypeFundsInVault,
		Title:     "Funds secured",
		Message:   "Your payment is held in the digital vault.",
		CreatedAt: createdAt,
	}
	if read {
		readAt := createdAt.Add(time.Minute)
		notification.ReadAt = &readAt
	}
	if err := db.Create(notification).Error; err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	return notification
}

func TestNotifyValidatesInput(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newTestDB(t))
	cases := []struct {
		name  string
		input NotifyInput
	}{
		{"missing user", NotifyInput{Type: enums.NotificationTypeFundsInVault, Title: "t", Message: "m"}},
		{"bad type", NotifyInput{UserID: uuid.New(), Type: enums.NotificationType("smoke-signal"), Title: "t", Message: "m"}},
		{"missing message", NotifyInput{UserID: uuid.New(), Type: enums.NotificationTypeFundsInVault, Title: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Notify(context.Background(), nil, tc.input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNotifyJoinsCallerTransaction(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	userID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Notify(context.Background(), tx, NotifyInput{
			UserID:  userID,
			Type:    enums.NotificationTypePaymentFailed,
			Title:   "Payment failed",
			Message: "Your payment could not be completed.",
		}); err != nil {
			return err
		}
		return context.Canceled // force a rollback
	})
	if err == nil {
		t.Fatalf("expected the transaction to roll back")
	}

	var count int64
	if err := db.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to drop the notification, found %d", count)
	}
}

func TestListUnreadOnlyAndPagination(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	seedNotification(t, db, userID, base, true)
	seedNotification(t, db, userID, base.Add(time.Minute), false)
	seedNotification(t, db, userID, base.Add(2*time.Minute), false)
	seedNotification(t, db, uuid.New(), base, false) // someone else's

	unread, err := svc.List(context.Background(), ListParams{UserID: userID, UnreadOnly: true})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread.Items) != 2 {
		t.Fatalf("expected 2 unread, got %d", len(unread.Items))
	}

	page, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.Cursor == "" {
		t.Fatalf("expected a next cursor")
	}

	rest, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2, Cursor: page.Cursor})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest.Items) != 1 {
		t.Fatalf("expected 1 item on second page, got %d", len(rest.Items))
	}
	if rest.Cursor != "" {
		t.Fatalf("expected no cursor on the final page")
	}
}

func TestMarkRead(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	userID := uuid.New()
	notification := seedNotification(t, db, userID, time.Now().UTC(), false)

	if err := svc.MarkRead(context.Background(), userID, notification.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	var stored models.Notification
	if err := db.First(&stored, "id = ?", notification.ID).Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if stored.ReadAt == nil {
		t.Fatalf("expected read_at to be set")
	}

	// Marking again is a no-op, not an error.
	if err := svc.MarkRead(context.Background(), userID, notification.ID); err != nil {
		t.Fatalf("mark read twice: %v", err)
	}

	err := svc.MarkRead(context.Background(), userID, uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for unknown notification, got %v", err)
	}

	err = svc.MarkRead(context.Background(), uuid.New(), notification.ID)
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for another user's notification, got %v", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	userID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	seedNotification(t, db, userID, base, false)
	seedNotification(t, db, userID, base.Add(time.Minute), false)
	seedNotification(t, db, userID, base.Add(2*time.Minute), true)

	count, err := svc.MarkAllRead(context.Background(), userID)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 updated, got %d", count)
	}

	var unread int64
	if err := db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&unread).Error; err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected no unread rows, got %d", unread)
	}
}
