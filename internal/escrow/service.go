package escrow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/clinkar-mx/clinkar-backend/internal/listings"
	"github.com/clinkar-mx/clinkar-backend/internal/notifications"
	"github.com/clinkar-mx/clinkar-backend/internal/payments"
	"github.com/clinkar-mx/clinkar-backend/pkg/db"
	"github.com/clinkar-mx/clinkar-backend/pkg/db/models"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
	"github.com/clinkar-mx/clinkar-backend/pkg/metrics"
)

const (
	handoverTokenBytes = 16
	expireBatchSize    = 100

	fundingLookupAttempts = 5
	fundingLookupBackoff  = 200 * time.Millisecond
)

var errFundingUnmatched = errors.New("funding reference unmatched")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service orchestrates the digital vault flow: reserve the listing, hold
// funds, and release them once the physical handover is verified.
type Service interface {
	Initiate(ctx context.Context, buyerID uuid.UUID, input InitiateInput) (*InitiateResult, error)
	GetTransaction(ctx context.Context, id uuid.UUID, actor Actor) (*models.Transaction, error)
	ConfirmFunding(ctx context.Context, provider enums.PaymentProvider, providerRef string) error
	FailFunding(ctx context.Context, provider enums.PaymentProvider, providerRef, reason string) error
	IssueHandoverToken(ctx context.Context, transactionID, buyerID uuid.UUID) (*HandoverIssue, error)
	Redeem(ctx context.Context, token string) (*RedeemResult, error)
	ExpireStale(ctx context.Context) (int, error)
}

// Actor identifies the authenticated caller for authorization checks.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// InitiateInput starts an escrow purchase against a listing.
type InitiateInput struct {
	VehicleID uuid.UUID
	Provider  enums.PaymentProvider
}

// InitiateResult carries the created ledger entry plus the provider redirect.
type InitiateResult struct {
	Transaction *models.Transaction
	RedirectURL string
}

// HandoverIssue is the single-use QR payload handed to the buyer.
type HandoverIssue struct {
	Token     string
	VerifyURL string
}

// RedeemResult reports the outcome of a handover verification.
type RedeemResult struct {
	Transaction *models.Transaction
}

// Settings carries the vault workflow knobs resolved from configuration.
type Settings struct {
	BuyerCommission decimal.Decimal
	ReservationTTL  time.Duration
	BaseURL         string
}

type service struct {
	tx       txRunner
	repo     Repository
	vehicles listings.Repository
	notifier notifications.Service
	gateways map[enums.PaymentProvider]payments.Gateway
	logg     *logger.Logger
	metrics  *metrics.EscrowMetrics
	settings Settings
	now      func() time.Time
}

// ServiceParams wires escrow dependencies.
type ServiceParams struct {
	Tx            txRunner
	Repo          Repository
	Vehicles      listings.Repository
	Notifier      notifications.Service
	Gateways      []payments.Gateway
	Logger        *logger.Logger
	EscrowMetrics *metrics.EscrowMetrics
	Settings      Settings
}

// NewService builds the escrow orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.Vehicles == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if len(params.Gateways) == 0 {
		return nil, fmt.Errorf("at least one payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settings.ReservationTTL <= 0 {
		return nil, fmt.Errorf("reservation ttl must be positive")
	}
	if params.Settings.BuyerCommission.IsNegative() {
		return nil, fmt.Errorf("buyer commission must not be negative")
	}

	gateways := make(map[enums.PaymentProvider]payments.Gateway, len(params.Gateways))
	for _, gateway := range params.Gateways {
		gateways[gateway.Provider()] = gateway
	}

	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		vehicles: params.Vehicles,
		notifier: params.Notifier,
		gateways: gateways,
		logg:     params.Logger,
		metrics:  params.EscrowMetrics,
		settings: params.Settings,
		now:      time.Now,
	}, nil
}

func (s *service) Initiate(ctx context.Context, buyerID uuid.UUID, input InitiateInput) (*InitiateResult, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.VehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	gateway, ok := s.gateways[input.Provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider")
	}

	vehicle, err := s.vehicles.FindByID(ctx, input.VehicleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicle")
	}
	if vehicle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
	}
	if vehicle.SellerID == buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "sellers cannot buy their own listing")
	}
	if vehicle.Status != enums.VehicleStatusAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "vehicle is not available")
	}

	now := s.now().UTC()
	transaction := &models.Transaction{
		ID:              uuid.New(),
		VehicleID:       vehicle.ID,
		BuyerID:         buyerID,
		SellerID:        vehicle.SellerID,
		VehiclePrice:    vehicle.Price,
		BuyerCommission: s.settings.BuyerCommission,
		Currency:        vehicle.Currency,
		Provider:        input.Provider,
		Status:          enums.TransactionStatusCreated,
		ReservedUntil:   now.Add(s.settings.ReservationTTL),
	}

	// The provider session is opened before the database transaction so a
	// rollback never leaves a reserved listing pointing at nothing. An
	// orphaned session for a never-created row is inert: its webhook will
	// match no provider_ref and gets flagged for reconciliation.
	session, err := gateway.CreateSession(ctx, payments.SessionParams{
		TransactionID: transaction.ID,
		Amount:        transaction.Amount(),
		Currency:      transaction.Currency,
		VehicleTitle:  vehicleTitle(vehicle),
		SuccessURL:    s.purchaseURL(transaction.ID, "exito"),
		CancelURL:     s.purchaseURL(transaction.ID, "cancelado"),
	})
	if err != nil {
		return nil, err
	}
	transaction.ProviderRef = &session.Reference

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reserved, reserveErr := s.vehicles.WithTx(tx).TryReserve(ctx, vehicle.ID)
		if reserveErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, reserveErr, "reserve vehicle")
		}
		if !reserved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "vehicle is not available")
		}
		if createErr := s.repo.WithTx(tx).Create(ctx, transaction); createErr != nil {
			if db.IsUniqueViolation(createErr, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "vehicle already has an active escrow")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create transaction")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())
	s.logg.Info(s.logg.WithVehicleID(ctx, vehicle.ID.String()), "escrow initiated")

	return &InitiateResult{
		Transaction: transaction,
		RedirectURL: session.RedirectURL,
	}, nil
}

func (s *service) GetTransaction(ctx context.Context, id uuid.UUID, actor Actor) (*models.Transaction, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	transaction, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if actor.Role != enums.ActorRoleAdmin &&
		actor.UserID != transaction.BuyerID &&
		actor.UserID != transaction.SellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this transaction")
	}
	return transaction, nil
}

// ConfirmFunding moves a transaction into the vault after the provider
// reports a successful payment. Replays and unknown references are both
// acknowledged without error so the provider stops retrying.
func (s *service) ConfirmFunding(ctx context.Context, provider enums.PaymentProvider, providerRef string) error {
	transaction, err := s.lookupByProviderRef(ctx, provider, providerRef)
	if err != nil {
		return err
	}
	if transaction == nil {
		s.metrics.IncUnmatchedFunding(provider.String())
		s.logg.Warn(s.logg.WithField(ctx, "provider_ref", providerRef), "funding event matched no transaction")
		return nil
	}

	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())

	switch transaction.Status {
	case enums.TransactionStatusInVault, enums.TransactionStatusReleased:
		return nil
	case enums.TransactionStatusExpired, enums.TransactionStatusFailed:
		// Funds arrived after the reservation died. Needs a manual refund,
		// so surface it loudly instead of silently absorbing the event.
		s.metrics.IncUnmatchedFunding(provider.String())
		s.logg.Warn(ctx, "funding arrived after terminal status, refund required")
		return nil
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, updateErr := s.repo.WithTx(tx).UpdateStatus(ctx, transaction.ID,
			enums.TransactionStatusCreated, enums.TransactionStatusInVault,
			map[string]any{"funded_at": now})
		if updateErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "confirm funding")
		}
		if !moved {
			// Lost the race to another delivery of the same event.
			return nil
		}
		if notifyErr := s.notifyFunded(ctx, tx, transaction); notifyErr != nil {
			return notifyErr
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logg.Info(ctx, "funds confirmed in vault")
	return nil
}

// FailFunding records a definitive provider failure and returns the listing
// to the available pool.
func (s *service) FailFunding(ctx context.Context, provider enums.PaymentProvider, providerRef, reason string) error {
	transaction, err := s.lookupByProviderRef(ctx, provider, providerRef)
	if err != nil {
		return err
	}
	if transaction == nil {
		s.logg.Warn(s.logg.WithField(ctx, "provider_ref", providerRef), "failure event matched no transaction")
		return nil
	}
	if transaction.Status != enums.TransactionStatusCreated {
		return nil
	}

	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{"failure_reason": reason}
		moved, updateErr := s.repo.WithTx(tx).UpdateStatus(ctx, transaction.ID,
			enums.TransactionStatusCreated, enums.TransactionStatusFailed, updates)
		if updateErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "mark transaction failed")
		}
		if !moved {
			return nil
		}
		if _, releaseErr := s.vehicles.WithTx(tx).Release(ctx, transaction.VehicleID); releaseErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, releaseErr, "release vehicle")
		}
		return s.notifier.Notify(ctx, tx, notifications.NotifyInput{
			UserID:  transaction.BuyerID,
			Type:    enums.NotificationTypePaymentFailed,
			Title:   "Payment failed",
			Message: "Your payment could not be completed and the vehicle was released.",
			Link:    s.transactionLink(transaction.ID),
		})
	})
	if err != nil {
		return err
	}

	s.logg.Info(ctx, "funding marked failed")
	return nil
}

// IssueHandoverToken mints the single-use verification token for the buyer.
// Repeat calls return the token issued first.
func (s *service) IssueHandoverToken(ctx context.Context, transactionID, buyerID uuid.UUID) (*HandoverIssue, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}

	transaction, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if transaction.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can request the handover token")
	}
	if transaction.Status != enums.TransactionStatusInVault {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "funds are not in the vault")
	}
	if transaction.HandoverToken != nil {
		return s.handoverIssue(*transaction.HandoverToken), nil
	}

	token, err := newHandoverToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate handover token")
	}

	set, err := s.repo.SetHandoverToken(ctx, transactionID, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store handover token")
	}
	if !set {
		// A concurrent request won; hand back whatever it minted.
		current, reloadErr := s.repo.FindByID(ctx, transactionID)
		if reloadErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, reloadErr, "reload transaction")
		}
		if current == nil || current.HandoverToken == nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "funds are not in the vault")
		}
		return s.handoverIssue(*current.HandoverToken), nil
	}

	s.logg.Info(s.logg.WithTransactionID(ctx, transactionID.String()), "handover token issued")
	return s.handoverIssue(token), nil
}

// Redeem verifies the handover token, releases funds to the seller, and
// finalizes the listing as sold.
func (s *service) Redeem(ctx context.Context, token string) (*RedeemResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "handover token required")
	}

	transaction, err := s.repo.FindByHandoverToken(ctx, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction by token")
	}
	if transaction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invalid handover token")
	}
	if transaction.Status == enums.TransactionStatusReleased {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "handover already verified")
	}
	if transaction.Status != enums.TransactionStatusInVault {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "funds are not in the vault")
	}

	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())
	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, updateErr := s.repo.WithTx(tx).UpdateStatus(ctx, transaction.ID,
			enums.TransactionStatusInVault, enums.TransactionStatusReleased,
			map[string]any{"released_at": now})
		if updateErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "release funds")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "handover already verified")
		}
		if _, soldErr := s.vehicles.WithTx(tx).MarkSold(ctx, transaction.VehicleID); soldErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, soldErr, "mark vehicle sold")
		}
		return s.notifyReleased(ctx, tx, transaction)
	})
	if err != nil {
		return nil, err
	}

	transaction.Status = enums.TransactionStatusReleased
	transaction.ReleasedAt = &now

	s.metrics.IncReleased()
	s.logg.Info(ctx, "handover verified, funds released")
	return &RedeemResult{Transaction: transaction}, nil
}

// ExpireStale sweeps unfunded transactions past their reservation window,
// expiring the ledger row and returning each listing to the market. Failures
// on individual rows are combined so one bad row does not stall the sweep.
func (s *service) ExpireStale(ctx context.Context) (int, error) {
	now := s.now().UTC()
	stale, err := s.repo.FindExpiredCreated(ctx, now, expireBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale reservations")
	}

	expired := 0
	var errs error
	for _, transaction := range stale {
		if expireErr := s.expireOne(ctx, transaction, now); expireErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", transaction.ID, expireErr))
			continue
		}
		expired++
	}
	return expired, errs
}

func (s *service) expireOne(ctx context.Context, transaction models.Transaction, now time.Time) error {
	ctx = s.logg.WithTransactionID(ctx, transaction.ID.String())
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, updateErr := s.repo.WithTx(tx).UpdateStatus(ctx, transaction.ID,
			enums.TransactionStatusCreated, enums.TransactionStatusExpired,
			map[string]any{"expired_at": now})
		if updateErr != nil {
			return updateErr
		}
		if !moved {
			// Funded or failed between the scan and this write; leave it.
			return nil
		}
		if _, releaseErr := s.vehicles.WithTx(tx).Release(ctx, transaction.VehicleID); releaseErr != nil {
			return releaseErr
		}
		return s.notifier.Notify(ctx, tx, notifications.NotifyInput{
			UserID:  transaction.BuyerID,
			Type:    enums.NotificationTypeReservationExpired,
			Title:   "Reservation expired",
			Message: "Your reservation expired before payment arrived. The vehicle is available again.",
			Link:    s.transactionLink(transaction.ID),
		})
	})
	if err != nil {
		return err
	}

	s.metrics.IncExpired()
	s.logg.Info(ctx, "reservation expired")
	return nil
}

// lookupByProviderRef tolerates webhook deliveries racing the initiate
// commit by retrying the lookup briefly before declaring the ref unmatched.
func (s *service) lookupByProviderRef(ctx context.Context, provider enums.PaymentProvider, providerRef string) (*models.Transaction, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider ref required")
	}
	if !provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment provider")
	}

	var found *models.Transaction
	backoff := retry.WithMaxRetries(fundingLookupAttempts, retry.NewConstant(fundingLookupBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		transaction, lookupErr := s.repo.FindByProviderRef(ctx, provider, providerRef)
		if lookupErr != nil {
			return lookupErr
		}
		if transaction == nil {
			return retry.RetryableError(errFundingUnmatched)
		}
		found = transaction
		return nil
	})
	if err != nil {
		if errors.Is(err, errFundingUnmatched) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup transaction")
	}
	return found, nil
}

func (s *service) notifyFunded(ctx context.Context, tx *gorm.DB, transaction *models.Transaction) error {
	link := s.transactionLink(transaction.ID)
	if err := s.notifier.Notify(ctx, tx, notifications.NotifyInput{
		UserID:  transaction.BuyerID,
		Type:    enums.NotificationTypeFundsInVault,
		Title:   "Funds secured",
		Message: "Your payment is held in the digital vault. Coordinate the handover with the seller.",
		Link:    link,
	}); err != nil {
		return err
	}
	return s.notifier.Notify(ctx, tx, notifications.NotifyInput{
		UserID:  transaction.SellerID,
		Type:    enums.NotificationTypeFundsInVault,
		Title:   "Buyer payment secured",
		Message: "The buyer's funds are in the vault. You can proceed with the handover.",
		Link:    link,
	})
}

func (s *service) notifyReleased(ctx context.Context, tx *gorm.DB, transaction *models.Transaction) error {
	link := s.transactionLink(transaction.ID)
	if err := s.notifier.Notify(ctx, tx, notifications.NotifyInput{
		UserID:  transaction.SellerID,
		Type:    enums.NotificationTypeHandoverComplete,
		Title:   "Funds released",
		Message: "The handover was verified and the funds were released to you.",
		Link:    link,
	}); err != nil {
		return err
	}
	return s.notifier.Notify(ctx, tx, notifications.NotifyInput{
		UserID:  transaction.BuyerID,
		Type:    enums.NotificationTypeHandoverComplete,
		Title:   "Purchase complete",
		Message: "The handover was verified. Enjoy your new vehicle.",
		Link:    link,
	})
}

func (s *service) handoverIssue(token string) *HandoverIssue {
	return &HandoverIssue{
		Token:     token,
		VerifyURL: fmt.Sprintf("%s/verify/handover/%s", strings.TrimRight(s.settings.BaseURL, "/"), token),
	}
}

func (s *service) purchaseURL(transactionID uuid.UUID, outcome string) string {
	return fmt.Sprintf("%s/compra/%s/%s", strings.TrimRight(s.settings.BaseURL, "/"), transactionID, outcome)
}

func (s *service) transactionLink(transactionID uuid.UUID) *string {
	link := fmt.Sprintf("/transactions/%s", transactionID)
	return &link
}

func newHandoverToken() (string, error) {
	raw := make([]byte, handoverTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func vehicleTitle(vehicle *models.Vehicle) string {
	return fmt.Sprintf("%d %s %s", vehicle.Year, vehicle.Make, vehicle.Model)
}
