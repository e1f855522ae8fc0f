package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
)

// fundingSink is the slice of escrow operations the webhook needs.
type fundingSink interface {
	ConfirmFunding(ctx context.Context, provider enums.PaymentProvider, providerRef string) error
	FailFunding(ctx context.Context, provider enums.PaymentProvider, providerRef, reason string) error
}

// Service translates Stripe Checkout events into escrow funding outcomes.
type Service struct {
	escrow fundingSink
}

func NewService(escrow fundingSink) (*Service, error) {
	if escrow == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow service required")
	}
	return &Service{escrow: escrow}, nil
}

// HandleEvent routes one verified Stripe event. Unknown event types are
// acknowledged without action.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		// Completed sessions with payment still pending settle through the
		// async_payment_succeeded event instead.
		if event.Type == stripe.EventTypeCheckoutSessionCompleted &&
			session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return nil
		}
		return s.escrow.ConfirmFunding(ctx, enums.PaymentProviderStripe, session.ID)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.escrow.FailFunding(ctx, enums.PaymentProviderStripe, session.ID, "async payment failed")
	case stripe.EventTypeCheckoutSessionExpired:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.escrow.FailFunding(ctx, enums.PaymentProviderStripe, session.ID, "checkout session expired")
	default:
		return nil
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	if session.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &session, nil
}
