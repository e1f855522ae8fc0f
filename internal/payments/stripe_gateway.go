package payments

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	pkgstripe "github.com/clinkar-mx/clinkar-backend/pkg/stripe"
)

const transactionMetadataKey = "clinkar_transaction_id"

// checkoutSessionCreator is the subset of Stripe operations the gateway
// needs, extracted so the gateway can be tested without hitting Stripe.
type checkoutSessionCreator interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessionAPI struct{}

func (stripeSessionAPI) Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return checkoutsession.New(params)
}

// StripeGateway opens Stripe Checkout sessions for escrow funding.
type StripeGateway struct {
	sessions checkoutSessionCreator
}

// NewStripeGateway wraps the initialized Stripe client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &StripeGateway{sessions: stripeSessionAPI{}}, nil
}

// Provider implements Gateway.
func (g *StripeGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

// CreateSession implements Gateway using a hosted Checkout session.
func (g *StripeGateway) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	if err := validateSessionParams(params); err != nil {
		return nil, err
	}
	amount, err := MinorUnits(params.Amount)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(params.VehicleTitle)
	if name == "" {
		name = "Vehicle purchase"
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(string(params.Currency))),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
			},
		},
	}
	sessionParams.AddMetadata(transactionMetadataKey, params.TransactionID.String())

	created, err := g.sessions.Create(ctx, sessionParams)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe checkout session")
	}

	return &Session{
		Reference:   created.ID,
		RedirectURL: created.URL,
	}, nil
}
