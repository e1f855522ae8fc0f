package payments

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
)

func TestMinorUnits(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		amount  string
		want    int64
		wantErr bool
	}{
		{"whole pesos", "3448.00", 344800, false},
		{"with centavos", "249999.99", 24999999, false},
		{"sub-centavo", "100.005", 0, true},
		{"zero", "0", 0, true},
		{"negative", "-12.50", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MinorUnits(decimal.RequireFromString(tc.amount))
			if tc.wantErr {
				typed := pkgerrors.As(err)
				if typed == nil || typed.Code() != pkgerrors.CodeValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d centavos, got %d", tc.want, got)
			}
		})
	}
}

type fakeSessionCreator struct {
	got     *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeSessionCreator) Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func TestStripeGatewayCreateSession(t *testing.T) {
	t.Parallel()

	fake := &fakeSessionCreator{
		session: &stripe.CheckoutSession{
			ID:  "cs_test_123",
			URL: "https://checkout.stripe.com/pay/cs_test_123",
		},
	}
	gateway := &StripeGateway{sessions: fake}
	txID := uuid.New()

	session, err := gateway.CreateSession(context.Background(), SessionParams{
		TransactionID: txID,
		Amount:        decimal.RequireFromString("383448.00"),
		Currency:      enums.CurrencyMXN,
		VehicleTitle:  "2020 Mazda CX-5",
		SuccessURL:    "https://clinkar.mx/compra/exito",
		CancelURL:     "https://clinkar.mx/compra/cancelado",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Reference != "cs_test_123" {
		t.Fatalf("expected stripe session id as reference, got %s", session.Reference)
	}
	if session.RedirectURL != fake.session.URL {
		t.Fatalf("expected hosted checkout url, got %s", session.RedirectURL)
	}

	params := fake.got
	if params == nil || len(params.LineItems) != 1 {
		t.Fatalf("expected one line item")
	}
	item := params.LineItems[0]
	if got := *item.PriceData.UnitAmount; got != 38344800 {
		t.Fatalf("expected amount in centavos, got %d", got)
	}
	if got := *item.PriceData.Currency; got != "mxn" {
		t.Fatalf("expected lowercase currency, got %s", got)
	}
	if got := *item.PriceData.ProductData.Name; got != "2020 Mazda CX-5" {
		t.Fatalf("unexpected product name: %s", got)
	}
	if got := params.Metadata[transactionMetadataKey]; got != txID.String() {
		t.Fatalf("expected transaction id in metadata, got %q", got)
	}
}

func TestStripeGatewayRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	gateway := &StripeGateway{sessions: &fakeSessionCreator{}}
	cases := []struct {
		name   string
		params SessionParams
	}{
		{"missing transaction id", SessionParams{
			Amount:   decimal.RequireFromString("100.00"),
			Currency: enums.CurrencyMXN,
		}},
		{"bad currency", SessionParams{
			TransactionID: uuid.New(),
			Amount:        decimal.RequireFromString("100.00"),
			Currency:      enums.Currency("doubloons"),
		}},
		{"non-positive amount", SessionParams{
			TransactionID: uuid.New(),
			Amount:        decimal.Zero,
			Currency:      enums.CurrencyMXN,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gateway.CreateSession(context.Background(), tc.params)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSPEIReferenceIsDeterministic(t *testing.T) {
	t.Parallel()

	txID := uuid.NewString()
	first := SPEIReference(txID)
	second := SPEIReference(txID)
	if first != second {
		t.Fatalf("expected stable reference, got %s and %s", first, second)
	}
	if !strings.HasPrefix(first, "spei_") {
		t.Fatalf("expected spei_ prefix, got %s", first)
	}
	if len(first) != len("spei_")+20 {
		t.Fatalf("unexpected reference length: %d", len(first))
	}
	if other := SPEIReference(uuid.NewString()); other == first {
		t.Fatalf("expected distinct references for distinct transactions")
	}
}

func TestSPEIGatewayCreateSession(t *testing.T) {
	t.Parallel()

	gateway := NewSPEIGateway("https://clinkar.mx/")
	txID := uuid.New()

	session, err := gateway.CreateSession(context.Background(), SessionParams{
		TransactionID: txID,
		Amount:        decimal.RequireFromString("248448.00"),
		Currency:      enums.CurrencyMXN,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Reference != SPEIReference(txID.String()) {
		t.Fatalf("unexpected reference: %s", session.Reference)
	}
	want := "https://clinkar.mx/pago/spei/" + session.Reference
	if session.RedirectURL != want {
		t.Fatalf("expected %s, got %s", want, session.RedirectURL)
	}
}
