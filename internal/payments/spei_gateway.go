package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
)

// SPEIGateway simulates a SPEI bank-transfer rail. References are derived
// deterministically from the transaction id so a test or demo environment
// can replay the full funding flow without provider credentials.
type SPEIGateway struct {
	baseURL string
}

// NewSPEIGateway builds the simulated gateway. baseURL is the public site
// root used to build the payment-instructions page link.
func NewSPEIGateway(baseURL string) *SPEIGateway {
	return &SPEIGateway{baseURL: strings.TrimRight(baseURL, "/")}
}

// Provider implements Gateway.
func (g *SPEIGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderSPEI
}

// CreateSession implements Gateway with a deterministic reference.
func (g *SPEIGateway) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	if err := validateSessionParams(params); err != nil {
		return nil, err
	}
	if _, err := MinorUnits(params.Amount); err != nil {
		return nil, err
	}

	reference := SPEIReference(params.TransactionID.String())
	return &Session{
		Reference:   reference,
		RedirectURL: fmt.Sprintf("%s/pago/spei/%s", g.baseURL, reference),
	}, nil
}

// SPEIReference derives the deposit reference for a transaction id. The
// prefix keeps simulated references distinguishable from Stripe session ids.
func SPEIReference(transactionID string) string {
	sum := sha256.Sum256([]byte(transactionID))
	return "spei_" + hex.EncodeToString(sum[:])[:20]
}
