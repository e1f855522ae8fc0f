package speiwebhook

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
)

// Event types emitted by the simulated SPEI rail.
const (
	EventPaymentReceived = "spei.payment.received"
	EventPaymentReturned = "spei.payment.returned"
)

// Event is the simulated SPEI webhook payload.
type Event struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
}

type fundingSink interface {
	ConfirmFunding(ctx context.Context, provider enums.PaymentProvider, providerRef string) error
	FailFunding(ctx context.Context, provider enums.PaymentProvider, providerRef, reason string) error
}

// Service translates simulated SPEI transfer events into escrow funding
// outcomes.
type Service struct {
	escrow fundingSink
}

func NewService(escrow fundingSink) (*Service, error) {
	if escrow == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow service required")
	}
	return &Service{escrow: escrow}, nil
}

// ParseEvent decodes and validates a SPEI webhook body.
func ParseEvent(body io.Reader) (*Event, error) {
	var event Event
	if err := json.NewDecoder(body).Decode(&event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode spei event")
	}
	event.EventID = strings.TrimSpace(event.EventID)
	event.Reference = strings.TrimSpace(event.Reference)
	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if event.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	return &event, nil
}

// HandleEvent routes one SPEI event. Unknown event types are acknowledged
// without action.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "spei event required")
	}

	switch event.Type {
	case EventPaymentReceived:
		return s.escrow.ConfirmFunding(ctx, enums.PaymentProviderSPEI, event.Reference)
	case EventPaymentReturned:
		return s.escrow.FailFunding(ctx, enums.PaymentProviderSPEI, event.Reference, "transfer returned")
	default:
		return nil
	}
}
