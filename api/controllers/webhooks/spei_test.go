package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v84"

	speiwebhook "github.com/clinkar-mx/clinkar-backend/internal/webhooks/spei"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
)

type fakeGuard struct {
	seen    map[string]bool
	deleted []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]bool{}}
}

func (f *fakeGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

func (f *fakeGuard) Delete(ctx context.Context, eventID string) error {
	delete(f.seen, eventID)
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeSPEIService struct {
	err    error
	events []*speiwebhook.Event
}

func (f *fakeSPEIService) HandleEvent(ctx context.Context, event *speiwebhook.Event) error {
	f.events = append(f.events, event)
	return f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func speiRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/spei", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSPEIWebhookProcessesOnce(t *testing.T) {
	t.Parallel()

	svc := &fakeSPEIService{}
	guard := newFakeGuard()
	handler := SPEIWebhook(svc, guard, testLogger())
	body := `{"event_id":"evt-1","type":"spei.payment.received","reference":"spei_abc"}`

	recorder := httptest.NewRecorder()
	handler(recorder, speiRequest(body))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(svc.events) != 1 {
		t.Fatalf("expected 1 handled event, got %d", len(svc.events))
	}

	// Duplicate delivery is acknowledged without reprocessing.
	recorder = httptest.NewRecorder()
	handler(recorder, speiRequest(body))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", recorder.Code)
	}
	if len(svc.events) != 1 {
		t.Fatalf("expected replay to be suppressed, handled %d events", len(svc.events))
	}
}

func TestSPEIWebhookReleasesMarkOnFailure(t *testing.T) {
	t.Parallel()

	svc := &fakeSPEIService{err: pkgerrors.New(pkgerrors.CodeDependency, "database down")}
	guard := newFakeGuard()
	handler := SPEIWebhook(svc, guard, testLogger())
	body := `{"event_id":"evt-1","type":"spei.payment.received","reference":"spei_abc"}`

	recorder := httptest.NewRecorder()
	handler(recorder, speiRequest(body))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != "evt-1" {
		t.Fatalf("expected mark released for retry, got %v", guard.deleted)
	}

	// Once the handler recovers, the provider retry succeeds.
	svc.err = nil
	recorder = httptest.NewRecorder()
	handler(recorder, speiRequest(body))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", recorder.Code)
	}
}

func TestSPEIWebhookRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	svc := &fakeSPEIService{}
	handler := SPEIWebhook(svc, newFakeGuard(), testLogger())

	recorder := httptest.NewRecorder()
	handler(recorder, speiRequest(`{"type":"spei.payment.received"}`))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if len(svc.events) != 0 {
		t.Fatalf("expected no events handled")
	}
}

func TestStripeWebhookRequiresSignature(t *testing.T) {
	t.Parallel()

	svc := &stubStripeService{}
	handler := StripeWebhook(svc, stubStripeClient{}, newFakeGuard(), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`))
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", recorder.Code)
	}

	// A bogus signature can never verify on redelivery; it is rejected with
	// a 400 so the provider stops retrying, and nothing gets processed.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	recorder = httptest.NewRecorder()
	handler(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", recorder.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("expected no events handled, got %d", svc.calls)
	}
}

type stubStripeService struct {
	calls int
}

func (s *stubStripeService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	s.calls++
	return nil
}

type stubStripeClient struct{}

func (stubStripeClient) SigningSecret() string { return "whsec_test" }
