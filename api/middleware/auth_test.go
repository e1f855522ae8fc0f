package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinkar-mx/clinkar-backend/pkg/auth"
	"github.com/clinkar-mx/clinkar-backend/pkg/config"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	"github.com/clinkar-mx/clinkar-backend/pkg/logger"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "clinkar-test",
		ExpirationMinutes: 60,
	}
}

func TestAuthSeedsIdentity(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	userID := uuid.New()

	token, err := auth.MintAccessToken(cfg, time.Now().UTC(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   enums.ActorRoleBuyer,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var gotUser, gotRole string
	handler := Auth(cfg, logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if gotUser != userID.String() {
		t.Fatalf("expected user id %s, got %s", userID, gotUser)
	}
	if gotRole != string(enums.ActorRoleBuyer) {
		t.Fatalf("expected buyer role, got %s", gotRole)
	}
}

func TestDemoIdentitySeedsBuyerWithoutCredentials(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	demoID := uuid.NewString()

	var gotUser, gotRole string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := DemoIdentity(demoID)(Auth(cfg, logg)(inner))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if gotUser != demoID {
		t.Fatalf("expected demo buyer id, got %q", gotUser)
	}
	if gotRole != string(enums.ActorRoleBuyer) {
		t.Fatalf("expected buyer role, got %q", gotRole)
	}

	// A presented token still wins over the demo identity.
	userID := uuid.New()
	token, err := auth.MintAccessToken(cfg, time.Now().UTC(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   enums.ActorRoleSeller,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if gotUser != userID.String() {
		t.Fatalf("expected token identity to win, got %q", gotUser)
	}
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	otherIssuer := cfg
	otherIssuer.Issuer = "someone-else"
	wrongIssuer, err := auth.MintAccessToken(otherIssuer, time.Now().UTC(), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleSeller,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	expiredCfg := cfg
	expiredCfg.ExpirationMinutes = 1
	expired, err := auth.MintAccessToken(expiredCfg, time.Now().UTC().Add(-time.Hour), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleBuyer,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong issuer", "Bearer " + wrongIssuer},
		{"expired token", "Bearer " + expired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := Auth(cfg, logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			if recorder.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", recorder.Code)
			}
		})
	}
}
