package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cutoffs/resolve", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptPath(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy([]string{"/healthz"}, []string{"/metrics"}))
	handler := mw.Wrap(okHandler())

	for _, path := range []string{"/healthz", "/metrics"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestAuthMiddleware_OperatorForbiddenOverrideWrite(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, Identity{TenantID: "tenant-a", Role: RoleOperator, Subject: "user-1"})
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cutoffs/overrides/client/client-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerForbiddenGenerate(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, Identity{TenantID: "tenant-a", Role: RoleViewer, Subject: "user-1"})
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/generate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_AdminIdentityInContext(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, Identity{TenantID: "tenant-a", ClientID: "client-1", Role: RoleAdmin, Subject: "admin-1"})

	var got Identity
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = Identity{
			TenantID: TenantIDFromContext(r.Context()),
			ClientID: ClientIDFromContext(r.Context()),
			Role:     RoleFromContext(r.Context()),
			Subject:  SubjectFromContext(r.Context()),
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cutoffs/overrides/unit/u-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	want := Identity{TenantID: "tenant-a", ClientID: "client-1", Role: RoleAdmin, Subject: "admin-1"}
	if got != want {
		t.Fatalf("identity mismatch: got %+v want %+v", got, want)
	}
}

func TestParseJWT_Rejects(t *testing.T) {
	secret := []byte("test-secret")
	if _, err := ParseJWT("", secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	token := mustToken(t, secret, Identity{TenantID: "tenant-a", Role: RoleViewer})
	if _, err := ParseJWT(token, []byte("other-secret")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	noTenant := mustToken(t, secret, Identity{Role: RoleViewer})
	if _, err := ParseJWT(noTenant, secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for missing tenant, got %v", err)
	}
}

func TestEnsureClientScope(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{TenantID: "t", ClientID: "client-1", Role: RoleViewer})
	if err := EnsureClientScope(ctx, "client-1"); err != nil {
		t.Fatalf("same client: %v", err)
	}
	if err := EnsureClientScope(ctx, "client-2"); !errors.Is(err, ErrClientMismatch) {
		t.Fatalf("expected ErrClientMismatch, got %v", err)
	}
	if err := EnsureClientScope(context.Background(), "client-2"); err != nil {
		t.Fatalf("unscoped token: %v", err)
	}
	var checker *MeterClientChecker
	if err := checker.EnsureClientAccess(ctx, "client-2"); !errors.Is(err, ErrClientMismatch) {
		t.Fatalf("nil checker still enforces scope, got %v", err)
	}
}

func mustToken(t *testing.T, secret []byte, id Identity) string {
	t.Helper()
	signed, err := SignJWT(id, secret, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestPolicy_RequiredRole(t *testing.T) {
	policy := NewDefaultPolicy(nil, nil)
	cases := []struct {
		method string
		path   string
		want   Role
		ok     bool
	}{
		{http.MethodGet, "/api/v1/cutoffs/resolve", RoleViewer, true},
		{http.MethodGet, "/api/v1/cutoffs/overrides", RoleOperator, true},
		{http.MethodGet, "/api/v1/cutoffs/overrides/client/c-1", RoleOperator, true},
		{http.MethodPut, "/api/v1/cutoffs/overrides/system", RoleAdmin, true},
		{http.MethodDelete, "/api/v1/cutoffs/overrides/unit/u-1", RoleAdmin, true},
		{http.MethodPost, "/api/v1/reports/batch", RoleOperator, true},
		{http.MethodGet, "/api/v1/reports/export.pdf", RoleViewer, true},
		{http.MethodGet, "/api/v1/unknown", RoleViewer, true},
		{http.MethodPost, "/api/v1/unknown", RoleOperator, true},
		{http.MethodGet, "/healthz", "", false},
	}
	for _, tc := range cases {
		got, ok := policy.RequiredRole(httptest.NewRequest(tc.method, tc.path, nil))
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s %s: expected (%q, %v), got (%q, %v)", tc.method, tc.path, tc.want, tc.ok, got, ok)
		}
	}
}

func TestBearerToken(t *testing.T) {
	if token, ok := bearerToken("bearer abc"); !ok || token != "abc" {
		t.Fatalf("expected abc, got %q %v", token, ok)
	}
	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer   "} {
		if _, ok := bearerToken(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}
