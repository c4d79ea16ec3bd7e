package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsesSpec(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:alice:admin, k2:bob:viewer")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected k1 to validate")
	}
	if identity.UserID != "alice" || identity.Role != RoleAdmin {
		t.Fatalf("identity = %+v", identity)
	}
	if !identity.CanWrite() {
		t.Fatal("admin should be allowed to write")
	}
	identity, ok = validator.Validate(context.Background(), "k2")
	if !ok {
		t.Fatal("expected k2 to validate")
	}
	if identity.CanWrite() {
		t.Fatal("viewer should not be allowed to write")
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpecs(t *testing.T) {
	specs := []string{
		"k1:alice",
		"k1::admin",
		":alice:admin",
		"k1:alice:superuser",
	}
	for _, spec := range specs {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("expected error for spec %q", spec)
		}
	}
}

func TestMiddlewareRejectsMissingKey(t *testing.T) {
	validator, _ := NewStaticAPIKeyValidator("k1:alice:admin")
	h := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMiddlewareAcceptsBearerKey(t *testing.T) {
	validator, _ := NewStaticAPIKeyValidator("k1:alice:power_user")
	h := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("identity missing from context")
		}
		if identity.UserID != "alice" || identity.Role != RolePowerUser {
			t.Fatalf("identity = %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer k1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}
