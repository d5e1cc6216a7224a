package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsesSpec(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("alpha, beta:frontend")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator: %v", err)
	}

	identity, ok := validator.Validate(context.Background(), "beta")
	if !ok || identity.Label != "frontend" {
		t.Fatalf("identity = %+v ok=%v", identity, ok)
	}
	if _, ok := validator.Validate(context.Background(), "alpha"); !ok {
		t.Fatal("expected bare key to validate")
	}
	if _, ok := validator.Validate(context.Background(), "gamma"); ok {
		t.Fatal("unknown key must not validate")
	}
}

func TestStaticAPIKeyValidatorRejectsEmptyKey(t *testing.T) {
	if _, err := NewStaticAPIKeyValidator(":label"); err == nil {
		t.Fatal("expected error for empty key entry")
	}
}

func TestMiddlewareAcceptsHeaderAndBearer(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("secret:frontend")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || identity.Label != "frontend" {
			t.Fatalf("identity = %+v ok=%v", identity, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	req.Header.Set("X-API-Key", "secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("header auth status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("bearer auth status = %d", rr.Code)
	}
}

func TestMiddlewareRejectsMissingOrInvalidKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("secret")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := Middleware(nil, validator)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without auth")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/query", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing key status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	req.Header.Set("X-API-Key", "wrong")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("invalid key status = %d", rr.Code)
	}
}
