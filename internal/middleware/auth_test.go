package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wrenfield/starling/internal/auth"
	"github.com/wrenfield/starling/internal/model"
)

var testSecret = []byte("test-secret")

func authHandler(t *testing.T) (http.Handler, *auth.AuthContext) {
	t.Helper()
	var captured auth.AuthContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return RequireAuth(testSecret)(inner), &captured
}

func TestRequireAuthValidToken(t *testing.T) {
	handler, captured := authHandler(t)

	token, err := auth.Sign(testSecret, 7, 3, model.RoleParent, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if captured.MemberID != 7 || captured.FamilyID != 3 || captured.Role != model.RoleParent {
		t.Errorf("auth context = %+v", *captured)
	}
}

func TestRequireAuthMissingHeader(t *testing.T) {
	handler, _ := authHandler(t)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthBadToken(t *testing.T) {
	handler, _ := authHandler(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireParent(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireParent(inner)

	req := httptest.NewRequest("POST", "/", nil)
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{MemberID: 1, FamilyID: 1, Role: model.RoleChild})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusForbidden {
		t.Errorf("child status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	ctx = auth.WithAuth(req.Context(), auth.AuthContext{MemberID: 2, FamilyID: 1, Role: model.RoleParent})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusOK {
		t.Errorf("parent status = %d, want %d", rec.Code, http.StatusOK)
	}
}
