package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/nextstep/internal/models"
	"go.uber.org/zap"
)

type stubVerifier map[string]*models.JWTClaims

func (s stubVerifier) Verify(_ context.Context, token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, errors.New("bad token")
}

func TestAuth(t *testing.T) {
	t.Parallel()

	verifier := stubVerifier{"good": {Sub: "owner-1", Email: "a@example.com", Name: "Ada"}}
	handler := Auth(verifier, "nextstep-session", zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r)
		if user == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(user.ID))
	}))

	tests := []struct {
		name       string
		setup      func(*http.Request)
		wantStatus int
		wantBody   string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "owner-1"},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer good") }, http.StatusOK, "owner-1"},
		{"session cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "nextstep-session", Value: "good"}) }, http.StatusOK, "owner-1"},
		{"missing token", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic good") }, http.StatusUnauthorized, ""},
		{"header wins over cookie", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer bad")
			r.AddCookie(&http.Cookie{Name: "nextstep-session", Value: "good"})
		}, http.StatusUnauthorized, ""},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest("GET", "/api/v1/goals", nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("Expected body %q, got %q", tt.wantBody, w.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized && w.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Expected JSON error, got %q", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestUserFromContext(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/test", nil)
	if UserFromContext(req) != nil {
		t.Error("Expected no user")
	}
	req = req.WithContext(SetUserInContext(req.Context(), &models.User{ID: "owner-1"}))
	if user := UserFromContext(req); user == nil || user.ID != "owner-1" {
		t.Errorf("Expected owner-1, got %+v", user)
	}
}
