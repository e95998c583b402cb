package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dropshare/internal/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetOwnerID(r.Context())))
	})
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth([]string{" key-1 ", ""})(ownerEcho())

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Bearer key-1", http.StatusUnauthorized},
		{"empty", "ApiKey  ", http.StatusUnauthorized},
		{"unknown", "ApiKey nope", http.StatusUnauthorized},
		{"valid", "ApiKey key-1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, APIKeyOwnerID("key-1"), rec.Body.String())
				assert.NotContains(t, rec.Body.String(), "key-1")
			}
		})
	}
}

type fakeRegistrar struct {
	seen []string
	err  error
}

func (f *fakeRegistrar) EnsureOwner(ctx context.Context, ownerID string) error {
	f.seen = append(f.seen, ownerID)
	return f.err
}

func TestRegisterOwner(t *testing.T) {
	reg := &fakeRegistrar{}
	h := RegisterOwner(reg, logging.Discard())(ownerEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = req.WithContext(WithOwnerID(req.Context(), "u1"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u1"}, reg.seen)

	reg.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSupabaseAuth_HMAC(t *testing.T) {
	const secret = "jwt-secret"
	h := SupabaseAuth(SupabaseConfig{JWTSecret: secret}, logging.Discard())(ownerEcho())

	sign := func(key string, exp time.Time) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(exp),
		}).SignedString([]byte(key))
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"valid", sign(secret, time.Now().Add(time.Hour)), http.StatusOK},
		{"expired", sign(secret, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong key", sign("other", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "user-42", rec.Body.String())
			}
		})
	}
}
