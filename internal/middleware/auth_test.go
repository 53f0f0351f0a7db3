package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, secret, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		UserID: "u-1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", http.StatusUnauthorized, "auth_required"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "auth_invalid_scheme"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "auth_invalid"},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, "other", RoleAdmin, time.Hour), http.StatusUnauthorized, "auth_invalid"},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, RoleAdmin, -time.Minute), http.StatusUnauthorized, "auth_invalid"},
		{"wrong role", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, "rider", time.Hour), http.StatusForbidden, "forbidden"},
		{"admin", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, RoleAdmin, time.Hour), http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			h := RequireAuth(testSecret, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims, ok := GetClaims(r.Context())
				require.True(t, ok)
				gotUser = claims.UserID
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/admin/payments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), tt.wantCode)
				assert.Empty(t, gotUser)
			} else {
				assert.Equal(t, "u-1", gotUser)
			}
		})
	}
}

func TestRequireAuth_NoRolesAcceptsAnyValidToken(t *testing.T) {
	h := RequireAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, "customer", time.Hour))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookToken(t *testing.T) {
	h := WebhookToken("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for target, want := range map[string]int{
		"/api/payments/kpay/webhook":              http.StatusUnauthorized,
		"/api/payments/kpay/webhook?token=wrong":  http.StatusUnauthorized,
		"/api/payments/kpay/webhook?token=s3cret": http.StatusOK,
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, nil))
		assert.Equal(t, want, w.Code, target)
	}

	open := WebhookToken("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	open.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/payments/kpay/webhook", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
