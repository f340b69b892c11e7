package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func claimsFor(userID int64, ttl time.Duration) *Claims {
	return &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestRequireAuth(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedUser   int64
	}{
		{
			name:           "valid token",
			header:         "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), claimsFor(7, time.Hour)),
			expectedStatus: http.StatusOK,
			expectedUser:   7,
		},
		{
			name:           "missing header",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "not a bearer token",
			header:         "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired token",
			header:         "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), claimsFor(7, -time.Minute)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong secret",
			header:         "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), claimsFor(7, time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "no user id",
			header:         "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), claimsFor(0, time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unsigned token",
			header:         "Bearer " + sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claimsFor(7, time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserIDFromContext(r.Context())
				require.True(t, ok)
				w.Write([]byte(strconv.FormatInt(userID, 10)))
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/events/1/balances", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			auth.RequireAuth(next).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, strconv.FormatInt(tt.expectedUser, 10), w.Body.String())
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := UserIDFromContext(req.Context())
	assert.False(t, ok)

	userID, ok := UserIDFromContext(WithUserID(req.Context(), 42))
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)
}
