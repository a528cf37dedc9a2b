package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func serve(t *testing.T, v Verifier, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	h := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = user.UserID
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestHeaderMode(t *testing.T) {
	v, err := NewVerifier(Config{Mode: ModeHeader})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "player-1")
	rec, user := serve(t, v, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "player-1", user)

	rec, _ = serve(t, v, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestJWTMode(t *testing.T) {
	v, err := NewVerifier(Config{Mode: ModeJWT, Secret: "s3cret", Issuer: "academy"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"sub": "player-2", "iss": "academy", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusNoContent},
		{"wrong secret", "Bearer " + sign(t, "other", jwt.MapClaims{"sub": "player-2", "iss": "academy"}), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"sub": "player-2", "iss": "elsewhere"}), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"sub": "player-2", "iss": "academy", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"no subject", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"iss": "academy"}), http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec, user := serve(t, v, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "player-2", user)
			}
		})
	}
}

func TestNewVerifierErrors(t *testing.T) {
	_, err := NewVerifier(Config{Mode: ModeJWT})
	assert.Error(t, err)
	_, err = NewVerifier(Config{Mode: "kerberos"})
	assert.Error(t, err)
}
