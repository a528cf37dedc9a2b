package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skills-gamification/internal/domain"
)

// Mode selects how the caller's identity is established
type Mode string

const (
	// ModeHeader trusts the X-User-ID header set by the API gateway.
	ModeHeader Mode = "header"
	// ModeJWT verifies an HS256 bearer token and uses its sub claim.
	ModeJWT Mode = "jwt"
)

// Config captures the inputs required to build a verifier
type Config struct {
	Mode     Mode
	Secret   string
	Issuer   string
	Audience string
}

// User is the authenticated caller
type User struct {
	UserID    string
	ExpiresAt int64
}

// Verifier turns a request into an authenticated user
type Verifier interface {
	Verify(r *http.Request) (User, error)
}

var (
	errMissingIdentity   = errors.New("no user identity on request")
	errInvalidAuthHeader = errors.New("authorization header is malformed")
	errMissingSubject    = errors.New("token missing subject claim")
)

type ctxKey string

const userCtxKey ctxKey = "gamification:user"

// NewVerifier constructs a Verifier matching cfg
func NewVerifier(cfg Config) (Verifier, error) {
	switch cfg.Mode {
	case ModeHeader, "":
		return headerVerifier{}, nil
	case ModeJWT:
		if cfg.Secret == "" {
			return nil, fmt.Errorf("jwt auth requires a secret")
		}
		return &jwtVerifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer, audience: cfg.Audience}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// Middleware rejects requests without an identity with 401
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := verifier.Verify(r)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser stores user on ctx
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// UserFromContext extracts the authenticated user from the request context
func UserFromContext(ctx context.Context) (User, bool) {
	value, ok := ctx.Value(userCtxKey).(User)
	return value, ok && value.UserID != ""
}

type headerVerifier struct{}

func (headerVerifier) Verify(r *http.Request) (User, error) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		return User{}, errMissingIdentity
	}
	return User{UserID: userID}, nil
}

type jwtVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func (v *jwtVerifier) Verify(r *http.Request) (User, error) {
	token, err := bearerToken(r)
	if err != nil {
		return User{}, err
	}

	options := []jwt.ParserOption{
		jwt.WithLeeway(5 * time.Second),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	t, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return v.secret, nil }, options...)
	if err != nil {
		return User{}, fmt.Errorf("token verification failed: %w", err)
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return User{}, errors.New("unexpected claims type")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return User{}, errMissingSubject
	}

	user := User{UserID: subject}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		user.ExpiresAt = exp.Unix()
	}
	return user, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingIdentity
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errInvalidAuthHeader
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errInvalidAuthHeader
	}
	return token, nil
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   domain.ErrUnauthenticated.Error(),
	})
}
