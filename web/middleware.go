package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ContextKey string

const IdentityContextKey ContextKey = "identity"

// AuthMiddleware issues and verifies bearer tokens. Validity is a pure
// function of signature and expiry; there is no server-side session store
// and no revocation before the TTL elapses.
type AuthMiddleware struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthMiddleware(secret string, ttl time.Duration) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// IssueToken signs a fresh HS256 token with the username as its subject.
func (am *AuthMiddleware) IssueToken(username string) (string, error) {
	claims := jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(am.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(am.secret)
}

// LoadUser checks the Authorization header and, when the token verifies,
// stashes the subject username in the request context. Requests with no
// token or a bad one continue without an identity.
func (am *AuthMiddleware) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := am.resolveToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests that carry no verified identity.
func (am *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentityFromContext(r.Context()) == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (am *AuthMiddleware) resolveToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}

	username, ok := claims["sub"].(string)
	if !ok || username == "" {
		return "", false
	}
	return username, true
}

// GetIdentityFromContext extracts the authenticated username, or "" when
// the request carried no usable token.
func GetIdentityFromContext(ctx context.Context) string {
	username, ok := ctx.Value(IdentityContextKey).(string)
	if !ok {
		return ""
	}
	return username
}
