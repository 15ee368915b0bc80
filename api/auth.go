package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ledgerkeep/ledgerkeep/vault"
)

type contextKey int

const identityKey contextKey = iota

// TokenVerifier turns a bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(token string) (vault.Identity, error)
}

// Claims are the access-token claims issued by the hosted auth provider.
type Claims struct {
	SessionID string `json:"session_id,omitempty"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 access tokens signed with a shared secret.
type JWTVerifier struct {
	Secret   []byte
	Issuer   string
	Audience string
}

var errInvalidToken = errors.New("invalid token")

// Verify parses and validates token. The subject becomes the user id. The
// session id is left empty, so keys stay stable across logins.
// TODO: bind keys to the session_id claim once Rotate re-seals on login.
func (v JWTVerifier) Verify(token string) (vault.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return vault.Identity{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return vault.Identity{}, fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	return vault.Identity{UserID: claims.Subject}, nil
}

// AuthMiddleware requires a valid bearer token and stores the caller's
// identity on the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			a.audit.logFailure(AuditAuthFailure, r, "missing bearer token")
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		id, err := a.auth.Verify(token)
		if err != nil {
			a.audit.logFailure(AuditAuthFailure, r, "invalid token")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func identityFromContext(ctx context.Context) vault.Identity {
	id, _ := ctx.Value(identityKey).(vault.Identity)
	return id
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
