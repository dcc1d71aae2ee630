package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// adminContextKey is the context key for the authenticated admin claims.
type adminContextKey string

const adminClaimsKey adminContextKey = "admin_claims"

// jwtTokenTTL is the lifetime of an admin JWT token.
const jwtTokenTTL = 24 * time.Hour

// AdminClaims holds the JWT claims for admin authentication.
type AdminClaims struct {
	UserID   string `json:"uid"`
	DomainID string `json:"dom"`
	IsAdmin  bool   `json:"adm"`
	jwt.RegisteredClaims
}

// GenerateAdminToken creates a signed JWT for an admin login.
func GenerateAdminToken(secret []byte, userID, domainID, username string, isAdmin bool) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(jwtTokenTTL)

	claims := AdminClaims{
		UserID:   userID,
		DomainID: domainID,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "tappbx",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireAuth returns middleware that validates JWT bearer tokens for the
// admin surface. On success it stores the claims in the request context.
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeEnvelopeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims := &AdminClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("admin auth: invalid jwt", "error", err)
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.UserID == "" {
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the authenticated admin claims from the
// request context. Returns nil if not set.
func ClaimsFromContext(ctx context.Context) *AdminClaims {
	claims, _ := ctx.Value(adminClaimsKey).(*AdminClaims)
	return claims
}

// errorEnvelope matches the api package's envelope format for error responses.
type errorEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeEnvelopeError writes a JSON error matching the API envelope format.
func writeEnvelopeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Error: msg}) //nolint:errcheck
}
