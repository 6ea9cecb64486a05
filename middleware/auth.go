package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"eventpass-backend/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
)

// Claims identify an organizer (Subject is the organizer ID) or an admin.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type principalKey struct{}

// Principal is the authenticated caller stored in the request context.
type Principal struct {
	Subject string
	Role    string
}

// IsAdmin reports whether the caller may act on any organizer's resources.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// OrganizerScope returns the organizer ID the caller is restricted to, or ""
// for admins.
func (p *Principal) OrganizerScope() string {
	if p == nil || p.IsAdmin() {
		return ""
	}
	return p.Subject
}

func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// IssueToken signs a token for subject with role. Used by operator tooling
// and tests; there is no login endpoint.
func IssueToken(secret []byte, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, errors.New("token missing subject or role")
	}
	return claims, nil
}

// RequireRole rejects requests without a valid bearer token carrying one of
// roles.
func RequireRole(secret []byte, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				deny(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
				return
			}

			claims, err := ParseToken(secret, tokenString)
			if err != nil {
				deny(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
				return
			}
			if !slices.Contains(roles, claims.Role) {
				deny(w, http.StatusForbidden, "FORBIDDEN", "Insufficient role")
				return
			}

			ctx := WithPrincipal(r.Context(), &Principal{Subject: claims.Subject, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: code, Message: message})
}
