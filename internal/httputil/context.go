package httputil

import (
	"context"
	"net/http"

	"archive/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// WithClaims attaches verified token claims to the request
func WithClaims(r *http.Request, claims *auth.Claims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
}

// GetClaims returns the verified claims, or nil on unauthenticated routes
func GetClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

// GetUserID returns the token subject, or "" when the request carries no claims
func GetUserID(r *http.Request) string {
	if claims := GetClaims(r); claims != nil {
		return claims.GetUserID()
	}
	return ""
}
