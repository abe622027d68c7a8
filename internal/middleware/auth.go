package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/refmarket/internal/auth"
)

// TokenValidator validates bearer tokens. *auth.JWTService implements it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// Authenticate requires an "Authorization: Bearer <token>" header and stores
// the token subject as the viewer ID. Missing or invalid tokens get 401.
func Authenticate(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				SetErrorCode(r.Context(), "auth_failed")
				writeErrorEnvelope(w, http.StatusUnauthorized, "auth_failed", "Missing bearer token")
				return
			}

			claims, err := validator.ValidateAccessToken(strings.TrimSpace(token))
			if err != nil {
				message := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					message = "Token has expired"
				}
				SetErrorCode(r.Context(), "auth_failed")
				writeErrorEnvelope(w, http.StatusUnauthorized, "auth_failed", message)
				return
			}

			ctx := SetViewerID(r.Context(), claims.ReferrerID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeErrorEnvelope writes {"error":{"code","message"}}, the shape the api
// package uses for every error response.
func writeErrorEnvelope(w http.ResponseWriter, status int, code, message string) {
	body, _ := json.Marshal(map[string]map[string]string{
		"error": {"code": code, "message": message},
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
