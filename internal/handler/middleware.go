package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/msomdec/tagbatch/internal/service"
)

type contextKey string

const operatorContextKey contextKey = "operator"

// OperatorFromContext returns the subject of the verified ops token, or ""
// if the request was not authenticated.
func OperatorFromContext(ctx context.Context) string {
	op, _ := ctx.Value(operatorContextKey).(string)
	return op
}

// RequireOpsToken protects destructive routes. It reads a bearer token from
// the Authorization header, validates it, and injects the token subject
// into the request context. Returns 401 otherwise.
func RequireOpsToken(auth *service.OpsAuth, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		subject, err := auth.ValidateToken(raw)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), operatorContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SecurityHeaders sets conservative response headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
