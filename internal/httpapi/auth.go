package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"

	"antrian/antrian-service/internal/auth"
)

type authContextKey struct{}

// requireAuth admits the request only with a bearer token the verifier accepts.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.authDisabled {
			next(w, r)
			return
		}
		requestID := requestIDFromRequest(r)
		if h.verifier == nil {
			log.Printf("auth rejected path=%s request_id=%s reason=no verifier configured", r.URL.Path, requestID)
			unauthorized(w, requestID, "authentication unavailable")
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			unauthorized(w, requestID, "missing bearer token")
			return
		}
		claims, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			log.Printf("auth rejected path=%s request_id=%s reason=%v", r.URL.Path, requestID, err)
			unauthorized(w, requestID, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, claims)
		next(w, r.WithContext(ctx))
	}
}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(authContextKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

func unauthorized(w http.ResponseWriter, requestID, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeError(w, requestID, http.StatusUnauthorized, "unauthorized", message)
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
