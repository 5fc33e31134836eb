package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Context keys for storing viewer information
type contextKey string

const viewerDIDKey contextKey = "viewer_did"

// AuthMiddleware validates bearer tokens issued by the platform's identity
// service and injects the viewer DID into the request context. Token
// issuance lives outside this service; only verification happens here.
type AuthMiddleware struct {
	secret []byte
	logger *slog.Logger
}

// NewAuthMiddleware creates the JWT verification middleware.
func NewAuthMiddleware(secret []byte, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{secret: secret, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		did, err := m.viewerFromRequest(r)
		if err != nil {
			writeAuthError(w, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), viewerDIDKey, did)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth injects the viewer DID when a valid token is present and
// lets anonymous requests through. Used by the trending feed, which serves
// anonymous viewers but enriches authenticated ones.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if did, err := m.viewerFromRequest(r); err == nil {
			ctx := context.WithValue(r.Context(), viewerDIDKey, did)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) viewerFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return "", fmt.Errorf("Authorization header must use Bearer scheme")
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		m.logger.Debug("token rejected", "error", err)
		return "", fmt.Errorf("invalid or expired token")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

// GetViewerDID returns the authenticated viewer's DID, or "" for an
// anonymous request.
func GetViewerDID(r *http.Request) string {
	did, _ := r.Context().Value(viewerDIDKey).(string)
	return did
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "AuthenticationRequired",
		"message": message,
	})
}
