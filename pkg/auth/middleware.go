package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Context keys for identity information.
type contextKey string

const (
	identityContextKey contextKey = "identity"
)

// IdentityFromContext retrieves the verified identity from the context.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}

	return identity
}

// SubjectFromContext returns the subject of the verified identity, or "".
func SubjectFromContext(ctx context.Context) string {
	if identity := IdentityFromContext(ctx); identity != nil {
		return identity.Subject
	}

	return ""
}

// ContextWithIdentity adds an identity to the context.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// TokenQueryParam is the query parameter QueryTokenMiddleware reads.
const TokenQueryParam = "token"

// AuthMiddleware creates middleware that requires a valid bearer token in
// the Authorization header.
func AuthMiddleware(authSvc Service) func(http.Handler) http.Handler {
	return authenticate(authSvc, false)
}

// QueryTokenMiddleware is AuthMiddleware that also accepts the token as a
// query parameter when no Authorization header is set. Browsers cannot set
// headers on WebSocket upgrades, so only the event stream uses it.
func QueryTokenMiddleware(authSvc Service) func(http.Handler) http.Handler {
	return authenticate(authSvc, true)
}

func authenticate(authSvc Service, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authSvc.ValidateToken(extractToken(r, allowQuery))
			if err != nil {
				message := "Unauthorized"
				if errors.Is(err, ErrNoToken) {
					message = "Authentication required"
				}

				w.Header().Set("WWW-Authenticate", `Bearer realm="gheregistry"`)
				writeUnauthorized(w, message)

				return
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken extracts the bearer token from the request.
func extractToken(r *http.Request, allowQuery bool) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}

		return ""
	}

	if allowQuery {
		return r.URL.Query().Get(TokenQueryParam)
	}

	return ""
}

// RedactQueryToken hides the token query parameter from RequestURI, which
// access loggers print. Routing and token extraction read r.URL instead.
func RedactQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get(TokenQueryParam) == "" {
			next.ServeHTTP(w, r)

			return
		}

		query.Set(TokenQueryParam, "REDACTED")

		redacted := r.Clone(r.Context())
		redacted.RequestURI = r.URL.EscapedPath() + "?" + query.Encode()

		next.ServeHTTP(w, redacted)
	})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    http.StatusUnauthorized,
		"message": message,
	})
}
