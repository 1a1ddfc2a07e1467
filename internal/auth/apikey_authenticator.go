package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

const (
	apiKeyHeader = "X-Api-Key"

	// SystemUsername and SystemOrganization form the shared principal every
	// key-authenticated caller acts as. Per-owner isolation is intentionally
	// absent in this mode; see config.Auth.RelaxedOwnership.
	SystemUsername     = "system"
	SystemOrganization = "system"
)

// APIKeyAuthenticator authenticates requests carrying the configured static
// key. All callers share one system principal.
type APIKeyAuthenticator struct {
	key string
}

func NewAPIKeyAuthenticator(key string) (*APIKeyAuthenticator, error) {
	if key == "" {
		return nil, errors.New("api key authentication requires a configured key")
	}
	return &APIKeyAuthenticator{key: key}, nil
}

func (a *APIKeyAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(apiKeyHeader)
		if provided == "" {
			http.Error(w, "No api key provided", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(a.key)) != 1 {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		user := User{
			Username:     SystemUsername,
			Organization: SystemOrganization,
		}

		ctx := NewUserContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
