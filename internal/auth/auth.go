package auth

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/doctrans/doctrans/internal/config"
)

type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

const (
	JWTAuthentication    string = "jwt"
	APIKeyAuthentication string = "apikey"
	NoneAuthentication   string = "none"
)

func NewAuthenticator(authConfig config.Auth) (Authenticator, error) {
	zap.S().Named("auth").Infof("authentication: '%s'", authConfig.AuthenticationType)

	switch authConfig.AuthenticationType {
	case JWTAuthentication:
		return NewJWTAuthenticator(authConfig.JwkCertURL)
	case APIKeyAuthentication:
		return NewAPIKeyAuthenticator(authConfig.APIKey)
	default:
		return NewNoneAuthenticator()
	}
}
