package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/lorekeep/mcp-lore-server/internal/config"
)

// Middleware wraps an http.Handler with an authentication check.
type Middleware func(http.Handler) http.Handler

// verifier reports whether a request carries valid credentials.
type verifier func(r *http.Request) bool

// openPaths bypass authentication so probes work without credentials.
var openPaths = map[string]bool{
	"/health": true,
}

// bypassesAuth reports whether the request path skips authentication
func bypassesAuth(path string) bool {
	return openPaths[path]
}

// NewMiddleware creates the authentication middleware for the
// configured auth type. The returned middleware always lets open paths
// through.
func NewMiddleware(settings config.AuthSettings) (Middleware, error) {
	switch settings.Type {
	case config.AuthTypeNone, "":
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	case config.AuthTypeBasic:
		if settings.Basic.Username == "" || settings.Basic.Password == "" {
			return nil, fmt.Errorf("basic auth requires non-empty username and password")
		}
		return guard(basicVerifier(settings.Basic), basicChallenge), nil
	case config.AuthTypeAPIKey:
		if len(settings.APIKeys) == 0 {
			return nil, fmt.Errorf("apikey auth requires at least one API key")
		}
		return guard(apiKeyVerifier(settings.APIKeys), nil), nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}
}

// guard builds a middleware that rejects requests failing the verifier
// with 401, emitting the challenge header first when one applies.
func guard(verify verifier, challenge func(http.ResponseWriter)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypassesAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if !verify(r) {
				if challenge != nil {
					challenge(w)
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func basicChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
}

func basicVerifier(creds config.BasicAuthSettings) verifier {
	return func(r *http.Request) bool {
		user, pass, ok := r.BasicAuth()
		// Both comparisons always run so timing does not reveal which
		// credential was wrong.
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(creds.Username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(creds.Password)) == 1
		return ok && userMatch && passMatch
	}
}

func apiKeyVerifier(apiKeys []string) verifier {
	return func(r *http.Request) bool {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			return false
		}
		for _, validKey := range apiKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
				return true
			}
		}
		return false
	}
}
