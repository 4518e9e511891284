package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/webgenie/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefixLen = 8

// Auth checks the shared API key. Only the bcrypt hash of the key is kept
// in memory. A zero-value key disables authentication.
type Auth struct {
	hash []byte
}

// NewAuth hashes apiKey. An empty key returns an Auth that lets every
// request through.
func NewAuth(apiKey string) (*Auth, error) {
	if apiKey == "" {
		return &Auth{}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}
	return &Auth{hash: hash}, nil
}

// Enabled reports whether requests must present a key.
func (a *Auth) Enabled() bool {
	return a != nil && len(a.hash) > 0
}

// Authenticate accepts the key in X-API-Key or as a Bearer token and records
// its prefix as the client identity.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractAPIKey(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing API key", nil)
			return
		}
		if bcrypt.CompareHashAndPassword(a.hash, []byte(rawKey)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		prefix := rawKey
		if len(prefix) > keyPrefixLen {
			prefix = prefix[:keyPrefixLen]
		}
		next.ServeHTTP(w, r.WithContext(setClientID(r.Context(), "key:"+prefix)))
	})
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	return extractBearerToken(r)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
