package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/field-notes/apiserver/internal/logger"
	"github.com/field-notes/apiserver/internal/session"
)

const (
	apiKeyHeader = "x-api-key"

	// FieldAuthCookie holds the shared-secret token.
	FieldAuthCookie = "field-auth"

	unauthorizedMessage = "Unauthorized"
)

// GateConfig selects and configures the authorization gates.
type GateConfig struct {
	// SharedSecret, when set, switches browser auth to single-password mode.
	SharedSecret string
	// APIKey authorizes machine callers through the x-api-key header.
	APIKey string
	// APIKeyFailOpen lets every request through when APIKey is empty.
	// Meant for local development only.
	APIKeyFailOpen bool
	// SecureCookies sets the Secure attribute on the field-auth cookie.
	SecureCookies bool
}

// Gates decides whether a request may reach the note endpoints.
type Gates struct {
	codec       *session.Codec
	sharedToken []byte
	apiKey      string
	failOpen    bool
	secure      bool
}

func NewGates(codec *session.Codec, cfg GateConfig) *Gates {
	g := &Gates{
		codec:    codec,
		apiKey:   cfg.APIKey,
		failOpen: cfg.APIKeyFailOpen && cfg.APIKey == "",
		secure:   cfg.SecureCookies,
	}
	if cfg.SharedSecret != "" {
		g.sharedToken = []byte(sharedSecretToken(cfg.SharedSecret))
	}
	return g
}

// SharedSecretMode reports whether browsers log in with the shared secret.
func (g *Gates) SharedSecretMode() bool {
	return g.sharedToken != nil
}

// RequireSession lets through requests carrying a valid session cookie and
// stores the session in the request context.
func (g *Gates) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := g.codec.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
	})
}

// RequireNoteAccess admits a request that either carries an x-api-key
// accepted by the API-key gate, or, without that header, passes the browser
// gate of the active deployment mode.
func (g *Gates) RequireNoteAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, hasKey := r.Header[http.CanonicalHeaderKey(apiKeyHeader)]; hasKey || g.failOpen {
			if g.apiKeyAllowed(r) {
				next.ServeHTTP(w, r)
				return
			}
			logger.FromRequest(r).Warn().Msg("api key rejected")
			writeError(w, http.StatusUnauthorized, unauthorizedMessage)
			return
		}

		if g.SharedSecretMode() {
			if !g.sharedCookieValid(r) {
				writeError(w, http.StatusUnauthorized, unauthorizedMessage)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		s, err := g.codec.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, unauthorizedMessage)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
	})
}

// apiKeyAllowed is the API-key gate. Without a configured key it is
// fail-open only when explicitly enabled.
func (g *Gates) apiKeyAllowed(r *http.Request) bool {
	if g.apiKey == "" {
		return g.failOpen
	}
	provided := r.Header.Get(apiKeyHeader)
	return provided != "" && secretsEqual(provided, g.apiKey)
}

// CheckSharedSecret compares a submitted password with the shared secret.
func (g *Gates) CheckSharedSecret(submitted string) bool {
	if !g.SharedSecretMode() {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sharedSecretToken(submitted)), g.sharedToken) == 1
}

// SharedSecretCookie returns the long-lived cookie set after a successful
// shared-secret login.
func (g *Gates) SharedSecretCookie() *http.Cookie {
	return &http.Cookie{
		Name:     FieldAuthCookie,
		Value:    string(g.sharedToken),
		Path:     "/",
		MaxAge:   int(session.DefaultTTL.Seconds()),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (g *Gates) sharedCookieValid(r *http.Request) bool {
	cookie, err := r.Cookie(FieldAuthCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), g.sharedToken) == 1
}

// secretsEqual compares fixed-length digests so the time taken does not
// depend on the input length or on how long a matching prefix is.
func secretsEqual(a, b string) bool {
	da, db := secretDigest(a), secretDigest(b)
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}

func secretDigest(s string) [sha256.Size]byte {
	return sha256.Sum256([]byte(s))
}

// sharedSecretToken is the cookie value for secret. The cookie never holds
// the secret itself.
func sharedSecretToken(secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(FieldAuthCookie))
	return hex.EncodeToString(mac.Sum(nil))
}
