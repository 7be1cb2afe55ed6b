// Package session encodes the logged-in identity into a client-held cookie.
//
// There is no server-side session table: the cookie is a signed JWT sealed
// with XChaCha20-Poly1305, so it can be neither read nor forged without the
// server secret. A session ends when the cookie expires or is cleared;
// revoking one earlier requires rotating the secret.
package session

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/field-notes/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "session"

	// DefaultTTL is how long a session cookie stays valid.
	DefaultTTL = 365 * 24 * time.Hour

	// MinSecretLength is the shortest accepted session secret, in bytes.
	MinSecretLength = 32
)

// ErrInvalidSession is returned for a missing, tampered or expired cookie.
var ErrInvalidSession = errors.New("invalid session")

type claims struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"isLoggedIn"`
	jwt.RegisteredClaims
}

// Codec seals and opens session cookies.
type Codec struct {
	aead       cipher.AEAD
	signingKey []byte
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

// NewCodec derives the encryption and signing keys from secret. secure sets
// the Secure attribute on issued cookies.
func NewCodec(secret string, secure bool) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}

	encKey, err := deriveKey(secret, "field-notes session encryption", chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	signingKey, err := deriveKey(secret, "field-notes session signing", 32)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, err
	}

	return &Codec{
		aead:       aead,
		signingKey: signingKey,
		ttl:        DefaultTTL,
		secure:     secure,
		now:        time.Now,
	}, nil
}

// Encode returns the sealed cookie value for s.
func (c *Codec) Encode(s types.Session) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username:   s.Username,
		Role:       s.Role,
		IsLoggedIn: s.IsLoggedIn,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(signed)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("session nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(signed), []byte(CookieName))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a cookie value. Any failure is ErrInvalidSession.
func (c *Codec) Decode(value string) (types.Session, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return types.Session{}, ErrInvalidSession
	}
	nonce, box := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, box, []byte(CookieName))
	if err != nil {
		return types.Session{}, ErrInvalidSession
	}

	var cl claims
	_, err = jwt.ParseWithClaims(string(plain), &cl, func(token *jwt.Token) (any, error) {
		return c.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return types.Session{}, ErrInvalidSession
	}
	if !cl.IsLoggedIn || cl.Username == "" {
		return types.Session{}, ErrInvalidSession
	}

	return types.Session{Username: cl.Username, Role: cl.Role, IsLoggedIn: true}, nil
}

// Cookie builds the Set-Cookie value for a new session.
func (c *Codec) Cookie(s types.Session) (*http.Cookie, error) {
	value, err := c.Encode(s)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.ttl / time.Second),
		Expires:  c.now().Add(c.ttl),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}, nil
}

// ClearCookie returns a cookie that removes the session from the browser.
func (c *Codec) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// FromRequest reads and opens the session cookie of r.
func (c *Codec) FromRequest(r *http.Request) (types.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return types.Session{}, ErrInvalidSession
	}
	return c.Decode(cookie.Value)
}

func deriveKey(secret, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return key, nil
}
