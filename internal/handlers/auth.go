package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/field-notes/apiserver/internal/logger"
	"github.com/field-notes/apiserver/internal/services"
	"github.com/field-notes/apiserver/internal/session"
	"github.com/field-notes/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const invalidCredentialsMessage = "Invalid credentials"

// Authenticator verifies a username/password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (types.User, error)
}

// AuthHandler serves credentialed and shared-secret login.
type AuthHandler struct {
	auth  Authenticator
	codec *session.Codec
	gates *Gates
}

// NewAuthHandler builds an AuthHandler. auth may be nil when the server runs
// in shared-secret mode; credentialed login then fails with a server error.
func NewAuthHandler(auth Authenticator, codec *session.Codec, gates *Gates) *AuthHandler {
	return &AuthHandler{auth: auth, codec: codec, gates: gates}
}

// AuthRouter registers the /api/auth routes.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.With(h.gates.RequireSession).Get("/me", h.Me)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SharedLoginRequest struct {
	Password string `json:"password"`
}

type SessionResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Login verifies credentials and issues the session cookie. Every client
// side failure gets the same 401 body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)
	if h.auth == nil {
		log.Error().Msg("credentialed login requested but no credential store is configured")
		writeError(w, http.StatusInternalServerError, "Server configuration error")
		return
	}

	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusUnauthorized, invalidCredentialsMessage)
		return
	}

	user, err := h.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, invalidCredentialsMessage)
			return
		}
		log.Error().Err(err).Msg("authenticate")
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	sess := types.Session{Username: user.Name, Role: user.Role, IsLoggedIn: true}
	cookie, err := h.codec.Cookie(sess)
	if err != nil {
		log.Error().Err(err).Msg("issue session cookie")
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	http.SetCookie(w, cookie)
	log.Info().Str("username", user.Name).Msg("user logged in")
	writeJSON(w, http.StatusOK, SessionResponse{Username: user.Name, Role: user.Role})
}

// SharedLogin checks the shared secret and sets the field-auth cookie.
func (h *AuthHandler) SharedLogin(w http.ResponseWriter, r *http.Request) {
	if !h.gates.SharedSecretMode() {
		logger.FromRequest(r).Error().Msg("shared-secret login requested but FIELD_AUTH_SECRET is not set")
		writeError(w, http.StatusInternalServerError, "Server configuration error")
		return
	}

	var req SharedLoginRequest
	if err := decodeJSON(r, &req); err != nil || !h.gates.CheckSharedSecret(req.Password) {
		writeError(w, http.StatusUnauthorized, unauthorizedMessage)
		return
	}

	http.SetCookie(w, h.gates.SharedSecretCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me returns the identity carried by the session cookie.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Username: sess.Username, Role: sess.Role})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.codec.ClearCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
