package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vtakmakov/takmachat/internal/logger"
	"github.com/vtakmakov/takmachat/pkg/keys"
	"github.com/vtakmakov/takmachat/pkg/server"
	"github.com/vtakmakov/takmachat/pkg/server/store"
)

// handler serves the admin API endpoints over the broker's control
// surface. Authentication is a single operator account from the server
// configuration.
type handler struct {
	broker       *server.Server
	jwt          *JWTService
	username     string
	passwordHash string
}

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the request body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// CreateUserRequest is the request body for POST /api/v1/users. The
// password is hashed server-side with the client-compatible PBKDF2
// scheme, so accounts registered here work with unmodified clients.
type CreateUserRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// ResetPasswordRequest is the request body for
// POST /api/v1/users/{login}/password.
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login.
func (h *handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		badRequest(w, "Username and password are required")
		return
	}

	if req.Username != h.username ||
		bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)) != nil {
		unauthorized(w, "Invalid username or password")
		return
	}

	pair, err := h.jwt.GenerateTokenPair(req.Username)
	if err != nil {
		logger.Error("token generation failed", "error", err)
		internalError(w, "Failed to generate token")
		return
	}
	writeOK(w, pair)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	claims, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		unauthorized(w, "Invalid or expired refresh token")
		return
	}

	pair, err := h.jwt.GenerateTokenPair(claims.Username)
	if err != nil {
		logger.Error("token generation failed", "error", err)
		internalError(w, "Failed to generate token")
		return
	}
	writeOK(w, pair)
}

// ListUsers handles GET /api/v1/users.
func (h *handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.broker.ListAllUsers(r.Context())
	if err != nil {
		logger.Error("user listing failed", "error", err)
		internalError(w, "Failed to list users")
		return
	}
	writeOK(w, users)
}

// CreateUser handles POST /api/v1/users.
func (h *handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Login == "" || req.Password == "" {
		badRequest(w, "Login and password are required")
		return
	}

	hash := keys.PasswordHash(req.Login, req.Password)
	if err := h.broker.RegisterUser(r.Context(), req.Login, hash); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			conflict(w, "User already exists")
			return
		}
		logger.Error("user registration failed", "login", req.Login, "error", err)
		internalError(w, "Failed to register user")
		return
	}

	logger.Info("user registered", "login", req.Login)
	writeCreated(w, map[string]string{"login": req.Login})
}

// DeleteUser handles DELETE /api/v1/users/{login}.
func (h *handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	if err := h.broker.RemoveUser(r.Context(), login); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			notFound(w, "User not found")
			return
		}
		logger.Error("user removal failed", "login", login, "error", err)
		internalError(w, "Failed to remove user")
		return
	}

	logger.Info("user removed", "login", login)
	writeOK(w, map[string]string{"login": login})
}

// ResetPassword handles POST /api/v1/users/{login}/password.
func (h *handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	var req ResetPasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Password == "" {
		badRequest(w, "Password is required")
		return
	}

	hash := keys.PasswordHash(login, req.Password)
	if err := h.broker.ChangePassword(r.Context(), login, hash); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			notFound(w, "User not found")
			return
		}
		logger.Error("password reset failed", "login", login, "error", err)
		internalError(w, "Failed to reset password")
		return
	}

	logger.Info("password reset", "login", login)
	writeOK(w, map[string]string{"login": login})
}

// Sessions handles GET /api/v1/sessions.
func (h *handler) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.broker.ListActiveUsers(r.Context())
	if err != nil {
		logger.Error("session listing failed", "error", err)
		internalError(w, "Failed to list sessions")
		return
	}
	writeOK(w, sessions)
}

// History handles GET /api/v1/history[?login=].
func (h *handler) History(w http.ResponseWriter, r *http.Request) {
	login := r.URL.Query().Get("login")

	entries, err := h.broker.LoginHistory(r.Context(), login)
	if err != nil {
		logger.Error("history listing failed", "error", err)
		internalError(w, "Failed to list login history")
		return
	}
	writeOK(w, entries)
}

// Counters handles GET /api/v1/counters.
func (h *handler) Counters(w http.ResponseWriter, r *http.Request) {
	counters, err := h.broker.MessageCounters(r.Context())
	if err != nil {
		logger.Error("counter listing failed", "error", err)
		internalError(w, "Failed to list counters")
		return
	}
	writeOK(w, counters)
}

// Health handles GET /health. Unauthenticated liveness probe.
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"active_connections": h.broker.ActiveConnections(),
		},
	})
}
