package handlers

import (
	"net/http"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/middleware"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/tokens"
)

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the user and, on login, the session token.
type AuthResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	User      *models.User `json:"user,omitempty"`
	Token     string       `json:"token,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Guest     bool         `json:"guest,omitempty"`
}

func sessionResponse(message string, user *models.User, s tokens.Session) AuthResponse {
	exp := s.ExpiresAt
	return AuthResponse{
		Success:   true,
		Message:   message,
		User:      user,
		Token:     s.Token,
		ExpiresAt: &exp,
		Guest:     s.Guest,
	}
}

// Register creates an account and logs it in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	user, session, err := h.auth.Register(ctx, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse("Account created", user, session))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	user, session, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse("Logged in", user, session))
}

// GuestLogin resets the shared demo account and hands out a guest session.
func (h *Handler) GuestLogin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	user, session, err := h.auth.LoginGuest(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse("Logged in as guest", user, session))
}

// Logout revokes only the token the request was made with.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.auth.Logout(ctx, user, middleware.TokenFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out")
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Message: "OK", User: user})
}
