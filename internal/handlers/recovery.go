package handlers

import (
	"net/http"

	"github.com/AnshRaj112/somnia-backend/internal/models"
)

type EmailRequest struct {
	Email string `json:"email"`
}

type CodeRequest struct {
	OTP string `json:"otp"`
}

type VerifyResetCodeRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type ResetPasswordRequest struct {
	ResetToken string `json:"reset_token"`
	Password   string `json:"password"`
}

type ResetTokenResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ResetToken string `json:"reset_token"`
}

type UserResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

// RequestEmailUpdate mails a code to the new address.
func (h *Handler) RequestEmailUpdate(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.recovery.RequestEmailUpdate(ctx, user.ID, req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "A verification code has been sent to the new email")
}

func (h *Handler) ConfirmEmailUpdate(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	updated, err := h.recovery.ConfirmEmailUpdate(ctx, user.ID, req.OTP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, Message: "Email updated", User: updated})
}

func (h *Handler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.recovery.RequestEmailVerification(ctx, user.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "A verification code has been sent to your email")
}

func (h *Handler) ConfirmEmailVerification(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req CodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.recovery.ConfirmEmailVerification(ctx, user.ID, req.OTP); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email verified")
}

// ForgotPassword always answers with the same notice for well-formed input.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	notice, err := h.recovery.RequestPasswordReset(ctx, req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, notice.Message)
}

// VerifyResetCode trades a correct code for a short-lived reset token.
func (h *Handler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	token, err := h.recovery.VerifyPasswordResetCode(ctx, req.Email, req.OTP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ResetTokenResponse{Success: true, Message: "Code verified", ResetToken: token})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.recovery.CompleteReset(ctx, req.ResetToken, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password updated. Please log in again.")
}
