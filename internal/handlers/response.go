package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request. Field names the input the
// error belongs to, when there is one.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// MessageResponse is returned by endpoints that only acknowledge.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Success: true, Message: message})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation,
		apperr.KindInvalidOrExpiredOtp,
		apperr.KindInvalidResetSession,
		apperr.KindAlreadyVerified,
		apperr.KindEmailAlreadyOwned:
		return http.StatusBadRequest
	case apperr.KindEmailTaken:
		return http.StatusConflict
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to its status. Server-side kinds get a
// generic body; the detail only goes to the log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	status := statusFor(e.Kind)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("kind", e.Kind.String()),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, ErrorResponse{Message: apperr.ErrInternal.Message})
		return
	}
	writeJSON(w, status, ErrorResponse{Message: e.Message, Field: e.Field})
}

// decodeJSON reads a single JSON object from the body. An empty body leaves
// dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("", "Invalid request body")
	}
	return nil
}
