// Package apperr defines the domain errors returned by the auth and recovery
// services. Every error carries a Kind and, when it belongs to a specific
// input, the name of that field so handlers can attach it to the form.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidUsage
	KindValidation
	KindEmailTaken
	KindEmailAlreadyOwned
	KindAlreadyVerified
	KindInvalidOrExpiredOtp
	KindInvalidResetSession
	KindUnauthorized
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindInvalidUsage:
		return "invalid_usage"
	case KindValidation:
		return "validation"
	case KindEmailTaken:
		return "email_taken"
	case KindEmailAlreadyOwned:
		return "email_already_owned"
	case KindAlreadyVerified:
		return "already_verified"
	case KindInvalidOrExpiredOtp:
		return "invalid_or_expired_otp"
	case KindInvalidResetSession:
		return "invalid_reset_session"
	case KindUnauthorized:
		return "unauthorized"
	case KindConfig:
		return "config"
	default:
		return "internal"
	}
}

// Error is a domain error. Field is empty when the error does not map to a
// single input.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is regardless of field or message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInternal            = &Error{Kind: KindInternal, Message: "Something went wrong"}
	ErrInvalidUsage        = &Error{Kind: KindInvalidUsage, Message: "Invalid internal usage"}
	ErrValidation          = &Error{Kind: KindValidation, Message: "Invalid input"}
	ErrEmailTaken          = &Error{Kind: KindEmailTaken, Message: "Email is already in use"}
	ErrEmailAlreadyOwned   = &Error{Kind: KindEmailAlreadyOwned, Message: "This is already your email"}
	ErrAlreadyVerified     = &Error{Kind: KindAlreadyVerified, Message: "Email is already verified"}
	ErrInvalidOrExpiredOtp = &Error{Kind: KindInvalidOrExpiredOtp, Message: "Invalid or expired code"}
	ErrInvalidResetSession = &Error{Kind: KindInvalidResetSession, Message: "Invalid or expired reset session"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Message: "Authentication required"}
	ErrConfig              = &Error{Kind: KindConfig, Message: "Server misconfigured"}
)

func New(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

func InvalidUsage(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidUsage, Message: fmt.Sprintf(format, args...)}
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func EmailTaken() *Error {
	return &Error{Kind: KindEmailTaken, Field: "email", Message: ErrEmailTaken.Message}
}

func EmailAlreadyOwned() *Error {
	return &Error{Kind: KindEmailAlreadyOwned, Field: "email", Message: ErrEmailAlreadyOwned.Message}
}

func AlreadyVerified() *Error {
	return &Error{Kind: KindAlreadyVerified, Field: "email", Message: ErrAlreadyVerified.Message}
}

// InvalidOrExpiredOtp is deliberately generic: wrong code, expired code,
// wrong purpose, already used and not found all produce this value.
func InvalidOrExpiredOtp() *Error {
	return &Error{Kind: KindInvalidOrExpiredOtp, Field: "otp", Message: ErrInvalidOrExpiredOtp.Message}
}

func InvalidResetSession() *Error {
	return &Error{Kind: KindInvalidResetSession, Field: "token", Message: ErrInvalidResetSession.Message}
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = ErrUnauthorized.Message
	}
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Config(message string) *Error {
	return &Error{Kind: KindConfig, Message: message}
}

// Internal wraps an unexpected infrastructure error.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: ErrInternal.Message, Err: err}
}

// From returns err as an *Error, wrapping unknown errors as Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
