package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OTPPurpose is the closed set of reasons a code can be issued for.
// Each purpose owns its expiry so the two can never drift apart.
type OTPPurpose string

const (
	PurposeEmailUpdate       OTPPurpose = "email-update"
	PurposePasswordReset     OTPPurpose = "password-reset"
	PurposeEmailVerification OTPPurpose = "email-verification"
)

// Purposes lists every valid purpose.
var Purposes = []OTPPurpose{PurposeEmailUpdate, PurposePasswordReset, PurposeEmailVerification}

// Valid reports whether p is one of the known purposes.
func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeEmailUpdate, PurposePasswordReset, PurposeEmailVerification:
		return true
	}
	return false
}

// TTL is how long a code issued for p stays usable.
func (p OTPPurpose) TTL() time.Duration {
	switch p {
	case PurposeEmailVerification:
		return 24 * time.Hour
	case PurposeEmailUpdate, PurposePasswordReset:
		return 10 * time.Minute
	}
	return 0
}

// RequiresUser reports whether issuance must name the requesting user.
func (p OTPPurpose) RequiresUser() bool {
	return p == PurposeEmailUpdate || p == PurposeEmailVerification
}

// OTP is a stored one-time code. The plaintext code is never persisted.
type OTP struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Email     string              `bson:"email" json:"email"`
	Purpose   OTPPurpose          `bson:"purpose" json:"purpose"`
	CodeHash  string              `bson:"code_hash" json:"-"`
	ExpiresAt time.Time           `bson:"expires_at" json:"expires_at"`
	Used      bool                `bson:"used" json:"used"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
}

// Active reports whether the record can still be verified at now.
func (o *OTP) Active(now time.Time) bool {
	return !o.Used && o.ExpiresAt.After(now)
}

// OwnedBy reports whether the record belongs to userID.
func (o *OTP) OwnedBy(userID primitive.ObjectID) bool {
	return o.UserID != nil && *o.UserID == userID
}
