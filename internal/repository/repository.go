// Package repository holds the persistence interfaces used by the auth core
// plus their MongoDB and in-memory implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// OTPFilter selects unused, unexpired codes for a purpose. At least one of
// Email or UserID should be set; the ledger enforces that.
type OTPFilter struct {
	Purpose models.OTPPurpose
	Email   string
	UserID  *primitive.ObjectID
	Now     time.Time
}

type OTPRepository interface {
	Create(ctx context.Context, otp *models.OTP) error
	FindActive(ctx context.Context, filter OTPFilter) ([]models.OTP, error)
	// MarkUsed flips used from false to true only if the record is still
	// unused and unexpired at now. It reports whether this call won.
	MarkUsed(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error)
	// FindUsed returns a used, unexpired record owned by userID for purpose.
	FindUsed(ctx context.Context, id, userID primitive.ObjectID, purpose models.OTPPurpose, now time.Time) (*models.OTP, error)
	// ConsumeUsed deletes the record only if it is used, unexpired at now,
	// owned by userID and issued for purpose. It reports whether this call
	// removed it.
	ConsumeUsed(ctx context.Context, id, userID primitive.ObjectID, purpose models.OTPPurpose, now time.Time) (bool, error)
	// Delete never fails on a missing record.
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateEmail(ctx context.Context, id primitive.ObjectID, email string) error
	SetVerified(ctx context.Context, id primitive.ObjectID) error
	UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error
	// AddToken and RemoveToken are atomic on the stored list so concurrent
	// logins and logouts never lose each other's updates.
	AddToken(ctx context.Context, id primitive.ObjectID, token string) error
	RemoveToken(ctx context.Context, id primitive.ObjectID, token string) error
	ClearTokens(ctx context.Context, id primitive.ObjectID) error
}

type DreamRepository interface {
	Create(ctx context.Context, dream *models.Dream) error
	ListByUser(ctx context.Context, userID primitive.ObjectID, limit, skip int64) ([]models.Dream, error)
	CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) error
}

type TagRepository interface {
	AddDream(ctx context.Context, userID primitive.ObjectID, name string, dreamID primitive.ObjectID) error
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Tag, error)
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) error
}
