package otp

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/metrics"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"github.com/AnshRaj112/somnia-backend/pkg/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Identity narrows a verification to the codes sent to Email, owned by
// UserID, or both.
type Identity struct {
	Email  string
	UserID *primitive.ObjectID
}

// Ledger owns the lifecycle of stored codes: issue, verify, mark used,
// corroborate and delete.
type Ledger struct {
	otps     repository.OTPRepository
	users    repository.UserRepository
	hasher   CodeHasher
	generate func() (string, error)
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithGenerator(generate func() (string, error)) Option {
	return func(l *Ledger) { l.generate = generate }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func NewLedger(otps repository.OTPRepository, users repository.UserRepository, hasher CodeHasher, opts ...Option) *Ledger {
	l := &Ledger{
		otps:     otps,
		users:    users,
		hasher:   hasher,
		generate: GenerateCode,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue stores a hashed code for purpose and returns the plaintext for
// delivery. For password reset an unknown email yields ("", nil) so callers
// can answer exactly as they would for a real account.
func (l *Ledger) Issue(ctx context.Context, email string, purpose models.OTPPurpose, userID *primitive.ObjectID) (string, error) {
	if !purpose.Valid() {
		return "", apperr.InvalidUsage("unknown otp purpose %q", purpose)
	}
	if purpose.RequiresUser() && userID == nil {
		return "", apperr.InvalidUsage("otp purpose %q requires a user id", purpose)
	}
	email = utils.NormalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return "", err
	}

	switch purpose {
	case models.PurposeEmailUpdate:
		existing, err := l.users.FindByEmail(ctx, email)
		switch {
		case err == nil && existing.ID == *userID:
			return "", apperr.EmailAlreadyOwned()
		case err == nil:
			return "", apperr.EmailTaken()
		case !errors.Is(err, repository.ErrNotFound):
			return "", apperr.Internal(err)
		}
	case models.PurposePasswordReset:
		user, err := l.users.FindByEmail(ctx, email)
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", apperr.Internal(err)
		}
		id := user.ID
		userID = &id
	}

	code, err := l.generate()
	if err != nil {
		return "", apperr.Internal(err)
	}
	hash, err := l.hasher.Hash(code)
	if err != nil {
		return "", apperr.Internal(err)
	}

	now := l.now()
	record := &models.OTP{
		UserID:    userID,
		Email:     email,
		Purpose:   purpose,
		CodeHash:  hash,
		ExpiresAt: now.Add(purpose.TTL()),
		CreatedAt: now,
	}
	if err := l.otps.Create(ctx, record); err != nil {
		return "", apperr.Internal(err)
	}

	metrics.OTPIssued.WithLabelValues(string(purpose)).Inc()
	return code, nil
}

// Verify returns the active record whose hash matches code. It does not
// consume the record.
func (l *Ledger) Verify(ctx context.Context, code string, purpose models.OTPPurpose, id Identity) (*models.OTP, error) {
	candidates, err := l.candidates(ctx, code, purpose, id)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if l.hasher.Matches(candidates[i].CodeHash, code) {
			metrics.OTPVerifications.WithLabelValues(string(purpose), "success").Inc()
			rec := candidates[i]
			return &rec, nil
		}
	}
	metrics.OTPVerifications.WithLabelValues(string(purpose), "miss").Inc()
	return nil, apperr.InvalidOrExpiredOtp()
}

// VerifyAndMarkUsed is Verify plus a conditional used=false -> true
// transition. When two callers present the same code only the one whose
// update lands gets the record.
func (l *Ledger) VerifyAndMarkUsed(ctx context.Context, code string, purpose models.OTPPurpose, id Identity) (*models.OTP, error) {
	candidates, err := l.candidates(ctx, code, purpose, id)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if !l.hasher.Matches(candidates[i].CodeHash, code) {
			continue
		}
		won, err := l.otps.MarkUsed(ctx, candidates[i].ID, l.now())
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if !won {
			continue
		}
		metrics.OTPVerifications.WithLabelValues(string(purpose), "success").Inc()
		rec := candidates[i]
		rec.Used = true
		return &rec, nil
	}
	metrics.OTPVerifications.WithLabelValues(string(purpose), "miss").Inc()
	return nil, apperr.InvalidOrExpiredOtp()
}

// FindUsed corroborates a bridge token: the record must exist, be used,
// unexpired, owned by userID and issued for purpose.
func (l *Ledger) FindUsed(ctx context.Context, otpID, userID primitive.ObjectID, purpose models.OTPPurpose) (*models.OTP, error) {
	rec, err := l.otps.FindUsed(ctx, otpID, userID, purpose, l.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.InvalidResetSession()
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rec, nil
}

// Redeem deletes the record a bridge token names under the same conditions
// as FindUsed. Only one caller can redeem a record; the rest get
// InvalidResetSession.
func (l *Ledger) Redeem(ctx context.Context, otpID, userID primitive.ObjectID, purpose models.OTPPurpose) error {
	won, err := l.otps.ConsumeUsed(ctx, otpID, userID, purpose, l.now())
	if err != nil {
		return apperr.Internal(err)
	}
	if !won {
		return apperr.InvalidResetSession()
	}
	return nil
}

// Delete removes a record. Missing records are not an error.
func (l *Ledger) Delete(ctx context.Context, otpID primitive.ObjectID) error {
	if err := l.otps.Delete(ctx, otpID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (l *Ledger) candidates(ctx context.Context, code string, purpose models.OTPPurpose, id Identity) ([]models.OTP, error) {
	if id.Email == "" && id.UserID == nil {
		l.log.Error("otp verify called without identity", zap.String("purpose", string(purpose)))
		return nil, apperr.InvalidUsage("otp verify requires an email or user id")
	}
	if !purpose.Valid() {
		return nil, apperr.InvalidUsage("unknown otp purpose %q", purpose)
	}
	if !wellFormed(code) {
		metrics.OTPVerifications.WithLabelValues(string(purpose), "miss").Inc()
		return nil, apperr.InvalidOrExpiredOtp()
	}
	records, err := l.otps.FindActive(ctx, repository.OTPFilter{
		Purpose: purpose,
		Email:   utils.NormalizeEmail(id.Email),
		UserID:  id.UserID,
		Now:     l.now(),
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return records, nil
}

func wellFormed(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
