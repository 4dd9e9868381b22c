package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/metrics"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/otp"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"github.com/AnshRaj112/somnia-backend/internal/tokens"
	"github.com/AnshRaj112/somnia-backend/pkg/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Notice is the response to a password reset request. It is the same value
// whether or not the address belongs to an account.
type Notice struct {
	Message string `json:"message"`
}

var PasswordResetNotice = Notice{Message: "If an account exists for that email, a reset code has been sent."}

type RecoveryService struct {
	ledger   *otp.Ledger
	bridge   *tokens.BridgeIssuer
	sessions *tokens.SessionManager
	users    repository.UserRepository
	mailer   Mailer
	from     string
	log      *zap.Logger
}

func NewRecoveryService(
	ledger *otp.Ledger,
	bridge *tokens.BridgeIssuer,
	sessions *tokens.SessionManager,
	users repository.UserRepository,
	mailer Mailer,
	from string,
	log *zap.Logger,
) (*RecoveryService, error) {
	if from == "" {
		return nil, apperr.Config("mail sender address is not configured")
	}
	if bridge == nil {
		return nil, apperr.Config("reset token issuer is not configured")
	}
	return &RecoveryService{
		ledger:   ledger,
		bridge:   bridge,
		sessions: sessions,
		users:    users,
		mailer:   mailer,
		from:     from,
		log:      log,
	}, nil
}

// RequestEmailUpdate sends a code to newEmail proving the user controls it.
// The shared guest account keeps its address.
func (s *RecoveryService) RequestEmailUpdate(ctx context.Context, userID primitive.ObjectID, newEmail string) error {
	if err := s.refuseGuest(ctx, userID); err != nil {
		return err
	}
	email := utils.NormalizeEmail(newEmail)
	code, err := s.ledger.Issue(ctx, email, models.PurposeEmailUpdate, &userID)
	if err != nil {
		return s.fail(err)
	}
	return s.deliver(ctx, email, models.PurposeEmailUpdate, code)
}

// ConfirmEmailUpdate moves the user to the address the code was sent to.
// Receiving the code there proves ownership, so the account is also marked
// verified.
func (s *RecoveryService) ConfirmEmailUpdate(ctx context.Context, userID primitive.ObjectID, code string) (*models.User, error) {
	if err := s.refuseGuest(ctx, userID); err != nil {
		return nil, err
	}
	rec, err := s.ledger.Verify(ctx, code, models.PurposeEmailUpdate, otp.Identity{UserID: &userID})
	if err != nil {
		return nil, s.fail(err)
	}

	if err := s.users.UpdateEmail(ctx, userID, rec.Email); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, apperr.EmailTaken()
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.Unauthorized("")
		}
		return nil, s.fail(err)
	}
	if err := s.users.SetVerified(ctx, userID); err != nil {
		return nil, s.fail(err)
	}
	if err := s.ledger.Delete(ctx, rec.ID); err != nil {
		return nil, s.fail(err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, s.fail(err)
	}
	s.log.Info("email updated", zap.String("user_id", userID.Hex()))
	return user, nil
}

// RequestEmailVerification refuses before issuing if the account is already
// verified.
func (s *RecoveryService) RequestEmailVerification(ctx context.Context, userID primitive.ObjectID) error {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Unauthorized("")
	}
	if err != nil {
		return s.fail(err)
	}
	if user.IsVerified {
		return apperr.AlreadyVerified()
	}

	code, err := s.ledger.Issue(ctx, user.Email, models.PurposeEmailVerification, &userID)
	if err != nil {
		return s.fail(err)
	}
	return s.deliver(ctx, user.Email, models.PurposeEmailVerification, code)
}

func (s *RecoveryService) ConfirmEmailVerification(ctx context.Context, userID primitive.ObjectID, code string) error {
	rec, err := s.ledger.Verify(ctx, code, models.PurposeEmailVerification, otp.Identity{UserID: &userID})
	if err != nil {
		return s.fail(err)
	}
	if err := s.users.SetVerified(ctx, userID); err != nil {
		return s.fail(err)
	}
	if err := s.ledger.Delete(ctx, rec.ID); err != nil {
		return s.fail(err)
	}
	return nil
}

// RequestPasswordReset answers with PasswordResetNotice for every well-formed
// address. Delivery failures are logged and counted but not returned.
func (s *RecoveryService) RequestPasswordReset(ctx context.Context, email string) (Notice, error) {
	email = utils.NormalizeEmail(email)
	code, err := s.ledger.Issue(ctx, email, models.PurposePasswordReset, nil)
	if err != nil {
		return Notice{}, s.fail(err)
	}
	if code == "" {
		s.log.Debug("password reset requested for unknown email")
		return PasswordResetNotice, nil
	}
	_ = s.deliver(ctx, email, models.PurposePasswordReset, code)
	return PasswordResetNotice, nil
}

// VerifyPasswordResetCode consumes the code and returns a bridge token for
// CompleteReset.
func (s *RecoveryService) VerifyPasswordResetCode(ctx context.Context, email, code string) (string, error) {
	email = utils.NormalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return "", err
	}
	rec, err := s.ledger.VerifyAndMarkUsed(ctx, code, models.PurposePasswordReset, otp.Identity{Email: email})
	if err != nil {
		return "", s.fail(err)
	}
	if rec.UserID == nil {
		return "", apperr.InvalidOrExpiredOtp()
	}
	token, err := s.bridge.Issue(*rec.UserID, rec.ID)
	if err != nil {
		return "", s.fail(err)
	}
	return token, nil
}

// CompleteReset redeems a bridge token exactly once. The token must agree
// with the ledger: the code it names must still be used, unexpired and owned
// by the same user. The code is consumed before the password changes, so
// concurrent redemptions of one token have a single winner. Every existing
// session is revoked afterwards.
func (s *RecoveryService) CompleteReset(ctx context.Context, bridgeToken, newPassword string) error {
	if err := utils.ValidatePassword(newPassword); err != nil {
		return err
	}

	claims, err := s.bridge.Verify(bridgeToken)
	if errors.Is(err, tokens.ErrInvalidToken) {
		return apperr.InvalidResetSession()
	}
	if err != nil {
		return s.fail(err)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.InvalidResetSession()
	}
	if err != nil {
		return s.fail(err)
	}

	if _, err := s.ledger.FindUsed(ctx, claims.OTPID, user.ID, models.PurposePasswordReset); err != nil {
		return s.fail(err)
	}
	if err := s.ledger.Redeem(ctx, claims.OTPID, user.ID, models.PurposePasswordReset); err != nil {
		return s.fail(err)
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return s.fail(err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return s.fail(err)
	}
	if err := s.sessions.RevokeAll(ctx, user.ID); err != nil {
		return s.fail(err)
	}

	s.log.Info("password reset completed", zap.String("user_id", user.ID.Hex()))
	return nil
}

func (s *RecoveryService) refuseGuest(ctx context.Context, userID primitive.ObjectID) error {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Unauthorized("")
	}
	if err != nil {
		return s.fail(err)
	}
	if user.IsGuest {
		return apperr.Validation("", "The guest account cannot change its email")
	}
	return nil
}

func (s *RecoveryService) deliver(ctx context.Context, to string, purpose models.OTPPurpose, code string) error {
	msg := renderOTPMail(s.from, to, purpose, code)
	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.MailFailures.WithLabelValues(string(purpose)).Inc()
		s.log.Error("otp mail delivery failed",
			zap.String("purpose", string(purpose)),
			zap.String("to", to),
			zap.Error(err),
		)
		return apperr.Internal(fmt.Errorf("send %s mail: %w", purpose, err))
	}
	return nil
}

// fail logs defects distinctly from user errors and wraps anything foreign
// as a system error.
func (s *RecoveryService) fail(err error) error {
	e := apperr.From(err)
	switch e.Kind {
	case apperr.KindInvalidUsage, apperr.KindConfig:
		s.log.Error("recovery defect", zap.String("kind", e.Kind.String()), zap.Error(err))
	case apperr.KindInternal:
		s.log.Error("recovery system error", zap.Error(err))
	}
	return e
}

func renderOTPMail(from, to string, purpose models.OTPPurpose, code string) Message {
	minutes := int(purpose.TTL().Minutes())
	var subject, intro string
	switch purpose {
	case models.PurposeEmailUpdate:
		subject = "Confirm your new Somnia email"
		intro = "Use this code to confirm your new email address:"
	case models.PurposeEmailVerification:
		subject = "Verify your Somnia email"
		intro = "Use this code to verify your email address:"
	case models.PurposePasswordReset:
		subject = "Reset your Somnia password"
		intro = "Use this code to reset your password:"
	}
	text := fmt.Sprintf("%s\n\n    %s\n\nThe code expires in %d minutes. If you did not ask for it, you can ignore this email.\n",
		intro, code, minutes)
	return Message{From: from, To: to, Subject: subject, Text: text}
}
