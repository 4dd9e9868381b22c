package services

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"github.com/AnshRaj112/somnia-backend/internal/tokens"
	"github.com/AnshRaj112/somnia-backend/pkg/utils"
	"go.uber.org/zap"
)

const invalidCredentials = "Invalid email or password"

// AuthService wraps account creation and the session lifecycle.
type AuthService struct {
	users    repository.UserRepository
	sessions *tokens.SessionManager
	guest    *GuestService
	log      *zap.Logger
}

func NewAuthService(users repository.UserRepository, sessions *tokens.SessionManager, guest *GuestService, log *zap.Logger) *AuthService {
	return &AuthService{users: users, sessions: sessions, guest: guest, log: log}
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, tokens.Session, error) {
	email = utils.NormalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, tokens.Session{}, err
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, tokens.Session{}, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, tokens.Session{}, apperr.Internal(err)
	}

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, tokens.Session{}, apperr.EmailTaken()
		}
		return nil, tokens.Session{}, apperr.Internal(err)
	}

	session, err := s.sessions.Issue(ctx, user, false)
	if err != nil {
		return nil, tokens.Session{}, err
	}
	s.log.Info("user registered", zap.String("user_id", user.ID.Hex()))
	return user, session, nil
}

// Login checks credentials and issues a new session alongside any existing
// ones. Unknown email, wrong password and the guest account all fail the same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, tokens.Session, error) {
	email = utils.NormalizeEmail(email)
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, tokens.Session{}, apperr.Unauthorized(invalidCredentials)
	}
	if err != nil {
		return nil, tokens.Session{}, apperr.Internal(err)
	}
	if user.IsGuest || user.PasswordHash == "" {
		return nil, tokens.Session{}, apperr.Unauthorized(invalidCredentials)
	}

	ok, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.log.Error("stored password hash unreadable", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		return nil, tokens.Session{}, apperr.Unauthorized(invalidCredentials)
	}
	if !ok {
		return nil, tokens.Session{}, apperr.Unauthorized(invalidCredentials)
	}

	session, err := s.sessions.Issue(ctx, user, false)
	if err != nil {
		return nil, tokens.Session{}, err
	}
	return user, session, nil
}

func (s *AuthService) LoginGuest(ctx context.Context) (*models.User, tokens.Session, error) {
	return s.guest.Login(ctx)
}

func (s *AuthService) Logout(ctx context.Context, user *models.User, token string) error {
	return s.sessions.Revoke(ctx, user.ID, token)
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	return s.sessions.Authenticate(ctx, token)
}
