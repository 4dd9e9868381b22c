package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/metrics"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultSessionTTL      = 24 * time.Hour
	DefaultGuestSessionTTL = time.Hour
)

// Session is an issued session token plus metadata for the client.
type Session struct {
	Token     string    `json:"token"`
	Guest     bool      `json:"guest"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// SessionManager issues signed session tokens and keeps them in the owner's
// token list. A token authenticates only while it verifies and is still
// listed, so removal from the list is revocation.
type SessionManager struct {
	secret   []byte
	ttl      time.Duration
	guestTTL time.Duration
	users    repository.UserRepository
	now      func() time.Time
}

func NewSessionManager(secret string, ttl, guestTTL time.Duration, users repository.UserRepository) (*SessionManager, error) {
	if secret == "" {
		return nil, apperr.Config("session secret is not configured")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if guestTTL <= 0 {
		guestTTL = DefaultGuestSessionTTL
	}
	return &SessionManager{
		secret:   []byte(secret),
		ttl:      ttl,
		guestTTL: guestTTL,
		users:    users,
		now:      time.Now,
	}, nil
}

// WithClock replaces the manager's clock. Intended for tests.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// Issue signs a new token for user and appends it to the stored list.
func (m *SessionManager) Issue(ctx context.Context, user *models.User, guest bool) (Session, error) {
	ttl := m.ttl
	kind := "user"
	if guest {
		ttl = m.guestTTL
		kind = "guest"
	}

	now := m.now()
	expiresAt := now.Add(ttl)
	claims := sessionClaims{
		UID: user.ID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}

	if err := m.users.AddToken(ctx, user.ID, signed); err != nil {
		return Session{}, apperr.Internal(err)
	}
	user.Tokens = append(user.Tokens, signed)

	metrics.SessionsIssued.WithLabelValues(kind).Inc()
	return Session{Token: signed, Guest: guest, ExpiresAt: expiresAt}, nil
}

// Revoke removes exactly token from userID's list. Unknown tokens are a no-op.
func (m *SessionManager) Revoke(ctx context.Context, userID primitive.ObjectID, token string) error {
	err := m.users.RemoveToken(ctx, userID, token)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal(err)
	}
	return nil
}

// RevokeAll empties userID's token list, logging out every device.
func (m *SessionManager) RevokeAll(ctx context.Context, userID primitive.ObjectID) error {
	if err := m.users.ClearTokens(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Authenticate resolves token to its owner. Bad, expired or revoked tokens
// and unknown owners are all the same Unauthorized error. Storage failures
// during lookup are Internal.
func (m *SessionManager) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperr.Unauthorized("")
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, apperr.Unauthorized("")
	}
	uid, err := primitive.ObjectIDFromHex(claims.UID)
	if err != nil {
		return nil, apperr.Unauthorized("")
	}
	user, err := m.users.FindByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthorized("")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !user.HasToken(token) {
		return nil, apperr.Unauthorized("")
	}
	return user, nil
}
