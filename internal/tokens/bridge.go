// Package tokens signs and verifies the two JWT kinds the service hands out:
// short-lived bridge tokens that carry a verified password-reset code forward,
// and session tokens tracked in the owner's token list.
package tokens

import (
	"errors"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultBridgeTTL bounds how long a verified reset code can be redeemed.
const DefaultBridgeTTL = 10 * time.Minute

// ErrInvalidToken covers every bridge verification failure: bad signature,
// expiry, wrong algorithm, malformed claims.
var ErrInvalidToken = errors.New("invalid token")

// BridgeClaims identifies the user and the used code a bridge token stands for.
type BridgeClaims struct {
	UserID primitive.ObjectID
	OTPID  primitive.ObjectID
}

type bridgeClaims struct {
	UID string `json:"uid"`
	OID string `json:"oid"`
	jwt.RegisteredClaims
}

type BridgeIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewBridgeIssuer fails with a config error when secret is empty. ttl <= 0
// selects DefaultBridgeTTL.
func NewBridgeIssuer(secret string, ttl time.Duration) (*BridgeIssuer, error) {
	if secret == "" {
		return nil, apperr.Config("reset token secret is not configured")
	}
	if ttl <= 0 {
		ttl = DefaultBridgeTTL
	}
	return &BridgeIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the issuer's clock. Intended for tests.
func (b *BridgeIssuer) WithClock(now func() time.Time) *BridgeIssuer {
	b.now = now
	return b
}

func (b *BridgeIssuer) Issue(userID, otpID primitive.ObjectID) (string, error) {
	if b == nil || len(b.secret) == 0 {
		return "", apperr.Config("reset token secret is not configured")
	}
	now := b.now()
	claims := bridgeClaims{
		UID: userID.Hex(),
		OID: otpID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return signed, nil
}

func (b *BridgeIssuer) Verify(token string) (BridgeClaims, error) {
	if b == nil || len(b.secret) == 0 {
		return BridgeClaims{}, apperr.Config("reset token secret is not configured")
	}
	var claims bridgeClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		return BridgeClaims{}, ErrInvalidToken
	}

	uid, err := primitive.ObjectIDFromHex(claims.UID)
	if err != nil {
		return BridgeClaims{}, ErrInvalidToken
	}
	oid, err := primitive.ObjectIDFromHex(claims.OID)
	if err != nil {
		return BridgeClaims{}, ErrInvalidToken
	}
	return BridgeClaims{UserID: uid, OTPID: oid}, nil
}
