package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	Email        string `bson:"email" json:"email"`
	PasswordHash string `bson:"password_hash" json:"-"` // Don't return password in JSON
	IsVerified   bool   `bson:"is_verified" json:"is_verified"`
	IsGuest      bool   `bson:"is_guest,omitempty" json:"is_guest,omitempty"`

	// Tokens holds one signed session token per logged-in device.
	Tokens []string `bson:"tokens" json:"-"`
}

// HasToken reports whether token is still in the user's session list.
func (u *User) HasToken(token string) bool {
	for _, t := range u.Tokens {
		if t == token {
			return true
		}
	}
	return false
}
