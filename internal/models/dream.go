package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Dream represents a private dream journal entry for a user
type Dream struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
	UserID    primitive.ObjectID `bson:"user_id" json:"-"`
	Title     string             `bson:"title" json:"title"`
	Content   string             `bson:"content" json:"content"`
	Themes    []string           `bson:"themes,omitempty" json:"themes,omitempty"`
	Tags      []string           `bson:"tags,omitempty" json:"tags,omitempty"`
}

// Tag groups a user's dreams under a lowercase label.
type Tag struct {
	ID       primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID   primitive.ObjectID   `bson:"user_id" json:"-"`
	Name     string               `bson:"name" json:"name"`
	DreamIDs []primitive.ObjectID `bson:"dream_ids" json:"dream_ids"`
}
