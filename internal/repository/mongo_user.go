package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const userCollection = "users"

type MongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection(userCollection)}
}

func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("uniq_email").SetUnique(true),
	})
	return err
}

func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	// $push on a null field fails, so the list must exist from the start.
	if user.Tokens == nil {
		user.Tokens = []string{}
	}
	if _, err := r.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.col.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *MongoUserRepository) UpdateEmail(ctx context.Context, id primitive.ObjectID, email string) error {
	err := r.update(ctx, id, bson.M{"$set": bson.M{"email": email, "updated_at": time.Now()}})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *MongoUserRepository) SetVerified(ctx context.Context, id primitive.ObjectID) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"is_verified": true, "updated_at": time.Now()}})
}

func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"password_hash": passwordHash, "updated_at": time.Now()}})
}

func (r *MongoUserRepository) AddToken(ctx context.Context, id primitive.ObjectID, token string) error {
	return r.update(ctx, id, bson.M{"$push": bson.M{"tokens": token}})
}

func (r *MongoUserRepository) RemoveToken(ctx context.Context, id primitive.ObjectID, token string) error {
	return r.update(ctx, id, bson.M{"$pull": bson.M{"tokens": token}})
}

func (r *MongoUserRepository) ClearTokens(ctx context.Context, id primitive.ObjectID) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"tokens": []string{}}})
}

func (r *MongoUserRepository) update(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
