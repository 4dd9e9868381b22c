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

const otpCollection = "otps"

type MongoOTPRepository struct {
	col *mongo.Collection
}

func NewMongoOTPRepository(db *mongo.Database) *MongoOTPRepository {
	return &MongoOTPRepository{col: db.Collection(otpCollection)}
}

// EnsureIndexes configures lookup indexes and a TTL index so expired codes
// are eventually purged by the server.
func (r *MongoOTPRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{
				{Key: "purpose", Value: 1},
				{Key: "email", Value: 1},
				{Key: "used", Value: 1},
			},
			Options: options.Index().SetName("idx_purpose_email_used"),
		},
		{
			Keys: bson.D{
				{Key: "purpose", Value: 1},
				{Key: "user_id", Value: 1},
				{Key: "used", Value: 1},
			},
			Options: options.Index().SetName("idx_purpose_user_used"),
		},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *MongoOTPRepository) Create(ctx context.Context, otp *models.OTP) error {
	if otp.ID.IsZero() {
		otp.ID = primitive.NewObjectID()
	}
	if _, err := r.col.InsertOne(ctx, otp); err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}
	return nil
}

func (r *MongoOTPRepository) FindActive(ctx context.Context, f OTPFilter) ([]models.OTP, error) {
	filter := bson.M{
		"purpose":    f.Purpose,
		"used":       false,
		"expires_at": bson.M{"$gt": f.Now},
	}
	if f.Email != "" {
		filter["email"] = f.Email
	}
	if f.UserID != nil {
		filter["user_id"] = *f.UserID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find otps: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.OTP
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode otps: %w", err)
	}
	return out, nil
}

func (r *MongoOTPRepository) MarkUsed(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":        id,
		"used":       false,
		"expires_at": bson.M{"$gt": now},
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"used": true}})
	if err != nil {
		return false, fmt.Errorf("mark otp used: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func usedFilter(id, userID primitive.ObjectID, purpose models.OTPPurpose, now time.Time) bson.M {
	return bson.M{
		"_id":        id,
		"user_id":    userID,
		"purpose":    purpose,
		"used":       true,
		"expires_at": bson.M{"$gt": now},
	}
}

func (r *MongoOTPRepository) FindUsed(ctx context.Context, id, userID primitive.ObjectID, purpose models.OTPPurpose, now time.Time) (*models.OTP, error) {
	var otp models.OTP
	if err := r.col.FindOne(ctx, usedFilter(id, userID, purpose, now)).Decode(&otp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find used otp: %w", err)
	}
	return &otp, nil
}

// ConsumeUsed is a conditional DeleteOne; DeletedCount tells the winner.
func (r *MongoOTPRepository) ConsumeUsed(ctx context.Context, id, userID primitive.ObjectID, purpose models.OTPPurpose, now time.Time) (bool, error) {
	res, err := r.col.DeleteOne(ctx, usedFilter(id, userID, purpose, now))
	if err != nil {
		return false, fmt.Errorf("consume used otp: %w", err)
	}
	return res.DeletedCount == 1, nil
}

func (r *MongoOTPRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}
