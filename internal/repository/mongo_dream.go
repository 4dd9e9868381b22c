package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	dreamCollection = "dreams"
	tagCollection   = "tags"
)

type MongoDreamRepository struct {
	col *mongo.Collection
}

func NewMongoDreamRepository(db *mongo.Database) *MongoDreamRepository {
	return &MongoDreamRepository{col: db.Collection(dreamCollection)}
}

// EnsureIndexes adds the (user_id, created_at) index used for newest-first listing.
func (r *MongoDreamRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("idx_user_created"),
	})
	return err
}

func (r *MongoDreamRepository) Create(ctx context.Context, dream *models.Dream) error {
	if dream.ID.IsZero() {
		dream.ID = primitive.NewObjectID()
	}
	if dream.CreatedAt.IsZero() {
		now := time.Now()
		dream.CreatedAt = now
		dream.UpdatedAt = now
	}
	if _, err := r.col.InsertOne(ctx, dream); err != nil {
		return fmt.Errorf("insert dream: %w", err)
	}
	return nil
}

func (r *MongoDreamRepository) ListByUser(ctx context.Context, userID primitive.ObjectID, limit, skip int64) ([]models.Dream, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(skip)

	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find dreams: %w", err)
	}
	defer cur.Close(ctx)

	var dreams []models.Dream
	if err := cur.All(ctx, &dreams); err != nil {
		return nil, fmt.Errorf("decode dreams: %w", err)
	}
	return dreams, nil
}

func (r *MongoDreamRepository) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"user_id": userID})
}

func (r *MongoDreamRepository) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	if _, err := r.col.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("delete dreams: %w", err)
	}
	return nil
}

type MongoTagRepository struct {
	col *mongo.Collection
}

func NewMongoTagRepository(db *mongo.Database) *MongoTagRepository {
	return &MongoTagRepository{col: db.Collection(tagCollection)}
}

func (r *MongoTagRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "name", Value: 1},
		},
		Options: options.Index().SetName("uniq_user_tag").SetUnique(true),
	})
	return err
}

// AddDream upserts the tag and records dreamID under it.
func (r *MongoTagRepository) AddDream(ctx context.Context, userID primitive.ObjectID, name string, dreamID primitive.ObjectID) error {
	filter := bson.M{"user_id": userID, "name": name}
	update := bson.M{"$addToSet": bson.M{"dream_ids": dreamID}}
	if _, err := r.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert tag: %w", err)
	}
	return nil
}

func (r *MongoTagRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Tag, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find tags: %w", err)
	}
	defer cur.Close(ctx)

	var tags []models.Tag
	if err := cur.All(ctx, &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

func (r *MongoTagRepository) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	if _, err := r.col.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("delete tags: %w", err)
	}
	return nil
}
