package services

import (
	"context"
	"strings"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	MaxDreamLength   = 10000
	MaxTagsPerDream  = 10
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// DreamService is the journal surface the auth core needs around it:
// create with AI annotation, list, and tag browsing.
type DreamService struct {
	dreams repository.DreamRepository
	tags   repository.TagRepository
	ai     TextGenerator
	cache  Cache
	log    *zap.Logger
}

func NewDreamService(dreams repository.DreamRepository, tags repository.TagRepository, ai TextGenerator, cache Cache, log *zap.Logger) *DreamService {
	if cache == nil {
		cache = NopCache{}
	}
	return &DreamService{dreams: dreams, tags: tags, ai: ai, cache: cache, log: log}
}

type CreateDreamInput struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Create stores a dream. A missing title and the themes come from the text
// generator; if it fails the dream is still saved without them.
func (s *DreamService) Create(ctx context.Context, userID primitive.ObjectID, in CreateDreamInput) (*models.Dream, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperr.Validation("content", "Dream content is required")
	}
	if len(content) > MaxDreamLength {
		return nil, apperr.Validation("content", "Dream is too long")
	}
	tags := normalizeTags(in.Tags)
	if len(tags) > MaxTagsPerDream {
		return nil, apperr.Validation("tags", "Too many tags")
	}

	title := strings.TrimSpace(in.Title)
	var themes []string
	annotation, err := s.ai.Annotate(ctx, content)
	if err != nil {
		s.log.Warn("dream annotation failed", zap.Error(err))
	} else {
		themes = annotation.Themes
		if title == "" {
			title = annotation.Title
		}
	}
	if title == "" {
		title = "Untitled dream"
	}

	now := time.Now()
	dream := &models.Dream{
		CreatedAt: now,
		UpdatedAt: now,
		UserID:    userID,
		Title:     title,
		Content:   content,
		Themes:    themes,
		Tags:      tags,
	}
	if err := s.dreams.Create(ctx, dream); err != nil {
		return nil, apperr.Internal(err)
	}
	for _, tag := range tags {
		if err := s.tags.AddDream(ctx, userID, tag, dream.ID); err != nil {
			return nil, apperr.Internal(err)
		}
	}
	if len(tags) > 0 {
		if err := s.cache.Delete(ctx, tagsCacheKey(userID)); err != nil {
			s.log.Warn("invalidate tag cache", zap.Error(err))
		}
	}
	return dream, nil
}

// List returns a page of dreams newest first and the user's total count.
func (s *DreamService) List(ctx context.Context, userID primitive.ObjectID, limit, skip int64) ([]models.Dream, int64, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if skip < 0 {
		skip = 0
	}
	dreams, err := s.dreams.ListByUser(ctx, userID, limit, skip)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	total, err := s.dreams.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	if dreams == nil {
		dreams = []models.Dream{}
	}
	return dreams, total, nil
}

func (s *DreamService) Tags(ctx context.Context, userID primitive.ObjectID) ([]models.Tag, error) {
	key := tagsCacheKey(userID)
	var cached []models.Tag
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.log.Warn("read tag cache", zap.Error(err))
	} else if hit {
		return cached, nil
	}

	tags, err := s.tags.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	if err := s.cache.Set(ctx, key, tags); err != nil {
		s.log.Warn("write tag cache", zap.Error(err))
	}
	return tags, nil
}

func normalizeTags(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
