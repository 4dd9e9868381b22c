package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/metrics"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"github.com/AnshRaj112/somnia-backend/internal/tokens"
	"github.com/AnshRaj112/somnia-backend/pkg/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const DefaultGuestEmail = "guest@somnia.app"

type seedDream struct {
	Title   string
	Content string
	Themes  []string
	Tags    []string
}

// guestSeed is the content every guest session starts with, oldest first.
var guestSeed = []seedDream{
	{
		Title:   "The house with endless stairs",
		Content: "I kept climbing the stairs of my childhood house but every landing opened onto another flight. The walls were covered in photographs I didn't recognise.",
		Themes:  []string{"home", "searching"},
		Tags:    []string{"recurring", "family"},
	},
	{
		Title:   "Flying over the harbour",
		Content: "I was flying low over a harbour at dawn. Boats lit up one by one as I passed, and I could steer just by thinking about where to go.",
		Themes:  []string{"flight", "water"},
		Tags:    []string{"lucid"},
	},
	{
		Title:   "Late for an exam",
		Content: "I ran across campus to an exam for a class I had never attended. The hallway kept stretching and my watch showed a different time whenever I looked.",
		Themes:  []string{"school", "pursuit"},
		Tags:    []string{"recurring", "anxiety"},
	},
}

// GuestService owns the shared demo account. Each guest login wipes it back
// to the seed set and revokes every earlier guest session.
type GuestService struct {
	users    repository.UserRepository
	dreams   repository.DreamRepository
	tags     repository.TagRepository
	sessions *tokens.SessionManager
	locker   Locker
	cache    Cache
	email    string
	log      *zap.Logger
}

func NewGuestService(
	users repository.UserRepository,
	dreams repository.DreamRepository,
	tags repository.TagRepository,
	sessions *tokens.SessionManager,
	locker Locker,
	email string,
	log *zap.Logger,
) *GuestService {
	if email == "" {
		email = DefaultGuestEmail
	}
	return &GuestService{
		users:    users,
		dreams:   dreams,
		tags:     tags,
		sessions: sessions,
		locker:   locker,
		cache:    NopCache{},
		email:    utils.NormalizeEmail(email),
		log:      log,
	}
}

// WithCache makes resets invalidate the guest's cached tag listing.
func (s *GuestService) WithCache(c Cache) *GuestService {
	s.cache = c
	return s
}

// EnsureAccount returns the guest user, creating it if missing.
func (s *GuestService) EnsureAccount(ctx context.Context) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, s.email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	now := time.Now()
	user = &models.User{
		CreatedAt:  now,
		UpdatedAt:  now,
		Email:      s.email,
		IsVerified: true,
		IsGuest:    true,
	}
	err = s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// Another instance created it first.
		user, err = s.users.FindByEmail(ctx, s.email)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.log.Info("guest account ready", zap.String("user_id", user.ID.Hex()))
	return user, nil
}

// ResetAndReseed deletes the guest's dreams and tags, clears its session
// tokens and recreates the seed set. Repeating it converges on the same
// state, so a failed run is repaired by the next one.
func (s *GuestService) ResetAndReseed(ctx context.Context, guestID primitive.ObjectID) error {
	if err := s.dreams.DeleteByUser(ctx, guestID); err != nil {
		return fmt.Errorf("wipe guest dreams: %w", err)
	}
	if err := s.tags.DeleteByUser(ctx, guestID); err != nil {
		return fmt.Errorf("wipe guest tags: %w", err)
	}
	if err := s.users.ClearTokens(ctx, guestID); err != nil {
		return fmt.Errorf("clear guest tokens: %w", err)
	}

	base := time.Now().Add(-time.Duration(len(guestSeed)) * 24 * time.Hour)
	for i, seed := range guestSeed {
		created := base.Add(time.Duration(i) * 24 * time.Hour)
		dream := &models.Dream{
			CreatedAt: created,
			UpdatedAt: created,
			UserID:    guestID,
			Title:     seed.Title,
			Content:   seed.Content,
			Themes:    append([]string{}, seed.Themes...),
			Tags:      append([]string{}, seed.Tags...),
		}
		if err := s.dreams.Create(ctx, dream); err != nil {
			return fmt.Errorf("seed guest dream %d: %w", i, err)
		}
		for _, tag := range seed.Tags {
			if err := s.tags.AddDream(ctx, guestID, tag, dream.ID); err != nil {
				return fmt.Errorf("seed guest tag %s: %w", tag, err)
			}
		}
	}
	if err := s.cache.Delete(ctx, tagsCacheKey(guestID)); err != nil {
		s.log.Warn("invalidate guest tag cache", zap.Error(err))
	}
	return nil
}

// Login resets the guest account and issues one fresh session, all under a
// lock keyed on the guest id so concurrent guest logins never observe a
// half-wiped account. On any failure no token is issued.
func (s *GuestService) Login(ctx context.Context) (*models.User, tokens.Session, error) {
	guest, err := s.EnsureAccount(ctx)
	if err != nil {
		return nil, tokens.Session{}, err
	}

	unlock, err := s.locker.Lock(ctx, "guest:"+guest.ID.Hex())
	if err != nil {
		return nil, tokens.Session{}, apperr.Internal(fmt.Errorf("lock guest account: %w", err))
	}
	defer unlock()

	if err := s.ResetAndReseed(ctx, guest.ID); err != nil {
		metrics.GuestResets.WithLabelValues("failure").Inc()
		s.log.Error("guest reset failed; login aborted", zap.String("user_id", guest.ID.Hex()), zap.Error(err))
		return nil, tokens.Session{}, apperr.Internal(err)
	}
	metrics.GuestResets.WithLabelValues("success").Inc()

	guest.Tokens = nil
	session, err := s.sessions.Issue(ctx, guest, true)
	if err != nil {
		return nil, tokens.Session{}, err
	}
	return guest, session, nil
}
