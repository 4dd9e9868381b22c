package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The in-memory repositories back tests and local runs without MongoDB.
// Each one guards its map with a single mutex, which gives the same
// atomicity the Mongo implementations get from single-document updates.

type MemoryOTPRepository struct {
	mu   sync.Mutex
	otps map[primitive.ObjectID]models.OTP
}

func NewMemoryOTPRepository() *MemoryOTPRepository {
	return &MemoryOTPRepository{otps: make(map[primitive.ObjectID]models.OTP)}
}

func (r *MemoryOTPRepository) Create(_ context.Context, otp *models.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if otp.ID.IsZero() {
		otp.ID = primitive.NewObjectID()
	}
	r.otps[otp.ID] = *otp
	return nil
}

func (r *MemoryOTPRepository) FindActive(_ context.Context, f OTPFilter) ([]models.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OTP
	for _, o := range r.otps {
		if o.Purpose != f.Purpose || !o.Active(f.Now) {
			continue
		}
		if f.Email != "" && o.Email != f.Email {
			continue
		}
		if f.UserID != nil && !o.OwnedBy(*f.UserID) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryOTPRepository) MarkUsed(_ context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.otps[id]
	if !ok || !o.Active(now) {
		return false, nil
	}
	o.Used = true
	r.otps[id] = o
	return true, nil
}

func (r *MemoryOTPRepository) FindUsed(_ context.Context, id, userID primitive.ObjectID, purpose models.OTPPurpose, now time.Time) (*models.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.otps[id]
	if !ok || !usedBy(o, userID, purpose, now) {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *MemoryOTPRepository) ConsumeUsed(_ context.Context, id, userID primitive.ObjectID, purpose models.OTPPurpose, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.otps[id]
	if !ok || !usedBy(o, userID, purpose, now) {
		return false, nil
	}
	delete(r.otps, id)
	return true, nil
}

func usedBy(o models.OTP, userID primitive.ObjectID, purpose models.OTPPurpose, now time.Time) bool {
	return o.Used && o.Purpose == purpose && o.OwnedBy(userID) && o.ExpiresAt.After(now)
}

func (r *MemoryOTPRepository) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.otps, id)
	return nil
}

// All returns a snapshot of every stored record.
func (r *MemoryOTPRepository) All() []models.OTP {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.OTP, 0, len(r.otps))
	for _, o := range r.otps {
		out = append(out, o)
	}
	return out
}

type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[primitive.ObjectID]models.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.Tokens == nil {
		user.Tokens = []string{}
	}
	r.users[user.ID] = cloneUser(*user)
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			c := cloneUser(u)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) UpdateEmail(_ context.Context, id primitive.ObjectID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for otherID, u := range r.users {
		if otherID != id && u.Email == email {
			return ErrDuplicateEmail
		}
	}
	return r.mutate(id, func(u *models.User) { u.Email = email })
}

func (r *MemoryUserRepository) SetVerified(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutate(id, func(u *models.User) { u.IsVerified = true })
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id primitive.ObjectID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutate(id, func(u *models.User) { u.PasswordHash = passwordHash })
}

func (r *MemoryUserRepository) AddToken(_ context.Context, id primitive.ObjectID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutate(id, func(u *models.User) { u.Tokens = append(u.Tokens, token) })
}

func (r *MemoryUserRepository) RemoveToken(_ context.Context, id primitive.ObjectID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutate(id, func(u *models.User) {
		kept := u.Tokens[:0]
		for _, t := range u.Tokens {
			if t != token {
				kept = append(kept, t)
			}
		}
		u.Tokens = kept
	})
}

func (r *MemoryUserRepository) ClearTokens(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutate(id, func(u *models.User) { u.Tokens = []string{} })
}

// mutate must be called with r.mu held.
func (r *MemoryUserRepository) mutate(id primitive.ObjectID, fn func(*models.User)) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return nil
}

func cloneUser(u models.User) models.User {
	u.Tokens = append([]string{}, u.Tokens...)
	return u
}

type MemoryDreamRepository struct {
	mu     sync.Mutex
	dreams []models.Dream
	// failAfter, when positive, makes Create fail once that many dreams
	// have been stored.
	failAfter int
	failErr   error
}

func NewMemoryDreamRepository() *MemoryDreamRepository {
	return &MemoryDreamRepository{}
}

// FailCreatesAfter makes Create return err once n dreams are stored.
// n <= 0 disarms it.
func (r *MemoryDreamRepository) FailCreatesAfter(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAfter = n
	r.failErr = err
}

func (r *MemoryDreamRepository) Create(_ context.Context, dream *models.Dream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAfter > 0 && len(r.dreams) >= r.failAfter {
		return r.failErr
	}
	if dream.ID.IsZero() {
		dream.ID = primitive.NewObjectID()
	}
	if dream.CreatedAt.IsZero() {
		now := time.Now()
		dream.CreatedAt = now
		dream.UpdatedAt = now
	}
	r.dreams = append(r.dreams, *dream)
	return nil
}

func (r *MemoryDreamRepository) ListByUser(_ context.Context, userID primitive.ObjectID, limit, skip int64) ([]models.Dream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var mine []models.Dream
	for _, d := range r.dreams {
		if d.UserID == userID {
			mine = append(mine, d)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	if skip >= int64(len(mine)) {
		return nil, nil
	}
	mine = mine[skip:]
	if limit > 0 && limit < int64(len(mine)) {
		mine = mine[:limit]
	}
	return mine, nil
}

func (r *MemoryDreamRepository) CountByUser(_ context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.dreams {
		if d.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryDreamRepository) DeleteByUser(_ context.Context, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.dreams[:0]
	for _, d := range r.dreams {
		if d.UserID != userID {
			kept = append(kept, d)
		}
	}
	r.dreams = kept
	return nil
}

type MemoryTagRepository struct {
	mu   sync.Mutex
	tags []models.Tag
}

func NewMemoryTagRepository() *MemoryTagRepository {
	return &MemoryTagRepository{}
}

func (r *MemoryTagRepository) AddDream(_ context.Context, userID primitive.ObjectID, name string, dreamID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tags {
		if r.tags[i].UserID == userID && r.tags[i].Name == name {
			for _, id := range r.tags[i].DreamIDs {
				if id == dreamID {
					return nil
				}
			}
			r.tags[i].DreamIDs = append(r.tags[i].DreamIDs, dreamID)
			return nil
		}
	}
	r.tags = append(r.tags, models.Tag{
		ID:       primitive.NewObjectID(),
		UserID:   userID,
		Name:     name,
		DreamIDs: []primitive.ObjectID{dreamID},
	})
	return nil
}

func (r *MemoryTagRepository) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Tag
	for _, t := range r.tags {
		if t.UserID == userID {
			t.DreamIDs = append([]primitive.ObjectID{}, t.DreamIDs...)
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryTagRepository) DeleteByUser(_ context.Context, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tags[:0]
	for _, t := range r.tags {
		if t.UserID != userID {
			kept = append(kept, t)
		}
	}
	r.tags = kept
	return nil
}
