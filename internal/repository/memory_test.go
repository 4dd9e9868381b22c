package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func storeOTP(t *testing.T, r *MemoryOTPRepository, userID *primitive.ObjectID, expires time.Time) models.OTP {
	t.Helper()
	o := &models.OTP{
		UserID:    userID,
		Email:     "a@example.com",
		Purpose:   models.PurposePasswordReset,
		CodeHash:  "hash",
		ExpiresAt: expires,
		CreatedAt: now,
	}
	require.NoError(t, r.Create(context.Background(), o))
	return *o
}

func TestMarkUsedHasOneWinner(t *testing.T) {
	r := NewMemoryOTPRepository()
	o := storeOTP(t, r, nil, now.Add(time.Minute))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.MarkUsed(context.Background(), o.ID, now)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
}

func TestMarkUsedRefusesExpired(t *testing.T) {
	r := NewMemoryOTPRepository()
	o := storeOTP(t, r, nil, now)

	ok, err := r.MarkUsed(context.Background(), o.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.MarkUsed(context.Background(), primitive.NewObjectID(), now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindUsedAndConsumeUsed(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryOTPRepository()
	owner := primitive.NewObjectID()
	o := storeOTP(t, r, &owner, now.Add(time.Minute))
	storeOTP(t, r, &owner, now.Add(-time.Second))

	active, err := r.FindActive(ctx, OTPFilter{Purpose: models.PurposePasswordReset, Email: "a@example.com", Now: now})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, o.ID, active[0].ID)

	_, err = r.FindUsed(ctx, o.ID, owner, models.PurposePasswordReset, now)
	assert.ErrorIs(t, err, ErrNotFound, "not used yet")
	ok, err := r.ConsumeUsed(ctx, o.ID, owner, models.PurposePasswordReset, now)
	require.NoError(t, err)
	assert.False(t, ok, "not used yet")

	ok, err = r.MarkUsed(ctx, o.ID, now)
	require.NoError(t, err)
	require.True(t, ok)

	active, err = r.FindActive(ctx, OTPFilter{Purpose: models.PurposePasswordReset, UserID: &owner, Now: now})
	require.NoError(t, err)
	assert.Empty(t, active)

	got, err := r.FindUsed(ctx, o.ID, owner, models.PurposePasswordReset, now)
	require.NoError(t, err)
	assert.True(t, got.Used)
	_, err = r.FindUsed(ctx, o.ID, primitive.NewObjectID(), models.PurposePasswordReset, now)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err = r.ConsumeUsed(ctx, o.ID, primitive.NewObjectID(), models.PurposePasswordReset, now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.ConsumeUsed(ctx, o.ID, owner, models.PurposeEmailUpdate, now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.ConsumeUsed(ctx, o.ID, owner, models.PurposePasswordReset, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "expired")

	ok, err = r.ConsumeUsed(ctx, o.ID, owner, models.PurposePasswordReset, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, r.All(), 1)

	ok, err = r.ConsumeUsed(ctx, o.ID, owner, models.PurposePasswordReset, now)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = r.FindUsed(ctx, o.ID, owner, models.PurposePasswordReset, now)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Delete(ctx, o.ID), "missing records are not an error")
}

func TestUserEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryUserRepository()
	a := &models.User{Email: "a@example.com"}
	b := &models.User{Email: "b@example.com"}
	require.NoError(t, r.Create(ctx, a))
	require.NoError(t, r.Create(ctx, b))

	assert.ErrorIs(t, r.Create(ctx, &models.User{Email: "a@example.com"}), ErrDuplicateEmail)
	assert.ErrorIs(t, r.UpdateEmail(ctx, b.ID, "a@example.com"), ErrDuplicateEmail)
	assert.NoError(t, r.UpdateEmail(ctx, a.ID, "a@example.com"))
	assert.ErrorIs(t, r.UpdateEmail(ctx, primitive.NewObjectID(), "c@example.com"), ErrNotFound)
}

func TestTokenListOperations(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryUserRepository()
	u := &models.User{Email: "a@example.com"}
	require.NoError(t, r.Create(ctx, u))

	var wg sync.WaitGroup
	for _, tok := range []string{"t1", "t2", "t3", "t4"} {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			assert.NoError(t, r.AddToken(ctx, u.ID, tok))
		}(tok)
	}
	wg.Wait()

	got, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2", "t3", "t4"}, got.Tokens)

	require.NoError(t, r.RemoveToken(ctx, u.ID, "t2"))
	got, err = r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t3", "t4"}, got.Tokens)

	got.Tokens[0] = "mutated"
	again, err := r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotContains(t, again.Tokens, "mutated", "callers get copies")

	require.NoError(t, r.ClearTokens(ctx, u.ID))
	got, err = r.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Tokens)
}

func TestDreamFailCreatesAfter(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryDreamRepository()
	uid := primitive.NewObjectID()
	boom := errors.New("disk full")
	r.FailCreatesAfter(1, boom)

	require.NoError(t, r.Create(ctx, &models.Dream{UserID: uid, Content: "one"}))
	assert.ErrorIs(t, r.Create(ctx, &models.Dream{UserID: uid, Content: "two"}), boom)

	n, err := r.CountByUser(ctx, uid)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, r.DeleteByUser(ctx, uid))
	n, err = r.CountByUser(ctx, uid)
	require.NoError(t, err)
	assert.Zero(t, n)
}
