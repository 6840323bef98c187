package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/repository"
)

func setupStore(t *testing.T) (repository.SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.Nop()
	return NewSessionStore(client, Config{TTL: time.Hour}, &logger), mr
}

func TestSessionStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)

	s := model.NewIntakeSession("s1", "p1", 8, time.Now().UTC())
	s.Collected.ChiefComplaint = "cough"
	require.NoError(t, store.Create(ctx, s))
	assert.ErrorIs(t, store.Create(ctx, s), repository.ErrAlreadyExists)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "cough", got.Collected.ChiefComplaint)
	assert.Equal(t, model.StageActive, got.Stage)
	assert.True(t, mr.TTL(sessionKeyPrefix+"s1") > 0)

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionStore_UpdateSerialized(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("s1", "", 8, time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "s1", func(s *model.IntakeSession) error {
				s.TurnCount++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.TurnCount)
}

func TestSessionStore_ListDropsExpired(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("a", "", 8, time.Now())))
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("b", "", 8, time.Now().Add(time.Second))))

	mr.Del(sessionKeyPrefix + "a")

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	members, _ := mr.Members(sessionIndexKey)
	assert.Equal(t, []string{"b"}, members)
}

func TestSessionStore_Prune(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)
	base := time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("old", "", 8, base)))
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("new", "", 8, base.Add(2*time.Hour))))
	require.NoError(t, store.Create(ctx, model.NewIntakeSession("gone", "", 8, base.Add(2*time.Hour))))
	mr.Del(sessionKeyPrefix + "gone")

	n, err := store.Prune(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, mr.Exists(sessionKeyPrefix+"old"))
	members, _ := mr.Members(sessionIndexKey)
	assert.Equal(t, []string{"new"}, members)
}
