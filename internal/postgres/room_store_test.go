package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cwrk-planet/presence-service/internal/domain"
	"github.com/cwrk-planet/presence-service/internal/pg"
	"github.com/cwrk-planet/presence-service/internal/postgres"
)

func setupStore(t *testing.T) *postgres.RoomStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("presence"),
		tcpostgres.WithUsername("presence"),
		tcpostgres.WithPassword("presence"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(dsn))

	pool, err := pg.NewPool(ctx, pg.Config{DSN: dsn, MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return postgres.NewRoomStore(pool)
}

func TestRoomStore_CreateAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	room := &domain.Room{
		Name:            "sunrise",
		Password:        "pw",
		Max:             3,
		State:           domain.RoomOpen,
		CreatorID:       11,
		CreatorNickname: "kim",
		Exercises: []domain.ExerciseStep{
			{ExerciseID: 1, Name: "mountain", Level: 1, OrderIndex: 0},
			{ExerciseID: 2, Name: "warrior", Level: 2, OrderIndex: 1},
		},
	}
	require.NoError(t, store.Create(ctx, room))
	require.NotEmpty(t, room.ID)

	got, err := store.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "sunrise", got.Name)
	assert.Equal(t, "pw", got.Password)
	assert.Equal(t, domain.RoomOpen, got.State)
	assert.Equal(t, int64(11), got.CreatorID)
	require.Len(t, got.Exercises, 2)
	assert.Equal(t, "mountain", got.Exercises[0].Name)
	assert.Equal(t, "warrior", got.Exercises[1].Name)

	_, err = store.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = store.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomStore_ListCaseSensitiveOpenOnly(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, r := range []*domain.Room{
		{Name: "Yoga Basics", Max: 2, State: domain.RoomOpen},
		{Name: "yoga evening", Max: 2, State: domain.RoomOpen},
		{Name: "Yoga Done", Max: 2, State: domain.RoomClosed},
	} {
		require.NoError(t, store.Create(ctx, r))
	}

	all, err := store.List(ctx, "", domain.RoomOpen)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := store.List(ctx, "Yoga", domain.RoomOpen)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Yoga Basics", filtered[0].Name)
}

func TestRoomStore_ConcurrentUpdatesRespectCapacity(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	room := &domain.Room{Name: "storm", Max: 5, State: domain.RoomOpen}
	require.NoError(t, store.Create(ctx, room))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, room.ID, func(r *domain.Room) (bool, error) {
				if r.IsFull() {
					return false, domain.ErrRoomFull
				}
				r.Count++
				return true, nil
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, accepted)
	assert.Equal(t, 5, got.Count)
}
