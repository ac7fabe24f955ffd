package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/presence-service/internal/domain"
	"github.com/cwrk-planet/presence-service/internal/memory"
)

func TestRoomStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := memory.NewRoomStore()

	room := &domain.Room{
		Name:      "morning flow",
		Max:       4,
		State:     domain.RoomOpen,
		Exercises: []domain.ExerciseStep{{ExerciseID: 7, Name: "tree", OrderIndex: 0}},
	}
	require.NoError(t, s.Create(ctx, room))
	require.NotEmpty(t, room.ID)
	assert.False(t, room.CreatedAt.IsZero())

	got, err := s.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "morning flow", got.Name)
	require.Len(t, got.Exercises, 1)

	// returned copies never alias the stored room
	got.Exercises[0].Name = "changed"
	again, err := s.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "tree", again.Exercises[0].Name)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomStore_ListFiltersByNameAndState(t *testing.T) {
	ctx := context.Background()
	s := memory.NewRoomStore()

	for _, r := range []*domain.Room{
		{Name: "Yoga Basics", Max: 2, State: domain.RoomOpen},
		{Name: "yoga advanced", Max: 2, State: domain.RoomOpen},
		{Name: "Yoga Closed", Max: 2, State: domain.RoomClosed},
	} {
		require.NoError(t, s.Create(ctx, r))
	}

	all, err := s.List(ctx, "", domain.RoomOpen)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	caseSensitive, err := s.List(ctx, "Yoga", domain.RoomOpen)
	require.NoError(t, err)
	require.Len(t, caseSensitive, 1)
	assert.Equal(t, "Yoga Basics", caseSensitive[0].Name)
}

func TestRoomStore_Update(t *testing.T) {
	ctx := context.Background()
	s := memory.NewRoomStore()
	room := &domain.Room{Name: "r", Max: 1, State: domain.RoomOpen}
	require.NoError(t, s.Create(ctx, room))

	updated, err := s.Update(ctx, room.ID, func(r *domain.Room) (bool, error) {
		r.Count++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Count)

	boom := errors.New("boom")
	after, err := s.Update(ctx, room.ID, func(r *domain.Room) (bool, error) {
		r.Count = 99
		return true, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, after.Count, "failed mutation must not be stored")

	unchanged, err := s.Update(ctx, room.ID, func(r *domain.Room) (bool, error) {
		r.Count = 42
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.Count)

	_, err = s.Update(ctx, "missing", func(*domain.Room) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}
