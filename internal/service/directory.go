package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/presence-service/internal/domain"
)

type RoomStore interface {
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id string) (*domain.Room, error)
	List(ctx context.Context, nameFilter string, state domain.RoomState) ([]domain.Room, error)
	// Update applies fn atomically; fn reports whether it changed the room.
	Update(ctx context.Context, id string, fn func(*domain.Room) (bool, error)) (*domain.Room, error)
}

type SequenceCache interface {
	Put(ctx context.Context, roomID string, steps []domain.ExerciseStep) error
	Get(ctx context.Context, roomID string) ([]domain.ExerciseStep, bool, error)
}

// Directory answers "which rooms exist and what do they look like" for clients.
type Directory struct {
	store RoomStore
	cache SequenceCache
	log   *slog.Logger
}

func NewDirectory(store RoomStore, cache SequenceCache, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}

	return &Directory{store: store, cache: cache, log: log.With("component", "directory")}
}

func (d *Directory) CreateRoom(ctx context.Context, in domain.NewRoom, creator domain.Creator) (*domain.Room, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	room := &domain.Room{
		Name:            in.Name,
		Password:        in.Password,
		Max:             in.Max,
		Count:           0,
		State:           domain.RoomOpen,
		CreatorID:       creator.UserID,
		CreatorNickname: creator.Nickname,
		Exercises:       append([]domain.ExerciseStep(nil), in.Exercises...),
	}
	if err := d.store.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	if err := d.cache.Put(ctx, room.ID, room.Exercises); err != nil {
		// the room exists; it just lists with an empty sequence until the cache recovers
		d.log.Warn("cache exercise sequence", slog.String("room_id", room.ID), slog.Any("err", err))
	}
	d.log.Info("room created",
		slog.String("room_id", room.ID),
		slog.Int64("creator_id", creator.UserID),
		slog.Int("max", room.Max))

	return room, nil
}

// ListRooms returns OPEN rooms whose name contains nameFilter (case-sensitive), newest first.
func (d *Directory) ListRooms(ctx context.Context, nameFilter string) ([]domain.RoomSnapshot, error) {
	rooms, err := d.store.List(ctx, nameFilter, domain.RoomOpen)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	out := make([]domain.RoomSnapshot, 0, len(rooms))
	for i := range rooms {
		out = append(out, domain.SnapshotOf(&rooms[i], d.steps(ctx, rooms[i].ID)))
	}

	return out, nil
}

func (d *Directory) RoomSnapshot(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	room, err := d.store.Get(ctx, roomID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	steps := d.steps(ctx, roomID)
	if len(steps) == 0 {
		steps = room.Exercises
	}

	return domain.SnapshotOf(room, steps), nil
}

func (d *Directory) steps(ctx context.Context, roomID string) []domain.ExerciseStep {
	steps, ok, err := d.cache.Get(ctx, roomID)
	if err != nil {
		d.log.Warn("read exercise sequence", slog.String("room_id", roomID), slog.Any("err", err))
		return nil
	}
	if !ok {
		return nil
	}

	return steps
}
