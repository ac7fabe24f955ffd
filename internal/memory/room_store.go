// Package memory is a process-local RoomStore for single-instance deployments and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/presence-service/internal/domain"

	"github.com/google/uuid"
)

type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
	now   func() time.Time
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*domain.Room),
		now:   time.Now,
	}
}

func (s *RoomStore) Create(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room.ID = uuid.NewString()
	room.CreatedAt = s.now()
	s.rooms[room.ID] = clone(room)

	return nil
}

func (s *RoomStore) Get(_ context.Context, id string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	return clone(r), nil
}

// List returns rooms in state whose name contains nameFilter, newest first. Exercises are not loaded.
func (s *RoomStore) List(_ context.Context, nameFilter string, state domain.RoomState) ([]domain.Room, error) {
	s.mu.RLock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.State != state || !strings.Contains(r.Name, nameFilter) {
			continue
		}
		cp := *r
		cp.Exercises = nil
		out = append(out, cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

// Update runs fn against the stored room under the store lock and keeps the result when fn reports a change.
func (s *RoomStore) Update(_ context.Context, id string, fn func(*domain.Room) (bool, error)) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	work := clone(r)
	changed, err := fn(work)
	if err != nil {
		return clone(r), err
	}
	if changed {
		r.Count = work.Count
		r.State = work.State
	}

	return clone(r), nil
}

func clone(r *domain.Room) *domain.Room {
	cp := *r
	if r.Exercises != nil {
		cp.Exercises = append([]domain.ExerciseStep(nil), r.Exercises...)
	}

	return &cp
}
