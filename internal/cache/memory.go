// Package cache keeps the exercise sequence of each room next to the room records.
package cache

import (
	"context"
	"sync"

	"github.com/cwrk-planet/presence-service/internal/domain"
)

// Memory is lost on restart; rooms created before it list with an empty sequence.
type Memory struct {
	mu    sync.RWMutex
	steps map[string][]domain.ExerciseStep
}

func NewMemory() *Memory {
	return &Memory{steps: make(map[string][]domain.ExerciseStep)}
}

func (m *Memory) Put(_ context.Context, roomID string, steps []domain.ExerciseStep) error {
	cp := append([]domain.ExerciseStep(nil), steps...)

	m.mu.Lock()
	m.steps[roomID] = cp
	m.mu.Unlock()

	return nil
}

func (m *Memory) Get(_ context.Context, roomID string) ([]domain.ExerciseStep, bool, error) {
	m.mu.RLock()
	steps, ok := m.steps[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	return append([]domain.ExerciseStep(nil), steps...), true, nil
}
