package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cwrk-planet/presence-service/internal/domain"
)

// JoinObserver records join decisions; metrics.Metrics implements it.
type JoinObserver interface {
	Joined(ctx context.Context, ok bool)
}

// Presence is the only writer of room occupancy and state. Mutations of one room are serialized,
// and the room topic sees each one before the next mutation of that room starts. The lobby list
// goes out after the room lock is released, so a slow lobby never holds up other rooms.
type Presence struct {
	store  RoomStore
	notify *Notifier
	locks  *roomLocks
	obs    JoinObserver
	log    *slog.Logger
}

func NewPresence(store RoomStore, notify *Notifier, log *slog.Logger) *Presence {
	if log == nil {
		log = slog.Default()
	}

	return &Presence{
		store:  store,
		notify: notify,
		locks:  newRoomLocks(),
		log:    log.With("component", "presence"),
	}
}

func (p *Presence) SetJoinObserver(o JoinObserver) { p.obs = o }

// Join admits userID into roomID. It returns false, with the reason as error, when the room is
// missing, not open, full, or protected by a different password.
func (p *Presence) Join(ctx context.Context, roomID string, userID int64, password string) (bool, error) {
	room, err := p.mutate(ctx, roomID, func(r *domain.Room) (bool, error) {
		switch {
		case r.State != domain.RoomOpen:
			return false, domain.ErrRoomNotOpen
		case r.IsFull():
			return false, domain.ErrRoomFull
		case r.HasPassword() && password != r.Password:
			return false, domain.ErrPasswordMismatch
		}
		r.Count++
		return true, nil
	})
	if p.obs != nil {
		p.obs.Joined(ctx, err == nil)
	}
	if err != nil {
		p.log.Info("join rejected",
			slog.String("room_id", roomID),
			slog.Int64("user_id", userID),
			slog.Any("err", err))
		return false, err
	}

	p.log.Info("joined",
		slog.String("room_id", roomID),
		slog.Int64("user_id", userID),
		slog.Int("count", room.Count),
		slog.Int("max", room.Max))
	p.notify.LobbyChanged(ctx)

	return true, nil
}

// Leave frees one seat. At zero it is a no-op; reaching zero closes the room.
func (p *Presence) Leave(ctx context.Context, connID, roomID string) error {
	room, err := p.mutate(ctx, roomID, func(r *domain.Room) (bool, error) {
		if r.Count <= 0 {
			return false, nil
		}
		r.Count--
		if r.Count == 0 {
			r.State = domain.RoomClosed
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			p.log.Warn("leave unknown room", slog.String("room_id", roomID), slog.String("conn_id", connID))
		}
		return err
	}
	if room == nil {
		p.log.Warn("leave on empty room", slog.String("room_id", roomID), slog.String("conn_id", connID))
		return nil
	}

	p.log.Info("left",
		slog.String("room_id", roomID),
		slog.String("conn_id", connID),
		slog.Int("count", room.Count),
		slog.String("state", string(room.State)))
	p.notify.LobbyChanged(ctx)

	return nil
}

// Start moves an OPEN room to IN_PROGRESS; any other state is left as is.
func (p *Presence) Start(ctx context.Context, roomID string) error {
	return p.transition(ctx, roomID, func(r *domain.Room) bool {
		if r.State != domain.RoomOpen {
			return false
		}
		r.State = domain.RoomInProgress
		return true
	})
}

// End closes the room.
func (p *Presence) End(ctx context.Context, roomID string) error {
	return p.transition(ctx, roomID, func(r *domain.Room) bool {
		if r.State == domain.RoomClosed {
			return false
		}
		r.State = domain.RoomClosed
		return true
	})
}

func (p *Presence) transition(ctx context.Context, roomID string, apply func(*domain.Room) bool) error {
	room, err := p.mutate(ctx, roomID, func(r *domain.Room) (bool, error) {
		return apply(r), nil
	})
	if err != nil || room == nil {
		return err
	}

	p.log.Info("room state changed", slog.String("room_id", roomID), slog.String("state", string(room.State)))
	p.notify.LobbyChanged(ctx)

	return nil
}

// mutate runs fn under the room lock and, when fn changed the room, publishes the new room
// state before the lock is released. It returns a nil room when nothing changed.
func (p *Presence) mutate(ctx context.Context, roomID string, fn func(*domain.Room) (bool, error)) (*domain.Room, error) {
	unlock := p.locks.lock(roomID)
	defer unlock()

	var changed bool
	room, err := p.store.Update(ctx, roomID, func(r *domain.Room) (bool, error) {
		ok, err := fn(r)
		changed = ok && err == nil
		return ok, err
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	p.notify.RoomState(ctx, room)

	return room, nil
}
