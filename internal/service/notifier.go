package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/presence-service/internal/broadcast"
	"github.com/cwrk-planet/presence-service/internal/domain"
)

// Publisher is satisfied by broadcast.Hub and by relay.Relay.
type Publisher interface {
	Publish(channel string, ev broadcast.Event) broadcast.Stats
}

// Notifier turns room changes into broadcast events.
type Notifier struct {
	dir *Directory
	pub Publisher
	log *slog.Logger

	// lobbyMu keeps list-then-publish atomic so the last lobby event is never a stale list.
	lobbyMu sync.Mutex
}

func NewNotifier(dir *Directory, pub Publisher, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}

	return &Notifier{dir: dir, pub: pub, log: log.With("component", "notifier")}
}

// RoomState pushes the room snapshot to its topic.
func (n *Notifier) RoomState(ctx context.Context, room *domain.Room) {
	snap, err := n.dir.RoomSnapshot(ctx, room.ID)
	if err != nil {
		// fall back to what the caller already has
		snap = domain.SnapshotOf(room, room.Exercises)
	}
	n.pub.Publish(broadcast.RoomChannel(room.ID), broadcast.Event{Name: broadcast.EventRoomState, Data: snap})
}

// LobbyChanged sends every lobby subscriber the unfiltered list of open rooms.
func (n *Notifier) LobbyChanged(ctx context.Context) {
	n.lobbyMu.Lock()
	defer n.lobbyMu.Unlock()

	rooms, err := n.dir.ListRooms(ctx, "")
	if err != nil {
		n.log.Error("list rooms for lobby update", slog.Any("err", err))
		return
	}
	n.pub.Publish(broadcast.LobbyChannel, broadcast.Event{Name: broadcast.EventRoomUpdate, Data: rooms})
}

// PeerLeft tells the room who left.
func (n *Notifier) PeerLeft(roomID string, who domain.Identity) {
	n.pub.Publish(broadcast.RoomChannel(roomID), broadcast.Event{
		Name: broadcast.EventPeerLeft,
		Data: PeerLeftNotice{Type: "peer_left", UserID: who.UserID, Nickname: who.Nickname},
	})
}

// RoomMessage forwards a client payload to the room topic untouched.
func (n *Notifier) RoomMessage(roomID string, payload []byte) {
	n.pub.Publish(broadcast.RoomChannel(roomID), broadcast.Event{Name: broadcast.EventRoomMessage, Data: rawJSON(payload)})
}

type PeerLeftNotice struct {
	Type     string `json:"type"`
	UserID   int64  `json:"userId"`
	Nickname string `json:"nickname"`
}

func rawJSON(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))

	return quoted
}
