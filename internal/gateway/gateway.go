// Package gateway maps session protocol commands (CONNECT, SUBSCRIBE, SEND, DISCONNECT) onto
// the registry, the presence coordinator and the broadcast hub. It knows nothing about sockets.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/cwrk-planet/presence-service/internal/broadcast"
	"github.com/cwrk-planet/presence-service/internal/domain"
	"github.com/cwrk-planet/presence-service/internal/service"
	"github.com/cwrk-planet/presence-service/internal/session"
)

const (
	TopicRoomPrefix = "/topic/room/"
	TopicLobby      = "/topic/lobby"
	AppRoomPrefix   = "/app/room/"

	ReasonClient  = "client"
	ReasonTimeout = "timeout"
)

var ErrUnknownDestination = errors.New("unknown destination")

type Verifier interface {
	Verify(authorization string) (domain.Identity, error)
}

type ConnObserver interface {
	Connected(ctx context.Context)
	Disconnected(ctx context.Context, reason string)
}

type subscription struct {
	channel string
	id      string
}

type Gateway struct {
	reg      *session.Registry
	dir      *service.Directory
	presence *service.Presence
	notify   *service.Notifier
	hub      *broadcast.Hub
	verifier Verifier
	obs      ConnObserver
	log      *slog.Logger

	mu   sync.Mutex
	subs map[string][]subscription
}

type Deps struct {
	Registry  *session.Registry
	Directory *service.Directory
	Presence  *service.Presence
	Notifier  *service.Notifier
	Hub       *broadcast.Hub
	Verifier  Verifier
	Observer  ConnObserver
	Log       *slog.Logger
}

func New(d Deps) *Gateway {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	return &Gateway{
		reg:      d.Registry,
		dir:      d.Directory,
		presence: d.Presence,
		notify:   d.Notifier,
		hub:      d.Hub,
		verifier: d.Verifier,
		obs:      d.Observer,
		log:      log.With("component", "gateway"),
		subs:     make(map[string][]subscription),
	}
}

// Connect authenticates the session and registers it.
func (g *Gateway) Connect(ctx context.Context, connID, authorization string) (domain.Identity, error) {
	id, err := g.verifier.Verify(authorization)
	if err != nil {
		g.log.Info("connect rejected", slog.String("conn_id", connID), slog.Any("err", err))
		return domain.Identity{}, err
	}
	g.reg.Register(connID, id)
	if g.obs != nil {
		g.obs.Connected(ctx)
	}
	g.log.Info("connected",
		slog.String("conn_id", connID),
		slog.Int64("user_id", id.UserID),
		slog.String("nickname", id.Nickname))

	return id, nil
}

func (g *Gateway) Touch(connID string) { g.reg.Touch(connID) }

// Subscribe attaches sink to a room topic (or the lobby) and sends it the current snapshot first.
func (g *Gateway) Subscribe(ctx context.Context, connID, destination string, sink broadcast.Sink) error {
	if destination == TopicLobby {
		if _, ok := g.reg.Lookup(connID); !ok {
			return domain.ErrConnectionNotFound
		}
		_, err := g.subscribe(connID, broadcast.LobbyChannel, sink, func() (broadcast.Event, error) {
			rooms, err := g.dir.ListRooms(ctx, "")
			return broadcast.Event{Name: broadcast.EventInitialRooms, Data: rooms}, err
		})
		return err
	}

	roomID, ok := strings.CutPrefix(destination, TopicRoomPrefix)
	if !ok || roomID == "" {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, destination)
	}
	entry, ok := g.reg.Lookup(connID)
	if !ok {
		return domain.ErrConnectionNotFound
	}
	if entry.RoomID != "" && entry.RoomID != roomID {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyInRoom, entry.RoomID)
	}

	// the snapshot doubles as the existence check, so an unknown room never gets bound
	subID, err := g.subscribe(connID, broadcast.RoomChannel(roomID), sink, func() (broadcast.Event, error) {
		snap, err := g.dir.RoomSnapshot(ctx, roomID)
		return broadcast.Event{Name: broadcast.EventRoomState, Data: snap}, err
	})
	if err != nil {
		return err
	}
	if err := g.reg.BindRoom(connID, roomID); err != nil {
		g.unsubscribe(connID, broadcast.RoomChannel(roomID), subID)
		return err
	}

	return nil
}

func (g *Gateway) subscribe(connID, channel string, sink broadcast.Sink, initial func() (broadcast.Event, error)) (string, error) {
	subID, err := g.hub.Subscribe(channel, sink, initial)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.subs[connID] = append(g.subs[connID], subscription{channel: channel, id: subID})
	g.mu.Unlock()

	return subID, nil
}

func (g *Gateway) unsubscribe(connID, channel, subID string) {
	g.hub.Unsubscribe(channel, subID)

	g.mu.Lock()
	defer g.mu.Unlock()
	subs := g.subs[connID]
	for i, s := range subs {
		if s.id == subID {
			g.subs[connID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

type gameState struct {
	Type  string          `json:"type"`
	State json.RawMessage `json:"state"`
}

// Action broadcasts payload verbatim to the room. A game_state payload also moves the room:
// 0 closes it, 1 marks it in progress.
func (g *Gateway) Action(ctx context.Context, connID, destination string, payload json.RawMessage) error {
	roomID, ok := strings.CutPrefix(destination, AppRoomPrefix)
	if !ok || roomID == "" {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, destination)
	}
	g.reg.Touch(connID)

	g.notify.RoomMessage(roomID, payload)

	state, ok := parseGameState(payload)
	if !ok {
		return nil
	}
	switch state {
	case 0:
		return g.presence.End(ctx, roomID)
	case 1:
		return g.presence.Start(ctx, roomID)
	}

	return nil
}

func parseGameState(payload json.RawMessage) (int, bool) {
	var gs gameState
	if err := json.Unmarshal(payload, &gs); err != nil || gs.Type != "game_state" || len(gs.State) == 0 {
		return 0, false
	}

	raw := strings.Trim(string(gs.State), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}

	return n, true
}

// Disconnect handles a client-initiated close. Safe to call more than once.
func (g *Gateway) Disconnect(ctx context.Context, connID string) {
	entry, ok := g.reg.Claim(connID)
	if !ok {
		g.dropSubscriptions(connID)
		return
	}
	g.finish(ctx, entry, ReasonClient)
}

// Expire is the watchdog callback; the entry is already out of the registry.
func (g *Gateway) Expire(ctx context.Context, entry domain.ConnectionEntry) error {
	if entry.Claimed {
		// an explicit disconnect owns this one
		return nil
	}
	g.finish(ctx, entry, ReasonTimeout)

	return nil
}

func (g *Gateway) finish(ctx context.Context, entry domain.ConnectionEntry, reason string) {
	g.dropSubscriptions(entry.ConnID)

	if entry.RoomID != "" {
		if err := g.presence.Leave(ctx, entry.ConnID, entry.RoomID); err != nil {
			g.log.Warn("leave on disconnect",
				slog.String("conn_id", entry.ConnID),
				slog.String("room_id", entry.RoomID),
				slog.Any("err", err))
		}
	}
	g.reg.Remove(entry.ConnID)
	if entry.RoomID != "" {
		g.notify.PeerLeft(entry.RoomID, entry.Identity)
	}
	if g.obs != nil {
		g.obs.Disconnected(ctx, reason)
	}

	g.log.Info("disconnected",
		slog.String("conn_id", entry.ConnID),
		slog.String("room_id", entry.RoomID),
		slog.Int64("user_id", entry.Identity.UserID),
		slog.String("reason", reason))
}

func (g *Gateway) dropSubscriptions(connID string) {
	g.mu.Lock()
	subs := g.subs[connID]
	delete(g.subs, connID)
	g.mu.Unlock()

	for _, s := range subs {
		g.hub.Unsubscribe(s.channel, s.id)
	}
}
