// Package broadcast fans room events out to SSE and WebSocket subscribers.
package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/presence-service/internal/domain"
)

const (
	LobbyChannel = "lobby"

	EventInitialRooms = "initial-rooms"
	EventRoomUpdate   = "room-update"
	EventRoomState    = "room-state"
	EventPeerLeft     = "peer_left"
	EventRoomMessage  = "room-message"
)

// DefaultSendTimeout bounds a single delivery; a subscriber slower than this is dropped.
const DefaultSendTimeout = 15 * time.Second

var ErrSendTimeout = errors.New("send timed out")

func RoomChannel(roomID string) string { return "room:" + roomID }

type Event struct {
	Name string
	Data any
}

// Sink delivers one event to a client. A returned error is terminal for the subscriber.
type Sink interface {
	Send(Event) error
}

type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }

type Stats struct {
	Delivered int
	Pruned    int
}

// Observer is told about every publish; used for metrics.
type Observer interface {
	Published(channel string, st Stats)
}

type channel struct {
	// deliver serializes publishes and subscribes on this channel.
	deliver sync.Mutex
	subs    map[string]Sink
}

type Hub struct {
	mu          sync.Mutex
	channels    map[string]*channel
	log         *slog.Logger
	obs         Observer
	sendTimeout time.Duration
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}

	return &Hub{
		channels:    make(map[string]*channel),
		log:         log.With("component", "broadcast"),
		sendTimeout: DefaultSendTimeout,
	}
}

func (h *Hub) SetObserver(o Observer) { h.obs = o }

// SetSendTimeout changes the per-delivery bound. Call before the hub is shared.
func (h *Hub) SetSendTimeout(d time.Duration) {
	if d > 0 {
		h.sendTimeout = d
	}
}

func (h *Hub) channel(name string) *channel {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[name]
	if !ok {
		ch = &channel{subs: make(map[string]Sink)}
		h.channels[name] = ch
	}

	return ch
}

// Subscribe sends the event built by initial to sink and only then makes it visible to Publish,
// so no update published on the channel can slip in between.
func (h *Hub) Subscribe(name string, sink Sink, initial func() (Event, error)) (string, error) {
	ch := h.channel(name)
	ch.deliver.Lock()
	defer ch.deliver.Unlock()

	if initial != nil {
		ev, err := initial()
		if err != nil {
			return "", fmt.Errorf("initial snapshot: %w", err)
		}
		if err := h.send(sink, ev); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
		}
	}

	id := uuid.NewString()
	ch.subs[id] = sink

	return id, nil
}

func (h *Hub) Unsubscribe(name, id string) {
	ch := h.channel(name)
	ch.deliver.Lock()
	delete(ch.subs, id)
	ch.deliver.Unlock()
}

// Publish delivers ev to every subscriber of the channel and drops those that fail or do not
// take the event within the send timeout. Sends to different subscribers run concurrently.
func (h *Hub) Publish(name string, ev Event) Stats {
	ch := h.channel(name)
	ch.deliver.Lock()
	defer ch.deliver.Unlock()

	type result struct {
		id  string
		err error
	}
	n := len(ch.subs)
	results := make(chan result, n)
	for id, sink := range ch.subs {
		go func() { results <- result{id: id, err: h.send(sink, ev)} }()
	}

	var st Stats
	for range n {
		r := <-results
		if r.err != nil {
			delete(ch.subs, r.id)
			st.Pruned++
			h.log.Warn("subscriber pruned",
				slog.String("channel", name),
				slog.String("subscriber_id", r.id),
				slog.Any("err", fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, r.err)))
			continue
		}
		st.Delivered++
	}
	if h.obs != nil {
		h.obs.Published(name, st)
	}

	return st
}

func (h *Hub) Subscribers(name string) int {
	ch := h.channel(name)
	ch.deliver.Lock()
	defer ch.deliver.Unlock()

	return len(ch.subs)
}

// send gives up on a sink that has not returned within the send timeout. The stuck Send keeps
// its goroutine until it returns; the caller must not deliver to that sink again.
func (h *Hub) send(s Sink, ev Event) error {
	done := make(chan error, 1)
	go func() { done <- safeSend(s, ev) }()

	timer := time.NewTimer(h.sendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrSendTimeout
	}
}

func safeSend(s Sink, ev Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	return s.Send(ev)
}
