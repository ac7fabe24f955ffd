package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwrk-planet/presence-service/internal/broadcast"
	"github.com/cwrk-planet/presence-service/pkg/httputil"
)

var errStreamClosed = errors.New("sse stream closed")

type sseSink struct {
	mu           sync.Mutex
	w            http.ResponseWriter
	rc           *http.ResponseController
	retryMs      int64
	writeTimeout time.Duration
	closed       bool
	done         chan struct{}
}

func newSSESink(w http.ResponseWriter, retry, writeTimeout time.Duration) *sseSink {
	return &sseSink{
		w:            w,
		rc:           http.NewResponseController(w),
		retryMs:      retry.Milliseconds(),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

func (s *sseSink) Send(ev broadcast.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStreamClosed
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Name, err)
	}
	// a client that stops reading fails the write instead of stalling the publisher
	if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.closeLocked()
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\nretry: %d\n\n", ev.Name, data, s.retryMs); err != nil {
		s.closeLocked()
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.closeLocked()
		return err
	}

	return nil
}

// close ends the stream and lifts the write deadline so the response can be finished.
func (s *sseSink) close() {
	s.mu.Lock()
	s.closeLocked()
	_ = s.rc.SetWriteDeadline(time.Time{})
	s.mu.Unlock()
}

func (s *sseSink) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// GET /api/multi/lobby?roomName= streams initial-rooms, then room-update events until the
// client leaves or the stream lifetime runs out. Clients reconnect after the retry hint.
func (h *Handler) LobbyStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		httputil.Error(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}
	ctx := r.Context()
	nameFilter := r.URL.Query().Get("roomName")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sink := newSSESink(w, h.sseRetry, h.sseWriteTimeout)
	defer sink.close()

	subID, err := h.hub.Subscribe(broadcast.LobbyChannel, sink, func() (broadcast.Event, error) {
		rooms, err := h.dir.ListRooms(ctx, nameFilter)
		return broadcast.Event{Name: broadcast.EventInitialRooms, Data: rooms}, err
	})
	if err != nil {
		slog.Warn("lobby subscribe", httputil.Attr(r), slog.Any("err", err))
		return
	}
	defer h.hub.Unsubscribe(broadcast.LobbyChannel, subID)

	timer := time.NewTimer(h.sseLifetime)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-sink.done:
	}
}
