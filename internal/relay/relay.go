// Package relay forwards broadcast events between service instances sharing one database.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/presence-service/internal/broadcast"
)

const Subject = "presence.events"

// Transport moves opaque messages between instances.
type Transport interface {
	Send(ctx context.Context, msg []byte) error
	// Receive blocks, calling fn for every message, until ctx is done.
	Receive(ctx context.Context, fn func([]byte)) error
	Close() error
}

type envelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Relay publishes locally and forwards to the other instances.
type Relay struct {
	hub    *broadcast.Hub
	tr     Transport
	origin string
	log    *slog.Logger
}

func New(hub *broadcast.Hub, tr Transport, origin string, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}

	return &Relay{
		hub:    hub,
		tr:     tr,
		origin: origin,
		log:    log.With("component", "relay", "origin", origin),
	}
}

func (r *Relay) Publish(channel string, ev broadcast.Event) broadcast.Stats {
	st := r.hub.Publish(channel, ev)

	data, err := json.Marshal(ev.Data)
	if err != nil {
		r.log.Error("marshal relay event", slog.String("channel", channel), slog.Any("err", err))
		return st
	}
	msg, err := json.Marshal(envelope{Origin: r.origin, Channel: channel, Event: ev.Name, Data: data})
	if err != nil {
		r.log.Error("marshal relay envelope", slog.Any("err", err))
		return st
	}
	if err := r.tr.Send(context.Background(), msg); err != nil {
		r.log.Warn("relay send", slog.String("channel", channel), slog.Any("err", err))
	}

	return st
}

// Run delivers remote events to local subscribers until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	err := r.tr.Receive(ctx, func(msg []byte) {
		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			r.log.Warn("bad relay message", slog.Any("err", err))
			return
		}
		if env.Origin == r.origin {
			return
		}
		r.hub.Publish(env.Channel, broadcast.Event{Name: env.Event, Data: env.Data})
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("relay receive: %w", err)
	}

	return nil
}

func (r *Relay) Close() error { return r.tr.Close() }
