package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/presence-service/internal/broadcast"
	"github.com/cwrk-planet/presence-service/internal/domain"
)

type Gateway interface {
	Connect(ctx context.Context, connID, authorization string) (domain.Identity, error)
	Subscribe(ctx context.Context, connID, destination string, sink broadcast.Sink) error
	Action(ctx context.Context, connID, destination string, payload json.RawMessage) error
	Touch(connID string)
	Disconnect(ctx context.Context, connID string)
	Expire(ctx context.Context, entry domain.ConnectionEntry) error
}

type Config struct {
	PingEvery       time.Duration
	ConnectTimeout  time.Duration // socket lifetime before a successful CONNECT
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string
}

type Server struct {
	upgrader websocket.Upgrader
	gw       Gateway
	cfg      Config
	log      *slog.Logger

	mu    sync.Mutex
	conns map[string]*wsConn
}

func NewServer(gw Gateway, cfg Config, log *slog.Logger) *Server {
	if cfg.PingEvery <= 0 {
		cfg.PingEvery = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 128 << 10
	}
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		gw:  gw,
		cfg: cfg,
		log: log.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		conns: make(map[string]*wsConn),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWS: GET /ws
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		s.log.Warn("ws upgrade failed", slog.Any("err", err))
		return
	}

	c := newWsConn(uuid.NewString(), conn, s.cfg.WriteTimeout)
	s.track(c)

	ctx := context.WithoutCancel(r.Context())
	go s.writeLoop(c)
	s.readLoop(ctx, c)

	s.untrack(c.id)
	s.gw.Disconnect(ctx, c.id)
	if err := c.Close(); err != nil {
		s.log.Debug("ws close failed", slog.String("conn_id", c.id), slog.Any("err", err))
	}
}

// Expire wraps the gateway's watchdog callback and also closes the silent socket.
func (s *Server) Expire(ctx context.Context, entry domain.ConnectionEntry) error {
	err := s.gw.Expire(ctx, entry)
	if c := s.untrack(entry.ConnID); c != nil {
		_ = c.Send(errorFrame("heartbeat timeout"))
		_ = c.Close()
	}

	return err
}

// Shutdown closes every open socket.
func (s *Server) Shutdown() {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) track(c *wsConn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) untrack(id string) *wsConn {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return nil
	}
	delete(s.conns, id)

	return c
}

// readLoop keeps a read deadline on the socket: until CONNECT succeeds it is a fixed window from
// the upgrade, afterwards two ping periods that any frame or pong extends.
func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	connectBy := time.Now().Add(s.cfg.ConnectTimeout)
	idle := 2 * s.cfg.PingEvery

	c.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	c.conn.SetPongHandler(func(string) error {
		if !c.connected {
			return nil
		}
		s.gw.Touch(c.id)
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		deadline := connectBy
		if c.connected {
			deadline = time.Now().Add(idle)
		}
		_ = c.conn.SetReadDeadline(deadline)

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("ws read", slog.String("conn_id", c.id), slog.Any("err", err))
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			_ = c.Send(errorFrame("malformed frame"))
			continue
		}
		if !s.handle(ctx, c, f) {
			return
		}
	}
}

// handle returns false when the session is over.
func (s *Server) handle(ctx context.Context, c *wsConn, f Frame) bool {
	if c.connected {
		s.gw.Touch(c.id)
	}

	switch f.Command {
	case CmdConnect:
		if c.connected {
			_ = c.Send(errorFrame("already connected"))
			return true
		}
		id, err := s.gw.Connect(ctx, c.id, f.Headers["Authorization"])
		if err != nil {
			_ = c.Send(errorFrame("unauthorized"))
			return false
		}
		c.connected = true
		_ = c.Send(Frame{Command: CmdConnected, Headers: map[string]string{
			"session":  c.id,
			"user-id":  strconv.FormatInt(id.UserID, 10),
			"nickname": id.Nickname,
		}})
		return true
	case CmdDisconnect:
		return false
	}

	if !c.connected {
		_ = c.Send(errorFrame("CONNECT first"))
		return true
	}

	switch f.Command {
	case CmdHeartbeat:
		_ = c.Send(Frame{Command: CmdHeartbeat})
	case CmdSubscribe:
		if err := s.gw.Subscribe(ctx, c.id, f.Destination, topicSink{c: c, destination: f.Destination}); err != nil {
			s.log.Info("subscribe failed", slog.String("conn_id", c.id), slog.String("destination", f.Destination), slog.Any("err", err))
			_ = c.Send(errorFrame(err.Error()))
		}
	case CmdSend:
		if err := s.gw.Action(ctx, c.id, f.Destination, f.Payload); err != nil {
			_ = c.Send(errorFrame(err.Error()))
		}
	default:
		_ = c.Send(errorFrame("unknown command " + f.Command))
	}

	return true
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sendMu.Lock()
			err := c.ping()
			c.sendMu.Unlock()
			if err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
