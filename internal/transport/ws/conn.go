package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/presence-service/internal/broadcast"
)

var errConnClosed = errors.New("websocket closed")

type wsConn struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	connected bool
}

func newWsConn(id string, c *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           id,
		conn:         c,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

func (c *wsConn) Send(f Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))

	return c.conn.WriteJSON(f)
}

func (c *wsConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})

	return err
}

// topicSink adapts the connection to a broadcast subscriber for one destination.
type topicSink struct {
	c           *wsConn
	destination string
}

func (s topicSink) Send(ev broadcast.Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}

	return s.c.Send(Frame{Command: CmdMessage, Destination: s.destination, Event: ev.Name, Payload: payload})
}
