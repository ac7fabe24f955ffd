package ws

import "encoding/json"

// Client commands
const (
	CmdConnect    = "CONNECT"
	CmdSubscribe  = "SUBSCRIBE"
	CmdSend       = "SEND"
	CmdHeartbeat  = "HEARTBEAT"
	CmdDisconnect = "DISCONNECT"
)

// Server commands
const (
	CmdConnected = "CONNECTED"
	CmdMessage   = "MESSAGE"
	CmdError     = "ERROR"
)

// Frame is the JSON envelope in both directions.
type Frame struct {
	Command     string            `json:"command"`
	Headers     map[string]string `json:"headers,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Event       string            `json:"event,omitempty"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Message     string            `json:"message,omitempty"`
}

func errorFrame(msg string) Frame {
	return Frame{Command: CmdError, Message: msg}
}
