package domain

import "time"

// Identity is what the token verifier tells us about a connected user.
type Identity struct {
	UserID   int64
	Nickname string
	Profile  string
}

// ConnectionEntry is the process-local record of one live session.
type ConnectionEntry struct {
	ConnID       string
	Identity     Identity
	RoomID       string
	LastActivity time.Time
	// Claimed is set once a disconnect for this connection has started.
	Claimed bool
}
