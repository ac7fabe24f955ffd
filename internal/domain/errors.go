package domain

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrPasswordMismatch   = errors.New("room password mismatch")
	ErrRoomNotOpen        = errors.New("room is not open")
	ErrInvalidRoom        = errors.New("invalid room")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrAlreadyInRoom      = errors.New("connection already bound to another room")
	ErrDeliveryFailure    = errors.New("delivery failure")
)
