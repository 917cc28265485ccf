package game

import "errors"

var (
	ErrUnknownMode = errors.New("unknown game mode")
	ErrInboxFull   = errors.New("room inbox full")
	ErrRoomClosed  = errors.New("room closed")
)
