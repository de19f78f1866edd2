package game

import "errors"

// Caller-facing failures. All of these are recoverable; the transport
// surfaces them to the offending client and nothing else.
var (
	ErrValidation       = errors.New("invalid configuration")
	ErrRoomNotFound     = errors.New("room not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid room state")
	ErrNotReady         = errors.New("not all players ready")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrPoolEmpty        = errors.New("challenge pool empty")
)
