package session

import (
	"errors"

	"github.com/robalobadob/seabattle/internal/game"
)

// ProtocolError is a request the client got wrong. Its text is sent back
// verbatim; any other error from an operation is an internal fault.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return e.Reason }

var (
	ErrSessionFull      = &ProtocolError{"session is full"}
	ErrAlreadyConnected = &ProtocolError{"player already connected"}
	ErrAlreadyBound     = &ProtocolError{"already connected"}
	ErrBadReconnect     = &ProtocolError{"invalid role or playerId"}
	ErrNotConnected     = &ProtocolError{"not connected"}
	ErrIdentityMismatch = &ProtocolError{"identity mismatch"}
	ErrSessionNotFound  = &ProtocolError{"session not found"}
	ErrNoBattle         = &ProtocolError{"battle not started"}
	ErrNotYourTurn      = &ProtocolError{"not your turn"}
	ErrAlreadyTargeted  = &ProtocolError{"cell already targeted"}
	ErrEmptyFleet       = &ProtocolError{"fleet is empty"}
	ErrGameOver         = &ProtocolError{"game is over"}
)

// ErrPanic wraps a panic recovered inside a queued operation.
var ErrPanic = errors.New("operation panicked")

// gameError maps engine rejections onto protocol errors.
func gameError(err error) error {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return ErrNotYourTurn
	case errors.Is(err, game.ErrAlreadyShot):
		return ErrAlreadyTargeted
	case errors.Is(err, game.ErrGameOver):
		return ErrGameOver
	case errors.Is(err, game.ErrEmptyFleet):
		return ErrEmptyFleet
	case errors.Is(err, game.ErrInvalidRole):
		return ErrNotConnected
	}
	return err
}

// Reason returns the client-facing text for err and whether err is a
// protocol error.
func Reason(err error) (string, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	return "internal error", false
}
