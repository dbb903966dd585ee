// internal/protocol/inbound.go
//
// Client → server messages. Every frame is a JSON object with a "type" tag and
// a "secret_id" naming the session. Decode turns a frame into one of the
// concrete command types below, or an error:
//   - ErrMalformed: the frame is not a JSON object. Callers drop it without replying.
//   - anything else (including ErrInvalidField for a mistyped field): a
//     protocol violation, reported back to the sender.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/robalobadob/seabattle/internal/game"
)

// Inbound message kinds.
const (
	KindConnect     = "connect"
	KindReconnect   = "reconnect"
	KindBattleStart = "battle_start"
	KindShoot       = "shoot"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrMissingKey   = errors.New("secret_id is required")
	ErrInvalidKey   = errors.New("invalid secret_id")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing field")
	ErrInvalidField = errors.New("invalid field")
)

// Command is a decoded inbound message.
type Command interface {
	Kind() string
	SessionKey() string
}

// Connect asks for a seat in a session.
type Connect struct {
	Key      string
	PlayerID string
}

// Reconnect reclaims a seat the player already owns.
type Reconnect struct {
	Key      string
	PlayerID string
	Role     game.Role
}

// BattleStart submits a fleet.
type BattleStart struct {
	Key      string
	PlayerID string
	Role     game.Role
	Fleet    game.Fleet
}

// Shoot fires at the enemy grid.
type Shoot struct {
	Key      string
	PlayerID string
	Role     game.Role
	X, Y     int
}

func (Connect) Kind() string     { return KindConnect }
func (Reconnect) Kind() string   { return KindReconnect }
func (BattleStart) Kind() string { return KindBattleStart }
func (Shoot) Kind() string       { return KindShoot }

func (c Connect) SessionKey() string     { return c.Key }
func (c Reconnect) SessionKey() string   { return c.Key }
func (c BattleStart) SessionKey() string { return c.Key }
func (c Shoot) SessionKey() string       { return c.Key }

// frame is the wire shape shared by all inbound kinds.
type frame struct {
	Type     string     `json:"type"`
	SecretID string     `json:"secret_id"`
	PlayerID string     `json:"playerId"`
	Role     game.Role  `json:"role"`
	Fleet    game.Fleet `json:"fleet"`
	X        *int       `json:"x"`
	Y        *int       `json:"y"`
}

// Decoder validates frames. MaxKeyLen bounds the session key in runes.
type Decoder struct {
	MaxKeyLen int
}

// Decode parses one frame.
func (d Decoder) Decode(raw []byte) (Command, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidField, typeErr.Field)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.SecretID == "" {
		return nil, ErrMissingKey
	}
	if !d.validKey(f.SecretID) {
		return nil, ErrInvalidKey
	}

	switch f.Type {
	case KindConnect:
		if f.PlayerID == "" {
			return nil, missing("playerId")
		}
		return Connect{Key: f.SecretID, PlayerID: f.PlayerID}, nil

	case KindReconnect:
		if f.PlayerID == "" {
			return nil, missing("playerId")
		}
		if f.Role == "" {
			return nil, missing("role")
		}
		return Reconnect{Key: f.SecretID, PlayerID: f.PlayerID, Role: f.Role}, nil

	case KindBattleStart:
		if f.Fleet == nil {
			return nil, missing("fleet")
		}
		return BattleStart{Key: f.SecretID, PlayerID: f.PlayerID, Role: f.Role, Fleet: f.Fleet}, nil

	case KindShoot:
		if f.X == nil || f.Y == nil {
			return nil, missing("x/y")
		}
		return Shoot{Key: f.SecretID, PlayerID: f.PlayerID, Role: f.Role, X: *f.X, Y: *f.Y}, nil

	default:
		return nil, ErrUnknownType
	}
}

// validKey accepts short printable keys that are safe to use as file names.
func (d Decoder) validKey(k string) bool {
	max := d.MaxKeyLen
	if max <= 0 {
		max = 8
	}
	if !utf8.ValidString(k) || utf8.RuneCountInString(k) > max {
		return false
	}
	if k == "." || k == ".." || strings.ContainsAny(k, `/\`) {
		return false
	}
	for _, r := range k {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
