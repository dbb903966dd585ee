package protocol

import "github.com/robalobadob/seabattle/internal/game"

// Outbound message kinds.
const (
	KindRoleAssigned = "role_assigned"
	KindWaiting      = "waiting"
	KindConnected    = "connected"
	KindPause        = "pause"
	KindResume       = "resume"
	KindBattle       = "battle"
	KindShotResult   = "shot_result"
	KindError        = "error"
)

// Message is anything the server pushes to a client.
type Message interface {
	MessageType() string
}

// Signal is a message that carries nothing but its type.
type Signal struct {
	Type string `json:"type"`
}

func (s Signal) MessageType() string { return s.Type }

func Waiting() Signal   { return Signal{Type: KindWaiting} }
func Connected() Signal { return Signal{Type: KindConnected} }
func Pause() Signal     { return Signal{Type: KindPause} }
func Resume() Signal    { return Signal{Type: KindResume} }

// RoleAssigned tells a connection which seat it is bound to.
type RoleAssigned struct {
	Type string    `json:"type"`
	Role game.Role `json:"role"`
}

func (m RoleAssigned) MessageType() string { return m.Type }

func NewRoleAssigned(r game.Role) RoleAssigned {
	return RoleAssigned{Type: KindRoleAssigned, Role: r}
}

// Battle is the full board snapshot for one role. With BattleReady false the
// opponent's fleet is still missing and the other fields are omitted.
type Battle struct {
	Type         string              `json:"type"`
	Fleet        game.Fleet          `json:"fleet,omitempty"`
	InitialFleet *game.FleetSnapshot `json:"initialFleet,omitempty"`
	BattleReady  bool                `json:"battle_ready"`
	Turn         game.Role           `json:"turn,omitempty"`
	Shots        []game.Shot         `json:"shots,omitempty"`
}

func (m Battle) MessageType() string { return m.Type }

// NewBattle builds the snapshot b shows to role r.
func NewBattle(b *game.Battle, r game.Role) Battle {
	initial := b.Initial(r)
	return Battle{
		Type:         KindBattle,
		Fleet:        b.Fleet(r),
		InitialFleet: &initial,
		BattleReady:  true,
		Turn:         b.Turn(),
		Shots:        b.Shots(),
	}
}

// BattlePending acknowledges a fleet while the opponent is still placing ships.
func BattlePending() Battle {
	return Battle{Type: KindBattle, BattleReady: false}
}

// ShotResult is broadcast to both roles after every resolved shot.
type ShotResult struct {
	Type string `json:"type"`
	game.Result
}

func (m ShotResult) MessageType() string { return m.Type }

func NewShotResult(r game.Result) ShotResult {
	return ShotResult{Type: KindShotResult, Result: r}
}

// Error reports a rejected request to its sender.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (m Error) MessageType() string { return m.Type }

func NewError(msg string) Error {
	return Error{Type: KindError, Message: msg}
}
