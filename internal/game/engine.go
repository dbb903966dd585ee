// internal/game/engine.go
//
// Combat resolution for a single two-player battle.
// Responsibilities:
//   - Create battle state once both fleets are known (player1 moves first).
//   - Resolve shots: hit detection, sunk detection, turn switching, win detection.
//   - Keep the append-only shot log that replays against the initial fleets.
//
// Turn rule: the turn passes to the enemy only on a miss that does not end the
// game. Hits and the final shot leave it unchanged.
package game

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotYourTurn   = errors.New("not your turn")
	ErrAlreadyShot   = errors.New("cell already targeted")
	ErrGameOver      = errors.New("game is over")
	ErrInvalidRole   = errors.New("invalid role")
	ErrEmptyFleet    = errors.New("fleet is empty")
	ErrReplayInvalid = errors.New("shot log does not match fleets")
)

// Battle is the mutable per-session combat state.
type Battle struct {
	fleets  map[Role]Fleet
	initial map[Role]FleetSnapshot
	turn    Role
	shots   []Shot
}

// NewBattle deep-copies both fleets and snapshots them. player1 moves first.
func NewBattle(p1, p2 Fleet) (*Battle, error) {
	if len(p1) == 0 || len(p2) == 0 {
		return nil, ErrEmptyFleet
	}
	return fromSnapshots(map[Role]FleetSnapshot{
		Player1: p1.Snapshot(),
		Player2: p2.Snapshot(),
	}), nil
}

func fromSnapshots(initial map[Role]FleetSnapshot) *Battle {
	b := &Battle{
		fleets:  make(map[Role]Fleet, 2),
		initial: make(map[Role]FleetSnapshot, 2),
		turn:    Player1,
		shots:   []Shot{},
	}
	for _, r := range Roles {
		b.initial[r] = initial[r]
		b.fleets[r] = initial[r].Fleet()
	}
	return b
}

// Turn returns the role whose move it is.
func (b *Battle) Turn() Role { return b.turn }

// Fleet returns a copy of the live fleet of r.
func (b *Battle) Fleet(r Role) Fleet { return b.fleets[r].Clone() }

// Initial returns the immutable fleet r submitted.
func (b *Battle) Initial(r Role) FleetSnapshot { return b.initial[r] }

// Shots returns a copy of the shot log.
func (b *Battle) Shots() []Shot {
	out := make([]Shot, len(b.shots))
	copy(out, b.shots)
	return out
}

// Over reports whether either fleet has been destroyed.
func (b *Battle) Over() bool {
	return b.fleets[Player1].Destroyed() || b.fleets[Player2].Destroyed()
}

// Clone returns an independent copy. Snapshots are immutable and shared.
func (b *Battle) Clone() *Battle {
	c := &Battle{
		fleets:  make(map[Role]Fleet, 2),
		initial: make(map[Role]FleetSnapshot, 2),
		turn:    b.turn,
		shots:   b.Shots(),
	}
	for r, f := range b.fleets {
		c.fleets[r] = f.Clone()
	}
	for r, s := range b.initial {
		c.initial[r] = s
	}
	return c
}

// Fire resolves a shot by shooter at (x, y). On error the battle is unchanged.
func (b *Battle) Fire(shooter Role, x, y int) (Result, error) {
	if !shooter.Valid() {
		return Result{}, ErrInvalidRole
	}
	if b.Over() {
		return Result{}, ErrGameOver
	}
	if b.turn != shooter {
		return Result{}, ErrNotYourTurn
	}
	for _, s := range b.shots {
		if s.By == shooter && s.X == x && s.Y == y {
			return Result{}, ErrAlreadyShot
		}
	}

	enemy := shooter.Other()
	fleet := b.fleets[enemy]

	var (
		isHit bool
		sunk  *Sunk
	)
	// Cells are disjoint, so at most one ship matches. Sorted for determinism.
	for _, ship := range shipIDs(fleet) {
		cells := fleet[ship]
		i := indexOf(cells, x, y)
		if i < 0 {
			continue
		}
		isHit = true
		fleet[ship] = append(cells[:i:i], cells[i+1:]...)
		if len(fleet[ship]) == 0 {
			sunk = &Sunk{Ship: ship, Coords: b.initial[enemy].Ship(ship)}
		}
		break
	}

	gameOver := fleet.Destroyed()
	if !isHit && !gameOver {
		b.turn = enemy
	}

	var winner Role
	if gameOver {
		winner = shooter
	}
	b.shots = append(b.shots, Shot{
		X: x, Y: y,
		IsHit:    isHit,
		By:       shooter,
		Sunk:     sunk,
		GameOver: gameOver,
		Winner:   winner,
	})

	return Result{
		X: x, Y: y,
		IsHit:    isHit,
		By:       shooter,
		Turn:     b.turn,
		Sunk:     sunk,
		GameOver: gameOver,
		Winner:   winner,
	}, nil
}

// Replay rebuilds a battle by re-applying shots to the initial fleets.
// Every recorded outcome must match what the engine produces.
func Replay(initial map[Role]FleetSnapshot, shots []Shot) (*Battle, error) {
	for _, r := range Roles {
		if initial[r].Len() == 0 {
			return nil, fmt.Errorf("%s: %w", r, ErrEmptyFleet)
		}
	}
	b := fromSnapshots(initial)
	for i, s := range shots {
		res, err := b.Fire(s.By, s.X, s.Y)
		if err != nil {
			return nil, fmt.Errorf("replay shot %d: %w", i, err)
		}
		if res.IsHit != s.IsHit || res.GameOver != s.GameOver || (res.Sunk == nil) != (s.Sunk == nil) {
			return nil, fmt.Errorf("replay shot %d: %w", i, ErrReplayInvalid)
		}
	}
	return b, nil
}

func shipIDs(f Fleet) []string {
	ids := make([]string, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func indexOf(cells []Coord, x, y int) int {
	for i, c := range cells {
		if c.X == x && c.Y == y {
			return i
		}
	}
	return -1
}
