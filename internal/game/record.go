package game

import (
	"fmt"
	"reflect"
)

// Record is the persisted form of a battle, one per session key:
//
//	{ "player1": {...}, "player2": {...}, "shots": [...], "turn": "...",
//	  "initialFleets": { "player1": {...}, "player2": {...} } }
type Record struct {
	Player1       Fleet          `json:"player1"`
	Player2       Fleet          `json:"player2"`
	Shots         []Shot         `json:"shots"`
	Turn          Role           `json:"turn"`
	InitialFleets map[Role]Fleet `json:"initialFleets"`
}

// Complete reports whether both live fleets are populated.
func (r *Record) Complete() bool {
	return r != nil && len(r.Player1) > 0 && len(r.Player2) > 0
}

// Record serializes the battle. Nothing in the result aliases live state.
func (b *Battle) Record() *Record {
	return &Record{
		Player1: b.fleets[Player1].Clone(),
		Player2: b.fleets[Player2].Clone(),
		Shots:   b.Shots(),
		Turn:    b.turn,
		InitialFleets: map[Role]Fleet{
			Player1: b.initial[Player1].Fleet(),
			Player2: b.initial[Player2].Fleet(),
		},
	}
}

// FromRecord hydrates a battle from a complete record. When the record lacks
// initial fleets for a role, its live fleet stands in for them.
func FromRecord(r *Record) (*Battle, error) {
	if !r.Complete() {
		return nil, fmt.Errorf("incomplete record: %w", ErrEmptyFleet)
	}
	turn := r.Turn
	if !turn.Valid() {
		turn = Player1
	}
	live := map[Role]Fleet{Player1: r.Player1, Player2: r.Player2}
	b := &Battle{
		fleets:  make(map[Role]Fleet, 2),
		initial: make(map[Role]FleetSnapshot, 2),
		turn:    turn,
		shots:   append([]Shot{}, r.Shots...),
	}
	for _, role := range Roles {
		b.fleets[role] = live[role].Clone()
		if init, ok := r.InitialFleets[role]; ok && len(init) > 0 {
			b.initial[role] = init.Snapshot()
		} else {
			b.initial[role] = live[role].Snapshot()
		}
	}
	return b, nil
}

// Verify replays the shot log against the initial fleets and reports whether
// the result matches the hydrated live state.
func (b *Battle) Verify() error {
	replayed, err := Replay(b.initial, b.shots)
	if err != nil {
		return err
	}
	got, want := replayed.Record(), b.Record()
	if got.Turn != want.Turn || len(got.Shots) != len(want.Shots) ||
		!reflect.DeepEqual(got.Player1, want.Player1) || !reflect.DeepEqual(got.Player2, want.Player2) {
		return ErrReplayInvalid
	}
	return nil
}
