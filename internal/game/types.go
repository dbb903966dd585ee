// internal/game/types.go
//
// Core type definitions for the sea battle engine.
// Defines:
//   - Role: one of the two fixed seats in a session.
//   - Coord: a single grid cell.
//   - Fleet: live, mutable ship → cells mapping (cells are removed as they are hit).
//   - FleetSnapshot: immutable copy of a fleet taken once at battle start.
//   - Sunk / Shot / Result: shot-log records and the broadcast payload.

package game

import (
	"encoding/json"
	"sort"
)

// Role identifies a seat. The zero value means "no role" and encodes as JSON null.
type Role string

const (
	Player1 Role = "player1"
	Player2 Role = "player2"
)

// Roles lists both seats in a stable order.
var Roles = [2]Role{Player1, Player2}

// Valid reports whether r is one of the two seats.
func (r Role) Valid() bool { return r == Player1 || r == Player2 }

// Other returns the opposing seat.
func (r Role) Other() Role {
	if r == Player1 {
		return Player2
	}
	return Player1
}

// MarshalJSON encodes the empty role as null.
func (r Role) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON accepts a role string or null.
func (r *Role) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = Role(s)
	return nil
}

// Coord is a grid cell.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Fleet maps a ship identifier to the cells it still occupies.
type Fleet map[string][]Coord

// Clone returns a deep copy. A sunk ship keeps an empty, non-nil cell list
// so it encodes as [] rather than null.
func (f Fleet) Clone() Fleet {
	if f == nil {
		return nil
	}
	out := make(Fleet, len(f))
	for ship, cells := range f {
		out[ship] = append(make([]Coord, 0, len(cells)), cells...)
	}
	return out
}

// Destroyed reports whether every ship has no cells left.
func (f Fleet) Destroyed() bool {
	for _, cells := range f {
		if len(cells) > 0 {
			return false
		}
	}
	return true
}

// Snapshot freezes the fleet.
func (f Fleet) Snapshot() FleetSnapshot {
	return FleetSnapshot{ships: f.Clone()}
}

// FleetSnapshot is a read-only fleet. Accessors hand out copies so callers
// can never mutate the underlying cells.
type FleetSnapshot struct {
	ships Fleet
}

// Ship returns a copy of the original cells of ship, or nil if unknown.
func (s FleetSnapshot) Ship(id string) []Coord {
	cells, ok := s.ships[id]
	if !ok {
		return nil
	}
	return append([]Coord(nil), cells...)
}

// ShipIDs returns the ship identifiers in sorted order.
func (s FleetSnapshot) ShipIDs() []string {
	ids := make([]string, 0, len(s.ships))
	for id := range s.ships {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len is the number of ships.
func (s FleetSnapshot) Len() int { return len(s.ships) }

// Fleet returns a fresh live fleet built from the snapshot.
func (s FleetSnapshot) Fleet() Fleet { return s.ships.Clone() }

func (s FleetSnapshot) MarshalJSON() ([]byte, error) {
	if s.ships == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.ships)
}

func (s *FleetSnapshot) UnmarshalJSON(b []byte) error {
	var f Fleet
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	s.ships = f
	return nil
}

// Sunk describes a ship that lost its last cell, with its original placement.
type Sunk struct {
	Ship   string  `json:"ship"`
	Coords []Coord `json:"coords"`
}

// Shot is one entry in the append-only shot log.
type Shot struct {
	X        int   `json:"x"`
	Y        int   `json:"y"`
	IsHit    bool  `json:"isHit"`
	By       Role  `json:"by"`
	Sunk     *Sunk `json:"sunk"`
	GameOver bool  `json:"gameOver"`
	Winner   Role  `json:"winner"`
}

// Result is the outcome of a shot as broadcast to both players.
type Result struct {
	X        int   `json:"x"`
	Y        int   `json:"y"`
	IsHit    bool  `json:"isHit"`
	By       Role  `json:"by"`
	Turn     Role  `json:"turn"`
	Sunk     *Sunk `json:"sunk,omitempty"`
	GameOver bool  `json:"gameOver,omitempty"`
	Winner   Role  `json:"winner,omitempty"`
}
