package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction is a single player step. Its numeric value is the wire code the
// remote validator expects, so the constants must not be reordered.
type Direction uint8

const (
	Up    Direction = 0
	Right Direction = 1
	Down  Direction = 2
	Left  Direction = 3
)

// CellType is the derived classification of a grid cell used for rendering
type CellType string

const (
	Empty        CellType = "empty"
	Wall         CellType = "wall"
	Goal         CellType = "goal"
	Box          CellType = "box"
	BoxOnGoal    CellType = "box_on_goal"
	Player       CellType = "player"
	PlayerOnGoal CellType = "player_on_goal"

	// Validation constants
	MinGridSize   = 3
	MaxGridSize   = 64
	MinMoveBudget = 1
	MaxMoveBudget = 1024
	MaxBulkMoves  = 64
)

// Directions lists every direction in wire-code order
var Directions = []Direction{Up, Right, Down, Left}

// Valid reports whether d is one of the four wire codes
func (d Direction) Valid() bool {
	return d <= Left
}

// Delta returns the unit step for the direction
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Right:
		return 1, 0
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	}
	return 0, 0
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Right:
		return "right"
	case Down:
		return "down"
	case Left:
		return "left"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Arrow returns the arrow glyph shown in move lists
func (d Direction) Arrow() string {
	switch d {
	case Up:
		return "↑"
	case Right:
		return "→"
	case Down:
		return "↓"
	case Left:
		return "←"
	}
	return "?"
}

// ParseDirection accepts direction names, single letters, arrows and wire codes
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "u", "north", "n", "↑":
		return Up, nil
	case "right", "r", "east", "e", "→":
		return Right, nil
	case "down", "d", "south", "s", "↓":
		return Down, nil
	case "left", "l", "west", "w", "←":
		return Left, nil
	}
	if code, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && code >= 0 && code <= int(Left) {
		return Direction(code), nil
	}
	return 0, fmt.Errorf("invalid direction %q", s)
}

// ParseMoveString parses a compact move string such as "ULURR" or a
// comma/space separated list of direction names.
func ParseMoveString(s string) ([]Direction, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var tokens []string
	if strings.ContainsAny(s, ", ") {
		tokens = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	} else {
		for _, r := range s {
			tokens = append(tokens, string(r))
		}
	}
	moves := make([]Direction, 0, len(tokens))
	for i, tok := range tokens {
		d, err := ParseDirection(tok)
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", i+1, err)
		}
		moves = append(moves, d)
	}
	return moves, nil
}

// Codes converts directions to their raw wire codes
func Codes(moves []Direction) []uint8 {
	codes := make([]uint8, len(moves))
	for i, d := range moves {
		codes[i] = uint8(d)
	}
	return codes
}

// Position represents x,y coordinates
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p moved one step in direction d
func (p Position) Add(d Direction) Position {
	dx, dy := d.Delta()
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// State is the dynamic part of a puzzle: where the player and the boxes are.
// Boxes are distinguishable only by index.
type State struct {
	Player Position   `json:"player"`
	Boxes  []Position `json:"boxes"`
}

// Clone returns a deep copy of the state
func (s State) Clone() State {
	boxes := make([]Position, len(s.Boxes))
	copy(boxes, s.Boxes)
	return State{Player: s.Player, Boxes: boxes}
}

// BoxAt returns the index of the box at p, or -1
func (s State) BoxAt(p Position) int {
	for i, b := range s.Boxes {
		if b == p {
			return i
		}
	}
	return -1
}

// Equal compares player and box positions index by index
func (s State) Equal(o State) bool {
	if s.Player != o.Player || len(s.Boxes) != len(o.Boxes) {
		return false
	}
	for i := range s.Boxes {
		if s.Boxes[i] != o.Boxes[i] {
			return false
		}
	}
	return true
}

// LevelConfig is the on-disk description of a level
type LevelConfig struct {
	ID          int      `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	MaxMoves    int      `json:"max_moves" yaml:"max_moves"`
	Layout      []string `json:"layout" yaml:"layout"`
}
