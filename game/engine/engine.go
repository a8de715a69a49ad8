package engine

import "fmt"

// ReplayError reports the first move of a sequence that cannot be replayed
type ReplayError struct {
	Index  int // 0-based position in the move list
	Move   Direction
	Reason Rejection
	Budget bool // true when the list is longer than the move budget
}

func (e *ReplayError) Error() string {
	if e.Budget {
		return fmt.Sprintf("move %d exceeds the move budget", e.Index+1)
	}
	return fmt.Sprintf("move %d (%s) rejected: %s", e.Index+1, e.Move, e.Reason)
}

// Replay applies moves from the layout's initial state. It is the canonical
// path for rebuilding state; undo and persistence restore both go through it.
func Replay(layout *Layout, moves []Direction) (State, error) {
	state := layout.InitialState()
	for i, d := range moves {
		if i >= layout.MaxMoves {
			return state, &ReplayError{Index: i, Move: d, Budget: true}
		}
		next, why := Step(layout, state, d)
		if why != Accepted {
			return state, &ReplayError{Index: i, Move: d, Reason: why}
		}
		state = next
	}
	return state, nil
}

// Ledger is the ordered record of accepted moves for a level attempt.
// The cached state is always equal to Replay(layout, moves).
type Ledger struct {
	layout *Layout
	moves  []Direction
	state  State
}

// NewLedger creates an empty ledger positioned at the layout's initial state
func NewLedger(layout *Layout) *Ledger {
	return &Ledger{
		layout: layout,
		moves:  []Direction{},
		state:  layout.InitialState(),
	}
}

// RestoreLedger rebuilds a ledger from a previously recorded move list
func RestoreLedger(layout *Layout, moves []Direction) (*Ledger, error) {
	state, err := Replay(layout, moves)
	if err != nil {
		return nil, err
	}
	recorded := make([]Direction, len(moves))
	copy(recorded, moves)
	return &Ledger{layout: layout, moves: recorded, state: state}, nil
}

// AddMove appends dir if the budget allows it and the movement rules accept it
func (lg *Ledger) AddMove(dir Direction) bool {
	if len(lg.moves) >= lg.layout.MaxMoves {
		return false
	}
	next, ok := Apply(lg.layout, lg.state, dir)
	if !ok {
		return false
	}
	lg.moves = append(lg.moves, dir)
	lg.state = next
	return true
}

// Undo drops the last move and rebuilds the state by full replay
func (lg *Ledger) Undo() {
	if len(lg.moves) == 0 {
		return
	}
	shortened := lg.moves[:len(lg.moves)-1]
	state, err := Replay(lg.layout, shortened)
	if err != nil {
		// A prefix of an accepted sequence always replays.
		panic(fmt.Sprintf("engine: replay of accepted prefix failed: %v", err))
	}
	lg.moves = shortened
	lg.state = state
}

// Reset clears the ledger and restores the initial state
func (lg *Ledger) Reset() {
	lg.moves = []Direction{}
	lg.state = lg.layout.InitialState()
}

// CurrentState returns a copy of the derived puzzle state
func (lg *Ledger) CurrentState() State {
	return lg.state.Clone()
}

// IsSolved reports whether every goal currently holds a box
func (lg *Ledger) IsSolved() bool {
	return IsSolved(lg.layout, lg.state)
}

// Moves returns a copy of the recorded directions
func (lg *Ledger) Moves() []Direction {
	moves := make([]Direction, len(lg.moves))
	copy(moves, lg.moves)
	return moves
}

// Len returns the number of recorded moves
func (lg *Ledger) Len() int {
	return len(lg.moves)
}

// Remaining returns how many moves the budget still allows
func (lg *Ledger) Remaining() int {
	return lg.layout.MaxMoves - len(lg.moves)
}

// Layout returns the level geometry the ledger plays on
func (lg *Ledger) Layout() *Layout {
	return lg.layout
}

// BulkMove applies moves in order and stops at the first rejection.
// It returns how many moves were appended.
func (lg *Ledger) BulkMove(moves []Direction) int {
	applied := 0
	for _, d := range moves {
		if !lg.AddMove(d) {
			break
		}
		applied++
	}
	return applied
}
