package engine

// Rejection explains why a step was not accepted
type Rejection int

const (
	Accepted Rejection = iota
	InvalidDirection
	OutOfBounds
	BlockedByWall
	BoxOutOfBounds
	BoxBlockedByWall
	BoxBlockedByBox
)

func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case InvalidDirection:
		return "invalid direction"
	case OutOfBounds:
		return "out of bounds"
	case BlockedByWall:
		return "blocked by wall"
	case BoxOutOfBounds:
		return "box would leave the grid"
	case BoxBlockedByWall:
		return "box blocked by wall"
	case BoxBlockedByBox:
		return "box blocked by another box"
	}
	return "unknown"
}

// Step advances state by one move and reports the rejection reason, if any.
// The input state is never mutated; on rejection it is returned unchanged.
// The remote validator runs the same algorithm, so any change here must be
// mirrored there.
func Step(layout *Layout, state State, dir Direction) (State, Rejection) {
	if !dir.Valid() {
		return state, InvalidDirection
	}

	target := state.Player.Add(dir)
	if !layout.InBounds(target) {
		return state, OutOfBounds
	}
	if layout.IsWall(target) {
		return state, BlockedByWall
	}

	boxIdx := state.BoxAt(target)
	if boxIdx < 0 {
		next := state.Clone()
		next.Player = target
		return next, Accepted
	}

	push := target.Add(dir)
	if !layout.InBounds(push) {
		return state, BoxOutOfBounds
	}
	if layout.IsWall(push) {
		return state, BoxBlockedByWall
	}
	if state.BoxAt(push) >= 0 {
		return state, BoxBlockedByBox
	}

	next := state.Clone()
	next.Boxes[boxIdx] = push
	next.Player = target
	return next, Accepted
}

// Apply is the boolean form of Step
func Apply(layout *Layout, state State, dir Direction) (State, bool) {
	next, why := Step(layout, state, dir)
	return next, why == Accepted
}

// CanMove reports whether dir would be accepted from state
func CanMove(layout *Layout, state State, dir Direction) bool {
	_, ok := Apply(layout, state, dir)
	return ok
}

// PossibleMoves returns every direction accepted from state
func PossibleMoves(layout *Layout, state State) []Direction {
	var possible []Direction
	for _, d := range Directions {
		if CanMove(layout, state, d) {
			possible = append(possible, d)
		}
	}
	return possible
}

// IsSolved reports whether every goal cell holds some box
func IsSolved(layout *Layout, state State) bool {
	for _, g := range layout.Goals {
		if state.BoxAt(g) < 0 {
			return false
		}
	}
	return true
}

// BoxesOnGoals counts boxes currently sitting on goal cells
func BoxesOnGoals(layout *Layout, state State) int {
	count := 0
	for _, b := range state.Boxes {
		if layout.IsGoal(b) {
			count++
		}
	}
	return count
}
