package engine

// Layout is the immutable geometry of a level. It is built once by
// BuildLayout and shared read-only by every ledger, resolver and view.
type Layout struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Difficulty  string     `json:"difficulty,omitempty"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	MaxMoves    int        `json:"max_moves"`
	Walls       []Position `json:"walls"`
	Goals       []Position `json:"goals"`
	PlayerStart Position   `json:"player_start"`
	BoxStarts   []Position `json:"box_starts"`

	walls map[Position]struct{}
	goals map[Position]struct{}
}

func newLayout(id int, name string, width, height, maxMoves int) *Layout {
	return &Layout{
		ID:       id,
		Name:     name,
		Width:    width,
		Height:   height,
		MaxMoves: maxMoves,
		walls:    make(map[Position]struct{}),
		goals:    make(map[Position]struct{}),
	}
}

func (l *Layout) addWall(p Position) {
	l.Walls = append(l.Walls, p)
	l.walls[p] = struct{}{}
}

func (l *Layout) addGoal(p Position) {
	l.Goals = append(l.Goals, p)
	l.goals[p] = struct{}{}
}

// InBounds reports whether p lies within [0,W)x[0,H)
func (l *Layout) InBounds(p Position) bool {
	return p.X >= 0 && p.X < l.Width && p.Y >= 0 && p.Y < l.Height
}

// IsWall reports whether p is a wall cell
func (l *Layout) IsWall(p Position) bool {
	_, ok := l.walls[p]
	return ok
}

// IsGoal reports whether p is a goal cell
func (l *Layout) IsGoal(p Position) bool {
	_, ok := l.goals[p]
	return ok
}

// PositionIndex is the key the remote grid table uses for a cell
func (l *Layout) PositionIndex(p Position) uint64 {
	return uint64(p.Y*l.Width + p.X)
}

// BoxCount returns the number of boxes in the level
func (l *Layout) BoxCount() int {
	return len(l.BoxStarts)
}

// InitialState returns a fresh copy of the starting positions
func (l *Layout) InitialState() State {
	boxes := make([]Position, len(l.BoxStarts))
	copy(boxes, l.BoxStarts)
	return State{Player: l.PlayerStart, Boxes: boxes}
}
