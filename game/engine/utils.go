package engine

// Classify derives the display type of a cell from the layout and state.
// Player and boxes take precedence over the static cell underneath.
func Classify(layout *Layout, state State, p Position) CellType {
	goal := layout.IsGoal(p)
	if state.Player == p {
		if goal {
			return PlayerOnGoal
		}
		return Player
	}
	if state.BoxAt(p) >= 0 {
		if goal {
			return BoxOnGoal
		}
		return Box
	}
	if layout.IsWall(p) {
		return Wall
	}
	if goal {
		return Goal
	}
	return Empty
}

// CellChar maps a cell type to its layout character
func CellChar(t CellType) rune {
	switch t {
	case Wall:
		return CharWall
	case Goal:
		return CharGoal
	case Box:
		return CharBox
	case BoxOnGoal:
		return CharBoxOnGoal
	case Player:
		return CharPlayer
	case PlayerOnGoal:
		return CharPlayerOnGoal
	}
	return CharFloor
}

// Render draws the board as layout rows
func Render(layout *Layout, state State) []string {
	rows := make([]string, layout.Height)
	for y := 0; y < layout.Height; y++ {
		row := make([]rune, layout.Width)
		for x := 0; x < layout.Width; x++ {
			row[x] = CellChar(Classify(layout, state, Position{X: x, Y: y}))
		}
		rows[y] = string(row)
	}
	return rows
}

// FormatMoves renders a move list as arrows, e.g. "↑→→"
func FormatMoves(moves []Direction) string {
	out := make([]rune, 0, len(moves))
	for _, d := range moves {
		out = append(out, []rune(d.Arrow())...)
	}
	return string(out)
}
