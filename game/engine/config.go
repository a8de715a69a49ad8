package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout characters (XSB notation)
const (
	CharWall         = '#'
	CharGoal         = '.'
	CharBox          = '$'
	CharBoxOnGoal    = '*'
	CharPlayer       = '@'
	CharPlayerOnGoal = '+'
	CharFloor        = '-'
)

func isFloorChar(c rune) bool {
	return c == CharFloor || c == ' ' || c == '_'
}

// ValidateLevelConfig validates a level description for correctness
func ValidateLevelConfig(config *LevelConfig) error {
	if config == nil {
		return fmt.Errorf("level validation: config is nil")
	}
	if config.ID <= 0 {
		return fmt.Errorf("level validation: id must be positive, got %d", config.ID)
	}
	if config.Name == "" {
		return fmt.Errorf("level validation: name is required")
	}
	if config.MaxMoves < MinMoveBudget || config.MaxMoves > MaxMoveBudget {
		return fmt.Errorf("level validation: max_moves must be between %d and %d, got %d",
			MinMoveBudget, MaxMoveBudget, config.MaxMoves)
	}

	height := len(config.Layout)
	if height < MinGridSize || height > MaxGridSize {
		return fmt.Errorf("level validation: layout must have between %d and %d rows, got %d",
			MinGridSize, MaxGridSize, height)
	}

	width := len([]rune(config.Layout[0]))
	if width < MinGridSize || width > MaxGridSize {
		return fmt.Errorf("level validation: layout rows must have between %d and %d cells, got %d",
			MinGridSize, MaxGridSize, width)
	}

	players, boxes, goals := 0, 0, 0
	for y, row := range config.Layout {
		cells := []rune(row)
		if len(cells) != width {
			return fmt.Errorf("level validation: row %d must have %d cells, got %d", y+1, width, len(cells))
		}
		for x, c := range cells {
			switch {
			case c == CharWall, isFloorChar(c):
			case c == CharGoal:
				goals++
			case c == CharBox:
				boxes++
			case c == CharBoxOnGoal:
				boxes++
				goals++
			case c == CharPlayer:
				players++
			case c == CharPlayerOnGoal:
				players++
				goals++
			default:
				return fmt.Errorf("level validation: invalid character '%c' at row %d, col %d", c, y+1, x+1)
			}
		}
	}

	if players != 1 {
		return fmt.Errorf("level validation: layout must contain exactly one player, got %d", players)
	}
	if goals == 0 {
		return fmt.Errorf("level validation: layout must contain at least one goal")
	}
	if boxes < goals {
		return fmt.Errorf("level validation: layout has %d boxes for %d goals", boxes, goals)
	}

	return nil
}

// BuildLayout validates config and converts it to an immutable Layout.
// Boxes are indexed in row-major order of the layout rows.
func BuildLayout(config *LevelConfig) (*Layout, error) {
	if err := ValidateLevelConfig(config); err != nil {
		return nil, err
	}

	width := len([]rune(config.Layout[0]))
	layout := newLayout(config.ID, config.Name, width, len(config.Layout), config.MaxMoves)
	layout.Difficulty = config.Difficulty

	for y, row := range config.Layout {
		for x, c := range []rune(row) {
			p := Position{X: x, Y: y}
			switch c {
			case CharWall:
				layout.addWall(p)
			case CharGoal:
				layout.addGoal(p)
			case CharBox:
				layout.BoxStarts = append(layout.BoxStarts, p)
			case CharBoxOnGoal:
				layout.addGoal(p)
				layout.BoxStarts = append(layout.BoxStarts, p)
			case CharPlayer:
				layout.PlayerStart = p
			case CharPlayerOnGoal:
				layout.addGoal(p)
				layout.PlayerStart = p
			}
		}
	}

	return layout, nil
}

// DecodeLevelConfig parses a level description. format is "json" or "yaml".
func DecodeLevelConfig(data []byte, format string) (*LevelConfig, error) {
	var config LevelConfig
	switch format {
	case "json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported level format %q", format)
	}
	return &config, nil
}

// FormatFromPath returns the decoder format implied by a file extension
func FormatFromPath(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// LoadLevelConfig loads and validates a level description from a file
func LoadLevelConfig(filename string) (*LevelConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config, err := DecodeLevelConfig(data, FormatFromPath(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to parse level file '%s': %w", filepath.Base(filename), err)
	}

	if err := ValidateLevelConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}
