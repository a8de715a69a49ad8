package config

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/service"
	"gopkg.in/yaml.v3"
)

var (
	ErrLevelNotFound = errors.New("level not found")
	ErrInvalidLevel  = errors.New("invalid level")
	ErrReadOnly      = errors.New("no level directory configured")
)

// SourceBuiltin marks levels compiled into the binary
const SourceBuiltin = "builtin"

//go:embed levels/*.json
var builtinLevels embed.FS

//go:embed level.schema.json
var levelSchema string

// Manager handles level loading and caching. Built-in levels are always
// available; files in the level directory override them by ID.
type Manager struct {
	levelDir string
	schema   *jsonschema.Schema
	levels   map[int]*engine.LevelConfig
	layouts  map[int]*engine.Layout
	sources  map[int]string
	mu       sync.RWMutex
}

// NewManager creates a new level manager. An empty levelDir serves only the
// built-in levels.
func NewManager(levelDir string) (*Manager, error) {
	if levelDir != "" {
		if _, err := os.Stat(levelDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("level directory does not exist: %s", levelDir)
		}
	}

	schema, err := jsonschema.CompileString("level.schema.json", levelSchema)
	if err != nil {
		return nil, fmt.Errorf("compile level schema: %w", err)
	}

	m := &Manager{
		levelDir: levelDir,
		schema:   schema,
	}

	if err := m.RefreshCache(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadLevel returns a level description by ID
func (m *Manager) LoadLevel(id int) (*engine.LevelConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	config, exists := m.levels[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrLevelNotFound, id)
	}
	return config, nil
}

// LoadLayout returns the immutable layout for a level ID
func (m *Manager) LoadLayout(id int) (*engine.Layout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	layout, exists := m.layouts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrLevelNotFound, id)
	}
	return layout, nil
}

// ListLevels returns information about all available levels ordered by ID
func (m *Manager) ListLevels() ([]*service.LevelInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	levels := make([]*service.LevelInfo, 0, len(m.levels))
	for id, config := range m.levels {
		layout := m.layouts[id]
		levels = append(levels, &service.LevelInfo{
			ID:          id,
			Name:        config.Name,
			Description: config.Description,
			Difficulty:  config.Difficulty,
			Width:       layout.Width,
			Height:      layout.Height,
			Boxes:       layout.BoxCount(),
			Goals:       len(layout.Goals),
			MaxMoves:    config.MaxMoves,
			Source:      m.sources[id],
		})
	}

	sort.Slice(levels, func(i, j int) bool { return levels[i].ID < levels[j].ID })
	return levels, nil
}

// GetDefault returns the lowest-numbered level
func (m *Manager) GetDefault() *engine.LevelConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *engine.LevelConfig
	for _, config := range m.levels {
		if best == nil || config.ID < best.ID {
			best = config
		}
	}
	return best
}

// Count returns the number of available levels
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.levels)
}

// ValidateLevel checks a decoded level against the schema and the level rules
func (m *Manager) ValidateLevel(config *engine.LevelConfig) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal level: %w", err)
	}
	return m.validate(data, config)
}

// ValidateFile decodes a level file and runs the same checks the catalog
// applies when loading a level directory.
func (m *Manager) ValidateFile(path string) (*engine.LevelConfig, *engine.Layout, error) {
	format := engine.FormatFromPath(path)
	if !isLevelFormat(format) {
		return nil, nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidLevel, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read level file: %w", err)
	}
	return m.decode(data, format)
}

// SaveLevel validates a level, writes it to the level directory as JSON and
// replaces any cached level with the same ID.
func (m *Manager) SaveLevel(config *engine.LevelConfig) error {
	if m.levelDir == "" {
		return ErrReadOnly
	}
	if err := m.ValidateLevel(config); err != nil {
		return err
	}
	layout, err := engine.BuildLayout(config)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal level: %w", err)
	}

	filename := levelFilename(config)
	if err := os.WriteFile(filepath.Join(m.levelDir, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write level file: %w", err)
	}

	m.mu.Lock()
	m.levels[config.ID] = config
	m.layouts[config.ID] = layout
	m.sources[config.ID] = filename
	m.mu.Unlock()

	log.Info().Int("level_id", config.ID).Str("file", filename).Msg("level saved")
	return nil
}

// RefreshCache reloads the built-in levels and rescans the level directory
func (m *Manager) RefreshCache() error {
	levels := make(map[int]*engine.LevelConfig)
	layouts := make(map[int]*engine.Layout)
	sources := make(map[int]string)

	add := func(source string, data []byte, format string) error {
		config, layout, err := m.decode(data, format)
		if err != nil {
			return err
		}
		if prev, dup := sources[config.ID]; dup && prev != SourceBuiltin {
			return fmt.Errorf("%w: level id %d defined by both %s and %s", ErrInvalidLevel, config.ID, prev, source)
		}
		levels[config.ID] = config
		layouts[config.ID] = layout
		sources[config.ID] = source
		return nil
	}

	err := fs.WalkDir(builtinLevels, "levels", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := builtinLevels.ReadFile(path)
		if err != nil {
			return err
		}
		if err := add(SourceBuiltin, data, "json"); err != nil {
			return fmt.Errorf("built-in level %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if m.levelDir != "" {
		entries, err := os.ReadDir(m.levelDir)
		if err != nil {
			return fmt.Errorf("failed to read level directory: %w", err)
		}
		for _, entry := range entries {
			format := engine.FormatFromPath(entry.Name())
			if entry.IsDir() || !isLevelFormat(format) {
				continue
			}
			data, err := os.ReadFile(filepath.Join(m.levelDir, entry.Name()))
			if err != nil {
				return fmt.Errorf("failed to read level file: %w", err)
			}
			if err := add(entry.Name(), data, format); err != nil {
				// Skip invalid levels
				log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping level file")
				continue
			}
		}
	}

	m.mu.Lock()
	m.levels = levels
	m.layouts = layouts
	m.sources = sources
	m.mu.Unlock()

	log.Debug().Int("levels", len(levels)).Str("dir", m.levelDir).Msg("level cache refreshed")
	return nil
}

// decode parses a level file, checks it against the schema and builds its layout
func (m *Manager) decode(data []byte, format string) (*engine.LevelConfig, *engine.Layout, error) {
	config, err := engine.DecodeLevelConfig(data, format)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}

	raw := data
	if format != "json" {
		// The schema is checked against the JSON form of the document
		if raw, err = yamlToJSON(data); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidLevel, err)
		}
	}
	if err := m.validate(raw, config); err != nil {
		return nil, nil, err
	}

	layout, err := engine.BuildLayout(config)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}
	return config, layout, nil
}

func (m *Manager) validate(raw []byte, config *engine.LevelConfig) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}
	if err := m.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}
	if err := engine.ValidateLevelConfig(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}
	return nil
}

func isLevelFormat(format string) bool {
	return format == "json" || format == "yaml" || format == "yml"
}

func levelFilename(config *engine.LevelConfig) string {
	slug := strings.ToLower(strings.Join(strings.Fields(config.Name), "_"))
	return fmt.Sprintf("%02d_%s.json", config.ID, slug)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
