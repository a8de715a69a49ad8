package session

import (
	"fmt"
	"time"

	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/entity"
	"github.com/wricardo/sokoban-ledger/game/service"
	"github.com/wricardo/sokoban-ledger/game/submit"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session to storage
	Save(session *service.Session) error

	// Load retrieves a session from storage by ID
	Load(id string) (*service.Session, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}

// LevelLoader resolves the level a persisted session was playing
type LevelLoader interface {
	LoadLevel(id int) (*engine.LevelConfig, error)
}

// PersistedSessionData is the stored form of a session. Only the move list is
// kept; the puzzle state is rebuilt by replay when the session is loaded.
type PersistedSessionData struct {
	ID             string           `json:"id"`
	LevelID        int              `json:"level_id"`
	Moves          []int            `json:"moves"`
	Bindings       *entity.Bindings `json:"bindings,omitempty"`
	Status         service.Status   `json:"status"`
	StartDigest    string           `json:"start_digest,omitempty"`
	Receipt        *submit.Receipt  `json:"receipt,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
}

func encodeSession(session *service.Session) PersistedSessionData {
	moves := session.Ledger.Moves()
	codes := make([]int, len(moves))
	for i, m := range moves {
		codes[i] = int(m)
	}
	return PersistedSessionData{
		ID:             session.ID,
		LevelID:        session.Level.ID,
		Moves:          codes,
		Bindings:       session.Bindings,
		Status:         session.Status,
		StartDigest:    session.StartDigest,
		Receipt:        session.Receipt,
		LastError:      session.LastError,
		CreatedAt:      session.CreatedAt,
		LastAccessedAt: session.LastAccessedAt,
	}
}

func decodeSession(data PersistedSessionData, levels LevelLoader) (*service.Session, error) {
	level, err := levels.LoadLevel(data.LevelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load level %d: %w", data.LevelID, err)
	}
	layout, err := engine.BuildLayout(level)
	if err != nil {
		return nil, fmt.Errorf("failed to build level %d: %w", data.LevelID, err)
	}

	moves := make([]engine.Direction, len(data.Moves))
	for i, code := range data.Moves {
		if code < 0 || code > int(engine.Left) {
			return nil, fmt.Errorf("session %s: invalid move code %d at position %d", data.ID, code, i)
		}
		moves[i] = engine.Direction(code)
	}
	ledger, err := engine.RestoreLedger(layout, moves)
	if err != nil {
		return nil, fmt.Errorf("failed to replay session %s: %w", data.ID, err)
	}

	status := data.Status
	switch status {
	case service.StatusSolved:
	case service.StatusSubmitting:
		// the process stopped mid-submission
		status = service.StatusActive
		if data.LastError == "" {
			data.LastError = submit.ErrOutcomeUnknown.Error()
		}
	default:
		status = service.StatusActive
	}

	return &service.Session{
		ID:             data.ID,
		Level:          level,
		Layout:         layout,
		Ledger:         ledger,
		Bindings:       data.Bindings,
		Status:         status,
		StartDigest:    data.StartDigest,
		Receipt:        data.Receipt,
		LastError:      data.LastError,
		CreatedAt:      data.CreatedAt,
		LastAccessedAt: data.LastAccessedAt,
	}, nil
}
