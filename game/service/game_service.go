package service

import (
	"context"
	"time"

	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/entity"
	"github.com/wricardo/sokoban-ledger/game/submit"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, levelID int) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Local play
	Move(ctx context.Context, sessionID, direction string) (*MoveResult, error)
	BulkMove(ctx context.Context, sessionID string, moves []string, reset bool) (*BulkMoveResult, error)
	Undo(ctx context.Context, sessionID string) (*GameView, error)
	Reset(ctx context.Context, sessionID string) (*GameView, error)
	GetGameState(ctx context.Context, sessionID string) (*GameView, error)

	// Ledger
	Submit(ctx context.Context, sessionID string) (*SubmitResult, error)
	ChainStatus(ctx context.Context) (*ChainStatus, error)

	// Levels
	ListLevels(ctx context.Context) ([]*LevelInfo, error)
	LoadLevel(ctx context.Context, levelID int) (*engine.LevelConfig, error)
	SaveLevel(ctx context.Context, level *engine.LevelConfig) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, level *engine.LevelConfig, bindings *entity.Bindings) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles level loading
type ConfigManager interface {
	LoadLevel(id int) (*engine.LevelConfig, error)
	ListLevels() ([]*LevelInfo, error)
	GetDefault() *engine.LevelConfig
	SaveLevel(config *engine.LevelConfig) error
}

// EntityResolver maps starting cells to ledger object IDs
type EntityResolver interface {
	Resolve(ctx context.Context, layout *engine.Layout) (*entity.Bindings, error)
}

// SolutionSubmitter talks to the remote validator
type SolutionSubmitter interface {
	StartLevel(ctx context.Context, levelID int) (*submit.Receipt, error)
	Submit(ctx context.Context, ledger *engine.Ledger, bindings *entity.Bindings) (*submit.Receipt, error)
}

// Session is one level attempt: the ledger, the bindings resolved when the
// level started, and the submission outcome.
type Session struct {
	ID             string
	Level          *engine.LevelConfig
	Layout         *engine.Layout
	Ledger         *engine.Ledger
	Bindings       *entity.Bindings
	Status         Status
	StartDigest    string
	Receipt        *submit.Receipt
	LastError      string
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
