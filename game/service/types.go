package service

import (
	"time"

	"github.com/wricardo/sokoban-ledger/chain"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/entity"
	"github.com/wricardo/sokoban-ledger/game/submit"
)

// Status is the lifecycle stage of a level attempt
type Status string

const (
	StatusActive     Status = "active"
	StatusSubmitting Status = "submitting"
	StatusSolved     Status = "solved_onchain"
)

// LevelInfo summarizes a level in the catalog
type LevelInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Boxes       int    `json:"boxes"`
	Goals       int    `json:"goals"`
	MaxMoves    int    `json:"max_moves"`
	Source      string `json:"source"`
}

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string              `json:"id"`
	LevelID        int                 `json:"level_id"`
	LevelName      string              `json:"level_name"`
	Status         Status              `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	LastAccessedAt time.Time           `json:"last_accessed_at"`
	StartDigest    string              `json:"start_digest,omitempty"`
	GameState      *GameView           `json:"game_state"`
	Level          *engine.LevelConfig `json:"level"`
}

// GameView is the derived, client-facing picture of a session
type GameView struct {
	SessionID     string            `json:"session_id"`
	LevelID       int               `json:"level_id"`
	LevelName     string            `json:"level_name"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	Board         []string          `json:"board"`
	Player        engine.Position   `json:"player"`
	Boxes         []engine.Position `json:"boxes"`
	Goals         []engine.Position `json:"goals"`
	Moves         string            `json:"moves"`
	MoveCodes     []int             `json:"move_codes"`
	MoveCount     int               `json:"move_count"`
	MaxMoves      int               `json:"max_moves"`
	Remaining     int               `json:"remaining"`
	BoxesOnGoals  int               `json:"boxes_on_goals"`
	Solved        bool              `json:"solved"`
	PossibleMoves []string          `json:"possible_moves"`
	Status        Status            `json:"status"`
	Bindings      *entity.Bindings  `json:"bindings,omitempty"`
	Receipt       *submit.Receipt   `json:"receipt,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
}

// MoveResult contains the result of a move operation
type MoveResult struct {
	Success    bool      `json:"success"`
	Move       string    `json:"move"`
	Pushed     bool      `json:"pushed,omitempty"`
	StopReason string    `json:"stop_reason,omitempty"` // blocked_wall|blocked_box|blocked_boundary|move_budget
	Message    string    `json:"message"`
	GameState  *GameView `json:"game_state"`
}

// BulkMoveResult contains the result of multiple moves
type BulkMoveResult struct {
	RequestedMoves int       `json:"requested_moves"`
	MovesExecuted  int       `json:"moves_executed"`
	Success        bool      `json:"success"`
	StoppedOnMove  int       `json:"stopped_on_move,omitempty"` // 1-based index of the rejected move
	StopReason     string    `json:"stop_reason,omitempty"`
	Truncated      bool      `json:"truncated,omitempty"`
	Limit          int       `json:"limit,omitempty"`
	Solved         bool      `json:"solved"`
	Message        string    `json:"message,omitempty"`
	GameState      *GameView `json:"game_state"`
}

// SubmitResult is returned by a submission that reached the ledger
type SubmitResult struct {
	Receipt   *submit.Receipt `json:"receipt"`
	GameState *GameView       `json:"game_state"`
}

// ChainStatus is the remote game object as the ledger reports it
type ChainStatus struct {
	State     string  `json:"state"`
	LevelID   uint64  `json:"level_id"`
	MaxMoves  uint64  `json:"max_moves"`
	Goals     int     `json:"goals"`
	BestScore *uint64 `json:"best_score,omitempty"`
	Player    string  `json:"player,omitempty"`
}

func newChainStatus(gs *chain.GameSession) *ChainStatus {
	return &ChainStatus{
		State:     gs.State.String(),
		LevelID:   gs.LevelID,
		MaxMoves:  gs.MaxMoves,
		Goals:     len(gs.GoalXs),
		BestScore: gs.BestScore,
		Player:    gs.Player,
	}
}
