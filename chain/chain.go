package chain

import (
	"context"
	"fmt"
	"strings"
)

// ObjectID identifies an object on the ledger. The zero value means "nothing".
type ObjectID string

// IsZero reports whether the ID is empty
func (id ObjectID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// TableHandle addresses the grid's position table
type TableHandle string

// Game lifecycle states as stored by the remote game object
type GameState uint8

const (
	StateLobby    GameState = 0
	StateActive   GameState = 1
	StateFinished GameState = 2
)

func (s GameState) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateActive:
		return "active"
	case StateFinished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Marker kinds stored on grid entities
const (
	MarkerPlayer uint8 = 0
	MarkerWall   uint8 = 1
	MarkerBox    uint8 = 2
)

// PositionLookup reads the remote grid. Lookup returns an empty ObjectID and
// a nil error when no entity occupies the index.
type PositionLookup interface {
	GridTable(ctx context.Context, gridID ObjectID) (TableHandle, error)
	Lookup(ctx context.Context, table TableHandle, index uint64) (ObjectID, error)
}

// Validator executes game transactions on the ledger
type Validator interface {
	StartLevel(ctx context.Context, levelID uint64) (*Transaction, error)
	SubmitSolution(ctx context.Context, req SolutionRequest) (*Transaction, error)
	WaitForTransaction(ctx context.Context, digest string) error
}

// SessionReader exposes the remote game object
type SessionReader interface {
	GameSession(ctx context.Context) (*GameSession, error)
}

// SolutionRequest is the payload of a submit_solution call. Directions carry
// the wire codes 0=up, 1=right, 2=down, 3=left.
type SolutionRequest struct {
	Player     ObjectID   `json:"player"`
	Boxes      []ObjectID `json:"boxes"`
	Directions []uint8    `json:"directions"`
}

// Transaction is the execution result of a signed call. Failure holds the raw
// abort text when the ledger rejected the call.
type Transaction struct {
	Digest  string `json:"digest"`
	Failure string `json:"failure,omitempty"`
}

// Failed reports whether the ledger rejected the transaction
func (t *Transaction) Failed() bool {
	return t.Failure != ""
}

// GameSession is the remote view of the current game
type GameSession struct {
	State     GameState `json:"state"`
	LevelID   uint64    `json:"level_id"`
	MaxMoves  uint64    `json:"max_moves"`
	GoalXs    []uint64  `json:"goal_xs"`
	GoalYs    []uint64  `json:"goal_ys"`
	BestScore *uint64   `json:"best_score,omitempty"`
	Player    string    `json:"player,omitempty"`
}
