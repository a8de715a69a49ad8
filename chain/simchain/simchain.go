package simchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/sokoban-ledger/chain"
	"github.com/wricardo/sokoban-ledger/game/engine"
)

// ErrUnavailable is returned by every call while the chain is offline
var ErrUnavailable = errors.New("simchain: node unavailable")

// LevelSource resolves level IDs to layouts
type LevelSource interface {
	LoadLayout(id int) (*engine.Layout, error)
}

type gridEntity struct {
	marker uint8
	pos    engine.Position
}

// Chain is an in-process ledger that owns one game object and one grid.
// It re-executes submitted moves with the same step function the client uses
// and rejects calls with the game module's abort codes.
type Chain struct {
	levels LevelSource
	gridID chain.ObjectID
	table  chain.TableHandle

	mu       sync.Mutex
	state    chain.GameState
	layout   *engine.Layout
	cells    map[uint64]chain.ObjectID
	entities map[chain.ObjectID]*gridEntity
	best     *uint64
	txs      map[string]struct{}
	offline  bool
	latency  time.Duration
}

// Option configures a Chain
type Option func(*Chain)

// WithLatency delays every call, honoring context cancellation
func WithLatency(d time.Duration) Option {
	return func(c *Chain) { c.latency = d }
}

// New creates a simulated chain in the lobby state
func New(levels LevelSource, opts ...Option) *Chain {
	c := &Chain{
		levels:   levels,
		gridID:   newObjectID(),
		table:    chain.TableHandle(newObjectID()),
		cells:    make(map[uint64]chain.ObjectID),
		entities: make(map[chain.ObjectID]*gridEntity),
		txs:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GridID returns the ID of the grid object
func (c *Chain) GridID() chain.ObjectID {
	return c.gridID
}

// SetOffline makes every call fail with ErrUnavailable until reset
func (c *Chain) SetOffline(offline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = offline
}

// GridTable returns the handle of the grid's position table
func (c *Chain) GridTable(ctx context.Context, gridID chain.ObjectID) (chain.TableHandle, error) {
	if err := c.enter(ctx); err != nil {
		return "", err
	}
	if gridID != c.gridID {
		return "", fmt.Errorf("grid %s: %w", gridID, chain.ErrNotFound)
	}
	return c.table, nil
}

// Lookup returns the entity at a position index, or "" when the cell is empty
func (c *Chain) Lookup(ctx context.Context, table chain.TableHandle, index uint64) (chain.ObjectID, error) {
	if err := c.enter(ctx); err != nil {
		return "", err
	}
	if table != c.table {
		return "", fmt.Errorf("table %s: %w", table, chain.ErrNotFound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cells[index], nil
}

// StartLevel clears the grid and populates it with the level's entities.
// Restarting an active level is allowed.
func (c *Chain) StartLevel(ctx context.Context, levelID uint64) (*chain.Transaction, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	layout, err := c.levels.LoadLayout(int(levelID))
	if err != nil {
		return c.abort("start_level", chain.CodeInvalidLevel), nil
	}

	c.cells = make(map[uint64]chain.ObjectID)
	c.entities = make(map[chain.ObjectID]*gridEntity)
	c.place(layout, chain.MarkerPlayer, layout.PlayerStart)
	for _, w := range layout.Walls {
		c.place(layout, chain.MarkerWall, w)
	}
	for _, b := range layout.BoxStarts {
		c.place(layout, chain.MarkerBox, b)
	}

	c.layout = layout
	c.state = chain.StateActive
	c.best = nil

	log.Debug().Uint64("level_id", levelID).Int("entities", len(c.entities)).Msg("simchain: level started")
	return c.commit(), nil
}

// SubmitSolution replays the directions from the entities' positions and
// finishes the game when every goal holds a box.
func (c *Chain) SubmitSolution(ctx context.Context, req chain.SolutionRequest) (*chain.Transaction, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	const fn = "submit_solution"
	if c.state != chain.StateActive || c.layout == nil {
		return c.abort(fn, chain.CodeLevelNotActive), nil
	}

	player, ok := c.entities[req.Player]
	if !ok || player.marker != chain.MarkerPlayer {
		return c.abort(fn, chain.CodeNotPlayer), nil
	}

	if len(req.Boxes) != c.layout.BoxCount() {
		return c.abort(fn, chain.CodeInvalidState), nil
	}
	state := engine.State{Player: player.pos, Boxes: make([]engine.Position, len(req.Boxes))}
	seen := make(map[chain.ObjectID]bool, len(req.Boxes))
	for i, id := range req.Boxes {
		box, ok := c.entities[id]
		if !ok || box.marker != chain.MarkerBox || seen[id] {
			return c.abort(fn, chain.CodeInvalidState), nil
		}
		seen[id] = true
		state.Boxes[i] = box.pos
	}

	if len(req.Directions) > c.layout.MaxMoves {
		return c.abort(fn, chain.CodeTooManyMoves), nil
	}

	for _, code := range req.Directions {
		next, why := engine.Step(c.layout, state, engine.Direction(code))
		if why != engine.Accepted {
			return c.abort(fn, rejectionCode(why)), nil
		}
		state = next
	}

	if !engine.IsSolved(c.layout, state) {
		return c.abort(fn, chain.CodeNotSolved), nil
	}

	c.move(req.Player, state.Player)
	for i, id := range req.Boxes {
		c.move(id, state.Boxes[i])
	}

	score := uint64(len(req.Directions))
	if c.best == nil || score < *c.best {
		c.best = &score
	}
	c.state = chain.StateFinished

	log.Debug().Uint64("moves", score).Msg("simchain: level solved")
	return c.commit(), nil
}

// WaitForTransaction returns once the digest is known
func (c *Chain) WaitForTransaction(ctx context.Context, digest string) error {
	if err := c.enter(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.txs[digest]; !ok {
		return fmt.Errorf("transaction %s: %w", digest, chain.ErrNotFound)
	}
	return nil
}

// GameSession returns the game object as the ledger stores it
func (c *Chain) GameSession(ctx context.Context) (*chain.GameSession, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	session := &chain.GameSession{State: c.state}
	if c.best != nil {
		best := *c.best
		session.BestScore = &best
	}
	if c.layout != nil {
		session.LevelID = uint64(c.layout.ID)
		session.MaxMoves = uint64(c.layout.MaxMoves)
		for _, g := range c.layout.Goals {
			session.GoalXs = append(session.GoalXs, uint64(g.X))
			session.GoalYs = append(session.GoalYs, uint64(g.Y))
		}
	}
	for id, e := range c.entities {
		if e.marker == chain.MarkerPlayer {
			session.Player = string(id)
		}
	}
	return session, nil
}

// enter applies latency and the offline switch
func (c *Chain) enter(ctx context.Context) error {
	c.mu.Lock()
	offline, latency := c.offline, c.latency
	c.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if offline {
		return ErrUnavailable
	}
	return nil
}

func (c *Chain) place(layout *engine.Layout, marker uint8, p engine.Position) {
	id := chain.ObjectID(newObjectID())
	c.entities[id] = &gridEntity{marker: marker, pos: p}
	c.cells[layout.PositionIndex(p)] = id
}

func (c *Chain) move(id chain.ObjectID, to engine.Position) {
	e := c.entities[id]
	delete(c.cells, c.layout.PositionIndex(e.pos))
	e.pos = to
}

// commit records a successful transaction. Cells vacated by move are refilled
// here so that swapped positions never drop an entity.
func (c *Chain) commit() *chain.Transaction {
	for id, e := range c.entities {
		c.cells[c.layout.PositionIndex(e.pos)] = id
	}
	return c.record("")
}

func (c *Chain) abort(function string, code int) *chain.Transaction {
	return c.record(chain.FormatAbort(function, code))
}

func (c *Chain) record(failure string) *chain.Transaction {
	digest := newDigest()
	c.txs[digest] = struct{}{}
	return &chain.Transaction{Digest: digest, Failure: failure}
}

// rejectionCode maps a local rejection to the abort code the game module raises
func rejectionCode(why engine.Rejection) int {
	switch why {
	case engine.InvalidDirection:
		return chain.CodeInvalidDirection
	case engine.BlockedByWall, engine.BoxBlockedByWall:
		return chain.CodeBlockedByWall
	case engine.BoxBlockedByBox:
		return chain.CodeBlockedByBox
	case engine.OutOfBounds, engine.BoxOutOfBounds:
		return chain.CodeOutOfBounds
	}
	return chain.CodeInvalidState
}

func newObjectID() chain.ObjectID {
	return chain.ObjectID("0x" + strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func newDigest() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
