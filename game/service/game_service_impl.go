package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/sokoban-ledger/chain"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/submit"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidMove        = errors.New("invalid move")
	ErrSubmissionInFlight = errors.New("a submission is already in flight for this session")
	ErrSessionFinished    = errors.New("level already solved on the ledger")
	ErrChainUnavailable   = errors.New("ledger status reader not configured")
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions  SessionManager
	configs   ConfigManager
	resolver  EntityResolver
	submitter SolutionSubmitter
	reader    chain.SessionReader

	// mu guards session contents; startMu serializes level starts, which
	// reset the single remote grid.
	mu      sync.RWMutex
	startMu sync.Mutex
}

// Option configures the game service
type Option func(*gameServiceImpl)

// WithSessionReader enables ChainStatus
func WithSessionReader(r chain.SessionReader) Option {
	return func(s *gameServiceImpl) { s.reader = r }
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager, resolver EntityResolver, submitter SolutionSubmitter, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions:  sessions,
		configs:   configs,
		resolver:  resolver,
		submitter: submitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession starts the level on the ledger, resolves the entity bindings
// and opens a local attempt. A resolution failure discards the attempt.
func (s *gameServiceImpl) CreateSession(ctx context.Context, levelID int) (*SessionInfo, error) {
	var level *engine.LevelConfig
	if levelID == 0 {
		level = s.configs.GetDefault()
		if level == nil {
			return nil, fmt.Errorf("no levels available")
		}
	} else {
		var err error
		level, err = s.configs.LoadLevel(levelID)
		if err != nil {
			return nil, fmt.Errorf("failed to load level %d: %w", levelID, err)
		}
	}

	layout, err := engine.BuildLayout(level)
	if err != nil {
		return nil, fmt.Errorf("failed to build level %d: %w", level.ID, err)
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	start, err := s.submitter.StartLevel(ctx, level.ID)
	if err != nil {
		return nil, fmt.Errorf("start level %d: %w", level.ID, err)
	}

	bindings, err := s.resolver.Resolve(ctx, layout)
	if err != nil {
		log.Warn().Err(err).Int("level_id", level.ID).Msg("entity resolution failed, attempt discarded")
		return nil, fmt.Errorf("resolve entities for level %d: %w", level.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Create("", level, bindings)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	sess.StartDigest = start.Digest
	s.persist(sess.ID, "create")

	log.Info().Str("session_id", sess.ID).Int("level_id", level.ID).Msg("session created")
	return s.info(sess), nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.info(sess), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.info(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if sess.Status == StatusSubmitting {
		return ErrSubmissionInFlight
	}
	return s.sessions.Delete(sessionID)
}

// Move appends a single direction to the session's ledger
func (s *gameServiceImpl) Move(ctx context.Context, sessionID, direction string) (*MoveResult, error) {
	dir, err := engine.ParseDirection(direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMove, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.mutable(sessionID)
	if err != nil {
		return nil, err
	}

	before := sess.Ledger.CurrentState()
	result := &MoveResult{Move: dir.String()}

	if reason := stopReason(sess.Ledger, dir); reason != "" {
		result.StopReason = reason
		result.Message = fmt.Sprintf("Move %s rejected: %s", dir, reason)
	} else {
		sess.Ledger.AddMove(dir)
		after := sess.Ledger.CurrentState()
		result.Success = true
		result.Pushed = !sameBoxes(before, after)
		result.Message = fmt.Sprintf("Moved %s to (%d,%d)", dir, after.Player.X, after.Player.Y)
		if sess.Ledger.IsSolved() {
			result.Message = "Puzzle solved locally. Submit to record it on the ledger."
		}
		s.persist(sess.ID, "move")
	}

	result.GameState = s.view(sess)
	return result, nil
}

// BulkMove applies moves in order and stops at the first rejected one
func (s *gameServiceImpl) BulkMove(ctx context.Context, sessionID string, moves []string, reset bool) (*BulkMoveResult, error) {
	dirs := make([]engine.Direction, 0, len(moves))
	for i, m := range moves {
		d, err := engine.ParseDirection(m)
		if err != nil {
			return nil, fmt.Errorf("%w: move %d: %w", ErrInvalidMove, i+1, err)
		}
		dirs = append(dirs, d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.mutable(sessionID)
	if err != nil {
		return nil, err
	}

	result := &BulkMoveResult{
		RequestedMoves: len(dirs),
		Success:        true,
	}

	if reset {
		sess.Ledger.Reset()
	}

	if len(dirs) > engine.MaxBulkMoves {
		result.Truncated = true
		result.Limit = engine.MaxBulkMoves
		dirs = dirs[:engine.MaxBulkMoves]
	}

	for i, d := range dirs {
		if reason := stopReason(sess.Ledger, d); reason != "" {
			result.Success = false
			result.StoppedOnMove = i + 1
			result.StopReason = reason
			result.Message = fmt.Sprintf("move %d (%s) rejected: %s", i+1, d, reason)
			break
		}
		sess.Ledger.AddMove(d)
		result.MovesExecuted++
	}

	result.Solved = sess.Ledger.IsSolved()
	if result.Solved && result.Message == "" {
		result.Message = "Puzzle solved locally. Submit to record it on the ledger."
	}

	if reset || result.MovesExecuted > 0 {
		s.persist(sess.ID, "bulk move")
	}

	result.GameState = s.view(sess)
	return result, nil
}

// Undo removes the last recorded move
func (s *gameServiceImpl) Undo(ctx context.Context, sessionID string) (*GameView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.mutable(sessionID)
	if err != nil {
		return nil, err
	}

	sess.Ledger.Undo()
	s.persist(sess.ID, "undo")
	return s.view(sess), nil
}

// Reset clears the ledger back to the initial layout
func (s *gameServiceImpl) Reset(ctx context.Context, sessionID string) (*GameView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.mutable(sessionID)
	if err != nil {
		return nil, err
	}

	sess.Ledger.Reset()
	s.persist(sess.ID, "reset")
	return s.view(sess), nil
}

// GetGameState retrieves the current game state
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*GameView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// Submit sends the session's ledger to the remote validator. Only one
// submission per session may be outstanding; the network call runs without
// holding the service lock and the ledger is frozen meanwhile.
func (s *gameServiceImpl) Submit(ctx context.Context, sessionID string) (*SubmitResult, error) {
	s.mu.Lock()
	sess, err := s.get(sessionID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	switch sess.Status {
	case StatusSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	case StatusSolved:
		s.mu.Unlock()
		return nil, ErrSessionFinished
	}
	if err := submit.CheckPreconditions(sess.Ledger, sess.Bindings); err != nil {
		sess.LastError = err.Error()
		s.mu.Unlock()
		return nil, err
	}
	sess.Status = StatusSubmitting
	sess.LastError = ""
	ledger, bindings := sess.Ledger, sess.Bindings.Clone()
	s.mu.Unlock()

	receipt, err := s.submitter.Submit(submit.WithSessionID(ctx, sess.ID), ledger, bindings)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		sess.Status = StatusActive
		sess.LastError = err.Error()
		s.persist(sess.ID, "submit")
		return nil, err
	}

	sess.Status = StatusSolved
	sess.Receipt = receipt
	s.persist(sess.ID, "submit")

	log.Info().Str("session_id", sess.ID).Str("digest", receipt.Digest).Msg("level solved on the ledger")
	return &SubmitResult{Receipt: receipt, GameState: s.view(sess)}, nil
}

// ChainStatus reads the remote game object
func (s *gameServiceImpl) ChainStatus(ctx context.Context) (*ChainStatus, error) {
	if s.reader == nil {
		return nil, ErrChainUnavailable
	}
	gs, err := s.reader.GameSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("read game session: %w", err)
	}
	return newChainStatus(gs), nil
}

// ListLevels returns the level catalog
func (s *gameServiceImpl) ListLevels(ctx context.Context) ([]*LevelInfo, error) {
	return s.configs.ListLevels()
}

// LoadLevel loads a specific level description
func (s *gameServiceImpl) LoadLevel(ctx context.Context, levelID int) (*engine.LevelConfig, error) {
	return s.configs.LoadLevel(levelID)
}

// SaveLevel validates and stores a level description
func (s *gameServiceImpl) SaveLevel(ctx context.Context, level *engine.LevelConfig) error {
	return s.configs.SaveLevel(level)
}

// get looks a session up and refreshes its access time. Callers hold mu.
func (s *gameServiceImpl) get(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.sessions.UpdateLastAccessed(sessionID)
	return sess, nil
}

// mutable returns a session whose ledger may change
func (s *gameServiceImpl) mutable(sessionID string) (*Session, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case StatusSubmitting:
		return nil, ErrSubmissionInFlight
	case StatusSolved:
		return nil, ErrSessionFinished
	}
	return sess, nil
}

func (s *gameServiceImpl) persist(sessionID, op string) {
	if err := s.sessions.Save(sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Str("op", op).Msg("failed to persist session")
	}
}

func (s *gameServiceImpl) info(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		LevelID:        sess.Level.ID,
		LevelName:      sess.Level.Name,
		Status:         sess.Status,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		StartDigest:    sess.StartDigest,
		GameState:      s.view(sess),
		Level:          sess.Level,
	}
}

func (s *gameServiceImpl) view(sess *Session) *GameView {
	return NewGameView(sess)
}

// NewGameView derives the client-facing view of a session
func NewGameView(sess *Session) *GameView {
	layout := sess.Ledger.Layout()
	state := sess.Ledger.CurrentState()
	moves := sess.Ledger.Moves()

	codes := make([]int, len(moves))
	for i, m := range moves {
		codes[i] = int(m)
	}
	possible := []string{}
	if sess.Ledger.Remaining() > 0 {
		for _, d := range engine.PossibleMoves(layout, state) {
			possible = append(possible, d.String())
		}
	}

	return &GameView{
		SessionID:     sess.ID,
		LevelID:       layout.ID,
		LevelName:     layout.Name,
		Width:         layout.Width,
		Height:        layout.Height,
		Board:         engine.Render(layout, state),
		Player:        state.Player,
		Boxes:         state.Boxes,
		Goals:         layout.Goals,
		Moves:         engine.FormatMoves(moves),
		MoveCodes:     codes,
		MoveCount:     len(moves),
		MaxMoves:      layout.MaxMoves,
		Remaining:     sess.Ledger.Remaining(),
		BoxesOnGoals:  engine.BoxesOnGoals(layout, state),
		Solved:        sess.Ledger.IsSolved(),
		PossibleMoves: possible,
		Status:        sess.Status,
		Bindings:      sess.Bindings,
		Receipt:       sess.Receipt,
		LastError:     sess.LastError,
	}
}

// stopReason explains why the ledger would refuse dir, or returns ""
func stopReason(ledger *engine.Ledger, dir engine.Direction) string {
	if ledger.Remaining() <= 0 {
		return "move_budget"
	}
	_, why := engine.Step(ledger.Layout(), ledger.CurrentState(), dir)
	switch why {
	case engine.Accepted:
		return ""
	case engine.BlockedByWall, engine.BoxBlockedByWall:
		return "blocked_wall"
	case engine.BoxBlockedByBox:
		return "blocked_box"
	case engine.OutOfBounds, engine.BoxOutOfBounds:
		return "blocked_boundary"
	}
	return "invalid_direction"
}

func sameBoxes(a, b engine.State) bool {
	for i := range a.Boxes {
		if a.Boxes[i] != b.Boxes[i] {
			return false
		}
	}
	return true
}
