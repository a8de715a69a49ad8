// Package submit sends a locally solved move ledger to the remote validator
// and normalizes the result.
//
// Preconditions are checked before any network call: the ledger must be
// non-empty and solved, and the entity bindings must be complete. A rejected
// transaction is decoded into a *chain.AbortError. Transport errors are
// returned as they are and never retried here. A call abandoned through its
// context is reported with ErrOutcomeUnknown since the ledger may still have
// executed it.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/sokoban-ledger/chain"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"github.com/wricardo/sokoban-ledger/game/entity"
	"github.com/wricardo/sokoban-ledger/game/journal"
)

var (
	ErrPrecondition   = errors.New("submission precondition failed")
	ErrEmptyLedger    = errors.New("no moves to submit")
	ErrNotSolved      = errors.New("puzzle is not solved")
	ErrOutcomeUnknown = errors.New("transaction outcome unknown")
)

// Recorder receives one entry per ledger call
type Recorder interface {
	Record(journal.Entry) error
}

// Receipt is returned once a transaction is final
type Receipt struct {
	Digest      string    `json:"digest"`
	LevelID     int       `json:"level_id"`
	MoveCount   int       `json:"move_count,omitempty"`
	Moves       string    `json:"moves,omitempty"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// Submitter drives start_level and submit_solution calls
type Submitter struct {
	validator chain.Validator
	journal   Recorder
	now       func() time.Time
}

// NewSubmitter creates a submitter. A nil recorder discards journal entries.
func NewSubmitter(validator chain.Validator, recorder Recorder) *Submitter {
	if recorder == nil {
		recorder = journal.Discard{}
	}
	return &Submitter{
		validator: validator,
		journal:   recorder,
		now:       time.Now,
	}
}

type sessionKey struct{}

// WithSessionID tags journal entries written for calls made with ctx
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// CheckPreconditions reports why a ledger cannot be submitted yet
func CheckPreconditions(ledger *engine.Ledger, bindings *entity.Bindings) error {
	if ledger == nil || ledger.Len() == 0 {
		return fmt.Errorf("%w: %w", ErrPrecondition, ErrEmptyLedger)
	}
	if !ledger.IsSolved() {
		return fmt.Errorf("%w: %w", ErrPrecondition, ErrNotSolved)
	}
	if err := bindings.Validate(ledger.Layout().BoxCount()); err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	return nil
}

// BuildRequest packages the ledger's directions and the bindings
func BuildRequest(ledger *engine.Ledger, bindings *entity.Bindings) chain.SolutionRequest {
	return chain.SolutionRequest{
		Player:     bindings.Player,
		Boxes:      append([]chain.ObjectID(nil), bindings.Boxes...),
		Directions: engine.Codes(ledger.Moves()),
	}
}

// Submit sends the full move ledger for authoritative validation and waits
// for finality. The ledger is never modified.
func (s *Submitter) Submit(ctx context.Context, ledger *engine.Ledger, bindings *entity.Bindings) (*Receipt, error) {
	if err := CheckPreconditions(ledger, bindings); err != nil {
		return nil, err
	}

	moves := ledger.Moves()
	entry := journal.Entry{
		Call:      "submit_solution",
		SessionID: sessionID(ctx),
		LevelID:   ledger.Layout().ID,
		MoveCount: len(moves),
		Moves:     engine.FormatMoves(moves),
	}

	logger := log.With().
		Str("session_id", entry.SessionID).
		Int("level_id", entry.LevelID).
		Int("moves", entry.MoveCount).
		Logger()
	logger.Info().Msg("submitting solution")

	tx, err := s.validator.SubmitSolution(ctx, BuildRequest(ledger, bindings))
	if err != nil {
		err = s.callFailed(ctx, err)
		s.record(entry, "", err)
		logger.Warn().Err(err).Msg("submission failed")
		return nil, err
	}

	if err := s.finalize(ctx, tx); err != nil {
		s.record(entry, tx.Digest, err)
		logger.Warn().Err(err).Str("digest", tx.Digest).Msg("submission rejected")
		return nil, err
	}

	s.record(entry, tx.Digest, nil)
	logger.Info().Str("digest", tx.Digest).Msg("solution finalized")

	return &Receipt{
		Digest:      tx.Digest,
		LevelID:     entry.LevelID,
		MoveCount:   entry.MoveCount,
		Moves:       entry.Moves,
		FinalizedAt: s.now(),
	}, nil
}

// StartLevel asks the ledger to start a level and waits for finality. The
// grid's position table is populated once this returns.
func (s *Submitter) StartLevel(ctx context.Context, levelID int) (*Receipt, error) {
	entry := journal.Entry{
		Call:      "start_level",
		SessionID: sessionID(ctx),
		LevelID:   levelID,
	}

	tx, err := s.validator.StartLevel(ctx, uint64(levelID))
	if err != nil {
		err = s.callFailed(ctx, err)
		s.record(entry, "", err)
		return nil, err
	}
	if err := s.finalize(ctx, tx); err != nil {
		s.record(entry, tx.Digest, err)
		return nil, err
	}

	s.record(entry, tx.Digest, nil)
	log.Info().Int("level_id", levelID).Str("digest", tx.Digest).Msg("level started")

	return &Receipt{Digest: tx.Digest, LevelID: levelID, FinalizedAt: s.now()}, nil
}

// finalize decodes a rejected transaction or waits for an accepted one
func (s *Submitter) finalize(ctx context.Context, tx *chain.Transaction) error {
	if tx.Failed() {
		return chain.DecodeFailure(tx.Failure)
	}
	if err := s.validator.WaitForTransaction(ctx, tx.Digest); err != nil {
		return fmt.Errorf("%w: waiting for %s: %w", ErrOutcomeUnknown, tx.Digest, err)
	}
	return nil
}

// callFailed marks errors caused by the caller abandoning the call
func (s *Submitter) callFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrOutcomeUnknown, err)
	}
	return err
}

func (s *Submitter) record(entry journal.Entry, digest string, err error) {
	entry.Time = s.now()
	entry.Digest = digest
	entry.Outcome = journal.OutcomeFinalized

	var abort *chain.AbortError
	switch {
	case err == nil:
	case errors.As(err, &abort):
		entry.Outcome = journal.OutcomeAborted
		entry.Code = abort.Code
		entry.Error = abort.Message
	case errors.Is(err, ErrOutcomeUnknown):
		entry.Outcome = journal.OutcomeUnknown
		entry.Error = err.Error()
	default:
		entry.Outcome = journal.OutcomeTransport
		entry.Error = err.Error()
	}

	if jerr := s.journal.Record(entry); jerr != nil {
		log.Error().Err(jerr).Str("call", entry.Call).Msg("failed to write journal entry")
	}
}
