package chain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Abort codes raised by the game module
const (
	CodeInvalidState     = 100
	CodeNotPlayer        = 101
	CodeInvalidDirection = 102
	CodeTooManyMoves     = 103
	CodeBlockedByWall    = 104
	CodeOutOfBounds      = 105
	CodeBlockedByBox     = 106
	CodeNotSolved        = 107
	CodeInvalidLevel     = 108
	CodeAlreadyStarted   = 109
	CodeLevelNotActive   = 110
)

var abortMessages = map[int]string{
	CodeInvalidState:     "Invalid game state",
	CodeNotPlayer:        "Not the player",
	CodeInvalidDirection: "Invalid direction",
	CodeTooManyMoves:     "Too many moves",
	CodeBlockedByWall:    "Blocked by wall",
	CodeOutOfBounds:      "Out of bounds",
	CodeBlockedByBox:     "Blocked by another box",
	CodeNotSolved:        "Puzzle not solved",
	CodeInvalidLevel:     "Invalid level",
	CodeAlreadyStarted:   "Already started",
	CodeLevelNotActive:   "Level not active",
}

var (
	// ErrAborted matches every *AbortError
	ErrAborted = errors.New("transaction aborted")
	// ErrNotFound is returned by collaborators for missing objects
	ErrNotFound = errors.New("object not found")
)

var abortCodePattern = regexp.MustCompile(`MoveAbort.*?(\d+)\)?$`)

// AbortError is a decoded ledger rejection. Code is zero when the failure
// text carried no abort code.
type AbortError struct {
	Code    int
	Message string
	Raw     string
}

func (e *AbortError) Error() string {
	return e.Message
}

func (e *AbortError) Is(target error) bool {
	return target == ErrAborted
}

// AbortMessage maps an abort code to its message
func AbortMessage(code int) string {
	if msg, ok := abortMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Transaction failed (code %d)", code)
}

// DecodeFailure turns the raw failure text of a rejected transaction into an
// *AbortError.
func DecodeFailure(raw string) *AbortError {
	if m := abortCodePattern.FindStringSubmatch(raw); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			return &AbortError{Code: code, Message: AbortMessage(code), Raw: raw}
		}
	}

	msg := raw
	if msg == "" {
		msg = "Transaction failed"
	}
	return &AbortError{Message: msg, Raw: raw}
}

// FormatAbort renders an abort the way the ledger reports it
func FormatAbort(function string, code int) string {
	return fmt.Sprintf("MoveAbort(MoveLocation { module: game, function_name: Some(%q) }, %d)", function, code)
}
