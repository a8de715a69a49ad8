// Package entity resolves and holds the ledger object IDs bound to a level
// attempt: one player entity and one entity per box.
package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wricardo/sokoban-ledger/chain"
)

var (
	ErrEntitiesNotFound = errors.New("entities not found")
	ErrUnresolved       = errors.New("entity bindings not resolved")
	ErrDuplicateBinding = errors.New("duplicate entity binding")
	ErrBoxCountMismatch = errors.New("box binding count does not match level")
)

// Bindings maps logical roles to the object IDs issued by the ledger.
// Boxes[i] is the entity of the i-th box of the layout.
type Bindings struct {
	Player chain.ObjectID   `json:"player"`
	Boxes  []chain.ObjectID `json:"boxes"`
}

// Validate checks that every role is bound to a distinct, non-empty ID and
// that the number of boxes matches the layout.
func (b *Bindings) Validate(boxCount int) error {
	if b == nil || b.Player.IsZero() {
		return fmt.Errorf("%w: player", ErrUnresolved)
	}
	if len(b.Boxes) != boxCount {
		return fmt.Errorf("%w: have %d, level has %d", ErrBoxCountMismatch, len(b.Boxes), boxCount)
	}

	seen := map[chain.ObjectID]string{b.Player: "player"}
	for i, id := range b.Boxes {
		role := fmt.Sprintf("box %d", i)
		if id.IsZero() {
			return fmt.Errorf("%w: %s", ErrUnresolved, role)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s and %s share %s", ErrDuplicateBinding, prev, role, id)
		}
		seen[id] = role
	}
	return nil
}

// Clone returns a deep copy
func (b *Bindings) Clone() *Bindings {
	if b == nil {
		return nil
	}
	return &Bindings{Player: b.Player, Boxes: append([]chain.ObjectID(nil), b.Boxes...)}
}

// NotFoundError lists the roles whose position held no entity
type NotFoundError struct {
	Roles []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entities not found on grid: %s", strings.Join(e.Roles, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrEntitiesNotFound
}
