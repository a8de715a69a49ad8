package entity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wricardo/sokoban-ledger/chain"
	"github.com/wricardo/sokoban-ledger/game/engine"
	"golang.org/x/sync/errgroup"
)

// Resolver discovers the entity IDs of a freshly started level by reading the
// grid's position table at the player and box start cells.
type Resolver struct {
	lookup chain.PositionLookup
	gridID chain.ObjectID
}

// NewResolver creates a resolver for one grid object
func NewResolver(lookup chain.PositionLookup, gridID chain.ObjectID) *Resolver {
	return &Resolver{lookup: lookup, gridID: gridID}
}

// Resolve looks up the player and every box concurrently. It returns either
// complete bindings or an error; a *NotFoundError when any cell was empty and
// the first transport error otherwise.
func (r *Resolver) Resolve(ctx context.Context, layout *engine.Layout) (*Bindings, error) {
	table, err := r.lookup.GridTable(ctx, r.gridID)
	if err != nil {
		return nil, fmt.Errorf("read grid table: %w", err)
	}

	positions := append([]engine.Position{layout.PlayerStart}, layout.BoxStarts...)
	ids := make([]chain.ObjectID, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range positions {
		index := layout.PositionIndex(p)
		g.Go(func() error {
			id, err := r.lookup.Lookup(gctx, table, index)
			if err != nil {
				return fmt.Errorf("lookup position %d: %w", index, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var missing []string
	if ids[0].IsZero() {
		missing = append(missing, "player")
	}
	for i, id := range ids[1:] {
		if id.IsZero() {
			missing = append(missing, fmt.Sprintf("box %d", i))
		}
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{Roles: missing}
	}

	bindings := &Bindings{Player: ids[0], Boxes: ids[1:]}
	if err := bindings.Validate(layout.BoxCount()); err != nil {
		return nil, err
	}

	log.Debug().
		Int("level_id", layout.ID).
		Str("player", string(bindings.Player)).
		Int("boxes", len(bindings.Boxes)).
		Msg("entities resolved")
	return bindings, nil
}
