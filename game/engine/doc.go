// Package engine provides the local puzzle simulation for the Sokoban ledger client.
//
// The engine package implements:
//   - The grid model: an immutable Layout plus a dynamic State
//   - The movement engine: Step/Apply, a pure total function per direction
//   - The move ledger: Ledger records accepted directions and derives state
//   - Replay: the single path used for undo, persistence restore and validation
//   - Level files: XSB-style layouts in JSON or YAML, validated on load
//
// Core Types:
//
// Layout is created once per level by BuildLayout and never mutated. Ledger is
// the source of truth for an attempt; its State is a cache that always equals
// Replay(layout, moves). Cell types for rendering are derived on demand by
// Classify and Render.
//
// Usage:
//
//	config, err := engine.LoadLevelConfig("levels/first_steps.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	layout, err := engine.BuildLayout(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ledger := engine.NewLedger(layout)
//	ledger.AddMove(engine.Up)
//	ledger.Undo()
//	solved := ledger.IsSolved()
//
// Rules:
//
// The player steps one cell per move. A box in the target cell is pushed one
// cell further when that cell is inside the grid, not a wall and not another
// box. The level is solved when every goal holds a box. Direction values are
// the wire codes of the remote validator (0=up, 1=right, 2=down, 3=left) and
// the remote side replays the same algorithm, so the two must agree exactly.
package engine
