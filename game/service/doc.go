// Package service orchestrates level attempts for the Sokoban ledger client.
//
// A session is one attempt at one level. Creating it starts the level on the
// remote ledger, resolves the entity bindings for the player and every box,
// and opens an empty move ledger. Moves, undo and reset are purely local and
// never touch the network. Submit sends the full ledger once it is solved.
//
// Core Interfaces:
//
// GameService is the surface used by the REST, WebSocket and MCP transports.
// SessionManager stores sessions, ConfigManager serves the level catalog,
// EntityResolver and SolutionSubmitter reach the remote ledger.
//
// Usage:
//
//	sessions := session.NewManager()
//	levels, _ := config.NewManager("levels")
//	sim := simchain.New(levels)
//	svc := service.NewGameService(sessions, levels,
//		entity.NewResolver(sim, sim.GridID()),
//		submit.NewSubmitter(sim, nil))
//
//	info, err := svc.CreateSession(ctx, 1)
//	if err != nil {
//		log.Fatal().Err(err).Msg("create session")
//	}
//	svc.BulkMove(ctx, info.ID, []string{"up", "left"}, false)
//	receipt, err := svc.Submit(ctx, info.ID)
//
// Session lifecycle:
//
// A session is active until a submission succeeds, after which it is
// solved_onchain and refuses further moves. While a submission is in flight
// the ledger is frozen and a second submission fails with
// ErrSubmissionInFlight. A rejected or abandoned submission returns the
// session to active with the ledger untouched.
package service
