// Package mcp exposes the game as Model Context Protocol tools.
//
// The client is a thin proxy: every tool call becomes a REST request against
// the api package, so the MCP surface and the HTTP surface always agree.
//
// Tools:
//   - create_session, list_sessions, get_session
//   - game_state, move, bulk_move, undo, reset_moves, describe_cell
//   - submit_solution, chain_status
//   - list_levels, game_instructions
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: POST /mcp on the main server, handled with HandleMessage
//
// Tool failures are returned as tool errors rather than protocol errors so
// agents can read the reason, including ledger abort codes.
package mcp
