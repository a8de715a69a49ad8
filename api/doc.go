// Package api provides the HTTP REST API for the Sokoban ledger client.
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Start a level attempt ({"level_id": 1}; 0 or empty picks the first level)
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/sessions/{id} - Get one session
//   - DELETE /api/sessions/{id} - Delete a session
//
// Local Play (never touches the ledger):
//   - GET /api/sessions/{id}/state - Current derived view
//   - POST /api/sessions/{id}/move - {"direction": "up"}
//   - POST /api/sessions/{id}/bulk-move - {"moves": ["up","left"]} or {"move_string": "ULU"}, optional "reset"
//   - POST /api/sessions/{id}/undo - Drop the last move
//   - POST /api/sessions/{id}/reset - Clear the ledger
//
// Ledger:
//   - POST /api/sessions/{id}/submit - Submit the recorded moves
//   - GET /api/chain - Remote game object as the ledger reports it
//
// Levels:
//   - GET /api/levels - Level catalog
//   - GET /api/levels/{id} - Level description
//   - POST /api/levels - Save a level file (requires a level directory)
//
// Updates:
//   - GET /ws?session={id} - WebSocket stream of state_update and submission events
//
// Errors are returned as JSON. kind is stable across releases and code carries
// the ledger abort code when there is one:
//
//	{
//	  "error": "Box would be out of bounds",
//	  "kind": "aborted",
//	  "code": 105
//	}
//
// Status codes: 400 invalid input, 404 unknown session or level, 409 ledger
// abort or submission conflict, 422 submission precondition, 424 entities not
// found, 502 transport failure, 504 outcome unknown.
package api
