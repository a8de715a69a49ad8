// Package chain defines the contracts between the client and the remote
// ledger that owns the game.
//
// Two collaborators are involved. A PositionLookup reads the grid's position
// table (index y*W+x to entity object ID) so the client can learn the IDs of
// the player and box entities after a level starts. A Validator executes the
// start_level and submit_solution calls and reports finality.
//
// Rejected calls come back as a Transaction with a raw Failure string.
// DecodeFailure extracts the abort code and maps it through a fixed table;
// unknown codes yield "Transaction failed (code N)".
//
// Implementations live in chain/simchain (in-process ledger) and chain/rpc
// (JSON-RPC node plus signing relay).
package chain
