// Package rpc connects the client to a real ledger: a JSON-RPC full node for
// reads and finality, and an HTTP signing relay that owns the wallet and
// executes move calls.
package rpc
