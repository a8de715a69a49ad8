// Package websocket pushes session updates to browser clients.
//
// A central Hub owns every connection. Clients attach to one session with
// /ws?session=<id> and receive a state_update message carrying the session's
// GameView after each local move, undo, reset or submission, plus a
// submission event with the receipt or the decoded failure.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//	defer hub.Stop()
//
//	hub.BroadcastToSession(sessionID, view)
//
// All hub state is owned by the Run goroutine; broadcasts are queued and
// dropped with a warning if the queue is full.
package websocket
