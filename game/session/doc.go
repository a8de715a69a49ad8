// Package session stores level attempts for the game service.
//
// Manager keeps sessions in memory keyed by a case-insensitive 4-character
// ID and can back them with a SessionPersistence. Two stores are provided:
// FilePersistence writes one JSON file per session and SQLitePersistence
// keeps them in a single SQLite table.
//
// Only the move list, the entity bindings and the submission outcome are
// stored. Loading a session rebuilds its puzzle state by replaying the moves
// against the current level, so a level file edited in a way that breaks an
// old ledger makes that session fail to load instead of drifting.
//
// Usage:
//
//	store, err := session.NewFilePersistence("sessions", levels)
//	if err != nil {
//		log.Fatal().Err(err).Msg("open session store")
//	}
//	manager := session.NewManagerWithPersistence(store)
//	manager.LoadPersistedSessions()
//
//	sess, err := manager.Create("", level, bindings)
//
// Cleanup:
//
// CleanupExpiredSessions drops idle sessions from memory; they stay in the
// store and are reloaded on the next Get.
package session
