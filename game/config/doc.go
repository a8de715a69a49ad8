// Package config provides level catalog and process settings for the Sokoban
// ledger client.
//
// The config package handles:
//   - The five built-in levels, embedded in the binary
//   - Loading additional levels from a directory of JSON or YAML files
//   - Schema and rule validation of every level before it is served
//   - Process settings read from the environment
//
// Level Format:
//
// A level file carries an id, a name, an optional description and difficulty,
// a move budget (max_moves) and layout rows in XSB notation:
//
//	#  wall            .  goal
//	$  box             *  box on goal
//	@  player          +  player on goal
//	-  floor (space and _ also accepted)
//
// Files in the level directory override built-in levels with the same id.
// Invalid files are logged and skipped.
//
// Usage:
//
//	manager, err := config.NewManager("levels")
//	if err != nil {
//		log.Fatal().Err(err).Msg("level catalog")
//	}
//
//	level, err := manager.LoadLevel(1)
//	levels, err := manager.ListLevels()
//
//	settings, err := config.LoadSettings()
package config
