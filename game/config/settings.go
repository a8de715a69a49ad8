package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Chain backends
const (
	ChainSim = "sim"
	ChainRPC = "rpc"
)

// Session stores
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Settings holds process configuration read from the environment.
// Command-line flags in main override the network fields.
type Settings struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Host     string `env:"HTTP_HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"8080"`

	LevelsDir    string        `env:"LEVELS_DIR"`
	SessionStore string        `env:"SESSION_STORE" envDefault:"file"`
	SessionsDir  string        `env:"SESSIONS_DIR" envDefault:"sessions"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"sessions.db"`
	JournalDir   string        `env:"JOURNAL_DIR"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	ChainBackend    string        `env:"CHAIN_BACKEND" envDefault:"sim"`
	RPCURL          string        `env:"RPC_URL"`
	RelayURL        string        `env:"RELAY_URL"`
	PackageID       string        `env:"PACKAGE_ID"`
	EntityPackageID string        `env:"ENTITY_PACKAGE_ID"` // defaults to PACKAGE_ID
	GameID          string        `env:"GAME_ID"`
	WorldID         string        `env:"WORLD_ID"`
	GridID          string        `env:"GRID_ID"`
	PollInterval    time.Duration `env:"FINALITY_POLL_INTERVAL" envDefault:"500ms"`
	RPCTimeout      time.Duration `env:"RPC_TIMEOUT" envDefault:"10s"`

	NgrokEnabled   bool   `env:"NGROK_ENABLED"`
	NgrokAuthToken string `env:"NGROK_AUTHTOKEN"`
	NgrokDomain    string `env:"NGROK_DOMAIN"`
}

// LoadSettings parses Settings from the environment and validates them
func LoadSettings() (Settings, error) {
	var settings Settings
	if err := env.Parse(&settings); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Validate checks enumerated fields and the settings each backend requires
func (s Settings) Validate() error {
	switch s.SessionStore {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("settings: SESSION_STORE must be %q or %q, got %q", StoreFile, StoreSQLite, s.SessionStore)
	}

	switch s.ChainBackend {
	case ChainSim:
	case ChainRPC:
		if s.RPCURL == "" || s.RelayURL == "" {
			return fmt.Errorf("settings: CHAIN_BACKEND=rpc requires RPC_URL and RELAY_URL")
		}
		if s.GridID == "" || s.GameID == "" || s.WorldID == "" || s.PackageID == "" {
			return fmt.Errorf("settings: CHAIN_BACKEND=rpc requires PACKAGE_ID, GAME_ID, WORLD_ID and GRID_ID")
		}
	default:
		return fmt.Errorf("settings: CHAIN_BACKEND must be %q or %q, got %q", ChainSim, ChainRPC, s.ChainBackend)
	}

	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("settings: PORT out of range: %d", s.Port)
	}
	return nil
}
