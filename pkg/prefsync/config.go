package prefsync

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/store/surreal"
)

// Config holds everything the daemon needs: the remote store connection,
// the mirror location, the HTTP listen address and the optional device
// owner for background reconciliation.
type Config struct {
	// SurrealDB connection for the remote preference store.
	SurrealURL  string `yaml:"surreal_url"`
	SurrealNS   string `yaml:"surreal_ns"`
	SurrealDB   string `yaml:"surreal_db"`
	SurrealUser string `yaml:"surreal_user"`
	SurrealPass string `yaml:"surreal_pass"`

	// MirrorPath is the SQLite file backing the local mirror.
	MirrorPath string `yaml:"mirror_path"`

	// ListenAddr is the HTTP API bind address.
	ListenAddr string `yaml:"listen_addr"`

	// Owner is the device owner for single-user deployments. When set it
	// is the identity fallback for requests without an X-Owner-ID header
	// and enables background reconciliation at startup and every
	// ReconcileEvery. When empty, identity comes from the header alone
	// and reconciliation runs only on demand.
	Owner          string        `yaml:"owner"`
	ReconcileEvery time.Duration `yaml:"reconcile_every"`
}

// DefaultConfig returns the configuration used when nothing else is
// provided: a local SurrealDB instance and a mirror file next to the
// working directory.
func DefaultConfig() Config {
	return Config{
		SurrealURL:     "ws://localhost:8000",
		SurrealNS:      "orgbook",
		SurrealDB:      "preferences",
		SurrealUser:    "root",
		SurrealPass:    "root",
		MirrorPath:     "prefsync-mirror.db",
		ListenAddr:     ":8080",
		ReconcileEvery: 15 * time.Minute,
	}
}

// LoadConfig builds the effective configuration in three layers:
// defaults, then the YAML file at path (skipped when path is empty), then
// environment variable overrides. Environment variables win so container
// deployments can override a baked-in config file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.SurrealURL = getEnv("PREFSYNC_SURREAL_URL", cfg.SurrealURL)
	cfg.SurrealNS = getEnv("PREFSYNC_SURREAL_NS", cfg.SurrealNS)
	cfg.SurrealDB = getEnv("PREFSYNC_SURREAL_DB", cfg.SurrealDB)
	cfg.SurrealUser = getEnv("PREFSYNC_SURREAL_USER", cfg.SurrealUser)
	cfg.SurrealPass = getEnv("PREFSYNC_SURREAL_PASS", cfg.SurrealPass)
	cfg.MirrorPath = getEnv("PREFSYNC_MIRROR_PATH", cfg.MirrorPath)
	cfg.ListenAddr = getEnv("PREFSYNC_LISTEN_ADDR", cfg.ListenAddr)
	cfg.Owner = getEnv("PREFSYNC_OWNER", cfg.Owner)
	if v := os.Getenv("PREFSYNC_RECONCILE_EVERY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse PREFSYNC_RECONCILE_EVERY: %w", err)
		}
		cfg.ReconcileEvery = d
	}

	return cfg, nil
}

func (c Config) surrealConfig() surreal.Config {
	return surreal.Config{
		URL:       c.SurrealURL,
		Namespace: c.SurrealNS,
		Database:  c.SurrealDB,
		Username:  c.SurrealUser,
		Password:  c.SurrealPass,
	}
}

func (c Config) owner() models.UserID {
	return models.UserID(c.Owner)
}

// getEnv returns the environment variable value, or defaultValue when the
// variable is unset or empty. Empty and unset are treated the same so an
// accidentally blank value in a container environment falls back to the
// default instead of clearing the setting.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
