package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains runtime configuration required by the service.
type Config struct {
	DBURL       string `env:"DB_URL,required,notEmpty"`
	APIKeysRaw  string `env:"API_KEYS"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text"`
	RedisURL    string `env:"REDIS_URL"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"trigger:"`
	ReplicaID   string `env:"REPLICA_ID" envDefault:"local"`

	SessionTimeout  time.Duration `env:"SESSION_TIMEOUT" envDefault:"30s"`
	ClosedRetention time.Duration `env:"CLOSED_RETENTION" envDefault:"5m"`
	TombstoneTTL    time.Duration `env:"TOMBSTONE_TTL" envDefault:"10m"`

	APIKeys map[string]string // apiKey -> tenantID, parsed from APIKeysRaw
}

// Load reads configuration from environment variables.
// API_KEYS format: "tenant1:key1,tenant2:key2"
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	keys, err := parseAPIKeys(cfg.APIKeysRaw)
	if err != nil {
		return Config{}, err
	}
	// Local dev fallback so the service runs out-of-the-box.
	if len(keys) == 0 {
		keys["tenant-key-123"] = "tenant1"
	}
	cfg.APIKeys = keys

	if cfg.SessionTimeout < 0 {
		return Config{}, errors.New("SESSION_TIMEOUT must not be negative")
	}
	if cfg.ClosedRetention <= 0 {
		return Config{}, errors.New("CLOSED_RETENTION must be positive")
	}
	if cfg.TombstoneTTL < cfg.ClosedRetention {
		return Config{}, errors.New("TOMBSTONE_TTL must not be shorter than CLOSED_RETENTION")
	}
	return cfg, nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tenant, key, ok := strings.Cut(p, ":")
		tenant = strings.TrimSpace(tenant)
		key = strings.TrimSpace(key)
		if !ok || tenant == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "tenant:key,tenant:key"`)
		}
		keys[key] = tenant
	}
	return keys, nil
}
