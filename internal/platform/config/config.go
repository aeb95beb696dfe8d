// Package config loads server configuration from an optional YAML file and
// CRADLE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	platformstrings "cradle/pkg/platform/strings"
)

const envPrefix = "CRADLE_"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

type Config struct {
	Server     Server     `koanf:"server"`
	Store      Store      `koanf:"store"`
	Redis      Redis      `koanf:"redis"`
	Kafka      Kafka      `koanf:"kafka"`
	UnitOfWork UnitOfWork `koanf:"unitofwork"`
	Log        Log        `koanf:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type Store struct {
	Backend     string `koanf:"backend"`
	MongoURI    string `koanf:"mongo_uri"`
	MongoDB     string `koanf:"mongo_db"`
	PostgresDSN string `koanf:"postgres_dsn"`
}

// Redis is optional; an empty URL disables the distributed transition lock.
type Redis struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Kafka is optional; no brokers means lifecycle events are dropped.
type Kafka struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type UnitOfWork struct {
	CascadeConcurrency int `koanf:"cascade_concurrency"`
	// SerializeTransitions guards the transition check with a lock. Off by
	// default, which leaves concurrent inserts for one timeline racing.
	SerializeTransitions bool          `koanf:"serialize_transitions"`
	LockTTL              time.Duration `koanf:"lock_ttl"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads path (when non-empty) and then applies environment overrides.
//
//	CRADLE_STORE_BACKEND        -> store.backend
//	CRADLE_UNITOFWORK_LOCK_TTL  -> unitofwork.lock_ttl
//	CRADLE_KAFKA_BROKERS        -> kafka.brokers (comma separated)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CRADLE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
	}
	if cfg.Store.MongoDB == "" {
		cfg.Store.MongoDB = "cradle"
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	// A list set from one environment variable arrives as a single element.
	cfg.Kafka.Brokers = platformstrings.SplitAndDedupe(cfg.Kafka.Brokers, ",")
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "cradle.records"
	}
	if cfg.UnitOfWork.CascadeConcurrency == 0 {
		cfg.UnitOfWork.CascadeConcurrency = 4
	}
	if cfg.UnitOfWork.LockTTL == 0 {
		cfg.UnitOfWork.LockTTL = 5 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store.mongo_uri is required for the mongo backend")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.UnitOfWork.CascadeConcurrency < 1 {
		return fmt.Errorf("unitofwork.cascade_concurrency must be positive")
	}
	return nil
}
