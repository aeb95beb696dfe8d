package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 4, cfg.UnitOfWork.CascadeConcurrency)
	assert.False(t, cfg.UnitOfWork.SerializeTransitions)
	assert.Equal(t, "cradle.records", cfg.Kafka.Topic)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cradle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: mongo
  mongo_uri: mongodb://localhost:27017
unitofwork:
  cascade_concurrency: 2
  lock_ttl: 2s
`), 0o600))

	t.Setenv("CRADLE_UNITOFWORK_SERIALIZE_TRANSITIONS", "true")
	t.Setenv("CRADLE_SERVER_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.Store.Backend)
	assert.Equal(t, 2, cfg.UnitOfWork.CascadeConcurrency)
	assert.Equal(t, 2*time.Second, cfg.UnitOfWork.LockTTL)
	assert.True(t, cfg.UnitOfWork.SerializeTransitions)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		store   Store
		wantErr bool
	}{
		{"memory", Store{Backend: BackendMemory}, false},
		{"mongo without uri", Store{Backend: BackendMongo}, true},
		{"postgres with dsn", Store{Backend: BackendPostgres, PostgresDSN: "postgres://x"}, false},
		{"unknown backend", Store{Backend: "sqlite"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Store: tt.store, UnitOfWork: UnitOfWork{CascadeConcurrency: 1}}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "store.postgres_dsn", envKey("CRADLE_STORE_POSTGRES_DSN"))
	assert.Equal(t, "log.level", envKey("CRADLE_LOG_LEVEL"))
}

func TestLoadKafkaBrokersFromEnv(t *testing.T) {
	t.Setenv("CRADLE_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}
