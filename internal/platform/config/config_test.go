package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custodywatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
simulation:
  tick_interval: 250ms
  seed: 42
  source_failure_overrides:
    FL-02: 1
scoring:
  field_weights:
    address: 0.1
  reject_below: 0.6
storage:
  driver: badger
  badger_path: /tmp/custodywatch
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.TickInterval)
	assert.Equal(t, uint64(42), cfg.Simulation.Seed)
	assert.Equal(t, 1.0, cfg.Simulation.SourceFailure["FL-02"])
	assert.Equal(t, 0.1, cfg.Scoring.FieldWeights["address"])
	assert.Equal(t, 0.6, cfg.Scoring.RejectBelow)
	assert.Equal(t, DriverBadger, cfg.Storage.Driver)

	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0.3, cfg.Simulation.ChangeProbability)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custodywatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  tick_intervall: 1s\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config file")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"CUSTODYWATCH_ADDR":          ":9090",
		"CUSTODYWATCH_SEED":          "7",
		"CUSTODYWATCH_TICK_INTERVAL": "5s",
		"DATABASE_URL":               "postgres://localhost/cw",
		"KAFKA_BROKERS":              " a:9092, b:9092 ,a:9092,,",
		"LOG_LEVEL":                  "",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, uint64(7), cfg.Simulation.Seed)
	assert.Equal(t, 5*time.Second, cfg.Simulation.TickInterval)
	assert.Equal(t, "postgres://localhost/cw", cfg.Storage.DatabaseURL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "info", cfg.Log.Level, "empty values do not override")

	t.Run("invalid seed", func(t *testing.T) {
		cfg := Default()
		assert.ErrorContains(t, cfg.ApplyEnv(env(map[string]string{"CUSTODYWATCH_SEED": "-1"})), "CUSTODYWATCH_SEED")
	})

	t.Run("invalid interval", func(t *testing.T) {
		cfg := Default()
		assert.ErrorContains(t, cfg.ApplyEnv(env(map[string]string{"CUSTODYWATCH_TICK_INTERVAL": "soon"})), "CUSTODYWATCH_TICK_INTERVAL")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero interval", func(c *Config) { c.Simulation.TickInterval = 0 }, "tick_interval"},
		{"negative jitter", func(c *Config) { c.Simulation.TickJitter = -time.Second }, "tick_jitter"},
		{"probability above one", func(c *Config) { c.Simulation.ChangeProbability = 1.2 }, "change_probability"},
		{"source override", func(c *Config) { c.Simulation.SourceFailure = map[string]float64{"FL-02": -1} }, "FL-02"},
		{"offline after", func(c *Config) { c.Health.OfflineAfter = 0 }, "offline_after"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, `unknown storage.driver "sqlite"`},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }, "database_url"},
		{"badger without path", func(c *Config) { c.Storage.Driver = DriverBadger }, "badger_path"},
		{"kafka without topic", func(c *Config) { c.Kafka.Brokers = []string{"a:9092"}; c.Kafka.Topic = "" }, "kafka.topic"},
		{"no actor", func(c *Config) { c.Simulation.ActorID = "" }, "actor_id"},
		{"empty roster", func(c *Config) { c.Simulation.RosterSize = 0 }, "roster_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
