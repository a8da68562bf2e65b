// Package config loads process configuration: built-in defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "custodywatch/pkg/platform/strings"
)

// Storage drivers for the audit ledger.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config is the full process configuration.
type Config struct {
	Server     Server     `yaml:"server"`
	Simulation Simulation `yaml:"simulation"`
	Scoring    Scoring    `yaml:"scoring"`
	Health     Health     `yaml:"health"`
	Storage    Storage    `yaml:"storage"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	Log        Log        `yaml:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string `yaml:"addr"`
}

// Simulation drives the clock and the synthetic sources.
type Simulation struct {
	TickInterval        time.Duration      `yaml:"tick_interval"`
	TickJitter          time.Duration      `yaml:"tick_jitter"`
	Seed                uint64             `yaml:"seed"`
	Epoch               time.Time          `yaml:"epoch"`
	ChangeProbability   float64            `yaml:"change_probability"`
	FailureProbability  float64            `yaml:"failure_probability"`
	SourceFailure       map[string]float64 `yaml:"source_failure_overrides"`
	RosterSize          int                `yaml:"roster_size"`
	SparseJurisdictions []string           `yaml:"sparse_jurisdictions"` // covered, but no roster
	ActorID             string             `yaml:"actor_id"`
}

// Scoring mirrors the confidence policy. Empty maps keep the defaults.
type Scoring struct {
	FieldWeights    map[string]float64 `yaml:"field_weights"`
	DefaultWeight   float64            `yaml:"default_weight"`
	MultiFieldBonus float64            `yaml:"multi_field_bonus"`
	HealthFactors   map[string]float64 `yaml:"health_factors"`
	JitterAmplitude float64            `yaml:"jitter_amplitude"`
	RejectBelow     float64            `yaml:"reject_below"`
}

// Health holds the county health thresholds.
type Health struct {
	OfflineAfter int `yaml:"offline_after"`
}

// Storage selects where the audit chain is persisted.
type Storage struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	BadgerPath  string `yaml:"badger_path"`
}

// Redis configures the optional county health mirror. Empty URL disables it.
type Redis struct {
	URL          string        `yaml:"url"`
	KeyPrefix    string        `yaml:"key_prefix"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Kafka configures the optional change-event stream. No brokers disables it.
type Kafka struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080"},
		Simulation: Simulation{
			TickInterval:        2 * time.Second,
			Seed:                1,
			Epoch:               time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			ChangeProbability:   0.3,
			FailureProbability:  0.05,
			RosterSize:          8,
			SparseJurisdictions: []string{"WY-01"},
			ActorID:             "system",
		},
		Scoring: Scoring{
			DefaultWeight:   0.40,
			MultiFieldBonus: 0.03,
			JitterAmplitude: 0.04,
			RejectBelow:     0.50,
		},
		Health:  Health{OfflineAfter: 3},
		Storage: Storage{Driver: DriverMemory},
		Redis: Redis{
			KeyPrefix:    "custodywatch:",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Topic:             "custodywatch.change-events",
			Partitions:        3,
			ReplicationFactor: 1,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("CUSTODYWATCH_ADDR", &c.Server.Addr)
	str("CUSTODYWATCH_ACTOR_ID", &c.Simulation.ActorID)
	str("CUSTODYWATCH_STORAGE_DRIVER", &c.Storage.Driver)
	str("CUSTODYWATCH_BADGER_PATH", &c.Storage.BadgerPath)
	str("DATABASE_URL", &c.Storage.DatabaseURL)
	str("REDIS_URL", &c.Redis.URL)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = pstrings.DedupeAndTrim(strings.Split(v, ","))
	}
	if v, ok := lookup("CUSTODYWATCH_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CUSTODYWATCH_SEED: %w", err)
		}
		c.Simulation.Seed = seed
	}
	if v, ok := lookup("CUSTODYWATCH_TICK_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CUSTODYWATCH_TICK_INTERVAL: %w", err)
		}
		c.Simulation.TickInterval = d
	}
	return nil
}

// Validate rejects configurations the simulator cannot run with.
func (c Config) Validate() error {
	var errs []error
	probability := func(name string, p float64) {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", name, p))
		}
	}

	if c.Simulation.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("simulation.tick_interval must be positive, got %s", c.Simulation.TickInterval))
	}
	if c.Simulation.TickJitter < 0 {
		errs = append(errs, errors.New("simulation.tick_jitter must not be negative"))
	}
	if c.Simulation.RosterSize < 1 {
		errs = append(errs, errors.New("simulation.roster_size must be at least 1"))
	}
	if c.Simulation.ActorID == "" {
		errs = append(errs, errors.New("simulation.actor_id is required"))
	}
	probability("simulation.change_probability", c.Simulation.ChangeProbability)
	probability("simulation.failure_probability", c.Simulation.FailureProbability)
	for id, p := range c.Simulation.SourceFailure {
		probability("simulation.source_failure_overrides."+id, p)
	}
	probability("scoring.reject_below", c.Scoring.RejectBelow)
	probability("scoring.jitter_amplitude", c.Scoring.JitterAmplitude)
	if c.Health.OfflineAfter < 1 {
		errs = append(errs, errors.New("health.offline_after must be at least 1"))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for the postgres driver"))
		}
	case DriverBadger:
		if c.Storage.BadgerPath == "" {
			errs = append(errs, errors.New("storage.badger_path is required for the badger driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}
