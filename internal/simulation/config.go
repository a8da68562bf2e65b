package simulation

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"custodywatch/internal/snapshot"
)

// DefaultEpoch is the simulated instant the clock starts from when none is
// configured.
var DefaultEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Config holds the orchestrator settings.
type Config struct {
	// TickInterval is both the wall-clock cadence and the simulated time
	// step between ticks.
	TickInterval time.Duration
	// TickJitter spreads the wall-clock cadence by up to this much either
	// way. It never affects simulated time or event content.
	TickJitter time.Duration
	Seed       uint64
	Epoch      time.Time
	// ActorID is recorded on entries the simulator appends itself.
	ActorID string
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		TickInterval: 2 * time.Second,
		Seed:         1,
		Epoch:        DefaultEpoch,
		ActorID:      "simulator",
	}
}

// Validate checks the config for impossible values.
func (c Config) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if c.TickJitter < 0 || c.TickJitter >= c.TickInterval {
		errs = append(errs, fmt.Errorf("tick jitter must be within [0, tick interval), got %s", c.TickJitter))
	}
	if c.ActorID == "" {
		errs = append(errs, errors.New("actor id is required"))
	}
	return errors.Join(errs...)
}

// Stream labels keep independent PRNG streams derived from one seed apart.
const (
	streamObservations = "observations"
	streamPicks        = "picks"
	streamCadence      = "cadence"
)

// SeedStream derives a ChaCha8 stream for label from seed. The same pair
// always yields the same stream; different labels yield unrelated streams.
func SeedStream(seed uint64, label string) *rand.ChaCha8 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seed)
	h := sha256.New()
	h.Write([]byte(label))
	h.Write([]byte{0})
	h.Write(buf[:])
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return rand.NewChaCha8(key)
}

// NewSynthesizer builds a snapshot synthesizer whose decisions and snapshot
// IDs both come from the observation stream of seed.
func NewSynthesizer(seed uint64, opts ...snapshot.Option) *snapshot.Synthesizer {
	stream := SeedStream(seed, streamObservations)
	return snapshot.NewSynthesizer(rand.New(stream), stream, opts...)
}

// ResumeSeed derives the seed of a run that continues a persisted chain from
// the configured seed and the chain's tail hash. The same chain and seed
// always resume the same way, and the resumed streams never replay the run
// that wrote the chain.
func ResumeSeed(seed uint64, tailHash string) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seed)
	h := sha256.New()
	h.Write([]byte("resume"))
	h.Write([]byte{0})
	h.Write(buf[:])
	h.Write([]byte(tailHash))
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}
