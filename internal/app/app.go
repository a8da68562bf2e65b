// Package app assembles the simulator from configuration. Both the server
// and the CLI build their pipeline here so a seed means the same thing in
// either.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/health"
	"custodywatch/internal/jurisdiction"
	"custodywatch/internal/platform/config"
	"custodywatch/internal/roster"
	"custodywatch/internal/simulation"
	simmetrics "custodywatch/internal/simulation/metrics"
	"custodywatch/internal/snapshot"
	"custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/audit/worker"
)

const writerDepth = 64

// Deps are the process-level collaborators of a Core.
type Deps struct {
	// Store persists the chain. Nil keeps it in memory only.
	Store  audit.Store
	Logger *slog.Logger
	// Registry receives ledger and simulation metrics. Nil disables them.
	Registry prometheus.Registerer
	// Serialize routes every append through a worker.Writer, which the
	// caller must run.
	Serialize bool
}

// Core is an assembled, stopped simulator.
type Core struct {
	Directory *jurisdiction.Directory
	Roster    *roster.Roster
	Clock     *simulation.Clock
	Ledger    *audit.Ledger
	// Writer is set when Deps.Serialize was requested.
	Writer  *worker.Writer
	Service *simulation.Service
}

// Build wires the simulator described by cfg. A chain already persisted in
// deps.Store is loaded and verified first. The clock then resumes after its
// tail, the seed streams are re-derived from the tail hash and the pipeline
// state is replayed from its entries.
func Build(ctx context.Context, cfg config.Config, deps Deps) (*Core, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dir := jurisdiction.Default()
	for _, id := range cfg.Simulation.SparseJurisdictions {
		if _, ok := dir.Get(id); !ok {
			return nil, fmt.Errorf("sparse jurisdiction %q is not in the directory", id)
		}
	}
	policy, err := ScoringPolicy(cfg.Scoring)
	if err != nil {
		return nil, err
	}

	simCfg := SimulationConfig(cfg.Simulation)
	clock := simulation.NewClock(simCfg.Epoch, simCfg.TickInterval)

	var auditMetrics *audit.Metrics
	var simMetrics *simmetrics.Metrics
	if deps.Registry != nil {
		auditMetrics = audit.NewMetrics(deps.Registry)
		simMetrics = simmetrics.New(deps.Registry)
	}

	ledgerOpts := []audit.Option{
		audit.WithClock(clock.Now),
		audit.WithLogger(logger),
		audit.WithMetrics(auditMetrics),
	}
	if deps.Store != nil {
		ledgerOpts = append(ledgerOpts, audit.WithStore(deps.Store))
	}
	ledger := audit.New(ledgerOpts...)
	resumed := false
	if deps.Store != nil {
		if err := ledger.Load(ctx, deps.Store); err != nil {
			return nil, err
		}
		if tail, ok := ledger.Tail(); ok {
			resumed = true
			clock.Resume(tail.Timestamp)
			simCfg.Seed = simulation.ResumeSeed(cfg.Simulation.Seed, tail.EntryHash)
			logger.InfoContext(ctx, "audit chain loaded",
				"entries", tail.Sequence,
				"resume_at", tail.Timestamp,
				"resume_seed", simCfg.Seed,
			)
		}
	}

	core := &Core{
		Directory: dir,
		Roster:    roster.Generate(dir.IDs(), cfg.Simulation.RosterSize, cfg.Simulation.SparseJurisdictions...),
		Clock:     clock,
		Ledger:    ledger,
	}

	var appender simulation.Appender = ledger
	if deps.Serialize {
		core.Writer = worker.NewWriter(ledger, writerDepth)
		appender = core.Writer
	}

	synth := simulation.NewSynthesizer(simCfg.Seed, SynthesizerOptions(cfg.Simulation)...)
	core.Service, err = simulation.New(simCfg, dir, core.Roster, synth, appender, ledger,
		simulation.WithLogger(logger),
		simulation.WithMetrics(simMetrics),
		simulation.WithScorer(changeevent.NewScorer(policy)),
		simulation.WithHealthPolicy(health.Policy{OfflineAfter: cfg.Health.OfflineAfter}),
		simulation.WithClock(clock),
	)
	if err != nil {
		return nil, err
	}
	if resumed {
		if err := core.Service.Restore(ledger.Entries()); err != nil {
			return nil, fmt.Errorf("restore simulation state: %w", err)
		}
	}
	return core, nil
}

// SimulationConfig maps the config section onto the orchestrator settings.
func SimulationConfig(c config.Simulation) simulation.Config {
	return simulation.Config{
		TickInterval: c.TickInterval,
		TickJitter:   c.TickJitter,
		Seed:         c.Seed,
		Epoch:        c.Epoch,
		ActorID:      c.ActorID,
	}
}

// SynthesizerOptions maps the config section onto synthesizer options.
func SynthesizerOptions(c config.Simulation) []snapshot.Option {
	opts := []snapshot.Option{
		snapshot.WithChangeProbability(c.ChangeProbability),
		snapshot.WithFailureProbability(c.FailureProbability),
	}
	for id, p := range c.SourceFailure {
		opts = append(opts, snapshot.WithSourceFailure(id, p))
	}
	return opts
}

// ScoringPolicy overlays the configured scoring values on the default
// policy. Map entries replace individual weights; absent ones keep theirs.
func ScoringPolicy(c config.Scoring) (changeevent.Policy, error) {
	p := changeevent.DefaultPolicy()
	for field, w := range c.FieldWeights {
		p.FieldWeights[snapshot.FieldName(field)] = w
	}
	for status, f := range c.HealthFactors {
		st := health.Status(status)
		switch st {
		case health.StatusOnline, health.StatusDegraded, health.StatusOffline:
		default:
			return changeevent.Policy{}, fmt.Errorf("scoring.health_factors: unknown status %q", status)
		}
		p.HealthFactors[st] = f
	}
	p.DefaultWeight = c.DefaultWeight
	p.MultiFieldBonus = c.MultiFieldBonus
	p.JitterAmplitude = c.JitterAmplitude
	p.RejectBelow = c.RejectBelow
	if err := p.Validate(); err != nil {
		return changeevent.Policy{}, fmt.Errorf("scoring policy: %w", err)
	}
	return p, nil
}
