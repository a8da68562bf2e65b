package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/health"
	"custodywatch/internal/platform/config"
	"custodywatch/internal/snapshot"
	"custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/audit/store/memory"
	"custodywatch/pkg/testutil"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Simulation.Seed = 7
	cfg.Simulation.TickInterval = time.Minute
	return cfg
}

func TestBuild_RunsTicks(t *testing.T) {
	ctx := context.Background()
	core, err := Build(ctx, testConfig(), Deps{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	for range 50 {
		_, err := core.Service.Tick(ctx)
		require.NoError(t, err)
	}

	report := core.Service.VerifyChain()
	assert.True(t, report.Intact)
	assert.Equal(t, core.Ledger.Len(), report.Checked)
	assert.NotZero(t, report.Checked)

	tail, ok := core.Ledger.Tail()
	require.True(t, ok)
	assert.False(t, tail.Timestamp.After(core.Clock.Now()))
}

func TestBuild_SparseJurisdictionHasNoRoster(t *testing.T) {
	core, err := Build(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)

	_, ok := core.Roster.Pick("WY-01", 1)
	assert.False(t, ok)
	_, ok = core.Roster.Pick("TX-01", 1)
	assert.True(t, ok)
}

func TestBuild_UnknownSparseJurisdiction(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.SparseJurisdictions = []string{"ZZ-99"}
	_, err := Build(context.Background(), cfg, Deps{})
	require.ErrorContains(t, err, "ZZ-99")
}

func TestBuild_ResumesPersistedChain(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	cfg := testConfig()

	var (
		firstEvents []changeevent.ChangeEvent
		firstHealth []health.CountyHealth
	)
	testutil.Given(t, "a first process that persisted some ticks", func(t *testing.T) {
		first, err := Build(ctx, cfg, Deps{Store: store})
		require.NoError(t, err)
		for range 150 {
			_, err := first.Service.Tick(ctx)
			require.NoError(t, err)
		}
		firstEvents = first.Service.Events()
		firstHealth = first.Service.Health()
		require.NotEmpty(t, firstEvents)
	})

	persisted, err := store.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, persisted)
	last := persisted[len(persisted)-1]

	testutil.When(t, "a second process builds over the same store", func(t *testing.T) {
		second, err := Build(ctx, cfg, Deps{Store: store})
		require.NoError(t, err)
		assert.Equal(t, len(persisted), second.Ledger.Len())

		testutil.Then(t, "the pipeline state is replayed from the chain", func(t *testing.T) {
			restored := second.Service.Events()
			require.Len(t, restored, len(firstEvents))
			for i, want := range firstEvents {
				assert.Equal(t, want.ID, restored[i].ID)
				assert.Equal(t, want.Status, restored[i].Status)
			}
			gotHealth := second.Service.Health()
			require.Len(t, gotHealth, len(firstHealth))
			for i, want := range firstHealth {
				assert.Equal(t, want.Status, gotHealth[i].Status, want.JurisdictionID)
				assert.Equal(t, want.ConsecutiveFailures, gotHealth[i].ConsecutiveFailures, want.JurisdictionID)
			}
		})

		// A tick on a county without a roster appends nothing.
		var first audit.Entry
		for range 20 {
			res, err := second.Service.Tick(ctx)
			require.NoError(t, err)
			assert.True(t, res.At.After(last.Timestamp))
			if len(res.Entries) > 0 {
				first = res.Entries[0]
				break
			}
		}

		testutil.Then(t, "the chain continues after the old tail", func(t *testing.T) {
			assert.Equal(t, last.Sequence+1, first.Sequence)
			assert.Equal(t, last.EntryHash, first.PrevEntryHash)
			assert.True(t, first.Timestamp.After(last.Timestamp))
			assert.True(t, second.Service.VerifyChain().Intact)
		})

		for range 150 {
			_, err := second.Service.Tick(ctx)
			require.NoError(t, err)
		}

		testutil.Then(t, "no snapshot or event ID repeats across the two runs", func(t *testing.T) {
			snapshots := map[string]uint64{}
			events := map[string]uint64{}
			for _, e := range second.Ledger.Entries() {
				var p struct {
					SnapshotID string `json:"snapshot_id"`
					EventID    string `json:"event_id"`
					From       string `json:"from"`
				}
				require.NoError(t, json.Unmarshal(e.Payload, &p))

				seen := snapshots
				id := p.SnapshotID
				switch {
				case e.ActionType == audit.ActionSnapshotTaken:
				case e.ActionType == audit.ActionEventEmitted,
					e.ActionType == audit.ActionEventRejected && p.From == "":
					seen, id = events, p.EventID
				default:
					continue
				}
				if prev, dup := seen[id]; dup {
					t.Errorf("%s %s recorded at sequence %d and again at %d", e.ActionType, id, prev, e.Sequence)
				}
				seen[id] = e.Sequence
			}
			assert.Greater(t, len(events), len(firstEvents), "the second run emitted events too")
			assert.True(t, second.Service.VerifyChain().Intact)
		})
	})
}

func TestBuild_RefusesTamperedStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	first, err := Build(ctx, testConfig(), Deps{Store: store})
	require.NoError(t, err)
	for range 5 {
		_, err := first.Service.Tick(ctx)
		require.NoError(t, err)
	}
	require.True(t, store.Tamper(2, func(e *audit.Entry) { e.ActorID = "mallory" }))

	_, err = Build(ctx, testConfig(), Deps{Store: store})
	require.ErrorIs(t, err, audit.ErrBrokenChain)
}

func TestScoringPolicy(t *testing.T) {
	c := config.Default().Scoring
	c.FieldWeights = map[string]float64{"status": 0.5}
	c.HealthFactors = map[string]float64{"offline": 0.2}
	c.RejectBelow = 0.6

	p, err := ScoringPolicy(c)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.FieldWeights[snapshot.FieldStatus])
	assert.Equal(t, 0.85, p.FieldWeights[snapshot.FieldCharge], "unlisted weights keep their default")
	assert.Equal(t, 0.2, p.HealthFactors[health.StatusOffline])
	assert.Equal(t, 0.6, p.RejectBelow)

	c.HealthFactors = map[string]float64{"sleepy": 0.5}
	_, err = ScoringPolicy(c)
	require.ErrorContains(t, err, "sleepy")

	c.HealthFactors = nil
	c.FieldWeights = map[string]float64{"status": 1.5}
	_, err = ScoringPolicy(c)
	require.Error(t, err)
}
