package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodywatch/pkg/platform/audit"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func headLine(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "head:") {
			return line
		}
	}
	t.Fatalf("no head line in output:\n%s", out)
	return ""
}

func TestRun_ExportThenVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.json")

	out, err := execute(t, "run", "--ticks", "40", "--seed", "11", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "seed:    11")
	assert.Contains(t, out, "ticks:   40")
	assert.Contains(t, out, "chain intact")

	out, err = execute(t, "verify", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "chain intact")

	out, err = execute(t, "verify", "--file", path, "--json")
	require.NoError(t, err)
	var report audit.IntegrityReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Intact)
	assert.NotZero(t, report.Checked)
}

func TestRun_SameSeedSameHead(t *testing.T) {
	a, err := execute(t, "run", "--ticks", "60", "--seed", "3")
	require.NoError(t, err)
	b, err := execute(t, "run", "--ticks", "60", "--seed", "3")
	require.NoError(t, err)
	c, err := execute(t, "run", "--ticks", "60", "--seed", "4")
	require.NoError(t, err)

	assert.Equal(t, headLine(t, a), headLine(t, b))
	assert.NotEqual(t, headLine(t, a), headLine(t, c))
}

func TestVerify_TamperedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.json")
	_, err := execute(t, "run", "--ticks", "30", "--out", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Greater(t, len(entries), 2)
	entries[1].ActorID = "mallory"
	data, err = json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	out, err := execute(t, "verify", "--file", path)
	require.ErrorIs(t, err, errChainBroken)
	assert.Equal(t, exitChainBroken, exitCode(err))
	assert.Contains(t, out, "sequence 2")
}

func TestVerify_MemoryDriverNeedsFile(t *testing.T) {
	_, err := execute(t, "verify")
	require.ErrorContains(t, err, "--file")
}

func TestImport_RefusesMemoryDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))
	_, err := execute(t, "import", "--file", path)
	require.ErrorContains(t, err, "persistent storage driver")
}

func TestImport_BadgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	chain := filepath.Join(dir, "chain.json")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"storage:\n  driver: badger\n  badger_path: "+filepath.Join(dir, "ledger")+"\n"), 0o600))

	_, err := execute(t, "run", "--ticks", "25", "--out", chain)
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "import", "--file", chain)
	require.NoError(t, err)
	assert.Contains(t, out, "into badger")

	out, err = execute(t, "--config", cfgPath, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "chain intact")

	_, err = execute(t, "--config", cfgPath, "import", "--file", chain)
	require.ErrorContains(t, err, "already holds")
}

func TestJurisdictions(t *testing.T) {
	out, err := execute(t, "jurisdictions")
	require.NoError(t, err)
	assert.Contains(t, out, "TX-01")
	assert.Regexp(t, `WY-01\s.*none`, out)
}

func TestTail_NeedsBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	_, err := execute(t, "tail")
	require.ErrorContains(t, err, "no kafka brokers")
}
