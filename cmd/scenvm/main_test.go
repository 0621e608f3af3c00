package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testdata = filepath.Join("..", "..", "pkg", "scenario", "testdata")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--no-color"))
	err := root.Execute()
	return out.String(), err
}

func TestRunTraceAndState(t *testing.T) {
	dataDir := t.TempDir()
	claim := filepath.Join(testdata, "crowdfunding-claim.scen.json")

	out, err := execute(t, "run", claim, "--data-dir", dataDir, "--trace", "--save-state", "-j", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "1/1")
	assert.Contains(t, out, "world saved")

	out, err = execute(t, "trace", "list", "--data-dir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, claim)

	out, err = execute(t, "trace", "stats", "--data-dir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "runs recorded")

	out, err = execute(t, "state", "show", "--data-dir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "sc:crowdfunding")
	assert.Contains(t, out, "address:alice")
	assert.Contains(t, out, "state hash:")

	out, err = execute(t, "state", "dump", "--data-dir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, `"step": "setState"`)
}

func TestRunDirectory(t *testing.T) {
	out, err := execute(t, "run", testdata, "--data-dir", t.TempDir())
	require.NoError(t, err, out)
	// crowdfunding-init.steps.json is only reached through externalSteps.
	assert.NotContains(t, out, "crowdfunding-init.steps.json")
	assert.Contains(t, out, "handle-isolation.scen.json")
}

const dumpingScenario = `{
    "name": "dumping",
    "steps": [
        {"step": "setState", "accounts": {"address:a": {"balance": "5"}}},
        {"step": "dumpState"},
        {"step": "checkState", "accounts": {"address:a": {"balance": "6"}}}
    ]
}`

func TestRunFailureAndSnapshots(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "dumping.scen.json")
	require.NoError(t, os.WriteFile(path, []byte(dumpingScenario), 0o644))

	out, err := execute(t, "run", path, "--data-dir", dataDir, "--dump")
	assert.ErrorIs(t, err, errScenariosFailed)
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "balance: want 6, have 5")

	out, err = execute(t, "snapshot", "list", "--data-dir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "state-1-")

	out, err = execute(t, "snapshot", "show", "--data-dir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "dumping")

	out, err = execute(t, "snapshot", "show", "--scenario", "--data-dir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "address:a")
}

func TestStateImportAndMissingWorld(t *testing.T) {
	dataDir := t.TempDir()

	_, err := execute(t, "state", "show", "--data-dir", dataDir)
	assert.ErrorIs(t, err, errNoSavedWorld)

	path := filepath.Join(t.TempDir(), "world.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"steps": [{"step": "setState", "accounts": {"address:z": {"nonce": "4"}}}]}`), 0o644))
	out, err := execute(t, "state", "import", path, "--data-dir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "imported 1 accounts")

	out, err = execute(t, "state", "show", "--data-dir", dataDir)
	require.NoError(t, err, out)
	lines := strings.Split(out, "\n")
	var row string
	for _, l := range lines {
		if strings.Contains(l, "address:z") {
			row = l
		}
	}
	assert.Contains(t, row, "4")
}

func TestCollectScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.scen.json", "a.scen.json", "notes.json", filepath.Join("sub", "c.scen.json")} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
	}

	files, err := collectScenarios([]string{dir, filepath.Join(dir, "notes.json"), filepath.Join(dir, "a.scen.json")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.scen.json"),
		filepath.Join(dir, "b.scen.json"),
		filepath.Join(dir, "notes.json"),
		filepath.Join(dir, "sub", "c.scen.json"),
	}, files)

	_, err = collectScenarios([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
