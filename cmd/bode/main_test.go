package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/report"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { monitoring.SetVerbose(false) })

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanCommand(t *testing.T) {
	out, err := execute(t, "plan", "--start", "100", "--end", "1000", "--steps", "3", "--spacing", "lin")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"INDEX", "FREQ_HZ"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0", "100"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1", "550"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"2", "1000"}, strings.Fields(lines[3]))
}

func TestPlanCommand_InvalidInput(t *testing.T) {
	_, err := execute(t, "plan", "--start", "1000", "--end", "100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "end frequency")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "bode "), out)
}

func TestSweepCommand_Dev(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, "sweep", "--dev", "--verbose",
		"--start", "10", "--end", "100000", "--steps", "5",
		"--out", root, "--listen", "127.0.0.1:0")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "5 points, 0 trigger errors, 0 low amplitude, 0 anomalies", lines[0])

	dir := lines[1]
	assert.Equal(t, root, filepath.Dir(dir))
	for _, name := range []string{report.CSVFile, report.ResultJSON, report.AmplitudePNG, report.PhasePNG, report.HTMLFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotZero(t, info.Size(), name)
	}
}

func TestSweepCommand_RejectsInputBeforeOpening(t *testing.T) {
	root := t.TempDir()
	// The scope address is unreachable; validation must fail first.
	_, err := execute(t, "sweep", "--steps", "1", "--scope", "tcp://127.0.0.1:9",
		"--generator", "/dev/does-not-exist", "--out", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSweepCommand_RequiresInstruments(t *testing.T) {
	_, err := execute(t, "sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--scope and --generator are required")
}

func TestSweepCommand_BadConfig(t *testing.T) {
	_, err := execute(t, "sweep", "--dev", "--config", filepath.Join(t.TempDir(), "tuning.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extension")
}
