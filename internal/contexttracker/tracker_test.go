package contexttracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codenerd/orchestrator-core/internal/events"
)

func writeUsageLine(t *testing.T, path string, input, output int64) {
	t.Helper()
	line := []byte(`{"message":{"usage":{"input_tokens":` + itoa(input) + `,"output_tokens":` + itoa(output) + `}}}` + "\n")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(line)
	require.NoError(t, err)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func TestReadGrowthCreditsSession(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "proj")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	file := filepath.Join(projectDir, "session-a.jsonl")

	tr := New(root, 200000, DefaultThresholds(), events.NewBus())
	require.NoError(t, tr.discover())
	writeUsageLine(t, file, 1000, 500)
	require.NoError(t, tr.readGrowth(file))

	accs := tr.Accumulators()
	acc, ok := accs["session-a"]
	require.True(t, ok)
	require.Equal(t, int64(1000), acc.InputTokens)
	require.Equal(t, int64(500), acc.OutputTokens)
}

func TestMalformedLineSkippedSilently(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "proj")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	file := filepath.Join(projectDir, "session-a.jsonl")

	tr := New(root, 200000, DefaultThresholds(), events.NewBus())
	require.NoError(t, tr.discover())

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	f.Close()
	writeUsageLine(t, file, 100, 50)
	require.NoError(t, tr.readGrowth(file))

	accs := tr.Accumulators()
	require.Equal(t, int64(100), accs["session-a"].InputTokens)
}

func TestRotatedFileResetsCursor(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "proj")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	file := filepath.Join(projectDir, "session-a.jsonl")

	tr := New(root, 200000, DefaultThresholds(), events.NewBus())
	require.NoError(t, tr.discover())
	writeUsageLine(t, file, 1000, 0)
	require.NoError(t, tr.readGrowth(file))
	require.Equal(t, int64(1000), tr.Accumulators()["session-a"].InputTokens)

	// Truncate and rewrite a smaller file, simulating rotation.
	require.NoError(t, os.Remove(file))
	writeUsageLine(t, file, 10, 0)
	require.NoError(t, tr.readGrowth(file))

	require.Equal(t, int64(1010), tr.Accumulators()["session-a"].InputTokens, "cursor must reset to 0 and re-read from the new, smaller file")
}

// P5: threshold idempotence — crossing the same boundary repeatedly within
// a single upward stay fires only once.
func TestThresholdFiresOnceUntilDroppingBelow(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "proj")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	file := filepath.Join(projectDir, "session-a.jsonl")

	tr := New(root, 1000, Thresholds{Warning: 50, Critical: 65, Emergency: 75}, events.NewBus())
	require.NoError(t, tr.discover())

	acc := &Accumulator{SessionID: "session-a", ProjectPath: projectDir}
	tr.accumulators["session-a"] = acc

	require.Equal(t, LevelWarning, tr.checkThreshold(acc, 55))
	require.Equal(t, Level(""), tr.checkThreshold(acc, 58), "must not re-fire warning while still above it")
	require.Equal(t, LevelCritical, tr.checkThreshold(acc, 70))
	require.Equal(t, Level(""), tr.checkThreshold(acc, 60), "dropping below critical but still above warning must not re-fire warning")
	require.Equal(t, Level(""), tr.checkThreshold(acc, 10))
	require.Equal(t, LevelWarning, tr.checkThreshold(acc, 52), "re-crossing upward after dropping below must re-fire")
	_ = file
}

func TestProjectSummariesDerivesWorstSessionStatus(t *testing.T) {
	tr := New(t.TempDir(), 1000, DefaultThresholds(), events.NewBus())
	tr.accumulators["s1"] = &Accumulator{SessionID: "s1", ProjectPath: "/p", InputTokens: 100}
	tr.accumulators["s2"] = &Accumulator{SessionID: "s2", ProjectPath: "/p", InputTokens: 700}

	summaries := tr.ProjectSummaries()
	require.Len(t, summaries, 1)
	require.Equal(t, SafetyCritical, summaries[0].Status)
}
