package tasks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEffortPtsBuckets(t *testing.T) {
	require.Equal(t, 100.0, effortPts("2h"))
	require.Equal(t, 75.0, effortPts("4h"))
	require.Equal(t, 50.0, effortPts("1d"))
	require.Equal(t, 25.0, effortPts("3d"))
	require.Equal(t, 100.0, effortPts(""), "missing estimate is the cheapest bucket")
}

func TestHistoryPtsNoHistoryDefaultsToFifty(t *testing.T) {
	h := newHistorySnapshot(map[string]*Task{})
	require.Equal(t, 50.0, historyPts([]string{"infra"}, h))
}

func TestHistoryPtsComputesSuccessRate(t *testing.T) {
	all := map[string]*Task{
		"a": {ID: "a", Tags: []string{"infra"}, Status: StatusCompleted},
		"b": {ID: "b", Tags: []string{"infra"}, Status: StatusAbandoned},
	}
	h := newHistorySnapshot(all)
	require.Equal(t, 50.0, historyPts([]string{"infra"}, h))
}

func TestPhaseAlignmentPts(t *testing.T) {
	require.Equal(t, 100.0, phaseAlignmentPts("research", "research"))
	require.Equal(t, 100.0, phaseAlignmentPts("planning", "research"), "aliases must canonicalize before comparison")
	require.Equal(t, 33.0, phaseAlignmentPts("design", "research"))
}
