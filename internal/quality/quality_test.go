package quality

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalPhaseAliases(t *testing.T) {
	require.Equal(t, "research", CanonicalPhase("planning"))
	require.Equal(t, "implement", CanonicalPhase("implementation"))
	require.Equal(t, "test", CanonicalPhase("validation"))
	require.Equal(t, "test", CanonicalPhase("testing"))
	require.Equal(t, "design", CanonicalPhase("design"))
}

func TestScoringRubricUnknownPhase(t *testing.T) {
	_, err := ScoringRubric("bogus")
	require.Error(t, err)
}

// Boundary scenario 2 from spec §8.
func TestEvaluatePhaseImplementIterate(t *testing.T) {
	scores := map[string]int{
		"correctness": 95,
		"robustness":  90,
		"clarity":     90,
		"tests":       40,
		"perf":        50,
	}
	eval, err := EvaluatePhase("implement", scores, RecommendProceed)
	require.NoError(t, err)
	require.Equal(t, 82, eval.Score)
	require.False(t, eval.Passed)
	require.Contains(t, eval.Improvements, "perf: address performance concerns")
	require.Contains(t, eval.Improvements, "tests: add or strengthen tests")
}

func TestEvaluatePhaseMissingCriteriaTreatedAsZero(t *testing.T) {
	eval, err := EvaluatePhase("research", map[string]int{"requirements": 100}, RecommendProceed)
	require.NoError(t, err)
	// requirements:30 contributes 3000; everything else 0; total weight 100.
	require.Equal(t, 30, eval.Score)
	require.False(t, eval.Passed)
}

func TestEvaluatePhasePassRequiresRecommendationProceed(t *testing.T) {
	scores := map[string]int{
		"requirements": 100, "analysis": 100, "risks": 100, "feasibility": 100, "alternatives": 100,
	}
	eval, err := EvaluatePhase("research", scores, RecommendIterate)
	require.NoError(t, err)
	require.Equal(t, 100, eval.Score)
	require.False(t, eval.Passed, "high score with recommendation=iterate must not pass")
}

// P3: phase-score monotonicity.
func TestPhaseScoreMonotonic(t *testing.T) {
	a := map[string]int{"requirements": 80, "analysis": 80, "risks": 80, "feasibility": 80, "alternatives": 80}
	b := map[string]int{"requirements": 60, "analysis": 60, "risks": 60, "feasibility": 60, "alternatives": 60}

	evalA, err := EvaluatePhase("research", a, RecommendProceed)
	require.NoError(t, err)
	evalB, err := EvaluatePhase("research", b, RecommendProceed)
	require.NoError(t, err)
	require.GreaterOrEqual(t, evalA.Score, evalB.Score)
}

// P8: weighted score correctness against the authoritative table.
func TestWeightedScoreCorrectnessAllCriteriaEqual(t *testing.T) {
	scores := map[string]int{"coverage": 90, "correctness": 90, "edgeCases": 90, "regression": 90, "perf": 90}
	eval, err := EvaluatePhase("test", scores, RecommendProceed)
	require.NoError(t, err)
	require.Equal(t, 90, eval.Score)
	require.True(t, eval.Passed)
}
