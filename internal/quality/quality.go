// Package quality implements the weighted quality-gate evaluator (C1):
// per-phase criteria, minimum-score admission, and improvement-guidance
// synthesis, per spec §4.1.
package quality

import (
	"fmt"
	"math"
	"sort"
)

// Criterion is one scored dimension of a phase's rubric.
type Criterion struct {
	ID     string
	Weight int
}

// Rubric is the scoring table for one phase.
type Rubric struct {
	Phase      string
	MinScore   int
	Criteria   []Criterion
}

// Recommendation is the agent-reported verdict alongside its scores.
type Recommendation string

const (
	RecommendProceed Recommendation = "proceed"
	RecommendIterate Recommendation = "iterate"
)

// aliases maps loosely-named phases onto the canonical four, per spec §4.1.
var aliases = map[string]string{
	"planning":       "research",
	"implementation": "implement",
	"validation":     "test",
	"testing":        "test",
}

// rubrics is the authoritative, hardcoded phase table from spec §4.1.
var rubrics = map[string]Rubric{
	"research": {
		Phase:    "research",
		MinScore: 80,
		Criteria: []Criterion{
			{"requirements", 30}, {"analysis", 25}, {"risks", 20}, {"feasibility", 15}, {"alternatives", 10},
		},
	},
	"design": {
		Phase:    "design",
		MinScore: 85,
		Criteria: []Criterion{
			{"architecture", 30}, {"apis", 25}, {"dataModel", 20}, {"failureModel", 15}, {"tradeoffs", 10},
		},
	},
	"implement": {
		Phase:    "implement",
		MinScore: 90,
		Criteria: []Criterion{
			{"correctness", 35}, {"robustness", 25}, {"clarity", 20}, {"tests", 15}, {"perf", 5},
		},
	},
	"test": {
		Phase:    "test",
		MinScore: 90,
		Criteria: []Criterion{
			{"coverage", 30}, {"correctness", 30}, {"edgeCases", 20}, {"regression", 10}, {"perf", 10},
		},
	},
}

// CanonicalPhase resolves an alias (e.g. "planning") to its canonical name.
// Unknown phases are returned unchanged; callers should check ScoringRubric's
// error to detect an invalid phase.
func CanonicalPhase(phase string) string {
	if canon, ok := aliases[phase]; ok {
		return canon
	}
	return phase
}

// ScoringRubric returns the rubric used to build the agent prompt for phase.
func ScoringRubric(phase string) (Rubric, error) {
	canon := CanonicalPhase(phase)
	r, ok := rubrics[canon]
	if !ok {
		return Rubric{}, fmt.Errorf("quality: unknown phase %q", phase)
	}
	return r, nil
}

// Evaluation is the result of evaluating one phase's reported scores.
type Evaluation struct {
	Phase        string
	Score        int
	Passed       bool
	Reason       string
	Improvements []string
}

// improvementHints gives a short templated nudge per criterion, used when a
// criterion scores below the phase's MinScore.
var improvementHints = map[string]string{
	"requirements": "clarify the requirements more precisely before proceeding",
	"analysis":     "deepen the analysis of tradeoffs and implications",
	"risks":        "identify and mitigate more of the risks involved",
	"feasibility":  "strengthen the feasibility assessment",
	"alternatives": "consider more alternative approaches",
	"architecture": "firm up the architectural design",
	"apis":         "define the API surface more completely",
	"dataModel":    "flesh out the data model",
	"failureModel": "cover more failure modes",
	"tradeoffs":    "justify the design tradeoffs made",
	"correctness":  "fix correctness issues in the implementation",
	"robustness":   "handle more edge cases and failure paths robustly",
	"clarity":      "improve code clarity and naming",
	"tests":        "add or strengthen tests",
	"perf":         "address performance concerns",
	"coverage":     "increase test coverage",
	"edgeCases":    "cover more edge cases",
	"regression":   "add regression protection",
}

// EvaluatePhase computes the weighted phase score (P8), the pass/fail
// decision, and an ordered list of improvement hints naming every criterion
// scoring below the phase's MinScore.
//
// phaseScore = round(sum(s_i * w_i) / sum(w_i)), missing criteria treated as 0.
// passed = phaseScore >= rubric.MinScore && recommendation == proceed.
func EvaluatePhase(phase string, reportedScores map[string]int, recommendation Recommendation) (Evaluation, error) {
	rubric, err := ScoringRubric(phase)
	if err != nil {
		return Evaluation{}, err
	}

	var weightedSum, totalWeight int
	var improvements []string

	for _, c := range rubric.Criteria {
		s, ok := reportedScores[c.ID]
		if !ok {
			s = 0
		}
		weightedSum += s * c.Weight
		totalWeight += c.Weight

		if belowOwnMinimum(s, rubric.MinScore) {
			if hint, ok := improvementHints[c.ID]; ok {
				improvements = append(improvements, fmt.Sprintf("%s: %s", c.ID, hint))
			} else {
				improvements = append(improvements, fmt.Sprintf("%s: improve this criterion", c.ID))
			}
		}
	}

	sort.Strings(improvements)

	score := 0
	if totalWeight > 0 {
		score = int(math.Round(float64(weightedSum) / float64(totalWeight)))
	}

	passed := score >= rubric.MinScore && recommendation == RecommendProceed

	reason := fmt.Sprintf("phase %s scored %d (min %d), recommendation=%s", rubric.Phase, score, rubric.MinScore, recommendation)
	if passed {
		reason = fmt.Sprintf("phase %s passed: scored %d >= min %d", rubric.Phase, score, rubric.MinScore)
	}

	return Evaluation{
		Phase:        rubric.Phase,
		Score:        score,
		Passed:       passed,
		Reason:       reason,
		Improvements: improvements,
	}, nil
}

// belowOwnMinimum flags a criterion whose individual score falls under the
// phase's overall minimum bar — the signal used to decide which criteria to
// call out in improvement guidance.
func belowOwnMinimum(score, phaseMin int) bool {
	return score < phaseMin
}
