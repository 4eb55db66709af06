package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// readTaskCompletion reads and interprets task-completion.json per §4.7.4/P7:
// a missing file, a non-"completed" status, or an acceptanceMet array that
// is absent or the wrong length are all treated as "not complete" — the
// safety-critical rule is that an incomplete array never defaults to true.
func readTaskCompletion(path string, acceptanceCriteria []string) (completionVerdict, *TaskCompletion) {
	data, err := os.ReadFile(path)
	if err != nil {
		return completionVerdict{complete: false, reason: "no completion artifact found"}, nil
	}

	var tc TaskCompletion
	if err := json.Unmarshal(data, &tc); err != nil {
		return completionVerdict{complete: false, reason: "completion artifact malformed: " + err.Error()}, nil
	}

	if tc.Status != "completed" {
		return completionVerdict{complete: false, reason: "status=" + tc.Status}, &tc
	}
	if tc.AcceptanceMet == nil || len(tc.AcceptanceMet) != len(acceptanceCriteria) {
		return completionVerdict{complete: false, reason: "acceptanceMet missing or mis-sized"}, &tc
	}
	for i, met := range tc.AcceptanceMet {
		if !met {
			return completionVerdict{complete: false, reason: "criterion not met: " + indexOrBlank(acceptanceCriteria, i)}, &tc
		}
	}
	return completionVerdict{complete: true}, &tc
}

func indexOrBlank(ss []string, i int) string {
	if i >= 0 && i < len(ss) {
		return ss[i]
	}
	return ""
}

// readQualityScores reads quality-scores.json, a flat criterion-id -> score
// map alongside the agent's own recommendation (spec §3/§4.1).
type qualityScoresFile struct {
	Scores         map[string]int `json:"scores"`
	Recommendation string         `json:"recommendation"`
}

func readQualityScores(path string) (qualityScoresFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return qualityScoresFile{}, err
	}
	var q qualityScoresFile
	if err := json.Unmarshal(data, &q); err != nil {
		return qualityScoresFile{}, err
	}
	return q, nil
}

// clearArtifacts deletes both artifact files on successful acceptance so
// they never bleed into the next session (spec §4.7.4).
func clearArtifacts(dir string) {
	os.Remove(filepath.Join(dir, "task-completion.json"))
	os.Remove(filepath.Join(dir, "quality-scores.json"))
}
