package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codenerd/orchestrator-core/internal/quality"
	"github.com/codenerd/orchestrator-core/internal/tasks"
)

// buildPrompt assembles the plain-text prompt document per §4.7.3: a task
// header, the description/acceptance criteria verbatim, an optional
// previous-attempt block, working instructions, and the completion protocol
// template keyed by the phase's rubric.
func buildPrompt(phase string, iteration int, prevEval quality.Evaluation, improvements []string, task *tasks.Task) (string, error) {
	rubric, err := quality.ScoringRubric(phase)
	if err != nil {
		return "", fmt.Errorf("orchestrator: buildPrompt: %w", err)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# Task %s — phase %s (iteration %d)\n\n", task.ID, phase, iteration)
	fmt.Fprintf(&b, "## %s\n\n%s\n\n", task.Title, task.Description)

	b.WriteString("## Acceptance criteria\n")
	for i, c := range task.AcceptanceCriteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString("\n")

	if prevEval.Score > 0 && !prevEval.Passed {
		b.WriteString("## Previous attempt\n")
		fmt.Fprintf(&b, "Scored %d (minimum %d). Address the following before retrying:\n", prevEval.Score, rubric.MinScore)
		for _, imp := range improvements {
			fmt.Fprintf(&b, "- %s\n", imp)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Instructions\n")
	b.WriteString("1. Read the project summary file before starting.\n")
	b.WriteString("2. Work through each acceptance criterion above in order.\n")
	b.WriteString("3. On completion, write the two artifact files described below.\n\n")

	b.WriteString("## Completion protocol\n")
	fmt.Fprintf(&b, "Minimum passing score for this phase: %d.\n\n", rubric.MinScore)
	b.WriteString("Write `.claude/dev-docs/task-completion.json`:\n```json\n")
	fmt.Fprintf(&b, "{\n  \"taskId\": %q,\n  \"status\": \"completed\",\n  \"acceptanceMet\": [%s],\n  \"deliverables\": [],\n  \"notes\": \"\",\n  \"completedAt\": \"<RFC3339 timestamp>\"\n}\n```\n\n",
		task.ID, boolPlaceholders(len(task.AcceptanceCriteria)))

	b.WriteString("Write `.claude/dev-docs/quality-scores.json`, one integer score 0-100 per criterion:\n```json\n")
	b.WriteString("{\n  \"scores\": {\n")
	ids := criterionIDs(rubric)
	for i, id := range ids {
		comma := ","
		if i == len(ids)-1 {
			comma = ""
		}
		fmt.Fprintf(&b, "    %q: <0-100>%s\n", id, comma)
	}
	b.WriteString("  },\n  \"recommendation\": \"proceed\" | \"iterate\"\n}\n```\n")

	return b.String(), nil
}

func criterionIDs(r quality.Rubric) []string {
	ids := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

func boolPlaceholders(n int) string {
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = "<true|false>"
	}
	return strings.Join(placeholders, ", ")
}
