package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/codenerd/orchestrator-core/internal/atomicfile"
	"github.com/codenerd/orchestrator-core/internal/claims"
	"github.com/codenerd/orchestrator-core/internal/logging"
	"github.com/codenerd/orchestrator-core/internal/procsupervisor"
	"github.com/codenerd/orchestrator-core/internal/quality"
	"github.com/codenerd/orchestrator-core/internal/registry"
	"github.com/codenerd/orchestrator-core/internal/tasks"
)

// Run executes the outer loop until the task queue is exhausted, a limit is
// reached, or ctx is cancelled (spec §4.7.1).
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.cancelFunc = nil
		o.mu.Unlock()
	}()

	lastEval := map[string]quality.Evaluation{} // taskID|phase -> last evaluation, for the improvement-hint carry-over

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		o.mu.Lock()
		if o.paused {
			o.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}
		if o.state.CurrentPhase == "complete" {
			total := o.state.TotalSessions
			o.mu.Unlock()
			o.deps.Notifier.RunComplete(total)
			return nil
		}
		o.state.TotalSessions++
		cfg := o.deps.Config
		if cfg.MaxSessions > 0 && o.state.TotalSessions > cfg.MaxSessions {
			o.mu.Unlock()
			logging.Orchestrator("max sessions reached (%d); stopping", cfg.MaxSessions)
			return nil
		}
		o.mu.Unlock()

		stop, err := o.runIteration(ctx, lastEval)
		if err != nil {
			logging.Orchestrator("iteration error: %v", err)
		}
		if stop {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.SessionDelay):
		}
	}
}

// runIteration runs exactly one outer-loop body. It returns stop=true only
// when advancePhaseOrFinish moves the run past the last phase, either because
// that phase has no ready task or because its iteration cap forced the
// advance. The session cap is enforced by Run, not here.
func (o *Orchestrator) runIteration(ctx context.Context, lastEval map[string]quality.Evaluation) (bool, error) {
	cfg := o.deps.Config
	tm := o.deps.Tasks

	o.mu.Lock()
	phase := o.state.CurrentPhase
	continueCurrent := o.state.ContinueWithCurrentTask
	currentTaskID := o.state.CurrentTaskID
	o.mu.Unlock()

	var task *tasks.Task
	if continueCurrent && currentTaskID != "" {
		t, err := tm.GetTask(currentTaskID)
		if err != nil {
			return false, fmt.Errorf("continuing current task: %w", err)
		}
		task = t
		o.mu.Lock()
		o.state.ContinueWithCurrentTask = false
		o.mu.Unlock()
	} else {
		task = tm.GetNextTask(phase)
		if task == nil {
			blocked := tm.GetBlockedTasks()
			hasBlockedInPhase := false
			for _, b := range blocked {
				if b.Phase == phase {
					hasBlockedInPhase = true
					break
				}
			}
			if hasBlockedInPhase {
				logging.Orchestrator("phase %s has blocked tasks but none ready; advancing anyway", phase)
				o.deps.Notifier.RunBlocked(phase, fmt.Sprintf("%d task(s) blocked with no ready replacement", len(blocked)))
			}
			return o.advancePhaseOrFinish(phase)
		}
		if err := tm.UpdateStatus(task.ID, tasks.StatusInProgress, nil); err != nil {
			return false, fmt.Errorf("marking task in_progress: %w", err)
		}
	}

	o.mu.Lock()
	o.state.CurrentTaskID = task.ID
	iteration := o.state.PhaseIteration
	o.mu.Unlock()

	if cfg.MaxIterationsPerTask > 0 && o.state.TaskIterations[task.ID] >= cfg.MaxIterationsPerTask {
		logging.Orchestrator("task %s hit max iterations per task (%d); blocking", task.ID, cfg.MaxIterationsPerTask)
		_ = tm.UpdateStatus(task.ID, tasks.StatusBlocked, nil)
		o.mu.Lock()
		o.state.CurrentTaskID = ""
		o.mu.Unlock()
		return false, nil
	}
	if cfg.MaxIterationsPerPhase > 0 && iteration >= cfg.MaxIterationsPerPhase {
		logging.Orchestrator("phase %s hit max iterations (%d); forcibly advancing", phase, cfg.MaxIterationsPerPhase)
		return o.advancePhaseOrFinish(phase)
	}

	key := task.ID + "|" + phase
	prevEval := lastEval[key]
	var improvements []string
	if prevEval.Score > 0 && !prevEval.Passed {
		improvements = prevEval.Improvements
	}

	prompt, err := buildPrompt(phase, iteration, prevEval, improvements, task)
	if err != nil {
		return false, fmt.Errorf("building prompt: %w", err)
	}

	n := o.state.TotalSessions
	if err := atomicfile.WriteFile(o.promptLogPath(n), []byte(prompt), 0o644); err != nil {
		logging.Orchestrator("writing prompt log: %v", err)
	}

	sessionID := o.deps.Registry.Register(registry.RegisterRequest{
		Project:        task.Title,
		ProjectPath:    o.projectDir,
		SessionType:    registry.SessionTypeAutonomous,
		OrchestratorID: o.orchestratorID,
		CurrentTaskID:  task.ID,
	})

	_, claimErr := o.deps.Claims.Claim(task.ID, sessionID, claims.ClaimOptions{TTL: 2 * claims.DefaultTTL})
	if claimErr != nil {
		logging.Orchestrator("could not claim %s: %v", task.ID, claimErr)
	}

	o.deps.RateLimit.RecordMessage()

	result, err := o.deps.Supervisor.RunSession(ctx, procsupervisor.SpawnRequest{
		Prompt:      prompt,
		SessionID:   fmt.Sprintf("%d", sessionID),
		ProjectPath: o.projectDir,
		Binary:      cfg.Agent.Binary,
		Args:        cfg.Agent.Args,
		GracePeriod: cfg.Agent.GracePeriod,
		LogPath:     o.sessionLogPath(n),
	})
	if err != nil {
		logging.Orchestrator("session spawn error: %v", err)
	}

	o.interpretResult(task, phase, result, lastEval, key)

	if claimErr == nil {
		reason := string(result.ExitReason)
		if releaseErr := o.deps.Claims.Release(task.ID, sessionID, reason); releaseErr != nil {
			logging.Orchestrator("release %s: %v", task.ID, releaseErr)
		}
	}
	_ = o.deps.Registry.End(sessionID)

	return false, nil
}

func (o *Orchestrator) interpretResult(task *tasks.Task, phase string, result procsupervisor.Result, lastEval map[string]quality.Evaluation, key string) {
	tm := o.deps.Tasks

	switch result.ExitReason {
	case procsupervisor.ExitComplete:
		verdict, tc := readTaskCompletion(o.artifactPath("task-completion.json"), task.AcceptanceCriteria)
		scores, _ := readQualityScores(o.artifactPath("quality-scores.json"))
		recommendation := quality.Recommendation(scores.Recommendation)
		if recommendation == "" {
			recommendation = quality.RecommendIterate
		}
		phaseEval, evalErr := quality.EvaluatePhase(phase, scores.Scores, recommendation)
		if evalErr != nil {
			logging.Orchestrator("evaluating phase %s: %v", phase, evalErr)
			o.mu.Lock()
			o.state.PhaseIteration++
			o.mu.Unlock()
			return
		}
		lastEval[key] = phaseEval

		if verdict.complete && phaseEval.Passed {
			clearArtifacts(o.artifactPath(""))
			o.mu.Lock()
			o.state.PhaseScores[phase] = phaseEval.Score
			o.mu.Unlock()

			next := getNextPhase(phase)
			if next != "" {
				if err := tm.AdvancePhase(task.ID, next); err != nil {
					logging.Orchestrator("advancing task %s to %s: %v", task.ID, next, err)
				}
				o.mu.Lock()
				o.state.CurrentPhase = next
				o.state.PhaseIteration = 0
				o.state.ContinueWithCurrentTask = true
				o.mu.Unlock()
				o.deps.Notifier.PhaseComplete(task.ID, phase, phaseEval.Score)
			} else {
				completion := &tasks.CompletionUpdate{
					Deliverables: deliverablesOf(tc),
					Notes:        notesOf(tc),
					QualityScore: phaseEval.Score,
				}
				if err := tm.UpdateStatus(task.ID, tasks.StatusCompleted, completion); err != nil {
					logging.Orchestrator("completing task %s: %v", task.ID, err)
				}
				o.deps.Registry.RecordCompletion(task.Title, task.ID, phaseEval.Score, 0)
				o.mu.Lock()
				o.state.CurrentTaskID = ""
				o.state.ContinueWithCurrentTask = false
				o.mu.Unlock()
				o.deps.Notifier.TaskComplete(task.ID, task.Title, phaseEval.Score)
			}
		} else {
			reason := verdict.reason
			if reason == "" {
				reason = phaseEval.Reason
			}
			logging.Orchestrator("task %s not accepted in phase %s: %s", task.ID, phase, reason)
			o.mu.Lock()
			o.state.PhaseIteration++
			o.state.TaskIterations[task.ID]++
			o.mu.Unlock()
		}

	case procsupervisor.ExitThreshold:
		logging.Orchestrator("session for task %s preempted by context threshold; will retry", task.ID)
		// task stays in_progress; next session picks it back up via
		// continueWithCurrentTask on the next loop iteration.
		o.mu.Lock()
		o.state.ContinueWithCurrentTask = true
		o.mu.Unlock()

	case procsupervisor.ExitError:
		logging.Orchestrator("session for task %s exited in error: %v", task.ID, result.Err)
		o.mu.Lock()
		o.state.TaskIterations[task.ID]++
		o.mu.Unlock()
	}
}

// advancePhaseOrFinish moves to the next phase, or marks the run complete
// once test has passed with nothing left to do. The stop==true path fires
// Notifier.RunComplete itself: Run's caller returns as soon as stop is true,
// so it never gets back to its own top-of-loop "CurrentPhase == complete"
// check in the same run (that check only matters across a daemon restart
// that resumes already-complete state).
func (o *Orchestrator) advancePhaseOrFinish(phase string) (bool, error) {
	next := getNextPhase(phase)
	o.mu.Lock()
	if next == "" {
		o.state.CurrentPhase = "complete"
		total := o.state.TotalSessions
		o.mu.Unlock()
		o.deps.Notifier.RunComplete(total)
		return true, nil
	}
	o.state.CurrentPhase = next
	o.state.PhaseIteration = 0
	o.mu.Unlock()
	return false, nil
}

func deliverablesOf(tc *TaskCompletion) []string {
	if tc == nil {
		return nil
	}
	return tc.Deliverables
}

func notesOf(tc *TaskCompletion) string {
	if tc == nil {
		return ""
	}
	return tc.Notes
}
