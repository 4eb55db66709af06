package contexttracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codenerd/orchestrator-core/internal/events"
	"github.com/codenerd/orchestrator-core/internal/logging"
)

// fileState is the per-file read cursor: size already consumed, plus any
// trailing bytes held back because they did not yet end in a newline.
type fileState struct {
	size    int64
	pending []byte
}

// Tracker watches root for the external agent's per-session JSONL files and
// incrementally accumulates usage.
type Tracker struct {
	mu           sync.Mutex
	root         string
	contextLimit int
	thresholds   Thresholds
	bus          *events.Bus

	files        map[string]*fileState      // path -> cursor
	sessionFiles map[string]string          // path -> sessionID
	accumulators map[string]*Accumulator     // sessionID -> accumulator
	projectOf    map[string]string           // sessionID -> projectPath

	watcher *fsnotify.Watcher
}

// New creates a Tracker rooted at root (the agent log directory). The
// tracker does not start watching until Run is called.
func New(root string, contextLimit int, thresholds Thresholds, bus *events.Bus) *Tracker {
	if contextLimit <= 0 {
		contextLimit = defaultContextLimit
	}
	return &Tracker{
		root:         root,
		contextLimit: contextLimit,
		thresholds:   thresholds,
		bus:          bus,
		files:        map[string]*fileState{},
		sessionFiles: map[string]string{},
		accumulators: map[string]*Accumulator{},
		projectOf:    map[string]string{},
	}
}

func (t *Tracker) publish(evt ThresholdEvent) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(events.Event{Kind: events.KindContextThreshold, Payload: events.ContextThresholdPayload{
		Level: string(evt.Level), Project: evt.Project, ProjectPath: evt.ProjectPath,
		SessionID: evt.SessionID, Utilization: evt.Utilization, Metrics: evt.Metrics,
	}})
}

// Run discovers existing files, installs the fsnotify watch, and processes
// events until ctx is cancelled. It is meant to run in its own goroutine.
func (t *Tracker) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("contexttracker: new watcher: %w", err)
	}
	t.watcher = watcher
	defer watcher.Close()

	if err := t.discover(); err != nil {
		return err
	}
	if err := t.watchTree(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			t.handleEvent(evt)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Context("watcher error: %v", err)
		}
	}
}

// discover enumerates existing files under root and records their current
// size so only subsequent growth is read.
func (t *Tracker) discover() error {
	return filepath.WalkDir(t.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		t.mu.Lock()
		t.files[path] = &fileState{size: info.Size()}
		t.sessionFiles[path] = sessionIDFromPath(path)
		t.projectOf[t.sessionFiles[path]] = filepath.Dir(path)
		t.mu.Unlock()
		return nil
	})
}

func (t *Tracker) watchTree() error {
	if err := os.MkdirAll(t.root, 0o755); err != nil {
		return fmt.Errorf("contexttracker: mkdir root: %w", err)
	}
	return filepath.WalkDir(t.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return t.watcher.Add(path)
	})
}

func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (t *Tracker) handleEvent(evt fsnotify.Event) {
	if evt.Op&fsnotify.Create != 0 {
		info, err := os.Stat(evt.Name)
		if err == nil && info.IsDir() {
			_ = t.watcher.Add(evt.Name)
			return
		}
	}

	if !strings.HasSuffix(evt.Name, ".jsonl") {
		return
	}

	switch {
	case evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		t.mu.Lock()
		delete(t.files, evt.Name)
		t.mu.Unlock()
	case evt.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if err := t.readGrowth(evt.Name); err != nil {
			logging.Context("error reading %s: %v", evt.Name, err)
		}
	}
}

// readGrowth re-stats a file and, if it grew, reads the new suffix. A
// shrunk file (rotated or truncated) resets the cursor to 0. Any single
// file's corruption never stops processing of other files.
func (t *Tracker) readGrowth(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.mu.Lock()
		delete(t.files, path)
		t.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	state, ok := t.files[path]
	if !ok {
		state = &fileState{}
		t.files[path] = state
		t.sessionFiles[path] = sessionIDFromPath(path)
		t.projectOf[t.sessionFiles[path]] = filepath.Dir(path)
	}
	sessionID := t.sessionFiles[path]
	projectPath := t.projectOf[sessionID]
	t.mu.Unlock()

	if info.Size() < state.size {
		state.size = 0
		state.pending = nil
	}
	if info.Size() == state.size {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(state.size, 0); err != nil {
		return err
	}
	buf := make([]byte, info.Size()-state.size)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return err
	}
	state.size += int64(n)

	combined := append(state.pending, buf[:n]...)
	lines := bytes.Split(combined, []byte("\n"))

	// The last element is either empty (combined ended in \n) or an
	// incomplete trailing record; hold it back for the next read.
	state.pending = append([]byte(nil), lines[len(lines)-1]...)
	lines = lines[:len(lines)-1]

	for _, line := range lines {
		t.processLine(sessionID, projectPath, line)
	}
	return nil
}

func (t *Tracker) processLine(sessionID, projectPath string, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	var rec usageLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return // malformed lines are skipped silently
	}
	u := rec.Message.Usage
	if u.InputTokens == 0 && u.OutputTokens == 0 && u.CacheCreationInputTokens == 0 && u.CacheReadInputTokens == 0 {
		return
	}
	t.credit(sessionID, projectPath, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens)
}

func (t *Tracker) credit(sessionID, projectPath string, input, output, cacheCreate, cacheRead int64) {
	t.mu.Lock()
	acc, ok := t.accumulators[sessionID]
	if !ok {
		acc = &Accumulator{SessionID: sessionID, ProjectPath: projectPath}
		t.accumulators[sessionID] = acc
	}
	acc.InputTokens += input
	acc.OutputTokens += output
	acc.CacheCreationTokens += cacheCreate
	acc.CacheReadTokens += cacheRead
	acc.MessageCount++
	acc.LastActivity = time.Now()

	percent := acc.ContextPercent(t.contextLimit)
	crossed := t.checkThreshold(acc, percent)
	t.mu.Unlock()

	if crossed != "" {
		t.publish(ThresholdEvent{
			Level: crossed, Project: filepath.Base(projectPath), ProjectPath: projectPath,
			SessionID: sessionID, Utilization: percent, Metrics: *acc,
		})
	}
}

// checkThreshold applies hysteresis: a level only fires once per upward
// crossing; the accumulator must drop below it before it can re-fire.
// Caller must hold t.mu.
func (t *Tracker) checkThreshold(acc *Accumulator, percent float64) Level {
	level := Level("")
	switch {
	case percent >= float64(t.thresholds.Emergency):
		level = LevelEmergency
	case percent >= float64(t.thresholds.Critical):
		level = LevelCritical
	case percent >= float64(t.thresholds.Warning):
		level = LevelWarning
	}

	if level == "" {
		acc.lastCrossedLevel = ""
		return ""
	}
	if levelRank(level) <= levelRank(acc.lastCrossedLevel) {
		// Already fired at this level or higher. Having dropped below a higher
		// level re-arms it for the next upward crossing.
		acc.lastCrossedLevel = level
		return ""
	}
	acc.lastCrossedLevel = level
	return level
}

func levelRank(l Level) int {
	switch l {
	case LevelWarning:
		return 1
	case LevelCritical:
		return 2
	case LevelEmergency:
		return 3
	default:
		return 0
	}
}

// Accumulators returns a snapshot of every session's accumulator.
func (t *Tracker) Accumulators() map[string]Accumulator {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Accumulator, len(t.accumulators))
	for id, a := range t.accumulators {
		out[id] = *a
	}
	return out
}

// ProjectSummaries aggregates accumulators by project path and derives a
// safety status from the most-stressed session in each.
func (t *Tracker) ProjectSummaries() []ProjectSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	byProject := map[string]*ProjectSummary{}
	worst := map[string]float64{}
	for _, acc := range t.accumulators {
		s, ok := byProject[acc.ProjectPath]
		if !ok {
			s = &ProjectSummary{ProjectPath: acc.ProjectPath}
			byProject[acc.ProjectPath] = s
		}
		s.Sessions++
		s.InputTokens += acc.InputTokens
		s.OutputTokens += acc.OutputTokens
		pct := acc.ContextPercent(t.contextLimit)
		if pct > worst[acc.ProjectPath] {
			worst[acc.ProjectPath] = pct
		}
	}

	out := make([]ProjectSummary, 0, len(byProject))
	for path, s := range byProject {
		s.Status = statusFor(worst[path], t.thresholds)
		out = append(out, *s)
	}
	return out
}

func statusFor(percent float64, th Thresholds) SafetyStatus {
	switch {
	case percent >= float64(th.Critical):
		return SafetyCritical
	case percent >= float64(th.Warning):
		return SafetyWarning
	default:
		return SafetyOK
	}
}
