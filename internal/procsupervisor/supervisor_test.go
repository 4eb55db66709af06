package procsupervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codenerd/orchestrator-core/internal/events"
)

func TestRunSessionCompletesNormally(t *testing.T) {
	s := New(events.NewBus(), 65)

	req := SpawnRequest{
		Prompt:  "hello",
		Binary:  "sh",
		Args:    []string{"-c", "cat >/dev/null; exit 0"},
		LogPath: filepath.Join(t.TempDir(), "session.log"),
	}

	result, err := s.RunSession(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ExitComplete, result.ExitReason)
	require.Equal(t, 0, result.ExitCode)
	_, statErr := os.Stat(result.PromptPath)
	require.True(t, os.IsNotExist(statErr), "prompt temp file must be removed after the session ends")
}

func TestRunSessionNonZeroExitIsError(t *testing.T) {
	s := New(events.NewBus(), 65)
	req := SpawnRequest{Prompt: "hi", Binary: "sh", Args: []string{"-c", "cat >/dev/null; exit 3"}}

	result, err := s.RunSession(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ExitError, result.ExitReason)
	require.Equal(t, 3, result.ExitCode)
}

func TestRunSessionPreemptedByThreshold(t *testing.T) {
	bus := events.NewBus()
	s := New(bus, 65)

	req := SpawnRequest{
		Prompt:      "hi",
		SessionID:   "sess-a",
		ProjectPath: "/proj",
		Binary:      "sh",
		Args:        []string{"-c", "cat >/dev/null; sleep 5"},
		GracePeriod: 100 * time.Millisecond,
	}

	resultCh := make(chan Result, 1)
	go func() {
		r, _ := s.RunSession(context.Background(), req)
		resultCh <- r
	}()

	// Give the subprocess a moment to start and subscribe before firing.
	time.Sleep(100 * time.Millisecond)
	bus.Publish(events.Event{Kind: events.KindContextThreshold, Payload: events.ContextThresholdPayload{
		Level: "critical", SessionID: "sess-a", ProjectPath: "/proj", Utilization: 70,
	}})

	select {
	case r := <-resultCh:
		require.Equal(t, ExitThreshold, r.ExitReason)
	case <-time.After(5 * time.Second):
		t.Fatal("session was not preempted within timeout")
	}
}

func TestRunSessionIgnoresUnrelatedThresholdEvent(t *testing.T) {
	bus := events.NewBus()
	s := New(bus, 65)

	req := SpawnRequest{
		Prompt: "hi", SessionID: "sess-a", ProjectPath: "/proj",
		Binary: "sh", Args: []string{"-c", "cat >/dev/null; exit 0"},
	}

	bus.Publish(events.Event{Kind: events.KindContextThreshold, Payload: events.ContextThresholdPayload{
		Level: "critical", SessionID: "sess-b", ProjectPath: "/other", Utilization: 90,
	}})

	result, err := s.RunSession(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ExitComplete, result.ExitReason)
}

func TestRunSessionCancelledByContext(t *testing.T) {
	s := New(events.NewBus(), 65)
	req := SpawnRequest{
		Prompt: "hi", Binary: "sh", Args: []string{"-c", "cat >/dev/null; sleep 5"},
		GracePeriod: 100 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan Result, 1)
	go func() {
		r, _ := s.RunSession(ctx, req)
		resultCh <- r
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case r := <-resultCh:
		require.Equal(t, ExitError, r.ExitReason)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate after context cancellation")
	}
}
