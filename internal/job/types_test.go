package job

import (
	"testing"
	"time"
)

func TestSnapshotPercentAndElapsed(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := Snapshot{Total: 4, Completed: 1, StartedAt: start}
	if got := s.Percent(); got != 25 {
		t.Fatalf("percent = %v, want 25", got)
	}
	if got := s.Elapsed(start.Add(3 * time.Second)); got != 3*time.Second {
		t.Fatalf("elapsed = %v, want 3s", got)
	}
	s.FinishedAt = start.Add(time.Second)
	if got := s.Elapsed(start.Add(time.Hour)); got != time.Second {
		t.Fatalf("elapsed after finish = %v, want 1s", got)
	}
	if (Snapshot{}).Percent() != 0 {
		t.Fatalf("empty snapshot should report 0%%")
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateRunning, StateStopping} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	for _, s := range []State{StateCompleted, StateStopped} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}
