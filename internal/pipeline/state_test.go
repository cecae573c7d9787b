package pipeline

import "testing"

func TestStateTransitions(t *testing.T) {
	path := []State{StateIdle, StateScanning, StateParsing, StateFiltering, StateSynchronizing, StateCleanup, StateDone}
	for i := 0; i < len(path)-1; i++ {
		if !canTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be allowed", path[i], path[i+1])
		}
		if !canTransition(path[i], StateFailed) {
			t.Fatalf("expected %s -> failed to be allowed", path[i])
		}
	}
	if canTransition(StateScanning, StateFiltering) {
		t.Fatal("phases must not be skipped")
	}
	if canTransition(StateDone, StateFailed) || canTransition(StateFailed, StateScanning) {
		t.Fatal("terminal states must not transition")
	}
	if StateSynchronizing.Phase() != "synchronizing" || StateDone.Phase() != "" {
		t.Fatal("unexpected phase mapping")
	}
}
