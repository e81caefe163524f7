package spec

import "testing"

func TestTransitionToPrepared(t *testing.T) {
	tests := []struct {
		name      string
		phase     VMPhase
		wantError bool
	}{
		{name: "valid from Absent", phase: PhaseAbsent, wantError: false},
		{name: "valid from zero value", phase: "", wantError: false},
		{name: "invalid from Running", phase: PhaseRunning, wantError: true},
		{name: "invalid from Failed", phase: PhaseFailed, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vi := &VMInstance{Phase: tt.phase}
			err := vi.TransitionToPrepared()

			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if vi.Phase != tt.phase {
					t.Errorf("phase should not change on error, got %s", vi.Phase)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if vi.Phase != PhasePrepared {
				t.Errorf("phase = %s, want Prepared", vi.Phase)
			}
			if !vi.IsConditionTrue(ConditionPrepared) {
				t.Error("expected ConditionPrepared to be True")
			}
		})
	}
}

func TestTransitionToDefinedThenRunning(t *testing.T) {
	vi := &VMInstance{Phase: PhasePrepared}

	if err := vi.TransitionToDefined(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vi.Phase != PhaseDefined {
		t.Errorf("phase = %s, want Defined", vi.Phase)
	}

	if err := vi.TransitionToRunning(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vi.Phase != PhaseRunning {
		t.Errorf("phase = %s, want Running", vi.Phase)
	}
	if !vi.IsConditionTrue(ConditionRunning) {
		t.Error("expected ConditionRunning to be True")
	}

	// Defined cannot be entered a second time from Running.
	if err := vi.TransitionToDefined(); err == nil {
		t.Error("expected error transitioning to Defined from Running")
	}
}

func TestTransitionToReady(t *testing.T) {
	vi := &VMInstance{Phase: PhaseRunning}

	if err := vi.TransitionToReady("192.0.2.10"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vi.Phase != PhaseReady {
		t.Errorf("phase = %s, want Ready", vi.Phase)
	}
	if vi.IP != "192.0.2.10" {
		t.Errorf("IP = %q, want 192.0.2.10", vi.IP)
	}

	vi2 := &VMInstance{Phase: PhaseDefined}
	if err := vi2.TransitionToReady("192.0.2.20"); err == nil {
		t.Error("expected error transitioning to Ready from Defined")
	}
}

func TestTransitionToTornDown_ValidFromAnyPhase(t *testing.T) {
	for _, phase := range []VMPhase{PhaseAbsent, PhasePrepared, PhaseRunning, PhaseReady, PhaseFailed} {
		vi := &VMInstance{Phase: phase}
		vi.TransitionToTornDown()
		if vi.Phase != PhaseTornDown {
			t.Errorf("from %s: phase = %s, want Torn-down", phase, vi.Phase)
		}
	}
}

func TestTransitionToFailed_RecordsErr(t *testing.T) {
	vi := &VMInstance{Phase: PhaseRunning}
	cause := errDummy("lease never arrived")

	vi.TransitionToFailed(cause)

	if vi.Phase != PhaseFailed {
		t.Errorf("phase = %s, want Failed", vi.Phase)
	}
	if vi.Err != cause {
		t.Errorf("Err = %v, want %v", vi.Err, cause)
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []VMPhase{PhaseTornDown, PhaseFailed, PhaseSkipped}
	nonTerminal := []VMPhase{PhaseAbsent, PhasePrepared, PhaseDefined, PhaseRunning, PhaseReady}

	for _, p := range terminal {
		if !IsTerminal(p) {
			t.Errorf("IsTerminal(%s) = false, want true", p)
		}
	}
	for _, p := range nonTerminal {
		if IsTerminal(p) {
			t.Errorf("IsTerminal(%s) = true, want false", p)
		}
	}
}

type errDummy string

func (e errDummy) Error() string { return string(e) }
