package spec

import "testing"

func TestSetConditionUpsertsAndTracksTransitions(t *testing.T) {
	vi := &VMInstance{}

	vi.SetCondition(ConditionRunning, ConditionTrue, "DomainStarted", "domain is running")
	if len(vi.Conditions) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(vi.Conditions))
	}
	first := vi.GetCondition(ConditionRunning)
	if first == nil || first.Status != ConditionTrue {
		t.Fatalf("expected ConditionRunning=True, got %+v", first)
	}
	firstTransition := first.LastTransitionTime

	// Same status: upserts in place, LastTransitionTime unchanged.
	vi.SetCondition(ConditionRunning, ConditionTrue, "DomainStarted", "still running")
	if len(vi.Conditions) != 1 {
		t.Fatalf("expected still 1 condition after same-status update, got %d", len(vi.Conditions))
	}
	if !vi.GetCondition(ConditionRunning).LastTransitionTime.Equal(firstTransition) {
		t.Error("LastTransitionTime should not advance when status is unchanged")
	}

	// Status flips: LastTransitionTime advances.
	vi.SetCondition(ConditionRunning, ConditionFalse, "Failed", "domain died")
	flipped := vi.GetCondition(ConditionRunning)
	if flipped.Status != ConditionFalse {
		t.Errorf("status = %s, want False", flipped.Status)
	}
	if !flipped.LastTransitionTime.After(firstTransition) && !flipped.LastTransitionTime.Equal(firstTransition) {
		t.Error("expected LastTransitionTime to advance on status flip")
	}

	// A distinct condition type is appended, not merged.
	vi.SetCondition(ConditionLeaseAcquired, ConditionTrue, "LeaseAcquired", "dhcp lease 192.0.2.10")
	if len(vi.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(vi.Conditions))
	}
}

func TestGetConditionMissing(t *testing.T) {
	vi := &VMInstance{}
	if c := vi.GetCondition(ConditionRunning); c != nil {
		t.Errorf("expected nil for absent condition, got %+v", c)
	}
}

func TestIsConditionTrue(t *testing.T) {
	vi := &VMInstance{}
	if vi.IsConditionTrue(ConditionRunning) {
		t.Error("expected false for absent condition")
	}

	vi.SetCondition(ConditionRunning, ConditionFalse, "Pending", "not yet started")
	if vi.IsConditionTrue(ConditionRunning) {
		t.Error("expected false for ConditionFalse")
	}

	vi.SetCondition(ConditionRunning, ConditionTrue, "DomainStarted", "domain is running")
	if !vi.IsConditionTrue(ConditionRunning) {
		t.Error("expected true for ConditionTrue")
	}
}
