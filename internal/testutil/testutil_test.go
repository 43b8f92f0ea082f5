package testutil

import (
	"errors"
	"testing"
)

// TestAssertNoError verifies the nil path does not fail.
func TestAssertNoError(t *testing.T) {
	fakeT := &testing.T{}
	AssertNoError(fakeT, nil)
	if fakeT.Failed() {
		t.Error("expected no failure for nil error")
	}
}

// TestAssertError_WithErr tests non-nil error path.
func TestAssertError_WithErr(t *testing.T) {
	fakeT := &testing.T{}
	AssertError(fakeT, errors.New("something wrong"))
	if fakeT.Failed() {
		t.Error("expected no failure when error is present")
	}
}

func TestStaticScene(t *testing.T) {
	seq := MustBuild(t, StaticScene(Shape2, 3, 4))
	if seq.NumTargets() != 3 {
		t.Fatalf("NumTargets() = %d, want 3", seq.NumTargets())
	}
	if got := Occupancy(seq, 2); len(got) != 4 {
		t.Errorf("Occupancy(2) = %v, want 4 frames", got)
	}
}
