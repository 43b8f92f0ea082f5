// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"testing"

	"github.com/banshee-data/trajlink/internal/pose"
	"github.com/banshee-data/trajlink/internal/synthetic"
)

// Shape2 is the smallest useful pose shape: two landmarks in 2D.
var Shape2 = pose.Shape{Landmarks: 2, Dims: 2}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// MustBuild renders a synthetic scene or fails the test.
func MustBuild(t testing.TB, scene synthetic.Scene) *pose.Sequence {
	t.Helper()
	seq, err := scene.Build()
	AssertNoError(t, err)
	return seq
}

// StaticScene has n motionless targets 100 units apart, present in every
// one of frames frames.
func StaticScene(shape pose.Shape, n, frames int) synthetic.Scene {
	scene := synthetic.Scene{Shape: shape, Frames: frames}
	for i := 0; i < n; i++ {
		scene.Walkers = append(scene.Walkers, synthetic.Walker{
			Start: 0, End: frames - 1, X: float64(i) * 100, Y: 0,
		})
	}
	return scene
}

// Occupancy returns the frames in [first, last] where slot holds a pose.
func Occupancy(src pose.Source, slot int) []int {
	var out []int
	for t := src.FirstFrame(); t <= src.LastFrame(); t++ {
		if !src.Frame(t)[slot].IsMissing() {
			out = append(out, t)
		}
	}
	return out
}
