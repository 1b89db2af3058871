package synth

import (
	"testing"
)

func TestJitterBounds(t *testing.T) {
	const (
		value    = 1.5
		floor    = 0.5
		fraction = 0.06
	)
	for seed := int64(1); seed <= 2000; seed++ {
		got := Jitter(value, floor, fraction, seed)
		lo := floor + (value-floor)*(1-fraction/2)
		hi := floor + (value-floor)*(1+fraction)
		if got < lo || got > hi {
			t.Fatalf("seed %d: %f outside [%f, %f]", seed, got, lo, hi)
		}
	}
}

func TestJitterDeterministic(t *testing.T) {
	a := Jitter(2, 0.1, 0.06, 42)
	b := Jitter(2, 0.1, 0.06, 42)
	if a != b {
		t.Fatalf("same seed produced %f and %f", a, b)
	}
	if Jitter(2, 0.1, 0.06, 43) == a {
		t.Fatalf("different seeds produced identical values")
	}
}

func TestJitterAtFloor(t *testing.T) {
	if got := Jitter(0.3, 0.3, 0.06, 7); got != 0.3 {
		t.Fatalf("expected value at floor unchanged, got %f", got)
	}
	if got := Jitter(0.1, 0.3, 0.06, 7); got != 0.3 {
		t.Fatalf("expected value below floor raised to floor, got %f", got)
	}
	if got := Jitter(0.8, 0.3, 0, 7); got != 0.8 {
		t.Fatalf("expected zero fraction to be a no-op, got %f", got)
	}
}
