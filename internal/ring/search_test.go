package ring

import (
	"math/rand"
	"slices"
	"testing"
)

func TestSuccessorIndex(t *testing.T) {
	sorted := []uint64{10, 20, 30, 40}
	tests := []struct {
		target uint64
		want   int
	}{
		{0, 0},
		{10, 0},
		{11, 1},
		{20, 1},
		{25, 2},
		{40, 3},
		{41, 4},
	}

	for _, tt := range tests {
		if got := successorIndex(sorted, tt.target); got != tt.want {
			t.Errorf("successorIndex(%d) = %d, want %d", tt.target, got, tt.want)
		}
	}

	if got := successorIndex(nil, 5); got != 0 {
		t.Errorf("successorIndex on empty slice = %d, want 0", got)
	}
}

func TestWorkingSet_Successor(t *testing.T) {
	ws := newWorkingSet([]uint64{10, 20, 30, 40})

	if got := ws.successor(15, false); got != 20 {
		t.Errorf("successor(15) = %d, want 20", got)
	}

	ws.drop(20)
	ws.drop(30)
	if got := ws.successor(15, false); got != 40 {
		t.Errorf("successor(15) after dropping 20,30 = %d, want 40", got)
	}

	ws.drop(40)
	if got := ws.successor(15, false); got != 10 {
		t.Errorf("successor(15) past the end = %d, want 10 (largest live)", got)
	}
	if got := ws.successor(15, true); got != 10 {
		t.Errorf("successor(15) past the end with wrap = %d, want 10", got)
	}
}

func TestWorkingSet_PastTheEnd(t *testing.T) {
	ws := newWorkingSet([]uint64{10, 20, 30})

	if got := ws.successor(99, false); got != 30 {
		t.Errorf("successor(99) = %d, want 30", got)
	}
	if got := ws.successor(99, true); got != 10 {
		t.Errorf("successor(99) with wrap = %d, want 10", got)
	}
}

func TestWorkingSet_DropIgnoresUnknown(t *testing.T) {
	ws := newWorkingSet([]uint64{10, 20})
	ws.drop(15)
	ws.drop(20)
	ws.drop(20)
	if ws.size != 1 {
		t.Fatalf("size = %d, want 1", ws.size)
	}
	if got := ws.successor(0, false); got != 10 {
		t.Errorf("successor(0) = %d, want 10", got)
	}
}

func TestWorkingSet_EmptyPanics(t *testing.T) {
	ws := newWorkingSet([]uint64{10})
	ws.drop(10)
	if !ws.empty() {
		t.Fatal("expected working set to be empty")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected successor on an empty working set to panic")
		}
	}()
	ws.successor(5, false)
}

// naiveSuccessor is the linear reference for the working set.
func naiveSuccessor(live []uint64, target uint64, wrap bool) uint64 {
	for _, h := range live {
		if h >= target {
			return h
		}
	}
	if wrap {
		return live[0]
	}
	return live[len(live)-1]
}

func TestWorkingSet_MatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(200)
		ring := make([]uint64, 0, n)
		seen := make(map[uint64]bool)
		for len(ring) < n {
			h := rng.Uint64()
			if !seen[h] {
				seen[h] = true
				ring = append(ring, h)
			}
		}
		slices.Sort(ring)

		ws := newWorkingSet(ring)
		live := slices.Clone(ring)
		for len(live) > 0 {
			target := rng.Uint64()
			wrap := rng.Intn(2) == 0
			if got, want := ws.successor(target, wrap), naiveSuccessor(live, target, wrap); got != want {
				t.Fatalf("round %d: successor(%d, %v) = %d, want %d", round, target, wrap, got, want)
			}

			victim := live[rng.Intn(len(live))]
			ws.drop(victim)
			live = slices.DeleteFunc(live, func(h uint64) bool { return h == victim })
		}
		if !ws.empty() {
			t.Fatalf("round %d: working set not empty after dropping everything", round)
		}
	}
}
