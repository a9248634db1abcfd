package ring

import "math/bits"

// successorIndex returns the index of the smallest element of sorted that is
// >= target, or len(sorted) if target exceeds every element.
func successorIndex(sorted []uint64, target uint64) int {
	return halve(sorted, target, 0, len(sorted))
}

func halve(sorted []uint64, target uint64, lo, hi int) int {
	if lo >= hi {
		return lo
	}
	mid := int(uint(lo+hi) >> 1)
	switch {
	case sorted[mid] == target:
		return mid
	case sorted[mid] < target:
		return halve(sorted, target, mid+1, hi)
	default:
		return halve(sorted, target, lo, mid)
	}
}

// workingSet tracks which positions of an immutable sorted ring are still
// eligible during one placement. It is a Fenwick tree over live flags, so
// removal and successor lookup are both O(log n).
type workingSet struct {
	ring []uint64
	live []bool
	tree []int // 1-indexed
	size int
}

func newWorkingSet(ring []uint64) *workingSet {
	n := len(ring)
	w := &workingSet{
		ring: ring,
		live: make([]bool, n),
		tree: make([]int, n+1),
		size: n,
	}
	for i := 1; i <= n; i++ {
		w.live[i-1] = true
		w.tree[i]++
		if j := i + (i & -i); j <= n {
			w.tree[j] += w.tree[i]
		}
	}
	return w
}

func (w *workingSet) empty() bool { return w.size == 0 }

// drop removes the ring position holding h. Unknown or already dropped
// positions are ignored.
func (w *workingSet) drop(h uint64) {
	idx := successorIndex(w.ring, h)
	if idx >= len(w.ring) || w.ring[idx] != h || !w.live[idx] {
		return
	}
	w.live[idx] = false
	w.size--
	for i := idx + 1; i < len(w.tree); i += i & -i {
		w.tree[i]--
	}
}

// countBefore returns the number of live positions in [0, idx).
func (w *workingSet) countBefore(idx int) int {
	n := 0
	for i := idx; i > 0; i -= i & -i {
		n += w.tree[i]
	}
	return n
}

// nth returns the ring index of the k-th live position, 1-based.
func (w *workingSet) nth(k int) int {
	pos := 0
	for step := 1 << (bits.Len(uint(len(w.ring))) - 1); step > 0; step >>= 1 {
		if next := pos + step; next < len(w.tree) && w.tree[next] < k {
			pos = next
			k -= w.tree[next]
		}
	}
	return pos
}

// successor returns the smallest live position >= target. Past the end it
// returns the largest live position, or the smallest when wrap is set.
func (w *workingSet) successor(target uint64, wrap bool) uint64 {
	if w.empty() {
		panic("ring: successor search on an empty working set")
	}
	before := w.countBefore(successorIndex(w.ring, target))
	switch {
	case before < w.size:
		return w.ring[w.nth(before+1)]
	case wrap:
		return w.ring[w.nth(1)]
	default:
		return w.ring[w.nth(w.size)]
	}
}
