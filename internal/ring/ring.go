package ring

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"sharddist/internal/hash"
)

// DefaultReplicas is the number of virtual nodes per physical node used when
// New is given a non-positive count.
const DefaultReplicas = 128

// Ring implements consistent hashing with virtual nodes and per-node
// resource budgets. The sorted ring, both indices and the budgets form one
// unit guarded by a single lock.
type Ring struct {
	mu       sync.RWMutex
	replicas int
	hasher   hash.Hasher
	wrap     bool

	budgets      map[string]float64  // nodeID -> available resources
	ring         []uint64            // sorted vnode positions
	hashToNode   map[uint64]string   // vnode position -> nodeID
	nodeToHashes map[string][]uint64 // nodeID -> its vnode positions
}

// Option configures a Ring.
type Option func(*Ring)

// WithHasher sets the position function. It cannot change after construction.
func WithHasher(h hash.Hasher) Option {
	return func(r *Ring) {
		if h != nil {
			r.hasher = h
		}
	}
}

// WithWrapAround selects the successor rule for targets past the last
// position: the first position when true, the last one when false.
func WithWrapAround(wrap bool) Option {
	return func(r *Ring) {
		r.wrap = wrap
	}
}

// New creates a ring holding nodes, each placed at replicas positions.
// An empty node set yields a usable empty ring.
func New(nodes map[string]float64, replicas int, opts ...Option) (*Ring, error) {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	if replicas > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidReplicas, replicas)
	}

	r := &Ring{
		replicas:     replicas,
		hasher:       hash.Default,
		budgets:      make(map[string]float64, len(nodes)),
		ring:         make([]uint64, 0, len(nodes)*replicas),
		hashToNode:   make(map[uint64]string, len(nodes)*replicas),
		nodeToHashes: make(map[string][]uint64, len(nodes)),
	}
	for _, opt := range opts {
		opt(r)
	}

	// Sorted ids keep collision errors reproducible.
	for _, id := range slices.Sorted(maps.Keys(nodes)) {
		budget := nodes[id]
		if err := validate(id, budget); err != nil {
			return nil, err
		}
		hashes, err := r.positions(id)
		if err != nil {
			return nil, err
		}
		r.insert(id, hashes, budget)
	}
	slices.Sort(r.ring)

	return r, nil
}

// Add places a node on the ring with the given budget. Adding an id that is
// already present replaces its budget; its positions are a function of the id
// alone, so the ring itself is unchanged.
func (r *Ring) Add(id string, availableResources float64) error {
	if err := validate(id, availableResources); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.budgets[id]; exists {
		r.budgets[id] = availableResources
		return nil
	}

	hashes, err := r.positions(id)
	if err != nil {
		return err
	}
	r.insert(id, hashes, availableResources)
	slices.Sort(r.ring)
	return nil
}

// Update overwrites the budget of an existing node. Unknown ids are ignored.
func (r *Ring) Update(id string, availableResources float64) error {
	if math.IsNaN(availableResources) {
		return fmt.Errorf("%w: NaN for node %q", ErrInvalidBudget, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.budgets[id]; exists {
		r.budgets[id] = availableResources
	}
	return nil
}

// Remove takes a node and all its virtual nodes off the ring. Unknown ids
// are ignored.
func (r *Ring) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hashes, exists := r.nodeToHashes[id]
	if !exists {
		return
	}

	for _, h := range hashes {
		delete(r.hashToNode, h)
	}
	r.ring = slices.DeleteFunc(r.ring, func(h uint64) bool {
		return r.hashToNode[h] == ""
	})
	delete(r.nodeToHashes, id)
	delete(r.budgets, id)
}

// Distribute returns the distinct nodes that should hold entityID, in
// replica order. A nil replicas asks for nothing and returns an empty result.
//
// When consumed is set, nodes whose budget is below it are not eligible, and
// every selected node has its budget reduced by it. The reduction is kept
// even if fewer nodes than requested could be found. A nil, NaN or negative
// consumed performs a pure lookup.
func (r *Ring) Distribute(entityID string, replicas *uint16, consumed *float64) []string {
	if consumed != nil && (math.IsNaN(*consumed) || *consumed < 0) {
		consumed = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.ring) == 0 || replicas == nil {
		return []string{}
	}

	ws := newWorkingSet(r.ring)
	if consumed != nil {
		for id, avail := range r.budgets {
			if avail < *consumed {
				for _, h := range r.nodeToHashes[id] {
					ws.drop(h)
				}
			}
		}
	}

	nodes := make([]string, 0, *replicas)
	for i := 0; i < int(*replicas); i++ {
		if ws.empty() {
			break
		}
		target := r.hasher.Sum64(entityID + "-" + strconv.Itoa(i))
		id := r.hashToNode[ws.successor(target, r.wrap)]
		nodes = append(nodes, id)

		for _, h := range r.nodeToHashes[id] {
			ws.drop(h)
		}
		if consumed != nil {
			r.budgets[id] -= *consumed
		}
	}
	return nodes
}

// Lookup returns where entityID lives without any admission check or budget
// change.
func (r *Ring) Lookup(entityID string, replicas uint16) []string {
	return r.Distribute(entityID, &replicas, nil)
}

// Place selects nodes for entityID that can each afford consumed, charging
// them for it.
func (r *Ring) Place(entityID string, replicas uint16, consumed float64) []string {
	return r.Distribute(entityID, &replicas, &consumed)
}

// Nodes returns a copy of the node budgets.
func (r *Ring) Nodes() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.budgets)
}

// Budget returns the available resources of a node.
func (r *Ring) Budget(id string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	avail, ok := r.budgets[id]
	return avail, ok
}

// NodeIDs returns the ids of all nodes, sorted.
func (r *Ring) NodeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.budgets))
}

// Len returns the number of physical nodes.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.budgets)
}

// VNodes returns the number of positions on the ring.
func (r *Ring) VNodes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ring)
}

// Replicas returns the number of virtual nodes per physical node.
func (r *Ring) Replicas() int {
	return r.replicas
}

// Hasher returns the position function of the ring.
func (r *Ring) Hasher() hash.Hasher {
	return r.hasher
}

// Positions returns the sorted ring positions owned by a node.
func (r *Ring) Positions(id string) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hashes := slices.Clone(r.nodeToHashes[id])
	slices.Sort(hashes)
	return hashes
}

// Checksum fingerprints the membership and placement parameters. Two rings
// with the same checksum answer lookups identically; budgets are not
// included.
func (r *Ring) Checksum() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(r.budgets))
	var b strings.Builder
	b.WriteString(r.hasher.Name())
	b.WriteByte(';')
	b.WriteString(strconv.Itoa(r.replicas))
	b.WriteByte(';')
	b.WriteString(strconv.FormatBool(r.wrap))
	for _, id := range ids {
		b.WriteByte(';')
		b.WriteString(id)
	}
	return xxhash.Sum64String(b.String())
}

// positions derives the vnode positions of id and checks them against the
// ring. Caller must hold the write lock or own r exclusively.
func (r *Ring) positions(id string) ([]uint64, error) {
	hashes := make([]uint64, 0, r.replicas)
	seen := make(map[uint64]struct{}, r.replicas)
	for i := 0; i < r.replicas; i++ {
		h := r.hasher.Sum64(id + "-" + strconv.Itoa(i))
		if owner, taken := r.hashToNode[h]; taken {
			return nil, fmt.Errorf("%w: node %q replica %d collides with node %q", ErrHashCollision, id, i, owner)
		}
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("%w: node %q replica %d collides with itself", ErrHashCollision, id, i)
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// insert records a node's positions and budget. The ring must be sorted
// afterwards.
func (r *Ring) insert(id string, hashes []uint64, budget float64) {
	for _, h := range hashes {
		r.hashToNode[h] = id
	}
	r.ring = append(r.ring, hashes...)
	r.nodeToHashes[id] = hashes
	r.budgets[id] = budget
}

func validate(id string, availableResources float64) error {
	if id == "" {
		return ErrEmptyNodeID
	}
	if math.IsNaN(availableResources) || availableResources < 0 {
		return fmt.Errorf("%w: %v for node %q", ErrInvalidBudget, availableResources, id)
	}
	return nil
}
