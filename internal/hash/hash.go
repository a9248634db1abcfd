package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// ErrUnknownAlgorithm is returned by Lookup for unsupported algorithm names.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Hasher maps a string to a position on the ring.
type Hasher interface {
	// Name returns the algorithm name, as accepted by Lookup.
	Name() string
	// Sum64 hashes the UTF-8 bytes of s.
	Sum64(s string) uint64
}

// digestHasher truncates a 256-bit digest to 64 bits.
type digestHasher struct {
	name string
	sum  func([]byte) [32]byte
}

func (d digestHasher) Name() string { return d.name }

func (d digestHasher) Sum64(s string) uint64 {
	sum := d.sum([]byte(s))
	return binary.BigEndian.Uint64(sum[:8])
}

var (
	// Blake3 is the default algorithm.
	Blake3 Hasher = digestHasher{name: "blake3", sum: blake3.Sum256}
	// SHA256 uses crypto/sha256.
	SHA256 Hasher = digestHasher{name: "sha256", sum: sha256.Sum256}
	// Blake2b uses BLAKE2b-256.
	Blake2b Hasher = digestHasher{name: "blake2b", sum: blake2b.Sum256}
)

// Default is the hasher used when none is configured.
var Default = Blake3

var registry = map[string]Hasher{
	Blake3.Name():  Blake3,
	SHA256.Name():  SHA256,
	Blake2b.Name(): Blake2b,
}

// Lookup returns the hasher registered under name.
func Lookup(name string) (Hasher, error) {
	h, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return h, nil
}

// Algorithms returns the supported algorithm names, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
