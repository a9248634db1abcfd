package hash

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSum64_Golden(t *testing.T) {
	tests := []struct {
		name   string
		hasher Hasher
		input  string
		want   uint64
	}{
		{"blake3 empty", Blake3, "", 0xaf1349b9f5f9a1a6},
		{"sha256 empty", SHA256, "", 0xe3b0c44298fc1c14},
		{"sha256 vnode", SHA256, "node1-0", 0x4cc89e341e0cae68},
		{"sha256 entity", SHA256, "key1-0", 0xfb0f8850d98d21af},
		{"blake2b empty", Blake2b, "", 0x0e5751c026e543b2},
		{"blake2b vnode", Blake2b, "node1-0", 0xe213728b9cf423a8},
		{"blake2b entity", Blake2b, "key1-0", 0x1a3980ba2d6faa36},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hasher.Sum64(tt.input); got != tt.want {
				t.Errorf("Sum64(%q) = %#x, want %#x", tt.input, got, tt.want)
			}
		})
	}
}

func TestSum64_Deterministic(t *testing.T) {
	for _, name := range Algorithms() {
		h, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q) failed: %v", name, err)
		}
		if h.Sum64("node7-3") != h.Sum64("node7-3") {
			t.Errorf("%s: same input hashed to different values", name)
		}
		if h.Sum64("node7-3") == h.Sum64("node7-4") {
			t.Errorf("%s: distinct inputs collided", name)
		}
	}
}

func TestLookup(t *testing.T) {
	h, err := Lookup("sha256")
	if err != nil {
		t.Fatalf("Lookup(sha256) failed: %v", err)
	}
	if h.Name() != "sha256" {
		t.Errorf("Name() = %q, want sha256", h.Name())
	}

	if _, err := Lookup("md5"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Lookup(md5) error = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestAlgorithms(t *testing.T) {
	want := []string{"blake2b", "blake3", "sha256"}
	if diff := cmp.Diff(want, Algorithms()); diff != "" {
		t.Errorf("Algorithms() mismatch (-want +got):\n%s", diff)
	}
	if Default.Name() != "blake3" {
		t.Errorf("Default = %s, want blake3", Default.Name())
	}
}
