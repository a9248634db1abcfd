package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"sharddist/internal/hash"
	"sharddist/internal/ring"
)

// Config holds the process configuration.
type Config struct {
	Port        int `env:"PORT,default=8080"`
	GRPCPort    int `env:"GRPC_PORT,default=9090"`
	MetricsPort int `env:"METRICS_PORT,default=2112"`

	Replicas      int    `env:"RING_REPLICAS,default=128"`
	HashAlgorithm string `env:"RING_HASH,default=blake3"`
	WrapAround    bool   `env:"RING_WRAP_AROUND,default=false"`
	// Nodes is the initial membership, "id1=budget1,id2=budget2".
	Nodes string `env:"RING_NODES"`

	ReportInterval time.Duration `env:"REPORT_INTERVAL,default=30s"`
}

// Load reads the configuration from the environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the configuration through lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Replicas < 0 {
		return fmt.Errorf("RING_REPLICAS must not be negative: %d", c.Replicas)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("REPORT_INTERVAL must be positive: %s", c.ReportInterval)
	}
	if _, err := hash.Lookup(c.HashAlgorithm); err != nil {
		return fmt.Errorf("RING_HASH: %w", err)
	}
	if _, err := ParseNodes(c.Nodes); err != nil {
		return fmt.Errorf("RING_NODES: %w", err)
	}
	return nil
}

// ParseNodes parses a comma-separated list of nodes in the format:
// "id1=budget1,id2=budget2,id3=budget3"
func ParseNodes(nodesStr string) (map[string]float64, error) {
	nodes := make(map[string]float64)
	if nodesStr == "" {
		return nodes, nil
	}

	for _, part := range strings.Split(nodesStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid node format: %s (expected id=budget)", part)
		}

		id := strings.TrimSpace(kv[0])
		raw := strings.TrimSpace(kv[1])
		if id == "" || raw == "" {
			return nil, fmt.Errorf("node ID and budget cannot be empty: %s", part)
		}

		budget, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid budget for node %s: %w", id, err)
		}
		if _, dup := nodes[id]; dup {
			return nil, fmt.Errorf("duplicate node ID: %s", id)
		}
		nodes[id] = budget
	}

	return nodes, nil
}

// BuildRing constructs the ring described by the configuration.
func (c *Config) BuildRing() (*ring.Ring, error) {
	h, err := hash.Lookup(c.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	nodes, err := ParseNodes(c.Nodes)
	if err != nil {
		return nil, err
	}
	return ring.New(nodes, c.Replicas, ring.WithHasher(h), ring.WithWrapAround(c.WrapAround))
}
