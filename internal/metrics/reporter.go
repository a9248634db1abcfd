package metrics

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/jonboulle/clockwork"

	"sharddist/internal/ring"
)

// Reporter periodically publishes ring size and node budgets. Budgets move
// on every placement, so they are sampled rather than pushed.
type Reporter struct {
	ring     *ring.Ring
	interval time.Duration
	clock    clockwork.Clock
}

// NewReporter creates a reporter sampling r every interval.
func NewReporter(r *ring.Ring, interval time.Duration) *Reporter {
	return &Reporter{
		ring:     r,
		interval: interval,
		clock:    clockwork.NewRealClock(),
	}
}

// Report publishes one sample.
func (rep *Reporter) Report(ctx context.Context) {
	nodes := rep.ring.Nodes()

	// Drop series of nodes that have left.
	availableResources.Reset()
	for id, avail := range nodes {
		availableResources.WithLabelValues(id).Set(avail)
	}
	ringNodes.Set(float64(len(nodes)))
	ringVNodes.Set(float64(rep.ring.VNodes()))

	clog.FromContext(ctx).With("nodes", len(nodes), "checksum", rep.ring.Checksum()).Debug("reported ring state")
}

// Run reports immediately and then on every tick until ctx is done.
func (rep *Reporter) Run(ctx context.Context) error {
	ticker := rep.clock.NewTicker(rep.interval)
	defer ticker.Stop()

	rep.Report(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			rep.Report(ctx)
		}
	}
}
