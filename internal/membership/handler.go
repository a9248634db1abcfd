package membership

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"

	"sharddist/internal/metrics"
	"sharddist/internal/ring"
)

// Handler keeps a ring in step with membership events. Batches are applied
// one at a time.
type Handler struct {
	ring *ring.Ring

	mu                  sync.Mutex
	onMembershipChanged []func(nodes []string)
}

// NewHandler creates a handler for r.
func NewHandler(r *ring.Ring) *Handler {
	return &Handler{ring: r}
}

// OnMembershipChanged registers fn to run after a batch of events that
// changed the set of nodes on the ring. fn receives the sorted node ids.
// Callbacks run in registration order before the batch releases the handler.
func (h *Handler) OnMembershipChanged(fn func(nodes []string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMembershipChanged = append(h.onMembershipChanged, fn)
}

// Handle applies events in order and stops at the first failure. Events
// applied before the failure stay applied.
func (h *Handler) Handle(ctx context.Context, events ...Event) error {
	logger := clog.FromContext(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	checksum := h.ring.Checksum()
	defer func() {
		if len(h.onMembershipChanged) == 0 || h.ring.Checksum() == checksum {
			return
		}
		nodes := h.ring.NodeIDs()
		for _, fn := range h.onMembershipChanged {
			fn(nodes)
		}
	}()

	for i, event := range events {
		log := logger.With("event", event.Type.String(), "node", event.Node)

		var err error
		switch event.Type {
		case Join:
			err = h.ring.Add(event.Node, event.AvailableResources)
		case Leave, Failed:
			h.ring.Remove(event.Node)
		case Update:
			err = h.ring.Update(event.Node, event.AvailableResources)
		default:
			err = fmt.Errorf("%w: %d", ErrUnknownEvent, int(event.Type))
		}
		metrics.ObserveEvent(event.Type.String(), err)
		if err != nil {
			log.Warnf("failed to apply membership event: %v", err)
			return fmt.Errorf("event %d (%s %s): %w", i, event.Type, event.Node, err)
		}
		log.Debug("applied membership event")
	}

	logger.With("events", len(events), "nodes", h.ring.Len()).Info("ring membership updated")
	return nil
}
