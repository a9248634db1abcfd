package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharddist/internal/ring"
)

func TestReporter_Report(t *testing.T) {
	r, err := ring.New(map[string]float64{"report-a": 15, "report-b": 25}, 4)
	require.NoError(t, err)

	rep := NewReporter(r, time.Minute)
	rep.Report(context.Background())

	assert.Equal(t, 15.0, testutil.ToFloat64(availableResources.WithLabelValues("report-a")))
	assert.Equal(t, 25.0, testutil.ToFloat64(availableResources.WithLabelValues("report-b")))
	assert.Equal(t, 2.0, testutil.ToFloat64(ringNodes))
	assert.Equal(t, 8.0, testutil.ToFloat64(ringVNodes))

	r.Remove("report-b")
	rep.Report(context.Background())

	assert.Equal(t, 1, testutil.CollectAndCount(availableResources))
	assert.Equal(t, 1.0, testutil.ToFloat64(ringNodes))
}

func TestReporter_RunTicks(t *testing.T) {
	r, err := ring.New(map[string]float64{"tick-a": 10}, 4)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	rep := NewReporter(r, 30*time.Second)
	rep.clock = clock

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rep.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(availableResources.WithLabelValues("tick-a")) == 10
	}, time.Second, 10*time.Millisecond)

	r.Place("entity", 1, 4)
	clock.Advance(30 * time.Second)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(availableResources.WithLabelValues("tick-a")) == 6
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
