package stationgraph_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsde.dev/stationgraph"
	"tsde.dev/stationgraph/testutil"
)

func fakePacer(interval time.Duration) (*stationgraph.Pacer, *testutil.FakeClock) {
	clock := testutil.NewFakeClock()
	p := stationgraph.NewPacer(interval)
	p.Now = clock.Now
	p.Sleep = clock.Sleep
	return p, clock
}

func TestPacerSpacesRequests(t *testing.T) {
	for _, tc := range []struct {
		name     string
		work     time.Duration
		expected []time.Duration
	}{
		{"instant requests", 0, []time.Duration{time.Second, time.Second, time.Second, time.Second}},
		{"fast requests", 300 * time.Millisecond, []time.Duration{700 * time.Millisecond, 700 * time.Millisecond, 700 * time.Millisecond, 700 * time.Millisecond}},
		{"exactly interval", time.Second, nil},
		{"slow requests", 1500 * time.Millisecond, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, clock := fakePacer(time.Second)

			starts := []time.Time{}
			for i := 0; i < 5; i++ {
				require.NoError(t, p.Wait(context.Background()))
				starts = append(starts, clock.Now())
				clock.Advance(tc.work)
			}

			assert.Equal(t, tc.expected, clock.Slept)

			// Consecutive starts are at least an interval apart,
			// and the whole run takes at least (N-1) intervals.
			for i := 1; i < len(starts); i++ {
				assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), time.Second)
			}
			assert.GreaterOrEqual(t, starts[4].Sub(starts[0]), 4*time.Second)
		})
	}
}

func TestPacerFirstCallDoesNotWait(t *testing.T) {
	p, clock := fakePacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))
	assert.Empty(t, clock.Slept)
}

func TestPacerZeroInterval(t *testing.T) {
	p, clock := fakePacer(0)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Empty(t, clock.Slept)
}

func TestPacerRealClock(t *testing.T) {
	p := stationgraph.NewPacer(20 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestPacerCancelled(t *testing.T) {
	p := stationgraph.NewPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Minute)
}
