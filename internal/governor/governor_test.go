package governor

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/civicbot/internal/clock"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newFakeGovernor(t *testing.T) (*Governor, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(epoch)
	g := New(context.Background(), Options{
		CourtesyDelay: DefaultCourtesyDelay,
		Clock:         fc,
	})
	return g, fc
}

func waitAll(t *testing.T, reqs []*Request) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		v, err := r.Wait(ctx)
		require.NoError(t, err, "request %d", i)
		out[i] = v
	}
	return out
}

func TestGovernor_EmptyIsIdle(t *testing.T) {
	g, fc := newFakeGovernor(t)

	st := g.Stats()
	assert.False(t, st.Draining)
	assert.Zero(t, st.Pending)
	assert.Zero(t, st.Dispatched)
	assert.True(t, st.LastStart.IsZero())
	assert.Empty(t, fc.Sleeps())
}

func TestGovernor_MinimumSpacing(t *testing.T) {
	g, fc := newFakeGovernor(t)

	var mu sync.Mutex
	var starts []time.Time
	reqs := make([]*Request, 5)
	for i := range reqs {
		reqs[i] = g.Enqueue(func(context.Context) (string, error) {
			mu.Lock()
			starts = append(starts, fc.Now())
			mu.Unlock()
			return "ok", nil
		})
	}
	waitAll(t, reqs)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 5)
	assert.Equal(t, epoch, starts[0], "first dispatch should not wait")
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, DefaultMinInterval, "gap %d", i)
	}
}

func TestGovernor_CourtesyDelayCountsTowardSpacing(t *testing.T) {
	g, fc := newFakeGovernor(t)

	reqs := []*Request{
		g.Enqueue(func(context.Context) (string, error) { return "a", nil }),
		g.Enqueue(func(context.Context) (string, error) { return "b", nil }),
	}
	waitAll(t, reqs)
	require.Eventually(t, func() bool { return !g.Stats().Draining }, time.Second, time.Millisecond)

	// courtesy after a, remaining spacing before b, courtesy after b.
	want := []time.Duration{
		DefaultCourtesyDelay,
		DefaultMinInterval - DefaultCourtesyDelay,
		DefaultCourtesyDelay,
	}
	assert.Equal(t, want, fc.Sleeps())
}

func TestGovernor_FIFOResolution(t *testing.T) {
	g, _ := newFakeGovernor(t)

	var order []int
	var mu sync.Mutex
	const k = 8
	reqs := make([]*Request, k)
	for i := range k {
		reqs[i] = g.Enqueue(func(context.Context) (string, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return strconv.Itoa(i), nil
		})
	}

	got := waitAll(t, reqs)
	for i, v := range got {
		assert.Equal(t, strconv.Itoa(i), v)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestGovernor_SingleInFlight(t *testing.T) {
	g := New(context.Background(), Options{MinInterval: time.Millisecond})

	var inFlight, maxSeen atomic.Int32
	op := func(context.Context) (string, error) {
		n := inFlight.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return "", nil
	}

	var wg sync.WaitGroup
	reqs := make([]*Request, 20)
	for i := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reqs[i] = g.Enqueue(op)
		}()
	}
	wg.Wait()
	waitAll(t, reqs)

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, uint64(20), g.Stats().Dispatched)
}

func TestGovernor_ErrorPropagatesVerbatim(t *testing.T) {
	g, _ := newFakeGovernor(t)
	sentinel := errors.New("boom")

	failing := g.Enqueue(func(context.Context) (string, error) { return "", sentinel })
	next := g.Enqueue(func(context.Context) (string, error) { return "after", nil })

	ctx := context.Background()
	_, err := failing.Wait(ctx)
	assert.Same(t, sentinel, err)

	v, err := next.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "after", v)
}

func TestGovernor_CourtesyDelayFollowsFailure(t *testing.T) {
	g, fc := newFakeGovernor(t)

	req := g.Enqueue(func(context.Context) (string, error) { return "", errors.New("rejected") })
	_, err := req.Wait(context.Background())
	require.Error(t, err)
	require.Eventually(t, func() bool { return !g.Stats().Draining }, time.Second, time.Millisecond)

	assert.Equal(t, []time.Duration{DefaultCourtesyDelay}, fc.Sleeps())
}

func TestGovernor_RearmsAfterDrain(t *testing.T) {
	g, fc := newFakeGovernor(t)

	first := g.Enqueue(func(context.Context) (string, error) { return "1", nil })
	waitAll(t, []*Request{first})
	require.Eventually(t, func() bool { return !g.Stats().Draining }, time.Second, time.Millisecond)
	firstStart := g.Stats().LastStart

	var secondStart time.Time
	second := g.Enqueue(func(context.Context) (string, error) {
		secondStart = fc.Now()
		return "2", nil
	})
	waitAll(t, []*Request{second})

	assert.GreaterOrEqual(t, secondStart.Sub(firstStart), DefaultMinInterval)
	require.Eventually(t, func() bool { return !g.Stats().Draining }, time.Second, time.Millisecond)
	assert.Zero(t, g.Stats().Pending)
}

func TestGovernor_NoWaitAfterLongIdle(t *testing.T) {
	g, fc := newFakeGovernor(t)

	waitAll(t, []*Request{g.Enqueue(func(context.Context) (string, error) { return "", nil })})
	require.Eventually(t, func() bool { return !g.Stats().Draining }, time.Second, time.Millisecond)

	fc.Advance(time.Minute)
	before := len(fc.Sleeps())
	waitAll(t, []*Request{g.Enqueue(func(context.Context) (string, error) { return "", nil })})
	require.Eventually(t, func() bool { return !g.Stats().Draining }, time.Second, time.Millisecond)

	// Only the courtesy delay; no spacing wait.
	assert.Equal(t, []time.Duration{DefaultCourtesyDelay}, fc.Sleeps()[before:])
}

func TestRequest_AbandonedWaitStillDispatches(t *testing.T) {
	g := New(context.Background(), Options{MinInterval: time.Millisecond})

	release := make(chan struct{})
	var ran atomic.Bool
	blocker := g.Enqueue(func(context.Context) (string, error) {
		<-release
		return "", nil
	})
	abandoned := g.Enqueue(func(context.Context) (string, error) {
		ran.Store(true)
		return "late", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := abandoned.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	waitAll(t, []*Request{blocker})
	<-abandoned.Done()
	assert.True(t, ran.Load())
}
