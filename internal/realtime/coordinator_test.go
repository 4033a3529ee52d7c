package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu           sync.Mutex
	alive        bool
	reconnectErr error
	reconnects   int
}

func (t *fakeTransport) Probe(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive
}

func (t *fakeTransport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reconnects++
	if t.reconnectErr == nil {
		t.alive = true
	}
	return t.reconnectErr
}

func (t *fakeTransport) Close() error { return nil }

type fakeAuth struct{ valid bool }

func (a *fakeAuth) IsSessionValid() bool { return a.valid }
func (a *fakeAuth) WaitForRefresh(ctx context.Context, timeout time.Duration) bool {
	return a.valid
}

func fastRealtimeConfig() Config {
	cfg := DefaultConfig()
	cfg.CooldownWindow = time.Millisecond
	cfg.StabilizationWait = time.Millisecond
	cfg.RegistrationPollEvery = time.Millisecond
	cfg.RegistrationTimeout = 20 * time.Millisecond
	cfg.ChannelStagger = time.Millisecond
	cfg.StabilizationDelay = time.Millisecond
	cfg.BreakerOpenDuration = 20 * time.Millisecond
	return cfg
}

func TestPipelineAbortsWithoutValidSession(t *testing.T) {
	transport := &fakeTransport{alive: true}
	c := New("doc1", transport, &fakeAuth{valid: false}, fastRealtimeConfig(), nil, nil)

	err := c.RunPipeline(context.Background())
	require.ErrorIs(t, err, errAuthGate)
}

func TestPipelineSucceedsAndReconnectsChannelsInPriorityOrder(t *testing.T) {
	transport := &fakeTransport{alive: true}
	c := New("doc1", transport, &fakeAuth{valid: true}, fastRealtimeConfig(), nil, nil)

	var mu sync.Mutex
	var order []Channel
	register := func(ch Channel) {
		c.RegisterChannel(ch, func(ctx context.Context) error {
			mu.Lock()
			order = append(order, ch)
			mu.Unlock()
			return nil
		})
	}
	register(Consolidated)
	register(Cell)
	register(Showcaller)

	var resumed bool
	c.OnReconnected(func() { resumed = true })

	require.NoError(t, c.RunPipeline(context.Background()))
	require.Equal(t, []Channel{Consolidated, Cell, Showcaller}, order)
	require.True(t, resumed)
	require.True(t, c.AllConnected())
}

func TestPipelineForcesTransportReconnectWhenProbeFails(t *testing.T) {
	transport := &fakeTransport{alive: false}
	c := New("doc1", transport, &fakeAuth{valid: true}, fastRealtimeConfig(), nil, nil)
	c.RegisterChannel(Consolidated, func(ctx context.Context) error { return nil })
	c.RegisterChannel(Cell, func(ctx context.Context) error { return nil })
	c.RegisterChannel(Showcaller, func(ctx context.Context) error { return nil })

	require.NoError(t, c.RunPipeline(context.Background()))
	require.Equal(t, 1, transport.reconnects)
}

func TestChannelBreakerOpensAfterThreeFailures(t *testing.T) {
	transport := &fakeTransport{alive: true}
	cfg := fastRealtimeConfig()
	c := New("doc1", transport, &fakeAuth{valid: true}, cfg, nil, nil)

	var attempts int
	c.RegisterChannel(Consolidated, func(ctx context.Context) error {
		attempts++
		return errSentinelChannelFailure
	})
	c.RegisterChannel(Cell, func(ctx context.Context) error { return nil })
	c.RegisterChannel(Showcaller, func(ctx context.Context) error { return nil })

	for i := 0; i < 3; i++ {
		c.lastReconnectCheck = time.Time{} // bypass cooldown between synthetic cycles
		require.NoError(t, c.RunPipeline(context.Background()))
	}

	b := c.health.breakerFor(Consolidated)
	require.Equal(t, BreakerOpen, b.state)
	require.Equal(t, 3, attempts)

	// A 4th attempt within the open window must not call the handler again.
	c.lastReconnectCheck = time.Time{}
	require.NoError(t, c.RunPipeline(context.Background()))
	require.Equal(t, 3, attempts)
}

func TestCooldownSkipsImmediatelyRepeatedPipelineRuns(t *testing.T) {
	transport := &fakeTransport{alive: true}
	cfg := fastRealtimeConfig()
	cfg.CooldownWindow = time.Hour
	c := New("doc1", transport, &fakeAuth{valid: true}, cfg, nil, nil)
	c.RegisterChannel(Consolidated, func(ctx context.Context) error { return nil })

	require.NoError(t, c.RunPipeline(context.Background()))
	err := c.RunPipeline(context.Background())
	require.ErrorIs(t, err, errCooldown)
}

func TestWakeFromSleepIgnoresLiveTransportBlip(t *testing.T) {
	transport := &fakeTransport{alive: true}
	cfg := fastRealtimeConfig()
	cfg.WakeSettleDelay = time.Millisecond
	c := New("doc1", transport, &fakeAuth{valid: true}, cfg, nil, nil)

	c.HandleNetworkOnline(context.Background())
	require.False(t, c.IsReconnecting())
	require.Equal(t, 0, transport.reconnects, "a live transport probe means the event was a blip")
}

func TestReportChannelErrorDedupesWithinCooldownWindow(t *testing.T) {
	transport := &fakeTransport{alive: true}
	cfg := fastRealtimeConfig()
	cfg.ErrorCooldown = time.Hour
	c := New("doc1", transport, &fakeAuth{valid: true}, cfg, nil, nil)

	var runs int32
	c.RegisterChannel(Consolidated, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	c.ReportChannelError(context.Background(), Cell)
	c.ReportChannelError(context.Background(), Cell)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 1
	}, time.Second, time.Millisecond)

	// give the second (deduped) call a chance to have fired a second
	// pipeline run if dedup were broken.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&runs), "second report within the cooldown window must be discarded")
}

func TestWatchStuckOfflineForcesPipelineAfterWatchdogInterval(t *testing.T) {
	transport := &fakeTransport{alive: true}
	cfg := fastRealtimeConfig()
	cfg.StuckOfflineWatchdog = 5 * time.Millisecond
	c := New("doc1", transport, &fakeAuth{valid: true}, cfg, nil, nil)
	// No channels registered and no connected channels: allConnected stays
	// false forever, so the watchdog must fire and invoke onWarning.

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	var warnings int32
	c.WatchStuckOffline(ctx, func() { atomic.AddInt32(&warnings, 1) })

	require.GreaterOrEqual(t, int(atomic.LoadInt32(&warnings)), 1)
}

var errSentinelChannelFailure = &channelFailureError{}

type channelFailureError struct{}

func (e *channelFailureError) Error() string { return "synthetic channel failure" }
