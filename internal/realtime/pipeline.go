package realtime

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// RunPipeline executes the reconnection pipeline of spec §4.5
// "Reconnection pipeline". At most one pipeline runs at a time per
// Coordinator (reconnectMu, acquired before any step) — spec property P7.
func (c *Coordinator) RunPipeline(ctx context.Context) error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	c.mu.Lock()
	c.isReconnecting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.isReconnecting = false
		c.mu.Unlock()
	}()

	if c.metrics != nil {
		c.metrics.ReconnectsTotal.Inc()
	}

	// 1. Auth gate.
	if !c.auth.IsSessionValid() {
		waitCtx, cancel := context.WithTimeout(ctx, c.cfg.AuthGateTimeout)
		refreshed := c.auth.WaitForRefresh(waitCtx, c.cfg.AuthGateTimeout)
		cancel()
		if !refreshed || !c.auth.IsSessionValid() {
			c.logger.Warn("reconnection pipeline aborted: no valid session")
			return errAuthGate
		}
	}

	// 2. Cooldown.
	now := c.now()
	if !c.lastReconnectCheck.IsZero() && now.Sub(c.lastReconnectCheck) < c.cfg.CooldownWindow {
		return errCooldown
	}
	c.lastReconnectCheck = now

	// 3. Transport probe.
	if !c.transport.Probe(ctx) {
		// 4. Forced transport reconnect.
		if err := c.forceTransportReconnect(ctx); err != nil {
			return err
		}
	}

	// 5. Stabilization wait.
	sleep(ctx, c.cfg.StabilizationWait)

	// 6. Registration wait.
	if err := c.waitForRegistrations(ctx); err != nil {
		c.logger.Warn("no channel handlers registered within the registration window")
	}

	// 7. Staggered per-channel reconnect.
	c.reconnectChannels(ctx)

	// 8. Broadcast reconnection complete.
	c.maybeReportStabilized()
	if c.onResumed != nil {
		c.onResumed()
	}

	c.mu.Lock()
	c.consecutiveFailures = 0
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) forceTransportReconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.wsFailuresResetAt.IsZero() && c.now().Sub(c.wsFailuresResetAt) >= c.cfg.TransportFailureReset {
		c.wsFailures = 0
	}
	c.mu.Unlock()

	if err := c.transport.Reconnect(ctx); err != nil {
		c.mu.Lock()
		c.wsFailures++
		n := c.wsFailures
		c.wsFailuresResetAt = c.now()
		c.mu.Unlock()

		c.logger.WithError(err).WithField("consecutiveWebSocketFailures", n).Warn("transport reconnect failed")
		if n >= c.cfg.MaxTransportFailures {
			c.escalateUnrecoverable("3 consecutive transport reconnect failures")
			return ErrUnrecoverable
		}
		sleep(ctx, transportBackoff(n, c.cfg))
		return c.forceTransportReconnect(ctx)
	}

	c.mu.Lock()
	c.wsFailures = 0
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) waitForRegistrations(ctx context.Context) error {
	deadline := c.now().Add(c.cfg.RegistrationTimeout)
	for {
		c.mu.Lock()
		n := len(c.registered)
		c.mu.Unlock()
		if n > 0 {
			return nil
		}
		if c.now().After(deadline) {
			return errNoRegistrations
		}
		if !sleep(ctx, c.cfg.RegistrationPollEvery) {
			return ctx.Err()
		}
	}
}

// reconnectChannels reconnects each channel in fixed priority order,
// staggered by cfg.ChannelStagger, each gated by its own circuit breaker
// (spec §4.5 step 7).
func (c *Coordinator) reconnectChannels(ctx context.Context) {
	for i, ch := range channelPriority {
		if i > 0 {
			sleep(ctx, c.cfg.ChannelStagger)
		}
		c.reconnectOneChannel(ctx, ch)
	}
}

func (c *Coordinator) reconnectOneChannel(ctx context.Context, ch Channel) {
	b := c.health.breakerFor(ch)
	now := c.now()

	c.health.mu.Lock()
	allowed := b.allow(now, c.cfg)
	c.health.mu.Unlock()
	if !allowed {
		return
	}

	c.mu.Lock()
	handler, ok := c.registered[ch]
	c.mu.Unlock()
	if !ok {
		return
	}

	if b.consecutiveFailures > 0 {
		sleep(ctx, channelBackoff(b.consecutiveFailures, c.cfg))
	}

	err := handler(ctx)

	c.health.mu.Lock()
	if err != nil {
		b.recordFailure(c.now(), c.cfg)
	} else {
		b.recordSuccess()
	}
	c.health.mu.Unlock()

	c.health.setConnected(ch, err == nil)
	if c.metrics != nil {
		c.metrics.ChannelConnected.WithLabelValues(c.documentID, string(ch)).Set(boolToFloat(err == nil))
		c.metrics.BreakerState.WithLabelValues(c.documentID, string(ch)).Set(breakerStateValue(b.state))
	}
	if err != nil {
		c.logger.WithError(err).WithField("channel", ch).Warn("channel reconnect failed")
	}
}

// maybeReportStabilized applies the stabilization delay and flapping
// suppression of spec §4.5 "Health": after allConnected is reached,
// stabilizationDelay must elapse before reporting "connected"; once
// reported, no further "degraded" fires unless a real failure follows
// (property P8).
func (c *Coordinator) maybeReportStabilized() {
	if !c.health.allConnected() {
		c.mu.Lock()
		wasStable := c.stable
		c.stable = false
		c.mu.Unlock()
		if wasStable && c.onStateChange != nil {
			c.onStateChange(false)
		}
		return
	}

	c.mu.Lock()
	if c.reachedAllConnected.IsZero() {
		c.reachedAllConnected = c.now()
	}
	elapsed := c.now().Sub(c.reachedAllConnected)
	c.mu.Unlock()

	if elapsed < c.cfg.StabilizationDelay {
		return
	}

	c.mu.Lock()
	already := c.stable
	c.stable = true
	c.mu.Unlock()
	if !already && c.onStateChange != nil {
		c.onStateChange(true)
	}
}

// HandleNetworkOnline implements spec §4.5 "Wake-from-sleep": a 1s settle
// delay then a transport probe; a live transport means the event was a
// blip and is ignored, otherwise the full pipeline runs.
func (c *Coordinator) HandleNetworkOnline(ctx context.Context) {
	sleep(ctx, c.cfg.WakeSettleDelay)
	if c.transport.Probe(ctx) {
		log.WithField("document", c.documentID).Debug("network-online event was a transport blip; ignoring")
		return
	}
	_ = c.RunPipeline(ctx)
}

// WatchStuckOffline blocks until ctx is cancelled, running the stuck-
// offline watchdog of spec §4.5: after 30s without allConnected, surface
// a warning and force one more pipeline pass. Intended to run in its own
// goroutine for the lifetime of the document session.
func (c *Coordinator) WatchStuckOffline(ctx context.Context, onWarning func()) {
	ticker := time.NewTicker(c.cfg.StuckOfflineWatchdog)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.health.allConnected() {
				continue
			}
			if onWarning != nil {
				onWarning()
			}
			_ = c.RunPipeline(ctx)
		}
	}
}

// sleep waits for d or ctx cancellation, returning false if cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
