// Package realtime implements the reconnection coordinator (spec §4.5,
// C5): a three-channel health model, circuit breakers, and the staggered
// reconnection pipeline, built atop gorilla/websocket the way
// go/ingest/ws_api.go drives a *websocket.Conn.
package realtime

import "time"

// Config parameterizes a Coordinator; field names mirror spec §4.5's
// named constants so the defaults below are traceable back to the spec
// text.
type Config struct {
	HealthDebounce        time.Duration // 3s
	StartupGrace          time.Duration // 5s
	StabilizationDelay    time.Duration // 500ms
	MaxFailureCycles      int           // 15
	AuthGateTimeout       time.Duration // 10s
	CooldownWindow        time.Duration // 5s
	StabilizationWait     time.Duration // 2.5s
	RegistrationPollEvery time.Duration // 500ms
	RegistrationTimeout   time.Duration // 5s
	ChannelStagger        time.Duration // 500ms
	MaxTransportFailures  int           // 3
	TransportFailureReset time.Duration // 5min
	MaxChannelFailures    int           // 3
	BreakerOpenDuration   time.Duration // 60s
	WakeSettleDelay       time.Duration // 1s
	StuckOfflineWatchdog  time.Duration // 30s
	ErrorCooldown         time.Duration // 5s

	// TransportBackoffBase/Cap and ChannelBackoffBase/Cap parameterize the
	// exponential backoff formulas of spec §4.5 steps 4 and 7; the spec's
	// own numbers (10s/60s, 2s/30s) are the defaults below, exposed as
	// config so tests can shrink them without changing the formula shape.
	TransportBackoffBase time.Duration
	TransportBackoffCap  time.Duration
	ChannelBackoffBase   time.Duration
	ChannelBackoffCap    time.Duration
}

// DefaultConfig matches every numeric constant named in spec §4.5.
func DefaultConfig() Config {
	return Config{
		HealthDebounce:        3 * time.Second,
		StartupGrace:          5 * time.Second,
		StabilizationDelay:    500 * time.Millisecond,
		MaxFailureCycles:      15,
		AuthGateTimeout:       10 * time.Second,
		CooldownWindow:        5 * time.Second,
		StabilizationWait:     2500 * time.Millisecond,
		RegistrationPollEvery: 500 * time.Millisecond,
		RegistrationTimeout:   5 * time.Second,
		ChannelStagger:        500 * time.Millisecond,
		MaxTransportFailures:  3,
		TransportFailureReset: 5 * time.Minute,
		MaxChannelFailures:    3,
		BreakerOpenDuration:   60 * time.Second,
		WakeSettleDelay:       time.Second,
		StuckOfflineWatchdog:  30 * time.Second,
		ErrorCooldown:         5 * time.Second,
		TransportBackoffBase:  10 * time.Second,
		TransportBackoffCap:   60 * time.Second,
		ChannelBackoffBase:    2 * time.Second,
		ChannelBackoffCap:     30 * time.Second,
	}
}

// transportBackoff implements spec §4.5 step 4: min(cap, base * 2^(n-1))
// for the n-th consecutive transport failure (n >= 1).
func transportBackoff(n int, cfg Config) time.Duration {
	if n < 1 {
		n = 1
	}
	d := cfg.TransportBackoffBase * time.Duration(1<<uint(n-1))
	if d > cfg.TransportBackoffCap {
		d = cfg.TransportBackoffCap
	}
	return d
}

// channelBackoff implements spec §4.5 step 7: min(cap, base * 2^n) for a
// per-channel breaker's n-th consecutive failure.
func channelBackoff(n int, cfg Config) time.Duration {
	if n < 0 {
		n = 0
	}
	d := cfg.ChannelBackoffBase * time.Duration(1<<uint(n))
	if d > cfg.ChannelBackoffCap {
		d = cfg.ChannelBackoffCap
	}
	return d
}
