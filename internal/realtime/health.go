package realtime

import (
	"sync"
	"time"
)

// Channel is one of the three realtime subscriptions (spec §4.5).
type Channel string

const (
	Consolidated Channel = "consolidated"
	Cell         Channel = "cell"
	Showcaller   Channel = "showcaller"
)

// channelPriority is the fixed staggered-reconnect order of spec §4.5
// step 7: "consolidated → cell → showcaller".
var channelPriority = []Channel{Consolidated, Cell, Showcaller}

// BreakerState is a per-channel circuit breaker state (spec GLOSSARY
// "Circuit breaker").
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

type breaker struct {
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
}

// recordFailure transitions the breaker per spec §4.5 step 7: after 3
// consecutive per-channel failures the breaker opens for 60s, then moves
// to half-open for one trial.
func (b *breaker) recordFailure(now time.Time, cfg Config) {
	b.consecutiveFailures++
	if b.consecutiveFailures >= cfg.MaxChannelFailures {
		b.state = BreakerOpen
		b.openedAt = now
	}
}

func (b *breaker) recordSuccess() {
	b.consecutiveFailures = 0
	b.state = BreakerClosed
}

// allow reports whether a reconnect attempt may proceed right now,
// advancing an expired open breaker to half-open.
func (b *breaker) allow(now time.Time, cfg Config) bool {
	switch b.state {
	case BreakerOpen:
		if now.Sub(b.openedAt) >= cfg.BreakerOpenDuration {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// channelHealth tracks one channel's connectedness plus its breaker.
type channelHealth struct {
	connected bool
	breaker   breaker
}

// healthModel owns the per-document, per-channel connectedness used to
// derive allConnected/anyDisconnected (spec §4.5 "Health").
type healthModel struct {
	mu       sync.Mutex
	channels map[Channel]*channelHealth
}

func newHealthModel() *healthModel {
	h := &healthModel{channels: make(map[Channel]*channelHealth, len(channelPriority))}
	for _, c := range channelPriority {
		h.channels[c] = &channelHealth{}
	}
	return h
}

func (h *healthModel) setConnected(c Channel, connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[c].connected = connected
}

func (h *healthModel) allConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.channels {
		if !c.connected {
			return false
		}
	}
	return true
}

func (h *healthModel) anyDisconnected() bool {
	return !h.allConnected()
}

func (h *healthModel) breakerFor(c Channel) *breaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &h.channels[c].breaker
}
