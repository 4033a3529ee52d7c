package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// AuthGate is the auth-monitor surface the reconnection pipeline consults
// (spec §4.5 step 1, §4.6); *authn.Monitor satisfies this.
type AuthGate interface {
	IsSessionValid() bool
	WaitForRefresh(ctx context.Context, timeout time.Duration) bool
}

// ErrUnrecoverable is returned by RunPipeline once forced transport
// reconnects fail MaxTransportFailures times in a row (spec §7
// "Unrecoverable"). Escalation past the failure-cycle threshold is
// reported only through OnUnrecoverable, not as this error.
var ErrUnrecoverable = errors.New("realtime coordinator reached an unrecoverable state")

// Coordinator is the per-document C5 realtime reconnection coordinator.
// Exactly one reconnection pipeline runs at a time, enforced by
// reconnectMu (spec §5 "Mutual exclusion").
type Coordinator struct {
	documentID string
	transport  Transport
	auth       AuthGate
	cfg        Config
	metrics    *Metrics
	logger     *log.Entry
	now        func() time.Time

	health *healthModel

	reconnectMu         sync.Mutex
	isReconnecting      bool
	lastReconnectCheck  time.Time
	consecutiveFailures int // cycle-scoped channel failure count
	wsFailures          int
	wsFailuresResetAt   time.Time
	stable              bool
	reachedAllConnected time.Time

	registered map[Channel]ChannelHandler

	onUnrecoverable func(reason string)
	onStateChange   func(connected bool)
	onResumed       func() // "reconnection complete" broadcast, spec step 8

	errorCooldown map[Channel]time.Time

	mu sync.Mutex
}

// ChannelHandler performs the actual per-channel (re)subscribe; returns
// an error on failure. The production wiring adapts store.Store.Subscribe
// into one of these per channel.
type ChannelHandler func(ctx context.Context) error

// New constructs a Coordinator. now defaults to time.Now if nil.
func New(documentID string, transport Transport, auth AuthGate, cfg Config, metrics *Metrics, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		documentID:    documentID,
		transport:     transport,
		auth:          auth,
		cfg:           cfg,
		metrics:       metrics,
		logger:        log.WithField("document", documentID),
		now:           now,
		health:        newHealthModel(),
		registered:    make(map[Channel]ChannelHandler),
		errorCooldown: make(map[Channel]time.Time),
	}
}

// OnUnrecoverable registers the callback invoked when the host should
// offer a reload (spec §4.5 "Failure accounting").
func (c *Coordinator) OnUnrecoverable(fn func(reason string)) { c.onUnrecoverable = fn }

// OnStateChange registers the callback invoked on connected/degraded
// transitions (after debounce + stabilization, spec §4.5 "Health").
func (c *Coordinator) OnStateChange(fn func(connected bool)) { c.onStateChange = fn }

// OnReconnected registers the callback invoked after step 8's broadcast
// ("reconnection complete"), so paused subsystems (showcaller, save
// coordinator) can resume.
func (c *Coordinator) OnReconnected(fn func()) { c.onResumed = fn }

// RegisterChannel installs the handler used to (re)subscribe a channel
// during the pipeline's staggered reconnect step.
func (c *Coordinator) RegisterChannel(ch Channel, handler ChannelHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered[ch] = handler
}

// ReportChannelError funnels a channel error into the cooldown-deduped
// error bus and triggers the reconnection pipeline (spec §4.5 "Cooldown
// error bus", "Reconnection pipeline" trigger list).
func (c *Coordinator) ReportChannelError(ctx context.Context, ch Channel) {
	c.mu.Lock()
	last, seen := c.errorCooldown[ch]
	now := c.now()
	if seen && now.Sub(last) < c.cfg.ErrorCooldown {
		c.mu.Unlock()
		return // repeated error from the same channel within the window: discarded.
	}
	c.errorCooldown[ch] = now
	c.mu.Unlock()

	c.health.setConnected(ch, false)
	c.recordCycleFailure()
	go c.RunPipeline(ctx)
}

// recordCycleFailure increments the cycle-scoped failure counter and
// escalates to unrecoverable after MaxFailureCycles (spec §4.5 "Failure
// accounting").
func (c *Coordinator) recordCycleFailure() {
	c.mu.Lock()
	c.consecutiveFailures++
	n := c.consecutiveFailures
	c.mu.Unlock()

	if n >= c.cfg.MaxFailureCycles {
		c.escalateUnrecoverable("exceeded 15 failure cycles")
	}
}

func (c *Coordinator) escalateUnrecoverable(reason string) {
	if c.metrics != nil {
		c.metrics.UnrecoverableTotal.Inc()
	}
	c.logger.WithField("reason", reason).Error("realtime coordinator escalating to unrecoverable")
	if c.onUnrecoverable != nil {
		c.onUnrecoverable(reason)
	}
}

// AllConnected reports the current consolidated health (spec §4.5
// "Health").
func (c *Coordinator) AllConnected() bool { return c.health.allConnected() }

// IsReconnecting reports whether a reconnection pipeline is currently
// running (spec §5 "Mutual exclusion": isReconnecting boolean).
func (c *Coordinator) IsReconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isReconnecting
}
