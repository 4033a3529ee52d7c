// Package engine implements the OT engine (spec §4.3): the per-document
// operation log, per-client pending/acknowledged queues, the submit/apply
// path, and advisory edit-session tracking.
package engine

import (
	"time"

	"github.com/rundownhq/collab-core/internal/ot"
	"github.com/rundownhq/collab-core/internal/transform"
)

// RundownTarget is the sentinel targetId used by operations that address a
// document-level scalar field (title, externalNotes) rather than a row, and
// by structural operations, which always target (RundownTarget, "items")
// (spec §3, wire envelope example in spec §6).
const RundownTarget = "rundown"

// sessionActivityWindow is how long an EditSession is considered active
// without a fresh UpdateSessionActivity call (spec §4.3, §5).
const sessionActivityWindow = 30 * time.Second

// LogEntry is one append-only record in a document's operation log
// (spec §3 "OperationLogEntry").
type LogEntry struct {
	Operation          ot.Operation
	AppliedAt          time.Time
	ServerSequence     uint64
	TransformedAgainst map[ot.OperationID]struct{}
}

// Client is the per-(document, userId) state the engine exclusively owns
// (spec §3 "Client").
type Client struct {
	UserID                 string
	LocalOperations        []ot.Operation
	PendingOperations      []ot.Operation
	AcknowledgedOperations []ot.Operation
	VectorClock            ot.VectorClock
}

func newClient(userID string) *Client {
	return &Client{UserID: userID, VectorClock: ot.VectorClock{}}
}

// removePending drops the first pending operation matching id, if present.
func (c *Client) removePending(id ot.OperationID) {
	for i, op := range c.PendingOperations {
		if op.ID == id {
			c.PendingOperations = append(c.PendingOperations[:i], c.PendingOperations[i+1:]...)
			return
		}
	}
}

// EditSession is an advisory per-field presence record (spec §3
// "EditSession"). Sessions never block writes; they are soft locks for UI
// presence only.
type EditSession struct {
	ID             string
	UserID         string
	TargetID       string
	Field          string
	StartTime      time.Time
	LastActivity   time.Time
	CurrentValue   *string
	SelectionStart *int
	SelectionEnd   *int
}

// Active reports whether the session has had activity within the last 30s,
// relative to now.
func (s EditSession) Active(now time.Time) bool {
	return now.Sub(s.LastActivity) < sessionActivityWindow
}

// Config bundles the transform policy with the engine's own timing knobs
// (spec §6 engine config object; unknown keys aren't representable in a Go
// struct, which is itself the "reject unknown keys" property).
type Config struct {
	Transform          transform.Config
	LogRetention       time.Duration // default 1h (spec §3, §4.3 "Cleanup")
	AutoResolveTimeout time.Duration
}

// DefaultConfig mirrors the spec's defaults.
func DefaultConfig() Config {
	return Config{
		Transform:          transform.DefaultConfig(),
		LogRetention:       time.Hour,
		AutoResolveTimeout: 30 * time.Second,
	}
}
