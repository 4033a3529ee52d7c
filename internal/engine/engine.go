package engine

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/rundownhq/collab-core/internal/ot"
	"github.com/rundownhq/collab-core/internal/transform"
)

// maxTrackedSessions bounds the engine's advisory session cache; sessions
// are also time-bounded (30s activity window), so the LRU eviction only
// matters under pathological session churn (grounded on
// go/network/frontend.go's lru.Cache[parsedSNI, resolvedSNI]).
const maxTrackedSessions = 4096

// OnOperationApplied is invoked after an operation is successfully applied
// and logged.
type OnOperationApplied func(ot.Operation)

// OnConflictDetected is invoked once per conflict surfaced while
// transforming an operation against the concurrent set.
type OnConflictDetected func(transform.Conflict)

// Engine is the per-document OT engine (spec §4.3). It exclusively owns
// the operation log and every registered Client; the Document it holds is
// a projection, mutated only through apply.
type Engine struct {
	mu sync.Mutex

	documentID string
	doc        ot.Document
	log        []LogEntry
	nextSeq    uint64
	clients    map[string]*Client
	sessions   *lru.Cache[string, *EditSession]

	cfg Config
	now func() time.Time

	onApplied  OnOperationApplied
	onConflict OnConflictDetected

	logger *log.Entry
}

// New constructs an Engine seeded with doc's current state. now defaults to
// time.Now if nil.
func New(documentID string, doc ot.Document, cfg Config, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	sessions, err := lru.New[string, *EditSession](maxTrackedSessions)
	if err != nil {
		// Only returns an error for a non-positive size, which is a
		// programmer error in the constant above, not a runtime condition.
		panic(err)
	}
	return &Engine{
		documentID: documentID,
		doc:        doc.Clone(),
		clients:    make(map[string]*Client),
		sessions:   sessions,
		cfg:        cfg,
		now:        now,
		logger:     log.WithField("document", documentID),
	}
}

// OnOperationApplied registers the callback invoked after each successful apply.
func (e *Engine) OnOperationApplied(fn OnOperationApplied) { e.onApplied = fn }

// OnConflictDetected registers the callback invoked for each conflict.
func (e *Engine) OnConflictDetected(fn OnConflictDetected) { e.onConflict = fn }

// Document returns a deep copy of the engine's current projection.
func (e *Engine) Document() ot.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone()
}

func (e *Engine) clientFor(userID string) *Client {
	c, ok := e.clients[userID]
	if !ok {
		c = newClient(userID)
		e.clients[userID] = c
	}
	return c
}

// Submit runs one operation through the full submission path of spec §4.3:
// validate, append to the submitting client's queues, transform against
// the causally-concurrent log, apply to the document, log, acknowledge.
//
// Remote ingestion uses this same path (spec: "Remote ingest. Identical
// path with userId of the originating client.") — callers use Submit for
// both a local user's own edits and operations relayed from other clients.
func (e *Engine) Submit(op ot.Operation) error {
	if err := ot.Validate(op); err != nil {
		// Validation errors are local to the caller and never enter the
		// log or any client queue (spec §7).
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	client := e.clientFor(op.UserID)
	client.LocalOperations = append(client.LocalOperations, op)
	client.PendingOperations = append(client.PendingOperations, op)

	concurrent := e.concurrentLogOperations(op)
	transformed, conflicts := transform.Batch(op, concurrent, e.cfg.Transform)

	if err := apply(&e.doc, transformed); err != nil {
		e.logger.WithError(err).WithField("op", op.ID).Warn("operation no longer applies; left pending")
		return err
	}

	entry := LogEntry{
		Operation:          transformed,
		AppliedAt:          e.now(),
		ServerSequence:     e.nextSeq,
		TransformedAgainst: idSet(concurrent),
	}
	e.nextSeq++
	e.log = append(e.log, entry)

	client.removePending(op.ID)
	client.AcknowledgedOperations = append(client.AcknowledgedOperations, transformed)
	client.VectorClock = client.VectorClock.Advance(op.UserID, op.ID.Sequence)

	if e.onApplied != nil {
		e.onApplied(transformed)
	}
	for _, c := range conflicts {
		if e.onConflict != nil {
			e.onConflict(c)
		}
	}
	return nil
}

// concurrentLogOperations returns, in server-log order, every logged
// operation causally concurrent with op (spec §4.3 step 3).
func (e *Engine) concurrentLogOperations(op ot.Operation) []ot.Operation {
	out := make([]ot.Operation, 0, len(e.log))
	for _, entry := range e.log {
		if ot.AreConcurrent(entry.Operation, op) {
			out = append(out, entry.Operation)
		}
	}
	return out
}

func idSet(ops []ot.Operation) map[ot.OperationID]struct{} {
	set := make(map[ot.OperationID]struct{}, len(ops))
	for _, op := range ops {
		set[op.ID] = struct{}{}
	}
	return set
}

// PendingCount returns the number of unacknowledged operations for userID.
func (e *Engine) PendingCount(userID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clients[userID]
	if !ok {
		return 0
	}
	return len(c.PendingOperations)
}

// VectorClockOf returns a copy of userID's locally-acknowledged vector clock.
func (e *Engine) VectorClockOf(userID string) ot.VectorClock {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clients[userID]
	if !ok {
		return ot.VectorClock{}
	}
	return c.VectorClock.Clone()
}
