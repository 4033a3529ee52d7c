// Package save implements the per-cell save coordinator (spec §4.4, C4):
// the single point upstream code calls to persist applied operations,
// translating them into durable writes against a store.Store while
// maintaining at-most-one-in-flight write per target field.
package save

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rundownhq/collab-core/internal/ot"
	"github.com/rundownhq/collab-core/internal/store"
)

// DocumentProvider is the read side the coordinator needs to take a
// structural-save content snapshot (spec §4.4: "fold the current
// operation log to the Document"); *engine.Engine satisfies this.
type DocumentProvider interface {
	Document() ot.Document
}

// SaveFailure is reported via OnSaveFailure for both cell and structural
// write failures (spec §7 "Save failure").
type SaveFailure struct {
	DocumentID string
	RowID      string
	Field      string
	Kind       string // "cell" or "structural"
	Err        error
}

// OnSaveFailureFunc is invoked once per failed write, after MaxSaveRetries
// is exhausted for cell writes, or immediately for structural writes
// (structural saves are not silently retried by the coordinator itself —
// spec leaves retry to the legacy CAS path, see legacy.go).
type OnSaveFailureFunc func(SaveFailure)

// Coordinator is the per-document C4 save coordinator.
type Coordinator struct {
	mu sync.Mutex

	documentID string
	store      store.Store
	docs       DocumentProvider
	cfg        Config

	cellQueues map[string]*cellQueue // keyed by rowID+"\x00"+field

	structuralQueue   []structuralRequest
	structuralRunning bool
	structuralGate    sync.RWMutex

	lastSavedAt   time.Time
	onSaveFailure OnSaveFailureFunc

	metrics *Metrics
	logger  *log.Entry
}

// New constructs a Coordinator for documentID, writing through st and
// taking content snapshots from docs.
func New(documentID string, st store.Store, docs DocumentProvider, cfg Config) *Coordinator {
	return &Coordinator{
		documentID: documentID,
		store:      st,
		docs:       docs,
		cfg:        cfg,
		cellQueues: make(map[string]*cellQueue),
		logger:     log.WithField("document", documentID),
	}
}

// OnSaveFailure registers the callback invoked on persistent write failure.
func (c *Coordinator) OnSaveFailure(fn OnSaveFailureFunc) { c.onSaveFailure = fn }

// SetMetrics wires prometheus instrumentation into the coordinator; nil
// (the default) disables it.
func (c *Coordinator) SetMetrics(m *Metrics) { c.metrics = m }

func cellKey(rowID, field string) string { return rowID + "\x00" + field }

// EnqueueCellSave debounces and eventually writes (rowID, field, value)
// (spec §4.4 "Cell save contract"). The write payload contains only
// (rowId, field, value, clientTimestamp); no document version is sent.
func (c *Coordinator) EnqueueCellSave(rowID, field string, value any, clientTs int64) {
	c.mu.Lock()
	key := cellKey(rowID, field)
	q, ok := c.cellQueues[key]
	if !ok {
		q = newCellQueue(c.cfg.CellDebounce, c.writeCellWithRetry(rowID, field), c.onCellFlushed)
		c.cellQueues[key] = q
	}
	c.mu.Unlock()

	q.enqueue(rowID, field, cellWrite{value: value, clientTs: clientTs})
}

// writeCellWithRetry returns the cellQueue's flush function: it acquires
// the structural read-gate (so it waits out any in-flight structural
// write, spec §4.4 "concurrent cell saves ... the coordinator computes
// the affected-field set from the descriptor" — conservatively, any
// structural write is treated as affecting every field) and retries a
// transient store failure up to cfg.MaxSaveRetries with the configured
// backoff before giving up (spec §7 "Save failure": "retried ... up to a
// small bound").
func (c *Coordinator) writeCellWithRetry(rowID, field string) func(cellWrite) error {
	return func(w cellWrite) error {
		c.structuralGate.RLock()
		defer c.structuralGate.RUnlock()

		var lastErr error
		for attempt := 0; attempt <= c.cfg.MaxSaveRetries; attempt++ {
			if attempt > 0 {
				time.Sleep(c.cfg.SaveRetryBackoff)
			}
			err := c.store.UpdateCell(context.Background(), store.CellUpdate{
				DocumentID: c.documentID, RowID: rowID, Field: field, Value: w.value, ClientTs: w.clientTs,
			})
			if err == nil {
				c.mu.Lock()
				c.lastSavedAt = time.Now()
				c.mu.Unlock()
				if c.metrics != nil {
					c.metrics.CellWritesTotal.WithLabelValues("success").Inc()
				}
				return nil
			}
			lastErr = err
			if c.metrics != nil {
				c.metrics.CellWritesTotal.WithLabelValues("retry").Inc()
			}
			c.logger.WithError(err).WithFields(log.Fields{"row": rowID, "field": field, "attempt": attempt}).Warn("cell write failed, retrying")
		}
		if c.metrics != nil {
			c.metrics.CellWritesTotal.WithLabelValues("failure").Inc()
		}
		return errors.Wrapf(lastErr, "cell write to (%s, %s) failed after %d retries", rowID, field, c.cfg.MaxSaveRetries)
	}
}

func (c *Coordinator) onCellFlushed(rowID, field string, err error) {
	if err == nil {
		return
	}
	c.logger.WithError(err).WithFields(log.Fields{"row": rowID, "field": field}).Error("cell save permanently failed; surfacing unsaved-changes state")
	if c.metrics != nil {
		c.metrics.SaveFailuresTotal.WithLabelValues("cell").Inc()
	}
	if c.onSaveFailure != nil {
		c.onSaveFailure(SaveFailure{DocumentID: c.documentID, RowID: rowID, Field: field, Kind: "cell", Err: err})
	}
}

// EnqueueStructuralSave takes a content snapshot of the current document
// (folded operation log, fingerprinted with the canonical signature) and
// queues a structural write (spec §4.4 "Structural save contract").
func (c *Coordinator) EnqueueStructuralSave(kind StructuralKind, payload any) error {
	doc := c.docs.Document()
	sig, err := ot.Signature(doc)
	if err != nil {
		return errors.Wrap(err, "computing structural save snapshot signature")
	}

	req := structuralRequest{
		kind: kind, payload: payload,
		rowsOrdered: doc.Rows, title: doc.Title, startTime: doc.StartTime, timezone: doc.Timezone,
		signature: sig, enqueuedAt: time.Now(),
	}

	c.mu.Lock()
	c.enqueueStructuralLocked(req)
	c.mu.Unlock()
	return nil
}

// LastSavedAt returns the wall time of the most recent successful write,
// cell or structural (spec §4.4 "Acknowledgement").
func (c *Coordinator) LastSavedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSavedAt
}

// PendingSaveCount reports the number of writes not yet durably
// committed, across every cell queue plus the structural queue.
func (c *Coordinator) PendingSaveCount() int {
	c.mu.Lock()
	queues := make([]*cellQueue, 0, len(c.cellQueues))
	for _, q := range c.cellQueues {
		queues = append(queues, q)
	}
	structuralDepth := len(c.structuralQueue)
	if c.structuralRunning {
		structuralDepth++
	}
	c.mu.Unlock()

	total := structuralDepth
	for _, q := range queues {
		total += q.pendingCount()
	}
	if c.metrics != nil {
		c.metrics.PendingSaves.Set(float64(total))
	}
	return total
}

// FlushPendingSaves blocks until every queue is empty (spec §4.4
// "exposes a flushPendingSaves() that returns once the queues are
// empty"). It forces every cell queue's debounce timer to fire
// immediately, then polls until the structural queue has drained.
func (c *Coordinator) FlushPendingSaves() {
	c.mu.Lock()
	for key, q := range c.cellQueues {
		rowID, field := splitCellKey(key)
		go q.flushNow(rowID, field)
	}
	c.mu.Unlock()

	for c.PendingSaveCount() > 0 {
		time.Sleep(time.Millisecond)
	}
}

func splitCellKey(key string) (rowID, field string) {
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
