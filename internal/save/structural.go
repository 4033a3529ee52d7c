package save

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rundownhq/collab-core/internal/ot"
	"github.com/rundownhq/collab-core/internal/store"
)

// StructuralKind enumerates the structural save descriptors of spec §6's
// wire shape ("reorder|add_row|add_header|delete_row|copy_rows|
// move_rows|toggle_lock").
type StructuralKind string

const (
	KindReorder    StructuralKind = "reorder"
	KindAddRow     StructuralKind = "add_row"
	KindAddHeader  StructuralKind = "add_header"
	KindDeleteRow  StructuralKind = "delete_row"
	KindCopyRows   StructuralKind = "copy_rows"
	KindMoveRows   StructuralKind = "move_rows"
	KindToggleLock StructuralKind = "toggle_lock"
)

// structuralRequest is one queued structural save, snapshot already taken
// at enqueue time (spec §4.4 "take a content snapshot ... fingerprinting
// it with the canonical signature").
type structuralRequest struct {
	kind        StructuralKind
	payload     any
	rowsOrdered []ot.Row
	title       string
	startTime   string
	timezone    string
	signature   string
	enqueuedAt  time.Time
}

// enqueueStructuralLocked appends req to the coordinator's structural FIFO
// (never coalesced, spec §4.4 "Queues") and, if no worker is currently
// draining it, starts one. Must be called with c.mu held.
func (c *Coordinator) enqueueStructuralLocked(req structuralRequest) {
	c.structuralQueue = append(c.structuralQueue, req)
	if !c.structuralRunning {
		c.structuralRunning = true
		go c.drainStructural()
	}
}

func (c *Coordinator) drainStructural() {
	for {
		c.mu.Lock()
		if len(c.structuralQueue) == 0 {
			c.structuralRunning = false
			c.mu.Unlock()
			return
		}
		req := c.structuralQueue[0]
		c.structuralQueue = c.structuralQueue[1:]
		c.mu.Unlock()

		c.runStructural(req)
	}
}

// runStructural performs one structural write. It holds the coordinator's
// structural gate for its duration: structural writes never run
// concurrently with each other (the drain loop is single-threaded) and
// every cell write, whatever its field, waits on the same gate
// (spec §4.4 "Ordering guarantees").
func (c *Coordinator) runStructural(req structuralRequest) {
	c.structuralGate.Lock()
	defer c.structuralGate.Unlock()

	err := c.store.UpdateStructural(context.Background(), store.StructuralUpdate{
		DocumentID:  c.documentID,
		RowsOrdered: req.rowsOrdered,
		Title:       req.title,
		StartTime:   req.startTime,
		Timezone:    req.timezone,
		Signature:   req.signature,
	})

	c.mu.Lock()
	if err == nil {
		c.lastSavedAt = time.Now()
	}
	c.mu.Unlock()

	logger := c.logger.WithFields(log.Fields{"kind": req.kind, "signature": req.signature})
	if err != nil {
		logger.WithError(err).Warn("structural save failed")
		if c.metrics != nil {
			c.metrics.SaveFailuresTotal.WithLabelValues("structural").Inc()
		}
		if c.onSaveFailure != nil {
			c.onSaveFailure(SaveFailure{DocumentID: c.documentID, Kind: "structural", Err: err})
		}
		return
	}
	if c.metrics != nil {
		c.metrics.StructuralWritesTotal.Inc()
	}
	logger.Debug("structural save committed")
}
