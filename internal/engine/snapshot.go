package engine

import (
	"time"

	"github.com/rundownhq/collab-core/internal/ot"
)

// Snapshot is the engine's full observable state at a point in time
// (spec §4.3 "Snapshot").
type Snapshot struct {
	Data           ot.Document
	Operations     []LogEntry
	ActiveSessions []EditSession
	VectorClock    ot.VectorClock
	LastUpdated    time.Time
}

// Snapshot returns {data, operations, activeSessions, vectorClock,
// lastUpdated}. VectorClock is the pointwise max over every registered
// client (spec §4.3).
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	combined := ot.VectorClock{}
	for _, c := range e.clients {
		for user, seq := range c.VectorClock {
			if combined[user] < seq {
				combined[user] = seq
			}
		}
	}

	ops := make([]LogEntry, len(e.log))
	copy(ops, e.log)

	var lastUpdated time.Time
	if len(e.log) > 0 {
		lastUpdated = e.log[len(e.log)-1].AppliedAt
	}

	sessions := make([]EditSession, 0, e.sessions.Len())
	for _, key := range e.sessions.Keys() {
		if s, ok := e.sessions.Peek(key); ok {
			sessions = append(sessions, *s)
		}
	}

	return Snapshot{
		Data:           e.doc.Clone(),
		Operations:     ops,
		ActiveSessions: sessions,
		VectorClock:    combined,
		LastUpdated:    lastUpdated,
	}
}
