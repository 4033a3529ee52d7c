package engine

// Cleanup performs the periodic sweep of spec §4.3: operation-log entries
// older than the configured retention window are discarded, and sessions
// whose last activity predates the window are dropped. It trusts the
// invariant that pending operations are resolved (or abandoned) within the
// retention window, so it never checks the log against pending queues
// before trimming (spec §4.3 "Cleanup").
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-e.cfg.LogRetention)

	keep := e.log[:0:0]
	for _, entry := range e.log {
		if entry.AppliedAt.After(cutoff) {
			keep = append(keep, entry)
		}
	}
	e.log = keep

	for _, key := range e.sessions.Keys() {
		s, ok := e.sessions.Peek(key)
		if !ok {
			continue
		}
		if s.LastActivity.Before(cutoff) {
			e.sessions.Remove(key)
		}
	}
}

// LogLen reports the current operation-log length, mostly useful for tests
// and metrics.
func (e *Engine) LogLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.log)
}
