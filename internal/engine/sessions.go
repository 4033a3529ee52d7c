package engine

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned by UpdateSessionActivity/EndEditSession
// for an id that was never started, already ended, or evicted.
var ErrSessionNotFound = errors.New("edit session not found")

// StartEditSession opens an advisory presence record for userID editing
// (targetID, field) and returns its session id (spec §4.3 "Session API").
// initialValue is optional (nil when the caller has no local draft yet).
func (e *Engine) StartEditSession(userID, targetID, field string, initialValue *string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	id := uuid.NewString()
	e.sessions.Add(id, &EditSession{
		ID: id, UserID: userID, TargetID: targetID, Field: field,
		StartTime: now, LastActivity: now, CurrentValue: initialValue,
	})
	return id
}

// UpdateSessionActivity refreshes a session's activity timestamp and,
// optionally, its tracked draft value / selection range.
func (e *Engine) UpdateSessionActivity(sessionID string, value *string, selectionStart, selectionEnd *int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "session %q", sessionID)
	}
	s.LastActivity = e.now()
	if value != nil {
		s.CurrentValue = value
	}
	if selectionStart != nil {
		s.SelectionStart = selectionStart
	}
	if selectionEnd != nil {
		s.SelectionEnd = selectionEnd
	}
	return nil
}

// EndEditSession removes the session, e.g. on blur or navigation away.
func (e *Engine) EndEditSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions.Remove(sessionID)
}

// IsFieldBeingEdited reports whether any session other than excludeUserID
// is actively (within the last 30s) editing (targetID, field). Pass ""
// for excludeUserID to check across all users. Sessions are advisory only:
// this never blocks a write (spec §3 "EditSession", §4.3).
func (e *Engine) IsFieldBeingEdited(targetID, field, excludeUserID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, key := range e.sessions.Keys() {
		s, ok := e.sessions.Peek(key)
		if !ok {
			continue
		}
		if s.TargetID != targetID || s.Field != field {
			continue
		}
		if excludeUserID != "" && s.UserID == excludeUserID {
			continue
		}
		if s.Active(now) {
			return true
		}
	}
	return false
}

// ActiveSessions returns a snapshot of every currently-tracked session,
// regardless of activity window: the same set Snapshot reports (spec §4.3).
func (e *Engine) ActiveSessions() []EditSession {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]EditSession, 0, e.sessions.Len())
	for _, key := range e.sessions.Keys() {
		if s, ok := e.sessions.Peek(key); ok {
			out = append(out, *s)
		}
	}
	return out
}
