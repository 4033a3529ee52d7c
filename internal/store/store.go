// Package store defines the backing-store contract the core requires
// (spec §6) and provides a sqlite-backed reference implementation
// grounded on materialize/sql/std_fence.go's *sql.DB checkpoint table.
package store

import (
	"context"
	"time"

	"github.com/rundownhq/collab-core/internal/ot"
)

// DocumentRecord is the row-level table holding Document state (spec §6
// backing-store contract, item 1): {id, rowsOrdered[], title, startTime,
// timezone, updatedAt, updatedBy} plus per-row JSON.
type DocumentRecord struct {
	ID           string
	RowsOrdered  []ot.Row
	Title        string
	StartTime    string
	Timezone     string
	ShowDate     *string
	UpdatedAt    time.Time
	UpdatedBy    string
	DocVersion   int64 // legacy whole-document CAS token (spec §4.4 "Mode flag")
	PerCellSaves bool  // SaveStrategy selector (spec §9 "Dynamic dispatch")
}

// CellUpdate is the per-field update primitive's input, addressable by
// (documentId, rowId, field) (spec §6 item 2).
type CellUpdate struct {
	DocumentID string
	RowID      string
	Field      string
	Value      any
	ClientTs   int64
}

// StructuralUpdate is the structural update primitive's input (spec §6
// item 3): a full row-list replacement, with an optional CAS token used
// only by the legacy whole-document path.
type StructuralUpdate struct {
	DocumentID  string
	RowsOrdered []ot.Row
	Title       string
	StartTime   string
	Timezone    string
	Signature   string // canonical signature of the whole document at enqueue time (spec §4.4 P6)

	// CASVersion, when non-nil, requires the store to reject the write
	// unless the document's current DocVersion equals *CASVersion (legacy
	// path only; per-cell documents never set this).
	CASVersion *int64
}

// ErrCASConflict is returned by a StructuralUpdate whose CASVersion no
// longer matches the stored DocVersion.
type ErrCASConflict struct {
	DocumentID string
	Expected   int64
	Actual     int64
}

func (e *ErrCASConflict) Error() string {
	return "document " + e.DocumentID + " was concurrently modified (doc_version mismatch)"
}

// SessionEventKind is one of the auth session events the backing store
// fans out (spec §6 item 5, §4.6).
type SessionEventKind string

const (
	EventTokenRefreshed SessionEventKind = "TOKEN_REFRESHED"
	EventSignedIn       SessionEventKind = "SIGNED_IN"
	EventSignedOut      SessionEventKind = "SIGNED_OUT"
)

// Session is the authenticated session state returned by GetSession. Token
// is the raw session JWT when the backing auth provider issues one; the
// auth monitor (internal/authn) parses its exp claim as a cross-check
// against ExpiresAt.
type Session struct {
	UserID    string
	ExpiresAt time.Time
	Token     string
}

// ChannelKind is one of the three realtime channels (spec §4.5, §6 item 4).
type ChannelKind string

const (
	ChannelConsolidated ChannelKind = "consolidated"
	ChannelShowcaller   ChannelKind = "showcaller"
	ChannelCell         ChannelKind = "cell"
)

// ChannelEvent is a single notification delivered on a subscribed channel.
type ChannelEvent struct {
	Channel    ChannelKind
	DocumentID string
	Payload    any
}

// Store is the full backing-store contract the core requires (spec §6).
// internal/save and internal/realtime depend only on this interface, never
// on a concrete database client, so the sqlite reference implementation
// (DB in sqlite.go) and any production store are interchangeable.
type Store interface {
	GetDocument(ctx context.Context, documentID string) (DocumentRecord, error)

	// UpdateCell is the per-field update primitive used by the cell-save
	// path (spec §6 item 2, §4.4 "Cell save contract").
	UpdateCell(ctx context.Context, update CellUpdate) error

	// UpdateStructural is the structural update primitive (spec §6 item
	// 3, §4.4 "Structural save contract"). Returns *ErrCASConflict when
	// update.CASVersion is set and stale.
	UpdateStructural(ctx context.Context, update StructuralUpdate) error

	// Subscribe exposes the three channels for documentID (spec §6 item
	// 4). The returned channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context, documentID string, kind ChannelKind) (<-chan ChannelEvent, error)

	// GetSession returns the current auth session, or a zero Session and
	// false when unauthenticated (spec §6 item 5).
	GetSession(ctx context.Context) (Session, bool, error)

	// RestoreFromRevision is the server-side RPC of spec §6 item 6.
	RestoreFromRevision(ctx context.Context, documentID, revisionID string) error
}
