package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rundownhq/collab-core/internal/ot"
)

// DB is a sqlite-backed Store, grounded on materialize/sql/std_fence.go's
// use of a plain *sql.DB checkpoint table as the durability layer for an
// otherwise in-memory coordination model.
type DB struct {
	db      *sql.DB
	session Session
	hasSess bool
}

// Open opens (creating if absent) the sqlite database at path and ensures
// the schema exists.
func Open(ctx context.Context, path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite database")
	}
	d := &DB{db: sqlDB}
	if err := d.migrate(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	rows_ordered TEXT NOT NULL DEFAULT '[]',
	title TEXT NOT NULL DEFAULT '',
	start_time TEXT NOT NULL DEFAULT '',
	timezone TEXT NOT NULL DEFAULT '',
	show_date TEXT,
	updated_at DATETIME NOT NULL,
	updated_by TEXT NOT NULL DEFAULT '',
	doc_version INTEGER NOT NULL DEFAULT 0,
	per_cell_saves INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS revisions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	revision_number INTEGER NOT NULL,
	revision_type TEXT NOT NULL,
	action_description TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	items TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	start_time TEXT NOT NULL DEFAULT '',
	timezone TEXT NOT NULL DEFAULT ''
);
`
	_, err := d.db.ExecContext(ctx, schema)
	return errors.Wrap(err, "migrating sqlite schema")
}

func (d *DB) GetDocument(ctx context.Context, documentID string) (DocumentRecord, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT rows_ordered, title, start_time, timezone, show_date, updated_at, updated_by, doc_version, per_cell_saves
		 FROM documents WHERE id = ?`, documentID)

	var rowsJSON, showDate sql.NullString
	var rec DocumentRecord
	rec.ID = documentID
	var perCell int
	if err := row.Scan(&rowsJSON, &rec.Title, &rec.StartTime, &rec.Timezone, &showDate, &rec.UpdatedAt, &rec.UpdatedBy, &rec.DocVersion, &perCell); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentRecord{}, errors.Wrapf(err, "document %q not found", documentID)
		}
		return DocumentRecord{}, errors.Wrap(err, "scanning document row")
	}
	rec.PerCellSaves = perCell != 0
	if showDate.Valid {
		rec.ShowDate = &showDate.String
	}
	if rowsJSON.Valid && rowsJSON.String != "" {
		if err := json.Unmarshal([]byte(rowsJSON.String), &rec.RowsOrdered); err != nil {
			return DocumentRecord{}, errors.Wrap(err, "unmarshalling rowsOrdered")
		}
	}
	return rec, nil
}

// UpdateCell is the per-field update primitive (spec §6 item 2). It reads
// the row list, sets the one field, and writes the list back; doc_version
// is neither consulted nor bumped, matching the cell save contract's "no
// document version is sent" rule (spec §4.4).
func (d *DB) UpdateCell(ctx context.Context, u CellUpdate) error {
	rec, err := d.GetDocument(ctx, u.DocumentID)
	if err != nil {
		return err
	}
	idx := -1
	for i := range rec.RowsOrdered {
		if rec.RowsOrdered[i].ID == u.RowID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Errorf("row %q not found in document %q", u.RowID, u.DocumentID)
	}
	if rec.RowsOrdered[idx].Fields == nil {
		rec.RowsOrdered[idx].Fields = map[string]any{}
	}
	rec.RowsOrdered[idx].Fields[u.Field] = u.Value

	payload, err := json.Marshal(rec.RowsOrdered)
	if err != nil {
		return errors.Wrap(err, "marshalling rowsOrdered")
	}
	_, err = d.db.ExecContext(ctx,
		`UPDATE documents SET rows_ordered = ?, updated_at = ? WHERE id = ?`,
		string(payload), time.Unix(0, u.ClientTs*int64(time.Millisecond)).UTC(), u.DocumentID)
	if err != nil {
		return errors.Wrap(err, "writing cell update")
	}
	log.WithFields(log.Fields{"document": u.DocumentID, "row": u.RowID, "field": u.Field}).Debug("cell write committed")
	return nil
}

// UpdateStructural is the structural update primitive (spec §6 item 3).
// When update.CASVersion is set, the write is wrapped in the same
// optimistic compare-and-swap pattern as StdFence.Update in
// materialize/sql/std_fence.go: a conditional UPDATE whose affected row
// count of zero means another session won the race.
func (d *DB) UpdateStructural(ctx context.Context, u StructuralUpdate) error {
	payload, err := json.Marshal(u.RowsOrdered)
	if err != nil {
		return errors.Wrap(err, "marshalling rowsOrdered")
	}

	if u.CASVersion == nil {
		_, err = d.db.ExecContext(ctx,
			`UPDATE documents SET rows_ordered=?, title=?, start_time=?, timezone=?, updated_at=?, doc_version=doc_version+1 WHERE id=?`,
			string(payload), u.Title, u.StartTime, u.Timezone, time.Now().UTC(), u.DocumentID)
		return errors.Wrap(err, "writing structural update")
	}

	result, err := d.db.ExecContext(ctx,
		`UPDATE documents SET rows_ordered=?, title=?, start_time=?, timezone=?, updated_at=?, doc_version=doc_version+1
		 WHERE id=? AND doc_version=?`,
		string(payload), u.Title, u.StartTime, u.Timezone, time.Now().UTC(), u.DocumentID, *u.CASVersion)
	if err != nil {
		return errors.Wrap(err, "writing CAS structural update")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading rows affected")
	}
	if affected == 0 {
		rec, getErr := d.GetDocument(ctx, u.DocumentID)
		actual := int64(-1)
		if getErr == nil {
			actual = rec.DocVersion
		}
		return &ErrCASConflict{DocumentID: u.DocumentID, Expected: *u.CASVersion, Actual: actual}
	}
	return nil
}

// Subscribe is unsupported by the sqlite reference store: it has no
// notification mechanism analogous to postgres LISTEN/NOTIFY. Production
// deployments back Store.Subscribe with the actual backing store's
// change-feed; this reference implementation exists to exercise the
// read/write/CAS contract, not the realtime fan-out.
func (d *DB) Subscribe(ctx context.Context, documentID string, kind ChannelKind) (<-chan ChannelEvent, error) {
	return nil, errors.Errorf("sqlite reference store does not implement channel %q; wire a real backing store for realtime subscriptions", kind)
}

func (d *DB) GetSession(ctx context.Context) (Session, bool, error) {
	if !d.hasSess {
		return Session{}, false, nil
	}
	return d.session, true, nil
}

// SetSession is a test/ops hook the reference store exposes since it has
// no real auth provider behind it.
func (d *DB) SetSession(s Session) { d.session, d.hasSess = s, true }

// ClearSession clears the cached session, as SIGNED_OUT would.
func (d *DB) ClearSession() { d.hasSess = false }

func (d *DB) RestoreFromRevision(ctx context.Context, documentID, revisionID string) error {
	rev, err := d.getRevision(ctx, documentID, revisionID)
	if err != nil {
		return err
	}
	var rows []ot.Row
	if err := json.Unmarshal([]byte(rev.itemsJSON), &rows); err != nil {
		return errors.Wrap(err, "unmarshalling revision items")
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, "marshalling restored rows")
	}
	_, err = d.db.ExecContext(ctx,
		`UPDATE documents SET rows_ordered=?, title=?, start_time=?, timezone=?, updated_at=?, doc_version=doc_version+1 WHERE id=?`,
		string(payload), rev.Title, rev.StartTime, rev.Timezone, time.Now().UTC(), documentID)
	return errors.Wrap(err, "restoring document from revision")
}

func (d *DB) Close() error { return d.db.Close() }
