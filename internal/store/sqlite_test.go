package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rundownhq/collab-core/internal/ot"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedDocument(t *testing.T, db *DB, id string) {
	t.Helper()
	_, err := db.db.ExecContext(context.Background(),
		`INSERT INTO documents (id, rows_ordered, title, updated_at) VALUES (?, ?, ?, ?)`,
		id, `[{"id":"r1","kind":"regular","fields":{"script":"hello"}}]`, "Rundown", time.Now())
	require.NoError(t, err)
}

func TestGetDocumentRoundTrip(t *testing.T) {
	db := newTestDB(t)
	seedDocument(t, db, "doc1")

	rec, err := db.GetDocument(context.Background(), "doc1")
	require.NoError(t, err)
	require.Equal(t, "Rundown", rec.Title)
	require.Len(t, rec.RowsOrdered, 1)
	require.Equal(t, "r1", rec.RowsOrdered[0].ID)
	require.Equal(t, "hello", rec.RowsOrdered[0].Text("script"))
}

func TestUpdateCellWritesField(t *testing.T) {
	db := newTestDB(t)
	seedDocument(t, db, "doc1")

	err := db.UpdateCell(context.Background(), CellUpdate{
		DocumentID: "doc1", RowID: "r1", Field: "script", Value: "hello world", ClientTs: time.Now().UnixMilli(),
	})
	require.NoError(t, err)

	rec, err := db.GetDocument(context.Background(), "doc1")
	require.NoError(t, err)
	require.Equal(t, "hello world", rec.RowsOrdered[0].Text("script"))
}

func TestUpdateStructuralCASConflict(t *testing.T) {
	db := newTestDB(t)
	seedDocument(t, db, "doc1")

	stale := int64(0)
	err := db.UpdateStructural(context.Background(), StructuralUpdate{
		DocumentID: "doc1", RowsOrdered: []ot.Row{{ID: "r1"}}, CASVersion: &stale,
	})
	require.NoError(t, err, "first CAS write against the initial version succeeds")

	// The version has now advanced to 1; writing against the stale value 0 again must fail.
	err = db.UpdateStructural(context.Background(), StructuralUpdate{
		DocumentID: "doc1", RowsOrdered: []ot.Row{{ID: "r2"}}, CASVersion: &stale,
	})
	require.Error(t, err)
	var casErr *ErrCASConflict
	require.ErrorAs(t, err, &casErr)
	require.Equal(t, int64(1), casErr.Actual)
}

func TestRevisionRecordListGetRestore(t *testing.T) {
	db := newTestDB(t)
	seedDocument(t, db, "doc1")

	rev := Revision{
		ID: "rev1", DocumentID: "doc1", RevisionNumber: 1, RevisionType: RevisionManual,
		Items: []ot.Row{{ID: "r1", Fields: map[string]any{"script": "restored"}}},
		Title: "Rundown", CreatedAt: time.Now(),
	}
	require.NoError(t, db.Record(context.Background(), rev))

	list, err := db.List(context.Background(), "doc1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := db.Get(context.Background(), "doc1", "rev1")
	require.NoError(t, err)
	require.Equal(t, "restored", got.Items[0].Text("script"))

	require.NoError(t, db.Restore(context.Background(), "doc1", "rev1"))
	rec, err := db.GetDocument(context.Background(), "doc1")
	require.NoError(t, err)
	require.Equal(t, "restored", rec.RowsOrdered[0].Text("script"))
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	_, ok, err := db.GetSession(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	db.SetSession(Session{UserID: "alice", ExpiresAt: time.Now().Add(time.Hour)})
	sess, ok, err := db.GetSession(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", sess.UserID)

	db.ClearSession()
	_, ok, err = db.GetSession(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
