package transform

import (
	"testing"

	"github.com/rundownhq/collab-core/internal/ot"
	"github.com/stretchr/testify/require"
)

func applyTextOp(value string, op ot.Operation) string {
	runes := []rune(value)
	switch op.Type {
	case ot.TextInsert:
		pos := op.Payload.Position
		if pos > len(runes) {
			pos = len(runes)
		}
		out := make([]rune, 0, len(runes)+len(op.Payload.Content))
		out = append(out, runes[:pos]...)
		out = append(out, []rune(op.Payload.Content)...)
		out = append(out, runes[pos:]...)
		return string(out)
	case ot.TextDelete:
		if op.Payload.Position < 0 || op.Payload.Length <= 0 {
			return value
		}
		start, end := op.Payload.Position, op.Payload.Position+op.Payload.Length
		if end > len(runes) {
			end = len(runes)
		}
		return string(runes[:start]) + string(runes[end:])
	case ot.TextReplace:
		if op.Payload.NewContent == "" && op.Payload.Length == 0 {
			return value // cancelled no-op
		}
		start, end := op.Payload.Position, op.Payload.Position+op.Payload.Length
		return string(runes[:start]) + op.Payload.NewContent + string(runes[end:])
	}
	return value
}

func insertOp(user string, seq uint64, ts int64, field string, pos int, content string) ot.Operation {
	return ot.New(user, ot.VectorClock{}, seq, func() int64 { return ts }, ot.TextInsert, "r1", field, ot.TextInsertPayload(pos, content))
}

// S1: two-user concurrent inserts converge to "[A]hello[B]" regardless of
// application order (spec §8 S1, property P3).
func TestS1ConcurrentInsertsConverge(t *testing.T) {
	cfg := DefaultConfig()
	a := insertOp("A", 1, 100, "script", 0, "[A]")
	b := insertOp("B", 1, 150, "script", 5, "[B]")

	// Order 1: apply a, then transform b against a and apply.
	v1 := applyTextOp("hello", a)
	bT := Batch1(b, a, cfg)
	v1 = applyTextOp(v1, bT)

	// Order 2: apply b, then transform a against b and apply.
	v2 := applyTextOp("hello", b)
	aT := Batch1(a, b, cfg)
	v2 = applyTextOp(v2, aT)

	require.Equal(t, "[A]hello[B]", v1)
	require.Equal(t, "[A]hello[B]", v2)
	require.Equal(t, v1, v2)
}

func Batch1(op, against ot.Operation, cfg Config) ot.Operation {
	return Transform(op, against, cfg).Op
}

// S2: overlapping replace, prefer_latest, B is later so B wins and A
// becomes a no-op (spec §8 S2).
func TestS2OverlappingReplacePreferLatest(t *testing.T) {
	cfg := DefaultConfig()
	opA := ot.New("A", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.TextReplace, "r1", "script", ot.TextReplacePayload(1, "bcd", "XYZ"))
	opB := ot.New("B", ot.VectorClock{}, 1, func() int64 { return 200 }, ot.TextReplace, "r1", "script", ot.TextReplacePayload(2, "cd", "QQ"))

	res := Transform(opA, opB, cfg)
	require.NotNil(t, res.Conflict)
	require.False(t, res.Conflict.LocalWon)
	require.Equal(t, "", res.Op.Payload.NewContent)

	final := applyTextOp("abcdef", opB)
	require.Equal(t, "abQQef", final)
}

func TestTextReplaceMergeStrategy(t *testing.T) {
	cfg := Config{TextConflicts: TextMerge, FieldConflicts: FieldPreferLatest, StructuralConflicts: StructuralPreferLatest}
	opA := ot.New("A", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.TextReplace, "r1", "script", ot.TextReplacePayload(1, "bcd", "XYZ"))
	opB := ot.New("B", ot.VectorClock{}, 1, func() int64 { return 200 }, ot.TextReplace, "r1", "script", ot.TextReplacePayload(2, "cd", "QQ"))

	res := Transform(opA, opB, cfg)
	require.Equal(t, "XYZ | QQ", res.Op.Payload.NewContent)
}

func TestTextReplaceManualStrategyLeavesOp1Unchanged(t *testing.T) {
	cfg := Config{TextConflicts: TextManual, FieldConflicts: FieldPreferLatest, StructuralConflicts: StructuralPreferLatest}
	opA := ot.New("A", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.TextReplace, "r1", "script", ot.TextReplacePayload(1, "bcd", "XYZ"))
	opB := ot.New("B", ot.VectorClock{}, 1, func() int64 { return 200 }, ot.TextReplace, "r1", "script", ot.TextReplacePayload(2, "cd", "QQ"))

	res := Transform(opA, opB, cfg)
	require.Equal(t, opA.Payload, res.Op.Payload)
	require.True(t, res.Conflict.NeedsUser)
}

func TestFieldUpdatePreferLatestRevertsLoser(t *testing.T) {
	cfg := DefaultConfig()
	opA := ot.New("A", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.FieldUpdate, "r1", "color", ot.FieldUpdatePayload("red", "blue", ot.DataString))
	opB := ot.New("B", ot.VectorClock{}, 1, func() int64 { return 200 }, ot.FieldUpdate, "r1", "color", ot.FieldUpdatePayload("green", "blue", ot.DataString))

	res := Transform(opA, opB, cfg)
	require.False(t, res.Conflict.LocalWon)
	require.Equal(t, "blue", res.Op.Payload.NewValue)
	require.Equal(t, "red", res.Op.Payload.OldValue)
}

func TestFieldUpdatePreferLocalKeepsOp1(t *testing.T) {
	cfg := Config{TextConflicts: TextPreferLatest, FieldConflicts: FieldPreferLocal, StructuralConflicts: StructuralPreferLatest}
	opA := ot.New("A", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.FieldUpdate, "r1", "color", ot.FieldUpdatePayload("red", "blue", ot.DataString))
	opB := ot.New("B", ot.VectorClock{}, 1, func() int64 { return 200 }, ot.FieldUpdate, "r1", "color", ot.FieldUpdatePayload("green", "blue", ot.DataString))

	res := Transform(opA, opB, cfg)
	require.True(t, res.Conflict.LocalWon)
	require.Equal(t, "red", res.Op.Payload.NewValue)
}

// S3: concurrent move and delete of the same row; the move cancels.
func TestS3MoveCancelsAgainstDeleteOfSameRow(t *testing.T) {
	cfg := DefaultConfig()
	move := ot.New("A", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.ItemMove, "rundown", "items", ot.ItemMovePayload(2, 0, "r3"))
	del := ot.New("B", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.ItemDelete, "rundown", "items", ot.ItemDeletePayload(2, map[string]any{"id": "r3"}))

	res := Transform(move, del, cfg)
	require.Equal(t, res.Op.Payload.FromPosition, res.Op.Payload.ToPosition, "cancelled move is a no-op")
}

func TestItemMoveMoveSameRowLatestWins(t *testing.T) {
	cfg := DefaultConfig()
	a := ot.New("A", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.ItemMove, "rundown", "items", ot.ItemMovePayload(0, 3, "r1"))
	b := ot.New("B", ot.VectorClock{}, 1, func() int64 { return 200 }, ot.ItemMove, "rundown", "items", ot.ItemMovePayload(0, 1, "r1"))

	res := Transform(a, b, cfg)
	require.Equal(t, res.Op.Payload.FromPosition, res.Op.Payload.ToPosition, "later move wins, earlier becomes no-op")
}

func TestTransformAgainstUnrelatedOpIsIdentity(t *testing.T) {
	// P2: transforming against an unrelated (non-concurrent/non-matching) op is identity.
	cfg := DefaultConfig()
	op := insertOp("A", 1, 100, "script", 3, "x")
	unrelated := insertOp("A", 2, 100, "notes", 3, "y") // different field -> precondition fails
	res := Transform(op, unrelated, cfg)
	require.Equal(t, op, res.Op)
}

func TestBatchAccumulatesConflicts(t *testing.T) {
	cfg := DefaultConfig()
	opA := ot.New("A", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.FieldUpdate, "r1", "color", ot.FieldUpdatePayload("red", "blue", ot.DataString))
	opB1 := ot.New("B", ot.VectorClock{}, 1, func() int64 { return 200 }, ot.FieldUpdate, "r1", "color", ot.FieldUpdatePayload("green", "blue", ot.DataString))
	opB2 := ot.New("B", ot.VectorClock{}, 2, func() int64 { return 300 }, ot.FieldUpdate, "r1", "color", ot.FieldUpdatePayload("yellow", "green", ot.DataString))

	_, conflicts := Batch(opA, []ot.Operation{opB1, opB2}, cfg)
	require.Len(t, conflicts, 2)
}
