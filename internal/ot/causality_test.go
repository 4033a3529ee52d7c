package ot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareHappensBefore(t *testing.T) {
	a := VectorClock{"u1": 1, "u2": 2}
	b := VectorClock{"u1": 1, "u2": 3}
	require.Equal(t, Before, Compare(a, b))
	require.Equal(t, After, Compare(b, a))
}

func TestCompareConcurrent(t *testing.T) {
	a := VectorClock{"u1": 2, "u2": 1}
	b := VectorClock{"u1": 1, "u2": 2}
	require.Equal(t, Concurrent, Compare(a, b))
	require.Equal(t, Concurrent, Compare(b, a))
}

func TestCompareEqual(t *testing.T) {
	a := VectorClock{"u1": 1}
	b := VectorClock{"u1": 1}
	require.Equal(t, Equal, Compare(a, b))
}

func TestTieBreakByTimestampThenUser(t *testing.T) {
	a := Operation{UserID: "b", Timestamp: 100}
	b := Operation{UserID: "a", Timestamp: 200}
	require.True(t, TieBreak(a, b))
	require.False(t, TieBreak(b, a))

	c := Operation{UserID: "b", Timestamp: 100}
	d := Operation{UserID: "a", Timestamp: 100}
	require.True(t, TieBreak(d, c))
}

func TestConflictsTextOverlap(t *testing.T) {
	a := Operation{
		TargetID: "r1", Field: "script", Type: TextReplace,
		VectorClock: VectorClock{"a": 1},
		Payload:     TextReplacePayload(1, "abc", "XYZ"),
	}
	b := Operation{
		TargetID: "r1", Field: "script", Type: TextReplace,
		VectorClock: VectorClock{"b": 1},
		Payload:     TextReplacePayload(2, "bc", "QQ"),
	}
	require.True(t, Conflicts(a, b))
}

func TestConflictsDifferentField(t *testing.T) {
	a := Operation{TargetID: "r1", Field: "script", Type: FieldUpdate, VectorClock: VectorClock{"a": 1}}
	b := Operation{TargetID: "r1", Field: "notes", Type: FieldUpdate, VectorClock: VectorClock{"b": 1}}
	require.False(t, Conflicts(a, b))
}

func TestConflictsNotConcurrent(t *testing.T) {
	a := Operation{TargetID: "r1", Field: "name", Type: FieldUpdate, VectorClock: VectorClock{"a": 1}}
	b := Operation{TargetID: "r1", Field: "name", Type: FieldUpdate, VectorClock: VectorClock{"a": 2}}
	require.False(t, Conflicts(a, b))
}

func TestConflictsStructuralSamePosition(t *testing.T) {
	a := Operation{TargetID: "rundown", Field: "items", Type: ItemInsert, VectorClock: VectorClock{"a": 1},
		Payload: ItemInsertPayload(2, nil)}
	b := Operation{TargetID: "rundown", Field: "items", Type: ItemDelete, VectorClock: VectorClock{"b": 1},
		Payload: ItemDeletePayload(2, nil)}
	require.True(t, Conflicts(a, b))
}
