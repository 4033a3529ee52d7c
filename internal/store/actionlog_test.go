package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rundownhq/collab-core/internal/ot"
)

func TestDeriveActionLogAddRemoveEdit(t *testing.T) {
	from := []ot.Row{
		{ID: "r1", Fields: map[string]any{"name": "one"}},
		{ID: "r2", Fields: map[string]any{"name": "two"}},
	}
	to := []ot.Row{
		{ID: "r1", Fields: map[string]any{"name": "one-edited"}},
		{ID: "r3", Fields: map[string]any{"name": "three"}},
	}

	entries := DeriveActionLog(from, to)

	var kinds []ActionKind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	require.Contains(t, kinds, ActionRowRemoved)
	require.Contains(t, kinds, ActionRowAdded)
	require.Contains(t, kinds, ActionRowEdited)
}

func TestDeriveActionLogNoChangesIsEmpty(t *testing.T) {
	rows := []ot.Row{{ID: "r1", Fields: map[string]any{"name": "one"}}}
	require.Empty(t, DeriveActionLog(rows, rows))
}

func TestDeriveActionLogReorder(t *testing.T) {
	from := []ot.Row{{ID: "r1"}, {ID: "r2"}}
	to := []ot.Row{{ID: "r2"}, {ID: "r1"}}

	entries := DeriveActionLog(from, to)
	var kinds []ActionKind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	require.Contains(t, kinds, ActionRowReordered)
}
