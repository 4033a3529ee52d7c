package store

import (
	"reflect"

	"github.com/rundownhq/collab-core/internal/ot"
)

// ActionKind classifies a single derived action-log entry.
type ActionKind string

const (
	ActionRowAdded     ActionKind = "row_added"
	ActionRowRemoved   ActionKind = "row_removed"
	ActionRowReordered ActionKind = "row_reordered"
	ActionRowEdited    ActionKind = "row_edited"
)

// ActionLogEntry is one derived change between two adjacent revisions
// (spec §6: "Action-log entries are derived from revision pairs plus an
// optional operations log table").
type ActionLogEntry struct {
	Kind  ActionKind
	RowID string
}

// DeriveActionLog diffs two revisions' item lists and produces the
// action-log entries between them, the way internal/ot's canonical
// signature derives row presence from a document's current rows: rows
// present only in `to` are additions, rows present only in `from` are
// removals, rows present in both but with a different field set or
// different position are edits or reorders respectively.
func DeriveActionLog(from, to []ot.Row) []ActionLogEntry {
	fromIndex := indexByID(from)
	toIndex := indexByID(to)

	var entries []ActionLogEntry
	for id := range fromIndex {
		if _, ok := toIndex[id]; !ok {
			entries = append(entries, ActionLogEntry{Kind: ActionRowRemoved, RowID: id})
		}
	}
	for id, toPos := range toIndex {
		fromPos, existed := fromIndex[id]
		if !existed {
			entries = append(entries, ActionLogEntry{Kind: ActionRowAdded, RowID: id})
			continue
		}
		if !fieldsEqual(from[fromPos].Fields, to[toPos].Fields) {
			entries = append(entries, ActionLogEntry{Kind: ActionRowEdited, RowID: id})
		}
		if fromPos != toPos && rankWithoutID(fromIndex, toIndex, id) != rankWithoutID(toIndex, fromIndex, id) {
			entries = append(entries, ActionLogEntry{Kind: ActionRowReordered, RowID: id})
		}
	}
	return entries
}

func indexByID(rows []ot.Row) map[string]int {
	out := make(map[string]int, len(rows))
	for i, r := range rows {
		out[r.ID] = i
	}
	return out
}

// rankWithoutID approximates relative order so a reorder is only reported
// when a row's position shifted relative to the rows shared between both
// revisions, not merely because insertions/deletions elsewhere shifted
// absolute indices.
func rankWithoutID(index, other map[string]int, id string) int {
	pos, ok := index[id]
	if !ok {
		return -1
	}
	rank := 0
	for otherID, p := range index {
		if _, shared := other[otherID]; shared && p < pos {
			rank++
		}
	}
	return rank
}

func fieldsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		other, ok := b[k]
		if !ok || !reflect.DeepEqual(other, v) {
			return false
		}
	}
	return true
}
