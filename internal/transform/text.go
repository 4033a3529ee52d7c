package transform

import (
	"github.com/rundownhq/collab-core/internal/ot"
)

func transformInsertInsert(op1, op2 ot.Operation) Result {
	p1, p2 := op1.Payload.Position, op2.Payload.Position

	switch {
	case p2 < p1:
		op1.Payload.Position += op2.Payload.Length
	case p2 == p1:
		// Ties break by user id lexicographic order; the smaller user's
		// insert stays left (spec §4.2).
		if op1.UserID > op2.UserID {
			op1.Payload.Position += op2.Payload.Length
		}
	}
	return Result{Op: op1}
}

func transformDeleteDelete(op1, op2 ot.Operation) Result {
	s1, e1 := op1.TextRange()
	s2, e2 := op2.TextRange()

	switch {
	case e2 <= s1:
		// op2 entirely before op1: shift left by op2's length.
		op1.Payload.Position -= op2.Payload.Length
	case s2 >= e1:
		// op2 entirely after op1: no change.
	default:
		overlapStart := max(s1, s2)
		overlapEnd := min(e1, e2)
		overlap := overlapEnd - overlapStart

		newLength := (e1 - s1) - overlap
		newPos := s1
		if s1 >= s2 {
			newPos = s2
		}

		if newLength <= 0 {
			op1.Payload.Position = newPos
			op1.Payload.Length = 0
			op1.Payload.DeletedContent = ""
		} else {
			op1.Payload.Position = newPos
			op1.Payload.Length = newLength
		}
	}
	return Result{Op: op1}
}

func transformReplaceReplace(op1, op2 ot.Operation, cfg Config) Result {
	s1, e1 := op1.TextRange()
	s2, e2 := op2.TextRange()

	if e2 <= s1 {
		// op2 entirely before op1: shift by the net length delta op2 introduced.
		op1.Payload.Position += len([]rune(op2.Payload.NewContent)) - op2.Payload.Length
		return Result{Op: op1}
	}
	if s2 >= e1 {
		// op2 entirely after op1: no change.
		return Result{Op: op1}
	}

	// Overlapping replace: a true conflict, resolved per config.
	conflict := &Conflict{Kind: ot.TextReplace, Op1: op1, Op2: op2, Strategy: string(cfg.TextConflicts)}

	switch cfg.TextConflicts {
	case TextPreferLatest:
		if op2.Timestamp > op1.Timestamp || (op2.Timestamp == op1.Timestamp && ot.TieBreak(op1, op2)) {
			op1.Payload.NewContent = ""
			op1.Payload.Length = 0
			conflict.LocalWon = false
		} else {
			conflict.LocalWon = true
		}
	case TextMerge:
		op1.Payload.NewContent = op1.Payload.NewContent + " | " + op2.Payload.NewContent
		if op2.Payload.Length > op1.Payload.Length {
			op1.Payload.Length = op2.Payload.Length
		}
	case TextManual:
		conflict.NeedsUser = true
	}

	return Result{Op: op1, Conflict: conflict}
}

func transformInsertDelete(op1, op2 ot.Operation) Result {
	insertPos := op1.Payload.Position
	delStart, delEnd := op2.TextRange()

	switch {
	case insertPos < delStart:
		// insert before delete: no change.
	case insertPos >= delEnd:
		// insert strictly after the deleted range: shift left by its length.
		op1.Payload.Position -= op2.Payload.Length
	default:
		// insert inside the deleted range: collapse to the delete's start.
		op1.Payload.Position = delStart
	}
	return Result{Op: op1}
}

func transformDeleteInsert(op1, op2 ot.Operation) Result {
	if op2.Payload.Position <= op1.Payload.Position {
		op1.Payload.Position += op2.Payload.Length
	}
	return Result{Op: op1}
}
