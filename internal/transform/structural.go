package transform

import "github.com/rundownhq/collab-core/internal/ot"

// transformIndexAfterMove remaps a single row-list index for a concurrent
// move(from, to) that has already been applied. pos == from is the moved
// row itself, which ends up at to; otherwise indices between from and to
// shift by one to close/open the gap the move left behind.
func transformIndexAfterMove(pos, from, to int) int {
	switch {
	case pos == from:
		return to
	case from < to:
		if pos > from && pos <= to {
			return pos - 1
		}
	case to < from:
		if pos >= to && pos < from {
			return pos + 1
		}
	}
	return pos
}

func transformItemInsertInsert(op1, op2 ot.Operation) Result {
	if op2.Payload.Position <= op1.Payload.Position {
		op1.Payload.Position++
	}
	return Result{Op: op1}
}

func transformItemDeleteDelete(op1, op2 ot.Operation) Result {
	switch {
	case op2.Payload.Position == op1.Payload.Position:
		op1.Payload.Position = -1 // no-op: the row op1 targeted is already gone.
	case op2.Payload.Position < op1.Payload.Position:
		op1.Payload.Position--
	}
	return Result{Op: op1}
}

func transformItemMoveMove(op1, op2 ot.Operation) Result {
	if op1.Payload.RowID != "" && op1.Payload.RowID == op2.Payload.RowID {
		// Same row moved concurrently: later timestamp wins, the loser
		// becomes a no-op.
		if op2.Timestamp > op1.Timestamp || (op2.Timestamp == op1.Timestamp && ot.TieBreak(op1, op2)) {
			op1.Payload.ToPosition = op1.Payload.FromPosition
		}
		return Result{Op: op1}
	}

	op1.Payload.FromPosition = transformIndexAfterMove(op1.Payload.FromPosition, op2.Payload.FromPosition, op2.Payload.ToPosition)
	op1.Payload.ToPosition = transformIndexAfterMove(op1.Payload.ToPosition, op2.Payload.FromPosition, op2.Payload.ToPosition)
	return Result{Op: op1}
}

func transformItemInsertDelete(op1, op2 ot.Operation) Result {
	if op2.Payload.Position <= op1.Payload.Position {
		op1.Payload.Position--
	}
	return Result{Op: op1}
}

func transformItemDeleteInsert(op1, op2 ot.Operation) Result {
	if op2.Payload.Position <= op1.Payload.Position {
		op1.Payload.Position++
	}
	return Result{Op: op1}
}

func transformItemInsertMove(op1, op2 ot.Operation) Result {
	op1.Payload.Position = transformIndexAfterMove(op1.Payload.Position, op2.Payload.FromPosition, op2.Payload.ToPosition)
	return Result{Op: op1}
}

func transformItemMoveInsert(op1, op2 ot.Operation) Result {
	if op2.Payload.Position <= op1.Payload.FromPosition {
		op1.Payload.FromPosition++
	}
	if op2.Payload.Position <= op1.Payload.ToPosition {
		op1.Payload.ToPosition++
	}
	return Result{Op: op1}
}

func transformItemDeleteMove(op1, op2 ot.Operation) Result {
	op1.Payload.Position = transformIndexAfterMove(op1.Payload.Position, op2.Payload.FromPosition, op2.Payload.ToPosition)
	return Result{Op: op1}
}

func transformItemMoveDelete(op1, op2 ot.Operation) Result {
	if deletedRowID(op2) != "" && deletedRowID(op2) == op1.Payload.RowID {
		// The row op1 wants to move was deleted concurrently: cancel the
		// move by turning it into a no-op (spec §4.2, mixed item rules).
		op1.Payload.ToPosition = op1.Payload.FromPosition
		return Result{Op: op1}
	}

	switch {
	case op2.Payload.Position == op1.Payload.FromPosition:
		op1.Payload.ToPosition = op1.Payload.FromPosition
		return Result{Op: op1}
	case op2.Payload.Position < op1.Payload.FromPosition:
		op1.Payload.FromPosition--
	}
	if op2.Payload.Position < op1.Payload.ToPosition {
		op1.Payload.ToPosition--
	}
	return Result{Op: op1}
}

func deletedRowID(op ot.Operation) string {
	if op.Payload.DeletedRow == nil {
		return ""
	}
	id, _ := op.Payload.DeletedRow["id"].(string)
	return id
}
