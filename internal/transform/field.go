package transform

import "github.com/rundownhq/collab-core/internal/ot"

// transformFieldFieldUpdate: two concurrent field_update operations on the
// same (target, field) always conflict (spec §4.2).
func transformFieldFieldUpdate(op1, op2 ot.Operation, cfg Config) Result {
	conflict := &Conflict{Kind: ot.FieldUpdate, Op1: op1, Op2: op2, Strategy: string(cfg.FieldConflicts)}

	switch cfg.FieldConflicts {
	case FieldPreferLatest:
		if op2.Timestamp > op1.Timestamp || (op2.Timestamp == op1.Timestamp && ot.TieBreak(op1, op2)) {
			// op2 is later: op1 is reverted to the value it was overwriting.
			op1.Payload.NewValue, op1.Payload.OldValue = op1.Payload.OldValue, op1.Payload.NewValue
			conflict.LocalWon = false
		} else {
			conflict.LocalWon = true
		}
	case FieldPreferLocal:
		conflict.LocalWon = true
	case FieldManual:
		conflict.NeedsUser = true
	}

	return Result{Op: op1, Conflict: conflict}
}
