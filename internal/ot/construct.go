package ot

// Clock is the minimal time source an operation creator needs. Production
// wiring uses time.Now; tests supply a fixed clock so timestamp is never
// used for anything but the tie-breaker (spec §3: "never for correctness").
type Clock func() int64

// New builds an operation envelope for userID given the caller's current
// vector clock and the next local sequence number for that user. The
// envelope's vector clock is the caller's clock advanced to (userID, seq).
func New(userID string, current VectorClock, seq uint64, now Clock, typ OperationType, targetID, field string, payload Payload) Operation {
	return Operation{
		ID:          OperationID{UserID: userID, Sequence: seq},
		Type:        typ,
		TargetID:    targetID,
		Field:       field,
		UserID:      userID,
		Timestamp:   now(),
		VectorClock: current.Advance(userID, seq),
		Payload:     payload,
	}
}

// TextInsertPayload builds the payload for a text_insert operation;
// length is derived from content so callers never declare it out of sync.
func TextInsertPayload(position int, content string) Payload {
	return Payload{Position: position, Content: content, Length: len([]rune(content))}
}

// TextDeletePayload builds the payload for a text_delete operation.
func TextDeletePayload(position, length int, deletedContent string) Payload {
	return Payload{Position: position, Length: length, DeletedContent: deletedContent}
}

// TextReplacePayload builds the payload for a text_replace operation.
func TextReplacePayload(position int, oldContent, newContent string) Payload {
	return Payload{Position: position, Length: len([]rune(oldContent)), OldContent: oldContent, NewContent: newContent}
}

// FieldUpdatePayload builds the payload for a field_update operation.
// newValue/oldValue must both be explicitly supplied, even if nil, which is
// why this constructor (rather than a zero Payload) is the intended path.
func FieldUpdatePayload(newValue, oldValue any, dataType DataType) Payload {
	return Payload{
		NewValue: newValue, OldValue: oldValue,
		HasNewValue: true, HasOldValue: true,
		DataType: dataType,
	}
}

// ItemInsertPayload builds the payload for an item_insert operation.
func ItemInsertPayload(position int, row map[string]any) Payload {
	return Payload{Position: position, Row: row}
}

// ItemDeletePayload builds the payload for an item_delete operation.
func ItemDeletePayload(position int, deletedRow map[string]any) Payload {
	return Payload{Position: position, DeletedRow: deletedRow}
}

// ItemMovePayload builds the payload for an item_move operation.
func ItemMovePayload(fromPosition, toPosition int, rowID string) Payload {
	return Payload{FromPosition: fromPosition, ToPosition: toPosition, RowID: rowID}
}
