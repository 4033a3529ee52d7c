package engine

import (
	"github.com/pkg/errors"
	"github.com/rundownhq/collab-core/internal/ot"
)

// ErrApplyFailed is wrapped by apply when a transformed operation is no
// longer meaningful against the current document (spec §4.3 "Apply
// failure", §7 "Apply failure"): the target row is missing, or a
// structural index no longer makes sense. The caller does not append the
// operation to the log and leaves it pending for the next pass.
var ErrApplyFailed = errors.New("operation no longer applies to current document state")

// apply mutates doc in place per the per-kind rules of spec §4.3. It
// returns ErrApplyFailed (wrapping a reason) when the op has become
// meaningless; doc is left unmodified in that case.
func apply(doc *ot.Document, op ot.Operation) error {
	switch op.Type {
	case ot.TextInsert, ot.TextDelete, ot.TextReplace:
		return applyText(doc, op)
	case ot.FieldUpdate:
		return applyFieldUpdate(doc, op)
	case ot.ItemInsert:
		return applyItemInsert(doc, op)
	case ot.ItemDelete:
		return applyItemDelete(doc, op)
	case ot.ItemMove:
		return applyItemMove(doc, op)
	default:
		return errors.Wrapf(ErrApplyFailed, "unknown operation type %q", op.Type)
	}
}

func applyText(doc *ot.Document, op ot.Operation) error {
	current, err := getStringField(doc, op.TargetID, op.Field)
	if err != nil {
		return err
	}
	runes := []rune(current)

	var next string
	switch op.Type {
	case ot.TextInsert:
		pos := op.Payload.Position
		if pos < 0 || pos > len(runes) {
			return errors.Wrapf(ErrApplyFailed, "text_insert position %d out of range [0,%d]", pos, len(runes))
		}
		out := make([]rune, 0, len(runes)+len([]rune(op.Payload.Content)))
		out = append(out, runes[:pos]...)
		out = append(out, []rune(op.Payload.Content)...)
		out = append(out, runes[pos:]...)
		next = string(out)
	case ot.TextDelete:
		if op.Payload.Position < 0 || op.Payload.Length <= 0 {
			return nil // cancelled no-op: leave the field untouched.
		}
		start := op.Payload.Position
		end := start + op.Payload.Length
		if start > len(runes) {
			return errors.Wrapf(ErrApplyFailed, "text_delete position %d beyond field length %d", start, len(runes))
		}
		if end > len(runes) {
			end = len(runes)
		}
		next = string(runes[:start]) + string(runes[end:])
	case ot.TextReplace:
		if op.Payload.NewContent == "" && op.Payload.Length == 0 && op.Payload.OldContent != "" {
			return nil // cancelled no-op from a lost overlapping replace.
		}
		start := op.Payload.Position
		end := start + op.Payload.Length
		if start > len(runes) {
			return errors.Wrapf(ErrApplyFailed, "text_replace position %d beyond field length %d", start, len(runes))
		}
		if end > len(runes) {
			end = len(runes)
		}
		next = string(runes[:start]) + op.Payload.NewContent + string(runes[end:])
	}

	return setStringField(doc, op.TargetID, op.Field, next)
}

func applyFieldUpdate(doc *ot.Document, op ot.Operation) error {
	return setField(doc, op.TargetID, op.Field, op.Payload.NewValue)
}

func applyItemInsert(doc *ot.Document, op ot.Operation) error {
	if op.Payload.Position < 0 {
		return nil // no-op
	}
	if op.Payload.Position > len(doc.Rows) {
		return errors.Wrapf(ErrApplyFailed, "item_insert position %d beyond row count %d", op.Payload.Position, len(doc.Rows))
	}
	row := ot.Row{Kind: ot.RowRegular, Fields: map[string]any{}}
	if id, ok := op.Payload.Row["id"].(string); ok {
		row.ID = id
	}
	if kind, ok := op.Payload.Row["type"].(string); ok && kind == string(ot.RowHeader) {
		row.Kind = ot.RowHeader
	}
	for k, v := range op.Payload.Row {
		if k == "id" || k == "type" {
			continue
		}
		row.Fields[k] = v
	}

	doc.Rows = append(doc.Rows, ot.Row{})
	copy(doc.Rows[op.Payload.Position+1:], doc.Rows[op.Payload.Position:])
	doc.Rows[op.Payload.Position] = row
	return nil
}

func applyItemDelete(doc *ot.Document, op ot.Operation) error {
	if op.Payload.Position < 0 {
		return nil // no-op: transformed away by a concurrent delete.
	}
	if op.Payload.Position >= len(doc.Rows) {
		return errors.Wrapf(ErrApplyFailed, "item_delete position %d beyond row count %d", op.Payload.Position, len(doc.Rows))
	}
	doc.Rows = append(doc.Rows[:op.Payload.Position], doc.Rows[op.Payload.Position+1:]...)
	return nil
}

func applyItemMove(doc *ot.Document, op ot.Operation) error {
	from, to := op.Payload.FromPosition, op.Payload.ToPosition
	if from == to {
		return nil // no-op
	}
	if from < 0 || from >= len(doc.Rows) || to < 0 || to >= len(doc.Rows) {
		return errors.Wrapf(ErrApplyFailed, "item_move [%d -> %d] out of range for %d rows", from, to, len(doc.Rows))
	}
	row := doc.Rows[from]
	doc.Rows = append(doc.Rows[:from], doc.Rows[from+1:]...)
	doc.Rows = append(doc.Rows, ot.Row{})
	copy(doc.Rows[to+1:], doc.Rows[to:])
	doc.Rows[to] = row
	return nil
}

func findRow(doc *ot.Document, rowID string) (*ot.Row, error) {
	idx := doc.RowIndex(rowID)
	if idx < 0 {
		return nil, errors.Wrapf(ErrApplyFailed, "row %q not found", rowID)
	}
	return &doc.Rows[idx], nil
}

// getStringField reads the string a text operation edits. When targetId is
// RundownTarget the only addressable fields are the document-level "title"
// and "externalNotes" (spec §3: the document's string-valued top-level
// fields).
func getStringField(doc *ot.Document, targetID, field string) (string, error) {
	if targetID == RundownTarget {
		switch field {
		case "title":
			return doc.Title, nil
		case "externalNotes":
			return doc.ExternalNotes, nil
		default:
			return "", errors.Wrapf(ErrApplyFailed, "document has no text field %q", field)
		}
	}
	row, err := findRow(doc, targetID)
	if err != nil {
		return "", err
	}
	return row.Text(field), nil // missing value treated as "" (spec §4.3)
}

func setStringField(doc *ot.Document, targetID, field, value string) error {
	if targetID == RundownTarget {
		switch field {
		case "title":
			doc.Title = value
			return nil
		case "externalNotes":
			doc.ExternalNotes = value
			return nil
		default:
			return errors.Wrapf(ErrApplyFailed, "document has no text field %q", field)
		}
	}
	row, err := findRow(doc, targetID)
	if err != nil {
		return err
	}
	if row.Fields == nil {
		row.Fields = map[string]any{}
	}
	row.Fields[field] = value
	return nil
}

func setField(doc *ot.Document, targetID, field string, value any) error {
	if targetID == RundownTarget {
		switch field {
		case "title":
			s, _ := value.(string)
			doc.Title = s
			return nil
		case "externalNotes":
			s, _ := value.(string)
			doc.ExternalNotes = s
			return nil
		case "startTime":
			s, _ := value.(string)
			doc.StartTime = s
			return nil
		case "timezone":
			s, _ := value.(string)
			doc.Timezone = s
			return nil
		case "showDate":
			if value == nil {
				doc.ShowDate = nil
				return nil
			}
			s, _ := value.(string)
			doc.ShowDate = &s
			return nil
		default:
			return errors.Wrapf(ErrApplyFailed, "document has no field %q", field)
		}
	}
	row, err := findRow(doc, targetID)
	if err != nil {
		return err
	}
	if row.Fields == nil {
		row.Fields = map[string]any{}
	}
	row.Fields[field] = value
	return nil
}
