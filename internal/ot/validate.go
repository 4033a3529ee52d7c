package ot

import "github.com/pkg/errors"

// ErrInvalidOperation is the sentinel wrapped by every validation failure;
// validation errors are rejected at submit and never logged to the
// operation log (spec §7, "Validation").
var ErrInvalidOperation = errors.New("invalid operation")

func invalid(reason string) error {
	return errors.Wrap(ErrInvalidOperation, reason)
}

// Validate checks an operation envelope and payload against spec §4.1.
// Validation never inspects causality; that is the transformer's concern.
func Validate(op Operation) error {
	if op.ID.UserID == "" {
		return invalid("missing operation id.userId")
	}
	if op.Type == "" {
		return invalid("missing operation type")
	}
	if op.TargetID == "" {
		return invalid("missing targetId")
	}
	if op.Field == "" {
		return invalid("missing field")
	}
	if op.UserID == "" {
		return invalid("missing userId")
	}

	switch op.Type {
	case TextInsert:
		return validateTextInsert(op)
	case TextDelete:
		return validateTextDelete(op)
	case TextReplace:
		return validateTextReplace(op)
	case FieldUpdate:
		return validateFieldUpdate(op)
	case ItemInsert:
		return validateItemInsert(op)
	case ItemDelete:
		return validateItemDelete(op)
	case ItemMove:
		return validateItemMove(op)
	default:
		return invalid("unknown operation type " + string(op.Type))
	}
}

func validateTextInsert(op Operation) error {
	if op.Payload.Position < 0 {
		return invalid("text_insert position must be non-negative")
	}
	if op.Payload.Length != len([]rune(op.Payload.Content)) {
		return invalid("text_insert length must equal content length")
	}
	return nil
}

func validateTextDelete(op Operation) error {
	if op.Payload.Position < 0 {
		return invalid("text_delete position must be non-negative")
	}
	if op.Payload.Length < 0 {
		return invalid("text_delete length must be non-negative")
	}
	return nil
}

func validateTextReplace(op Operation) error {
	if op.Payload.Position < 0 {
		return invalid("text_replace position must be non-negative")
	}
	if op.Payload.Length != len([]rune(op.Payload.OldContent)) {
		return invalid("text_replace length must equal oldContent length")
	}
	return nil
}

func validateFieldUpdate(op Operation) error {
	if !op.Payload.HasNewValue || !op.Payload.HasOldValue {
		return invalid("field_update requires both newValue and oldValue to be defined")
	}
	switch op.Payload.DataType {
	case DataString, DataNumber, DataBoolean, DataObject, DataArray:
	default:
		return invalid("field_update dataType must be one of string|number|boolean|object|array")
	}
	return nil
}

func validateItemInsert(op Operation) error {
	if op.Payload.Position < 0 {
		return invalid("item_insert position must be non-negative")
	}
	return nil
}

func validateItemDelete(op Operation) error {
	if op.Payload.Position < 0 {
		return invalid("item_delete position must be non-negative")
	}
	return nil
}

func validateItemMove(op Operation) error {
	if op.Payload.FromPosition < 0 || op.Payload.ToPosition < 0 {
		return invalid("item_move positions must be non-negative")
	}
	if op.Payload.FromPosition == op.Payload.ToPosition {
		return invalid("item_move fromPosition must differ from toPosition")
	}
	return nil
}
