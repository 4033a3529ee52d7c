package ot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateTextInsertLengthMismatch(t *testing.T) {
	op := Operation{
		ID: OperationID{UserID: "u1", Sequence: 1}, Type: TextInsert,
		TargetID: "r1", Field: "script", UserID: "u1",
		Payload: Payload{Position: 0, Content: "hi", Length: 1},
	}
	require.ErrorIs(t, Validate(op), ErrInvalidOperation)
}

func TestValidateTextInsertOK(t *testing.T) {
	op := Operation{
		ID: OperationID{UserID: "u1", Sequence: 1}, Type: TextInsert,
		TargetID: "r1", Field: "script", UserID: "u1",
		Payload: TextInsertPayload(0, "hi"),
	}
	require.NoError(t, Validate(op))
}

func TestValidateFieldUpdateRequiresBothValuesDefined(t *testing.T) {
	op := Operation{
		ID: OperationID{UserID: "u1", Sequence: 1}, Type: FieldUpdate,
		TargetID: "r1", Field: "color", UserID: "u1",
		Payload: Payload{NewValue: "red", HasNewValue: true, DataType: DataString},
	}
	require.ErrorIs(t, Validate(op), ErrInvalidOperation)

	op.Payload = FieldUpdatePayload("red", "blue", DataString)
	require.NoError(t, Validate(op))
}

func TestValidateFieldUpdateUndefinedIsNotNil(t *testing.T) {
	// newValue explicitly nil is still "defined" provided HasNewValue is set.
	op := Operation{
		ID: OperationID{UserID: "u1", Sequence: 1}, Type: FieldUpdate,
		TargetID: "r1", Field: "color", UserID: "u1",
		Payload: FieldUpdatePayload(nil, "blue", DataString),
	}
	require.NoError(t, Validate(op))
}

func TestValidateItemMoveRejectsNoopPositions(t *testing.T) {
	op := Operation{
		ID: OperationID{UserID: "u1", Sequence: 1}, Type: ItemMove,
		TargetID: "rundown", Field: "items", UserID: "u1",
		Payload: ItemMovePayload(2, 2, "r1"),
	}
	require.ErrorIs(t, Validate(op), ErrInvalidOperation)
}

func TestDetectDataTypeArrayBeforeObject(t *testing.T) {
	require.Equal(t, DataArray, DetectDataType([]any{1, 2}))
	require.Equal(t, DataObject, DetectDataType(map[string]any{"a": 1}))
	require.Equal(t, DataBoolean, DetectDataType(true))
	require.Equal(t, DataNumber, DetectDataType(1.5))
	require.Equal(t, DataString, DetectDataType("x"))
}
