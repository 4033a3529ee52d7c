package save

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rundownhq/collab-core/internal/engine"
	"github.com/rundownhq/collab-core/internal/ot"
)

// TestReplayPendingAppliesOpsOnTopOfServerState exercises the C2 replay
// step of the legacy CAS retry loop in isolation; the etcd transaction
// itself requires a live cluster and is not exercised here.
func TestReplayPendingAppliesOpsOnTopOfServerState(t *testing.T) {
	serverDoc := ot.Document{ID: "doc1", Rows: []ot.Row{{ID: "r1", Kind: ot.RowRegular, Fields: map[string]any{"name": "server-wins"}}}}

	pending := []ot.Operation{
		ot.New("alice", ot.VectorClock{}, 1, func() int64 { return 100 }, ot.FieldUpdate, "r1", "notes",
			ot.FieldUpdatePayload("local edit", nil, ot.DataString)),
	}

	merged, err := replayPending(serverDoc, pending, engine.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "server-wins", merged.Rows[0].Fields["name"], "the server's concurrent state is preserved")
	require.Equal(t, "local edit", merged.Rows[0].Fields["notes"], "the locally-pending op replays on top of it")
}
