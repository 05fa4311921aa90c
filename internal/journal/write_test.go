package journal

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteActivation_Idempotent(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	a := Activation{ID: "act-1", Host: "app", Seq: 1}
	require.NoError(t, j.WriteActivation(ctx, a))
	require.NoError(t, j.WriteActivation(ctx, Activation{ID: "act-1", Host: "other", Seq: 9}))

	got, err := j.ReadActivation(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, a, got, "second write with the same id is ignored")
}

func TestWriteEvent_RequiresActivation(t *testing.T) {
	j := createTestJournal(t)

	err := j.WriteEvent(context.Background(), Event{ActivationID: "ghost", Seq: 1, Kind: "defer"})
	assert.Error(t, err, "foreign key should reject an unknown activation")
}

func TestWriteEvent_DuplicateSeqIgnored(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.WriteActivation(ctx, Activation{ID: "act-1", Host: "app", Seq: 1}))
	require.NoError(t, j.WriteEvent(ctx, Event{ActivationID: "act-1", Seq: 1, Kind: "defer", Deferrals: 1}))
	require.NoError(t, j.WriteEvent(ctx, Event{ActivationID: "act-1", Seq: 1, Kind: "advance"}))

	events, err := j.ReadEvents(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "defer", events[0].Kind)
}

func TestMarkBooted_FirstWins(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.WriteActivation(ctx, Activation{ID: "act-1", Host: "app", Seq: 1}))
	require.NoError(t, j.MarkBooted(ctx, "act-1", 5))
	require.NoError(t, j.MarkBooted(ctx, "act-1", 8))

	got, err := j.ReadActivation(ctx, "act-1")
	require.NoError(t, err)
	assert.True(t, got.Booted())
	assert.Equal(t, sql.NullInt64{Int64: 5, Valid: true}, got.BootedSeq)
	assert.False(t, got.DestroyedSeq.Valid)
}

func TestMarkDestroyed(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.WriteActivation(ctx, Activation{ID: "act-1", Host: "app", Seq: 1}))
	require.NoError(t, j.MarkDestroyed(ctx, "act-1", 3))

	got, err := j.ReadActivation(ctx, "act-1")
	require.NoError(t, err)
	assert.False(t, got.Booted())
	assert.Equal(t, int64(3), got.DestroyedSeq.Int64)
}

func TestMark_UnknownActivation(t *testing.T) {
	j := createTestJournal(t)

	err := j.MarkBooted(context.Background(), "ghost", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
