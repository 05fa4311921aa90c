package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bootlatch/internal/canon"
	"github.com/roach88/bootlatch/internal/embedded"
	"github.com/roach88/bootlatch/internal/envconfig"
	"github.com/roach88/bootlatch/internal/host"
	"github.com/roach88/bootlatch/internal/testutil"
)

type kindKey struct {
	Kind      string
	Key       string
	Deferrals int
}

func summarize(events []Event) []kindKey {
	out := make([]kindKey, len(events))
	for i, e := range events {
		out[i] = kindKey{e.Kind, e.Key, e.Deferrals}
	}
	return out
}

func TestRecorder_DelegatedBoot(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	h, rec := newRecordedHost(t, j, map[string]any{
		"embedded": map[string]any{
			"delegateStart": true,
			"config":        map[string]any{"yo": "my config", "hey": "sup?"},
		},
	})
	require.NoError(t, h.RunInitializers())

	resume, ok := h.Resume()
	require.True(t, ok)
	require.NoError(t, resume(map[string]any{"yay": "one more", "yo": "new config"}))

	assert.Equal(t, "act-1", rec.ActivationID())

	events, err := j.ReadEvents(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, []kindKey{
		{"register", embedded.EnvironmentKey, 0},
		{"defer", "", 1},
		{"attach", "", 1},
		{"initializer", "embedded", 1},
		{"register", embedded.ConfigKey, 1},
		{"advance", "", 0},
		{"booted", "", 0},
	}, summarize(events))

	cfg := events[4]
	assert.Equal(t, `{"hey":"sup?","yay":"one more","yo":"new config"}`, cfg.Payload)
	wantDigest, err := canon.Digest(ConfigDigestDomain, map[string]any{"hey": "sup?", "yay": "one more", "yo": "new config"})
	require.NoError(t, err)
	assert.Equal(t, wantDigest, cfg.Digest)

	assert.Empty(t, events[0].Payload, "environment is not a payload key")

	a, err := j.ReadActivation(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, "journal-test", a.Host)
	assert.Equal(t, int64(1), a.Seq)
	assert.True(t, a.Booted())
	assert.Equal(t, int64(7), a.BootedSeq.Int64)
}

func TestRecorder_ImmediateBoot(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	h, _ := newRecordedHost(t, j, map[string]any{
		"embedded": map[string]any{"config": map[string]any{"donald": "duck"}},
	})
	require.NoError(t, h.Boot(ctx))

	events, err := j.ReadEvents(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, []kindKey{
		{"register", embedded.EnvironmentKey, 0},
		{"register", embedded.ConfigKey, 0},
		{"initializer", "embedded", 0},
		{"booted", "", 0},
	}, summarize(events))
	assert.Equal(t, `{"donald":"duck"}`, events[1].Payload)

	latest, err := j.LatestRegistration(ctx, "act-1", embedded.ConfigKey)
	require.NoError(t, err)
	assert.Equal(t, events[1].Digest, latest.Digest)
}

func TestRecorder_Destroyed(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	h, _ := newRecordedHost(t, j, map[string]any{"embedded": map[string]any{"delegateStart": true}})
	require.NoError(t, h.RunInitializers())
	h.Destroy()

	a, err := j.ReadActivation(ctx, "act-1")
	require.NoError(t, err)
	assert.False(t, a.Booted())
	assert.True(t, a.DestroyedSeq.Valid)
}

func TestRecorder_PayloadKeys(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	rec := NewRecorder(j, WithIDGenerator(testutil.NewFixedIDGenerator("act-1")), WithPayloadKeys(embedded.EnvironmentKey))
	require.NoError(t, rec.Observe(host.Event{Host: "h", Kind: host.EventRegister, Key: embedded.EnvironmentKey, Value: map[string]any{"environment": "test"}}))

	events, err := j.ReadEvents(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, `{"environment":"test"}`, events[0].Payload)
	assert.NotEmpty(t, events[0].Digest)
}

func TestRecorder_TypedEnvironmentPayload(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	env := &envconfig.Environment{
		Name:     "test",
		Embedded: embedded.Options{DelegateStart: true, Config: embedded.Config{"yo": "my config"}},
	}
	rec := NewRecorder(j, WithIDGenerator(testutil.NewFixedIDGenerator("act-1")), WithPayloadKeys(embedded.EnvironmentKey))
	require.NoError(t, rec.Observe(host.Event{Host: "h", Kind: host.EventRegister, Key: embedded.EnvironmentKey, Value: env}))

	ev, err := j.LatestRegistration(ctx, "act-1", embedded.EnvironmentKey)
	require.NoError(t, err)
	assert.Equal(t, `{"embedded":{"config":{"yo":"my config"},"delegateStart":true},"environment":"test"}`, ev.Payload)
	assert.Len(t, ev.Digest, 64)
}

func TestRecorder_UnencodablePayload(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	rec := NewRecorder(j, WithIDGenerator(testutil.NewFixedIDGenerator("act-1")))
	err := rec.Observe(host.Event{Host: "h", Kind: host.EventRegister, Key: embedded.ConfigKey, Value: struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), embedded.ConfigKey)

	events, err := j.ReadEvents(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, events, 1, "the event is recorded without its payload")
	assert.Empty(t, events[0].Payload)
}

func TestRecorder_SharedClock(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()
	clock := NewClock()
	ids := testutil.NewFixedIDGenerator("act-1", "act-2")

	first := NewRecorder(j, WithClock(clock), WithIDGenerator(ids))
	second := NewRecorder(j, WithClock(clock), WithIDGenerator(ids))

	require.NoError(t, first.Observe(host.Event{Host: "a", Kind: host.EventDefer, Deferrals: 1}))
	require.NoError(t, second.Observe(host.Event{Host: "b", Kind: host.EventDefer, Deferrals: 1}))
	require.NoError(t, first.Observe(host.Event{Host: "a", Kind: host.EventAdvance}))

	events, err := j.ReadEvents(ctx, "act-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)

	b, err := j.ReadActivation(ctx, "act-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Seq)
}

func TestRecorder_ClosedJournal(t *testing.T) {
	j := createTestJournal(t)
	require.NoError(t, j.Close())

	rec := NewRecorder(j)
	err := rec.Observe(host.Event{Host: "h", Kind: host.EventDefer})
	assert.Error(t, err)
}

func TestRecorder_DefaultIDIsUUID(t *testing.T) {
	rec := NewRecorder(createTestJournal(t))
	assert.Len(t, rec.ActivationID(), 36)
}
