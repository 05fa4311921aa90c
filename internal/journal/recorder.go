package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/bootlatch/internal/canon"
	"github.com/roach88/bootlatch/internal/embedded"
	"github.com/roach88/bootlatch/internal/host"
)

// Recorder writes the events of one host activation to a journal. It
// implements host.Observer.
type Recorder struct {
	journal     *Journal
	clock       Sequencer
	id          string
	payloadKeys map[string]bool

	mu      sync.Mutex
	started bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock stamps events from clock instead of a fresh Clock.
func WithClock(clock Sequencer) RecorderOption {
	return func(r *Recorder) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithIDGenerator takes the activation id from gen instead of a UUIDv7.
func WithIDGenerator(gen IDGenerator) RecorderOption {
	return func(r *Recorder) {
		if gen != nil {
			r.id = gen.Generate()
		}
	}
}

// WithPayloadKeys also stores canonical payloads for registrations of keys.
// embedded.ConfigKey is always stored.
func WithPayloadKeys(keys ...string) RecorderOption {
	return func(r *Recorder) {
		for _, k := range keys {
			r.payloadKeys[k] = true
		}
	}
}

// NewRecorder creates a recorder for a new activation in j.
func NewRecorder(j *Journal, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		journal:     j,
		clock:       NewClock(),
		payloadKeys: map[string]bool{embedded.ConfigKey: true},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.id == "" {
		r.id = UUIDv7Generator{}.Generate()
	}
	return r
}

// ActivationID returns the id events are recorded under.
func (r *Recorder) ActivationID() string {
	return r.id
}

// Observe records ev. The activation row is written with the first event.
//
// A registered value that cannot be encoded as canonical JSON is recorded
// without a payload and reported as an error.
func (r *Recorder) Observe(ev host.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	seq := r.clock.Next()

	if !r.started {
		if err := r.journal.WriteActivation(ctx, Activation{ID: r.id, Host: ev.Host, Seq: seq}); err != nil {
			return err
		}
		r.started = true
	}

	rec := Event{
		ActivationID: r.id,
		Seq:          seq,
		Kind:         string(ev.Kind),
		Key:          ev.Key,
		Deferrals:    ev.Deferrals,
	}

	var payloadErr error
	if ev.Kind == host.EventRegister && r.payloadKeys[ev.Key] {
		rec.Payload, rec.Digest, payloadErr = encodePayload(ev.Value)
	}

	if err := r.journal.WriteEvent(ctx, rec); err != nil {
		return err
	}

	switch ev.Kind {
	case host.EventBooted:
		if err := r.journal.MarkBooted(ctx, r.id, seq); err != nil {
			return err
		}
	case host.EventDestroyed:
		if err := r.journal.MarkDestroyed(ctx, r.id, seq); err != nil {
			return err
		}
	}

	if payloadErr != nil {
		return fmt.Errorf("record %s payload: %w", ev.Key, payloadErr)
	}
	return nil
}

// mapper is implemented by typed snapshots, such as *envconfig.Environment,
// that have a raw map form.
type mapper interface {
	Map() map[string]any
}

func encodePayload(v any) (payload, digest string, err error) {
	if m, ok := v.(mapper); ok {
		v = m.Map()
	}
	payload, err = canon.MarshalString(v)
	if err != nil {
		return "", "", err
	}
	digest, err = canon.Digest(ConfigDigestDomain, v)
	if err != nil {
		return "", "", err
	}
	return payload, digest, nil
}
