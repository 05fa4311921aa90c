package journal

import "database/sql"

// ConfigDigestDomain separates embedded configuration digests from any other
// digest computed over canonical JSON.
const ConfigDigestDomain = "bootlatch/config/v1"

// Activation is one observed host lifetime.
type Activation struct {
	ID           string
	Host         string
	Seq          int64
	BootedSeq    sql.NullInt64
	DestroyedSeq sql.NullInt64
}

// Booted reports whether the host reached its booted event.
func (a Activation) Booted() bool {
	return a.BootedSeq.Valid
}

// Event is one journaled host event.
type Event struct {
	ActivationID string
	Seq          int64
	Kind         string
	Key          string
	Deferrals    int

	// Payload is the canonical JSON of the registered value and Digest its
	// digest under ConfigDigestDomain. Both are empty when the event carried
	// no value the journal stores.
	Payload string
	Digest  string
}
