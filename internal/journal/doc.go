// Package journal records host boot activity in SQLite.
//
// One activation row is written per host the Recorder observes, and one event
// row per host event. Every row is stamped with a logical seq from a Clock;
// all reads order by seq, so a journal reads back in the order events
// happened regardless of wall time.
//
// Registrations of the embedded configuration are stored as canonical JSON
// together with a domain-separated digest, so two activations that ended with
// the same configuration can be matched without decoding payloads.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// The journal is an audit trail. It is never read back into a host, and a
// resumed configuration is not restored from it on the next run.
package journal
