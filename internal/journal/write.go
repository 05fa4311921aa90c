package journal

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteActivation inserts an activation row. Duplicate ids are ignored.
func (j *Journal) WriteActivation(ctx context.Context, a Activation) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO activations (id, host, seq, booted_seq, destroyed_seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.Host, a.Seq, a.BootedSeq, a.DestroyedSeq)
	if err != nil {
		return fmt.Errorf("write activation: %w", err)
	}
	return nil
}

// WriteEvent inserts an event row. An event with an existing
// (activation_id, seq) pair is ignored. The activation must exist.
func (j *Journal) WriteEvent(ctx context.Context, e Event) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (activation_id, seq, kind, key, deferrals, payload, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(activation_id, seq) DO NOTHING
	`, e.ActivationID, e.Seq, e.Kind, e.Key, e.Deferrals, nullString(e.Payload), nullString(e.Digest))
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// MarkBooted records the seq at which the activation booted. Only the first
// call has an effect.
func (j *Journal) MarkBooted(ctx context.Context, activationID string, seq int64) error {
	return j.mark(ctx, "booted_seq", activationID, seq)
}

// MarkDestroyed records the seq at which the activation's host was destroyed.
// Only the first call has an effect.
func (j *Journal) MarkDestroyed(ctx context.Context, activationID string, seq int64) error {
	return j.mark(ctx, "destroyed_seq", activationID, seq)
}

func (j *Journal) mark(ctx context.Context, column, activationID string, seq int64) error {
	res, err := j.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE activations SET %[1]s = ? WHERE id = ? AND %[1]s IS NULL", column),
		seq, activationID)
	if err != nil {
		return fmt.Errorf("mark %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark %s: %w", column, err)
	}
	if n == 0 {
		var exists int
		err := j.db.QueryRowContext(ctx, "SELECT 1 FROM activations WHERE id = ?", activationID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("mark %s: activation %q not found", column, activationID)
		}
		if err != nil {
			return fmt.Errorf("mark %s: %w", column, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
