package journal

import (
	"context"
	"database/sql"
	"fmt"
)

// ReadActivation returns the activation with the given id.
// Returns sql.ErrNoRows if not found.
func (j *Journal) ReadActivation(ctx context.Context, id string) (Activation, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, host, seq, booted_seq, destroyed_seq
		FROM activations
		WHERE id = ?
	`, id)

	var a Activation
	if err := row.Scan(&a.ID, &a.Host, &a.Seq, &a.BootedSeq, &a.DestroyedSeq); err != nil {
		if err == sql.ErrNoRows {
			return Activation{}, err
		}
		return Activation{}, fmt.Errorf("scan activation: %w", err)
	}
	return a, nil
}

// ListActivations returns every activation. Ids are UUIDv7 in production, so
// ordering by id lists activations across processes in creation order.
//
// Returns an empty slice (not nil) if the journal is empty.
func (j *Journal) ListActivations(ctx context.Context) ([]Activation, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, host, seq, booted_seq, destroyed_seq
		FROM activations
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query activations: %w", err)
	}
	defer rows.Close()

	activations := []Activation{}
	for rows.Next() {
		var a Activation
		if err := rows.Scan(&a.ID, &a.Host, &a.Seq, &a.BootedSeq, &a.DestroyedSeq); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		activations = append(activations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activations: %w", err)
	}
	return activations, nil
}

// LatestActivation returns the most recently created activation.
// Returns sql.ErrNoRows if the journal is empty.
func (j *Journal) LatestActivation(ctx context.Context) (Activation, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `
		SELECT id FROM activations ORDER BY id COLLATE BINARY DESC LIMIT 1
	`).Scan(&id)
	if err != nil {
		return Activation{}, err
	}
	return j.ReadActivation(ctx, id)
}

// ReadEvents returns the events of an activation ordered by seq.
//
// Returns an empty slice (not nil) if the activation has no events.
func (j *Journal) ReadEvents(ctx context.Context, activationID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT activation_id, seq, kind, key, deferrals, payload, digest
		FROM events
		WHERE activation_id = ?
		ORDER BY seq ASC
	`, activationID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LatestRegistration returns the last register event for key in an
// activation. Returns sql.ErrNoRows if key was never registered.
func (j *Journal) LatestRegistration(ctx context.Context, activationID, key string) (Event, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT activation_id, seq, kind, key, deferrals, payload, digest
		FROM events
		WHERE activation_id = ? AND kind = 'register' AND key = ?
		ORDER BY seq DESC
		LIMIT 1
	`, activationID, key)

	e, err := scanEvent(row)
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (Event, error) {
	var (
		e       Event
		payload sql.NullString
		digest  sql.NullString
	)
	if err := s.Scan(&e.ActivationID, &e.Seq, &e.Kind, &e.Key, &e.Deferrals, &payload, &digest); err != nil {
		if err == sql.ErrNoRows {
			return Event{}, err
		}
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	e.Payload = payload.String
	e.Digest = digest.String
	return e, nil
}
