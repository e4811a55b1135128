package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OutboxEntry is a job written alongside the data change that caused it
type OutboxEntry struct {
	ID           string
	Kind         string
	Payload      []byte
	CreatedAt    time.Time
	DispatchedAt *time.Time
	Attempts     int
}

// JobFailure is a job that exhausted its retries
type JobFailure struct {
	ID       int64     `json:"id"`
	JobID    string    `json:"job_id"`
	Kind     string    `json:"kind"`
	Payload  string    `json:"payload"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func insertOutbox(ctx context.Context, tx *sql.Tx, entries []OutboxEntry) error {
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = NewID()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = Now()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO job_outbox (id, kind, payload, created_at) VALUES (?, ?, ?, ?)
		`, e.ID, e.Kind, string(e.Payload), formatTimestamp(e.CreatedAt)); err != nil {
			return fmt.Errorf("inserting outbox entry: %w", err)
		}
	}
	return nil
}

// EnqueueOutbox writes jobs that have no accompanying data change
func (s *Store) EnqueueOutbox(ctx context.Context, entries []OutboxEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertOutbox(ctx, tx, entries)
	})
}

// PendingOutbox returns undispatched entries, oldest first
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, created_at, attempts FROM job_outbox
		WHERE dispatched_at IS NULL ORDER BY created_at, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.Kind, &payload, &e.CreatedAt, &e.Attempts); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkDispatched records that an entry reached the queue
func (s *Store) MarkDispatched(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_outbox SET dispatched_at = ?, attempts = attempts + 1 WHERE id = ? AND dispatched_at IS NULL
	`, formatTimestamp(Now()), id)
	return err
}

// MarkDispatchFailed counts a failed publish attempt
func (s *Store) MarkDispatchFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE job_outbox SET attempts = attempts + 1 WHERE id = ?`, id)
	return err
}

// RecordJobFailure stores a terminal job failure for operators
func (s *Store) RecordJobFailure(ctx context.Context, f JobFailure) error {
	if f.FailedAt.IsZero() {
		f.FailedAt = Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_failures (job_id, kind, payload, attempts, error, failed_at) VALUES (?, ?, ?, ?, ?, ?)
	`, f.JobID, f.Kind, f.Payload, f.Attempts, f.Error, formatTimestamp(f.FailedAt))
	return err
}

// ListJobFailures returns the most recent terminal failures
func (s *Store) ListJobFailures(ctx context.Context, limit int) ([]JobFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, kind, payload, attempts, error, failed_at FROM job_failures
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failures := []JobFailure{}
	for rows.Next() {
		var f JobFailure
		if err := rows.Scan(&f.ID, &f.JobID, &f.Kind, &f.Payload, &f.Attempts, &f.Error, &f.FailedAt); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
