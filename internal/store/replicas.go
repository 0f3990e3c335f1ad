package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// QueueReplica records the intent to store both copies of a message.
// Idempotent on msg_id.
func (db *DB) QueueReplica(ctx context.Context, r *Replica) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO replicas (msg_id, sender, peer, text, is_attachment, created_at, status, queued_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(msg_id) DO NOTHING`,
		r.MsgID, r.Sender, r.Peer, r.Text, r.IsAttachment, r.CreatedAt, now, now)
	return err
}

// MarkReplicaDone marks both copies of msgID as written.
func (db *DB) MarkReplicaDone(ctx context.Context, msgID string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE replicas SET status = 'done', error_message = '', updated_at = ? WHERE msg_id = ?`,
		time.Now().UnixMilli(), msgID)
	return err
}

// MarkReplicaRetry records a failed attempt. The replica stays queued until
// maxAttempts is reached, then it is marked failed. Returns the new status.
func (db *DB) MarkReplicaRetry(ctx context.Context, msgID, errMsg string, maxAttempts int) (string, error) {
	var status string
	err := db.QueryRowContext(ctx, `
		UPDATE replicas SET
			attempts = attempts + 1,
			error_message = ?,
			status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'queued' END,
			updated_at = ?
		WHERE msg_id = ?
		RETURNING status`,
		errMsg, maxAttempts, time.Now().UnixMilli(), msgID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return status, err
}

// PendingReplicas returns queued replicas queued at or before queuedBefore (unix ms), oldest first.
func (db *DB) PendingReplicas(ctx context.Context, queuedBefore int64, limit int) ([]Replica, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT msg_id, sender, peer, text, is_attachment, created_at, status, attempts, error_message
		FROM replicas
		WHERE status = 'queued' AND queued_at <= ?
		ORDER BY queued_at ASC
		LIMIT ?`, queuedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Replica
	for rows.Next() {
		r, err := scanReplica(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetReplica returns the replica intent for msgID, or ErrNotFound.
func (db *DB) GetReplica(ctx context.Context, msgID string) (*Replica, error) {
	row := db.QueryRowContext(ctx, `
		SELECT msg_id, sender, peer, text, is_attachment, created_at, status, attempts, error_message
		FROM replicas WHERE msg_id = ?`, msgID)
	r, err := scanReplica(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ReplicaCount returns the number of replicas with the given status.
func (db *DB) ReplicaCount(ctx context.Context, status string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replicas WHERE status = ?`, status).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReplica(s scanner) (*Replica, error) {
	var r Replica
	if err := s.Scan(&r.MsgID, &r.Sender, &r.Peer, &r.Text, &r.IsAttachment, &r.CreatedAt, &r.Status, &r.Attempts, &r.ErrorMessage); err != nil {
		return nil, err
	}
	return &r, nil
}
