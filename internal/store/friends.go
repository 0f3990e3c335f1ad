package store

import (
	"context"
	"time"
)

// PutFriend writes the one-way edge owner -> partner. Idempotent.
func (db *DB) PutFriend(ctx context.Context, owner, partner string) (inserted bool, err error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO friends (owner, partner, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner, partner) DO NOTHING`,
		owner, partner, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListFriends returns the partners of owner's outgoing edges, oldest first.
func (db *DB) ListFriends(ctx context.Context, owner string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT partner FROM friends
		WHERE owner = ?
		ORDER BY created_at ASC, partner ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var partners []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

// HasFriend reports whether the edge owner -> partner exists.
func (db *DB) HasFriend(ctx context.Context, owner, partner string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friends WHERE owner = ? AND partner = ?`, owner, partner).Scan(&n)
	return n > 0, err
}
