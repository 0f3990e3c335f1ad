package store

import (
	"context"
	"slices"
)

const entryColumns = `seq, owner, partner, msg_id, sender, text, is_attachment, created_at`

// PutEntry writes one message copy. It is idempotent on (owner, partner, msg_id):
// a second put of the same copy is a no-op and reports inserted=false.
// The first put for a pair implicitly creates that log.
func (db *DB) PutEntry(ctx context.Context, e *Entry) (inserted bool, err error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO entries (owner, partner, msg_id, sender, text, is_attachment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, partner, msg_id) DO NOTHING`,
		e.Owner, e.Partner, e.MsgID, e.Sender, e.Text, e.IsAttachment, e.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		e.Seq = id
	}
	return true, nil
}

// ListEntries returns the entries of one log inserted after afterSeq,
// in log order (created_at, then seq).
func (db *DB) ListEntries(ctx context.Context, owner, partner string, afterSeq int64) ([]Entry, error) {
	return db.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE owner = ? AND partner = ? AND seq > ?
		ORDER BY created_at ASC, seq ASC`, owner, partner, afterSeq)
}

// TailEntries returns the last n entries of one log in log order.
func (db *DB) TailEntries(ctx context.Context, owner, partner string, n int) ([]Entry, error) {
	if n <= 0 {
		n = 50
	}
	entries, err := db.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE owner = ? AND partner = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, owner, partner, n)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// MaxSeq returns the highest insertion cursor of one log, 0 when empty.
func (db *DB) MaxSeq(ctx context.Context, owner, partner string) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM entries WHERE owner = ? AND partner = ?`,
		owner, partner).Scan(&seq)
	return seq, err
}

// GetEntry returns one copy by key.
func (db *DB) GetEntry(ctx context.Context, owner, partner, msgID string) (*Entry, error) {
	entries, err := db.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE owner = ? AND partner = ? AND msg_id = ?`, owner, partner, msgID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

// EntryCount returns the number of stored copies across all logs.
func (db *DB) EntryCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count)
	return count, err
}

func (db *DB) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.Owner, &e.Partner, &e.MsgID, &e.Sender, &e.Text, &e.IsAttachment, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
