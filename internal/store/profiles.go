package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertProfile inserts or replaces the profile document of p.Identity.
func (db *DB) UpsertProfile(ctx context.Context, p *Profile) error {
	p.UpdatedAt = time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (identity, display_name, email, avatar_ref, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			avatar_ref = excluded.avatar_ref,
			updated_at = excluded.updated_at`,
		p.Identity, p.DisplayName, p.Email, p.AvatarRef, p.UpdatedAt)
	return err
}

// GetProfile returns the profile of identity, or ErrNotFound.
func (db *DB) GetProfile(ctx context.Context, identity string) (*Profile, error) {
	var p Profile
	err := db.QueryRowContext(ctx, `
		SELECT identity, display_name, email, avatar_ref, updated_at
		FROM profiles WHERE identity = ?`, identity).
		Scan(&p.Identity, &p.DisplayName, &p.Email, &p.AvatarRef, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProfilesByEmail returns every profile with the given email except exclude.
func (db *DB) FindProfilesByEmail(ctx context.Context, email, exclude string) ([]Profile, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT identity, display_name, email, avatar_ref, updated_at
		FROM profiles
		WHERE email = ? AND identity != ?
		ORDER BY identity`, email, exclude)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.Identity, &p.DisplayName, &p.Email, &p.AvatarRef, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
