package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateAccount inserts a new account. Returns ErrAlreadyExists when the email is taken.
func (db *DB) CreateAccount(ctx context.Context, a *Account) error {
	a.CreatedAt = time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (identity, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		a.Identity, a.Email, a.PasswordHash, a.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %q: %w", a.Email, ErrAlreadyExists)
	}
	return err
}

// GetAccountByEmail returns the account registered with email, or ErrNotFound.
func (db *DB) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	err := db.QueryRowContext(ctx, `
		SELECT identity, email, password_hash, created_at
		FROM accounts WHERE email = ?`, email).
		Scan(&a.Identity, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAccount removes an account. Used to roll back a failed registration.
func (db *DB) DeleteAccount(ctx context.Context, identity string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM accounts WHERE identity = ?`, identity)
	return err
}
