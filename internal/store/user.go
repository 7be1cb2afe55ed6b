package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/field-notes/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureSchema creates the users table if it does not exist.
func (r *UserRepository) EnsureSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('admin', 'supervisor')),
			created_at TIMESTAMP DEFAULT NOW()
		)`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

func (r *UserRepository) GetByName(ctx context.Context, name string) (types.User, error) {
	const query = `
		SELECT id, name, password_hash, role, created_at
		FROM users
		WHERE name = $1
		LIMIT 1`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&user.ID,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// Upsert inserts the user or, when the name exists, rotates its password
// hash and role.
func (r *UserRepository) Upsert(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		INSERT INTO users (name, password_hash, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (name)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.PasswordHash,
		user.Role,
	).Scan(&user.ID, &user.CreatedAt); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// UpdatePassword rotates the password hash of an existing user.
func (r *UserRepository) UpdatePassword(ctx context.Context, name, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $1 WHERE name = $2`
	result, err := r.db.ExecContext(ctx, query, passwordHash, name)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
