package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tappbx/tappbx/internal/database/models"
)

// userRepo implements UserRepository.
type userRepo struct {
	db *DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, domain_id, username, password_hash, email, is_admin,
	 enabled, created_at, updated_at`

// Create inserts a new user. The ID is generated if empty.
func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, domain_id, username, password_hash, email, is_admin,
		 enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		u.ID, u.DomainID, u.Username, u.PasswordHash, u.Email, u.IsAdmin, u.Enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetByID returns a user by ID.
func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
}

// GetByUsername returns a user by domain and username.
func (r *userRepo) GetByUsername(ctx context.Context, domainID, username string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE domain_id = ? AND username = ?`,
		domainID, username,
	))
}

// List returns all users of a domain ordered by username.
func (r *userRepo) List(ctx context.Context, domainID string) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE domain_id = ? ORDER BY username`,
		domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.DomainID, &u.Username, &u.PasswordHash,
			&u.Email, &u.IsAdmin, &u.Enabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update modifies an existing user.
func (r *userRepo) Update(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = ?, password_hash = ?, email = ?, is_admin = ?,
		 enabled = ?, updated_at = datetime('now') WHERE id = ?`,
		u.Username, u.PasswordHash, u.Email, u.IsAdmin, u.Enabled, u.ID,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// Delete removes a user by ID.
func (r *userRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

func (r *userRepo) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.DomainID, &u.Username, &u.PasswordHash,
		&u.Email, &u.IsAdmin, &u.Enabled, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}
