package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

const userColumns = `id, email, username, first_name, last_name, is_active, date_joined`

// GetUserByEmail retrieves a user by email address
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.get(ctx, &user, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.get(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

// CreateUser inserts a user and fills in its ID.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.DateJoined.IsZero() {
		user.DateJoined = now()
	}
	query := `
		INSERT INTO users (email, username, first_name, last_name, is_active, date_joined)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := s.get(ctx, &user.ID, query,
		user.Email, user.Username, user.FirstName, user.LastName, user.IsActive, user.DateJoined)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateUserNames overwrites the first and last name of a user.
func (s *Store) UpdateUserNames(ctx context.Context, id int64, firstName, lastName string) error {
	_, err := s.exec(ctx,
		"UPDATE users SET first_name = ?, last_name = ? WHERE id = ?",
		firstName, lastName, id)
	return err
}
