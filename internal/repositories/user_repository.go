package repositories

import (
	"context"
	"errors"
	"time"

	"airswitch/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already taken")
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	// Create creates a new user in the database
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by their ID
	GetByID(ctx context.Context, id uint) (*models.User, error)

	// GetByEmail retrieves a user by their email address
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// IncrementTokenVersion invalidates every token issued so far
	IncrementTokenVersion(ctx context.Context, userID uint) error

	TouchLogin(ctx context.Context, userID uint, at time.Time) error

	// UpdateProfile applies the non-nil fields; an empty photo URL clears it.
	UpdateProfile(ctx context.Context, userID uint, name, photoURL *string) (*models.User, error)
}
