package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/models"
)

// UsersRepository defines what the app layer needs from the repository
type UsersRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// App handles users business logic
type App struct {
	repo UsersRepository
}

// NewApp creates a new users App
func NewApp(repo UsersRepository) *App {
	return &App{
		repo: repo,
	}
}

// ValidateUser returns the user if it exists. Callers check IsActive.
// Unknown ids wrap models.ErrUserNotFound.
func (a *App) ValidateUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, models.ErrUserNotFound
	}
	user, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("validate user %s: %w", id, err)
	}
	switch user.Role {
	case models.RoleAdmin, models.RoleInstructor, models.RoleStudent:
	default:
		return nil, fmt.Errorf("validate user %s: unknown role %q", id, user.Role)
	}
	return user, nil
}
