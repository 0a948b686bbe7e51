package exams

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/models"
)

// UserValidator looks up users for the directory.
type UserValidator interface {
	ValidateUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Directory answers the join-time lookups of the timer engine from the
// users and exams tables.
type Directory struct {
	users UserValidator
	repo  *Repository
}

func NewDirectory(users UserValidator, repo *Repository) *Directory {
	return &Directory{users: users, repo: repo}
}

func (d *Directory) ValidateUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return d.users.ValidateUser(ctx, userID)
}

func (d *Directory) GetExam(ctx context.Context, examID uuid.UUID) (*models.Exam, error) {
	return d.repo.GetExam(ctx, examID)
}

func (d *Directory) IsStudentEnrolled(ctx context.Context, examID, studentID uuid.UUID) (bool, error) {
	return d.repo.IsStudentEnrolled(ctx, examID, studentID)
}
