package exams

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exams/db"
	"github.com/mcdev12/examclock/go/internal/models"
	"github.com/mcdev12/examclock/go/internal/sqlutil"
)

// Repository implements exam and enrollment data access
type Repository struct {
	database *sql.DB
	queries  *db.Queries
}

// NewRepository creates a new exams repository
func NewRepository(database *sql.DB) *Repository {
	return &Repository{
		database: database,
		queries:  db.New(database),
	}
}

func (r *Repository) GetExam(ctx context.Context, id uuid.UUID) (*models.Exam, error) {
	exam, err := r.queries.GetExam(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return dbExamToModel(exam), nil
}

func (r *Repository) IsStudentEnrolled(ctx context.Context, examID, studentID uuid.UUID) (bool, error) {
	enrolled, err := r.queries.IsStudentEnrolled(ctx, db.IsStudentEnrolledParams{ExamID: examID, StudentID: studentID})
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return enrolled, nil
}

// UpdateStatus writes the aggregate status and, on a status change, a
// history row in the same transaction.
func (r *Repository) UpdateStatus(ctx context.Context, examID uuid.UUID, update models.ExamStatusUpdate, statusChanged bool) error {
	connected := update.ConnectedStudentIDs
	if connected == nil {
		connected = []uuid.UUID{}
	}
	return sqlutil.Run(ctx, r.database, r.queries.WithTx, func(q *db.Queries) error {
		rows, err := q.UpdateExamStatus(ctx, db.UpdateExamStatusParams{
			ID:                  examID,
			Status:              string(update.Status),
			StartedAt:           sqlutil.ToSqlTime(update.StartedAt),
			PausedAt:            sqlutil.ToSqlTime(update.PausedAt),
			CompletedAt:         sqlutil.ToSqlTime(update.CompletedAt),
			ConnectedStudentIds: connected,
		})
		if err != nil {
			return fmt.Errorf("failed to update exam status: %w", err)
		}
		if rows == 0 {
			return models.ErrExamNotFound
		}
		if !statusChanged {
			return nil
		}
		if err := q.InsertStatusHistory(ctx, db.InsertStatusHistoryParams{
			ExamID: examID,
			Status: string(update.Status),
		}); err != nil {
			return fmt.Errorf("failed to record status history: %w", err)
		}
		return nil
	})
}

func dbExamToModel(exam db.Exam) *models.Exam {
	connected := exam.ConnectedStudentIds
	if connected == nil {
		connected = []uuid.UUID{}
	}
	return &models.Exam{
		ID:                  exam.ID,
		Title:               exam.Title,
		DurationSec:         int(exam.DurationSec),
		InstructorID:        exam.InstructorID,
		Status:              models.ExamStatus(exam.Status),
		StartedAt:           sqlutil.FromSqlTime(exam.StartedAt),
		PausedAt:            sqlutil.FromSqlTime(exam.PausedAt),
		CompletedAt:         sqlutil.FromSqlTime(exam.CompletedAt),
		ConnectedStudentIDs: connected,
		CreatedAt:           exam.CreatedAt,
		UpdatedAt:           exam.UpdatedAt,
	}
}
