package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/snapshot/db"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/mcdev12/examclock/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// PostgresStore keeps one timer_snapshots row per session.
type PostgresStore struct {
	database *sql.DB
	queries  *db.Queries
}

func NewPostgresStore(database *sql.DB) *PostgresStore {
	return &PostgresStore{database: database, queries: db.New(database)}
}

func (s *PostgresStore) Save(ctx context.Context, examID uuid.UUID, records []timer.SessionRecord) error {
	if len(records) == 0 {
		return s.Delete(ctx, examID)
	}

	savedAt := records[0].SavedAt
	return sqlutil.Run(ctx, s.database, s.queries.WithTx, func(q *db.Queries) error {
		for _, rec := range records {
			params, err := upsertParams(rec)
			if err != nil {
				return err
			}
			if err := q.UpsertSnapshot(ctx, params); err != nil {
				return fmt.Errorf("upsert snapshot: %w", err)
			}
		}
		// rows not rewritten in this pass belong to removed sessions
		if err := q.DeleteStaleSnapshots(ctx, db.DeleteStaleSnapshotsParams{ExamID: examID, SavedAt: savedAt}); err != nil {
			return fmt.Errorf("delete stale snapshots: %w", err)
		}
		return nil
	})
}

func upsertParams(rec timer.SessionRecord) (db.UpsertSnapshotParams, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return db.UpsertSnapshotParams{}, fmt.Errorf("marshal snapshot record: %w", err)
	}
	return db.UpsertSnapshotParams{
		ExamID:    rec.ExamID,
		StudentID: rec.StudentID,
		Record:    pqtype.NullRawMessage{RawMessage: data, Valid: len(data) > 0},
		SavedAt:   rec.SavedAt,
	}, nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]timer.SessionRecord, error) {
	rows, err := s.queries.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	records := make([]timer.SessionRecord, 0, len(rows))
	for _, row := range rows {
		rec, ok := recordFromRow(row)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func recordFromRow(row db.TimerSnapshot) (timer.SessionRecord, bool) {
	if !row.Record.Valid {
		return timer.SessionRecord{}, false
	}
	var rec timer.SessionRecord
	if err := json.Unmarshal(row.Record.RawMessage, &rec); err != nil {
		log.Warn().
			Err(err).
			Str("exam_id", row.ExamID.String()).
			Str("student_id", row.StudentID.String()).
			Msg("skipping undecodable snapshot row")
		return timer.SessionRecord{}, false
	}
	rec.ExamID = row.ExamID
	rec.StudentID = row.StudentID
	if rec.SavedAt.IsZero() {
		rec.SavedAt = row.SavedAt
	}
	return rec, true
}

func (s *PostgresStore) Delete(ctx context.Context, examID uuid.UUID) error {
	if err := s.queries.DeleteExamSnapshots(ctx, examID); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}
