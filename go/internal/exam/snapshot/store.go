// Package snapshot persists timer sessions so a restarted gateway can
// resume every countdown.
package snapshot

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
)

// ErrUnknownBackend is returned for an unsupported SNAPSHOT_BACKEND value.
var ErrUnknownBackend = errors.New("unknown snapshot backend")

// Store persists the session records of each exam. Save replaces whatever
// was stored for the exam before.
type Store interface {
	Save(ctx context.Context, examID uuid.UUID, records []timer.SessionRecord) error
	LoadAll(ctx context.Context) ([]timer.SessionRecord, error)
	Delete(ctx context.Context, examID uuid.UUID) error
}
