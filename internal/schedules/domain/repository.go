package domain

import (
	"context"
	"errors"
)

var (
	// ErrScheduleNotFound means no schedule exists for the person.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrVersionConflict means another writer appended the version this
	// writer assumed was next. Callers reload and recompute.
	ErrVersionConflict = errors.New("schedule version conflict")
)

// InductionHistoryRepository is the append-only version store for induction
// schedules. Rows are immutable; the current schedule is the highest version.
type InductionHistoryRepository interface {
	// LoadCurrent returns the latest version for a person, or
	// ErrScheduleNotFound.
	LoadCurrent(ctx context.Context, personID string) (*InductionSchedule, error)

	// History returns every version for a person in ascending version order.
	History(ctx context.Context, personID string) ([]*InductionSchedule, error)

	// AppendVersion writes the schedule's current state as a new history
	// row. Returns ErrVersionConflict when that version already exists.
	AppendVersion(ctx context.Context, s *InductionSchedule) error
}

// ReviewHistoryRepository is the append-only version store for review
// schedules.
type ReviewHistoryRepository interface {
	LoadCurrent(ctx context.Context, personID string) (*ReviewSchedule, error)
	History(ctx context.Context, personID string) ([]*ReviewSchedule, error)
	AppendVersion(ctx context.Context, s *ReviewSchedule) error
}
