package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eshields/caseplan/internal/schedules/domain"
	sharedPersistence "github.com/eshields/caseplan/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteReviewRepository stores review schedule history in SQLite for local
// development and tests.
type SQLiteReviewRepository struct {
	db *sql.DB
}

// NewSQLiteReviewRepository creates a new repository.
func NewSQLiteReviewRepository(db *sql.DB) *SQLiteReviewRepository {
	return &SQLiteReviewRepository{db: db}
}

// LoadCurrent returns the highest version for a person.
func (r *SQLiteReviewRepository) LoadCurrent(ctx context.Context, personID string) (*domain.ReviewSchedule, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM review_schedule_history
		WHERE person_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	s, err := scanSQLiteReview(q.QueryRowContext(ctx, query, personID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrScheduleNotFound
	}
	return s, err
}

// History returns every version for a person, oldest first.
func (r *SQLiteReviewRepository) History(ctx context.Context, personID string) ([]*domain.ReviewSchedule, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM review_schedule_history
		WHERE person_id = ?
		ORDER BY version
	`

	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	rows, err := q.QueryContext(ctx, query, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*domain.ReviewSchedule
	for rows.Next() {
		s, err := scanSQLiteReview(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, s)
	}
	return history, rows.Err()
}

// AppendVersion inserts the schedule's current state as a new row.
func (r *SQLiteReviewRepository) AppendVersion(ctx context.Context, s *domain.ReviewSchedule) error {
	query := `
		INSERT INTO review_schedule_history (` + reviewColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	_, err := q.ExecContext(ctx, query,
		s.ID().String(),
		s.Version(),
		s.PersonID(),
		string(s.Status()),
		string(s.Rule()),
		s.WindowFrom().UTC().Format(time.RFC3339Nano),
		s.WindowTo().UTC().Format(time.RFC3339Nano),
		s.PreRelease(),
		s.CreatedBy(),
		s.CreatedAtPrison(),
		s.UpdatedBy(),
		s.UpdatedAtPrison(),
		s.CreatedAt().UTC().Format(time.RFC3339Nano),
		s.UpdatedAt().UTC().Format(time.RFC3339Nano),
	)
	if isSQLiteUniqueViolation(err) {
		return domain.ErrVersionConflict
	}
	return err
}

func scanSQLiteReview(row rowScanner) (*domain.ReviewSchedule, error) {
	var (
		reference                  string
		version                    int
		personID, status, rule     string
		windowFrom, windowTo       string
		preRelease                 bool
		createdBy, createdAtPrison string
		updatedBy, updatedAtPrison string
		createdAt, updatedAt       string
	)
	err := row.Scan(
		&reference, &version, &personID, &status, &rule,
		&windowFrom, &windowTo, &preRelease,
		&createdBy, &createdAtPrison, &updatedBy, &updatedAtPrison,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	ref, err := uuid.Parse(reference)
	if err != nil {
		return nil, fmt.Errorf("parse reference %q: %w", reference, err)
	}
	from, err := parseSQLiteTime(windowFrom)
	if err != nil {
		return nil, err
	}
	to, err := parseSQLiteTime(windowTo)
	if err != nil {
		return nil, err
	}
	createdAtTime, err := parseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	updatedAtTime, err := parseSQLiteTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateReviewSchedule(
		ref, version, personID,
		domain.Status(status), domain.CalculationRule(rule),
		from, to, preRelease,
		createdBy, createdAtPrison, updatedBy, updatedAtPrison,
		createdAtTime, updatedAtTime,
	), nil
}
