package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eshields/caseplan/internal/schedules/domain"
	sharedPersistence "github.com/eshields/caseplan/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteInductionRepository stores induction schedule history in SQLite for
// local development and tests.
type SQLiteInductionRepository struct {
	db *sql.DB
}

// NewSQLiteInductionRepository creates a new repository.
func NewSQLiteInductionRepository(db *sql.DB) *SQLiteInductionRepository {
	return &SQLiteInductionRepository{db: db}
}

// LoadCurrent returns the highest version for a person.
func (r *SQLiteInductionRepository) LoadCurrent(ctx context.Context, personID string) (*domain.InductionSchedule, error) {
	query := `
		SELECT ` + inductionColumns + `
		FROM induction_schedule_history
		WHERE person_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	s, err := scanSQLiteInduction(q.QueryRowContext(ctx, query, personID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrScheduleNotFound
	}
	return s, err
}

// History returns every version for a person, oldest first.
func (r *SQLiteInductionRepository) History(ctx context.Context, personID string) ([]*domain.InductionSchedule, error) {
	query := `
		SELECT ` + inductionColumns + `
		FROM induction_schedule_history
		WHERE person_id = ?
		ORDER BY version
	`

	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	rows, err := q.QueryContext(ctx, query, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*domain.InductionSchedule
	for rows.Next() {
		s, err := scanSQLiteInduction(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, s)
	}
	return history, rows.Err()
}

// AppendVersion inserts the schedule's current state as a new row.
func (r *SQLiteInductionRepository) AppendVersion(ctx context.Context, s *domain.InductionSchedule) error {
	query := `
		INSERT INTO induction_schedule_history (` + inductionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	_, err := q.ExecContext(ctx, query,
		s.ID().String(),
		s.Version(),
		s.PersonID(),
		string(s.Status()),
		string(s.Rule()),
		s.Deadline().UTC().Format(time.RFC3339Nano),
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

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func scanSQLiteInduction(row rowScanner) (*domain.InductionSchedule, error) {
	var (
		reference                  string
		version                    int
		personID, status, rule     string
		deadline                   string
		createdBy, createdAtPrison string
		updatedBy, updatedAtPrison string
		createdAt, updatedAt       string
	)
	err := row.Scan(
		&reference, &version, &personID, &status, &rule, &deadline,
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
	deadlineAt, err := parseSQLiteTime(deadline)
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

	return domain.RehydrateInductionSchedule(
		ref, version, personID,
		domain.Status(status), domain.CalculationRule(rule), deadlineAt,
		createdBy, createdAtPrison, updatedBy, updatedAtPrison,
		createdAtTime, updatedAtTime,
	), nil
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
