package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/eshields/caseplan/internal/schedules/domain"
	sharedPersistence "github.com/eshields/caseplan/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reviewColumns = `
	reference, version, person_id, status, calculation_rule,
	window_from, window_to, pre_release,
	created_by, created_at_prison, updated_by, updated_at_prison,
	created_at, updated_at
`

// PostgresReviewRepository stores review schedule history in PostgreSQL.
type PostgresReviewRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresReviewRepository creates a new repository.
func NewPostgresReviewRepository(pool *pgxpool.Pool) *PostgresReviewRepository {
	return &PostgresReviewRepository{pool: pool}
}

// LoadCurrent returns the highest version for a person.
func (r *PostgresReviewRepository) LoadCurrent(ctx context.Context, personID string) (*domain.ReviewSchedule, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM review_schedule_history
		WHERE person_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	execer := sharedPersistence.Executor(ctx, r.pool)
	s, err := scanReview(execer.QueryRow(ctx, query, personID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrScheduleNotFound
	}
	return s, err
}

// History returns every version for a person, oldest first.
func (r *PostgresReviewRepository) History(ctx context.Context, personID string) ([]*domain.ReviewSchedule, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM review_schedule_history
		WHERE person_id = $1
		ORDER BY version
	`

	execer := sharedPersistence.Executor(ctx, r.pool)
	rows, err := execer.Query(ctx, query, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*domain.ReviewSchedule
	for rows.Next() {
		s, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, s)
	}
	return history, rows.Err()
}

// AppendVersion inserts the schedule's current state as a new row.
func (r *PostgresReviewRepository) AppendVersion(ctx context.Context, s *domain.ReviewSchedule) error {
	query := `
		INSERT INTO review_schedule_history (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	execer := sharedPersistence.Executor(ctx, r.pool)
	_, err := execer.Exec(ctx, query,
		s.ID(),
		s.Version(),
		s.PersonID(),
		string(s.Status()),
		string(s.Rule()),
		s.WindowFrom(),
		s.WindowTo(),
		s.PreRelease(),
		s.CreatedBy(),
		s.CreatedAtPrison(),
		s.UpdatedBy(),
		s.UpdatedAtPrison(),
		s.CreatedAt(),
		s.UpdatedAt(),
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrVersionConflict
	}
	return err
}

func scanReview(row rowScanner) (*domain.ReviewSchedule, error) {
	var (
		reference                  uuid.UUID
		version                    int
		personID, status, rule     string
		windowFrom, windowTo       time.Time
		preRelease                 bool
		createdBy, createdAtPrison string
		updatedBy, updatedAtPrison string
		createdAt, updatedAt       time.Time
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
	return domain.RehydrateReviewSchedule(
		reference, version, personID,
		domain.Status(status), domain.CalculationRule(rule),
		windowFrom, windowTo, preRelease,
		createdBy, createdAtPrison, updatedBy, updatedAtPrison,
		createdAt, updatedAt,
	), nil
}
