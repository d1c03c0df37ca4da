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

const uniqueViolation = "23505"

const inductionColumns = `
	reference, version, person_id, status, calculation_rule, deadline,
	created_by, created_at_prison, updated_by, updated_at_prison,
	created_at, updated_at
`

// PostgresInductionRepository stores induction schedule history in
// PostgreSQL. Rows are append-only; UNIQUE (person_id, version) turns a lost
// optimistic race into ErrVersionConflict.
type PostgresInductionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresInductionRepository creates a new repository.
func NewPostgresInductionRepository(pool *pgxpool.Pool) *PostgresInductionRepository {
	return &PostgresInductionRepository{pool: pool}
}

// LoadCurrent returns the highest version for a person.
func (r *PostgresInductionRepository) LoadCurrent(ctx context.Context, personID string) (*domain.InductionSchedule, error) {
	query := `
		SELECT ` + inductionColumns + `
		FROM induction_schedule_history
		WHERE person_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	execer := sharedPersistence.Executor(ctx, r.pool)
	s, err := scanInduction(execer.QueryRow(ctx, query, personID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrScheduleNotFound
	}
	return s, err
}

// History returns every version for a person, oldest first.
func (r *PostgresInductionRepository) History(ctx context.Context, personID string) ([]*domain.InductionSchedule, error) {
	query := `
		SELECT ` + inductionColumns + `
		FROM induction_schedule_history
		WHERE person_id = $1
		ORDER BY version
	`

	execer := sharedPersistence.Executor(ctx, r.pool)
	rows, err := execer.Query(ctx, query, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*domain.InductionSchedule
	for rows.Next() {
		s, err := scanInduction(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, s)
	}
	return history, rows.Err()
}

// AppendVersion inserts the schedule's current state as a new row.
func (r *PostgresInductionRepository) AppendVersion(ctx context.Context, s *domain.InductionSchedule) error {
	query := `
		INSERT INTO induction_schedule_history (` + inductionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	execer := sharedPersistence.Executor(ctx, r.pool)
	_, err := execer.Exec(ctx, query,
		s.ID(),
		s.Version(),
		s.PersonID(),
		string(s.Status()),
		string(s.Rule()),
		s.Deadline(),
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInduction(row rowScanner) (*domain.InductionSchedule, error) {
	var (
		reference                      uuid.UUID
		version                        int
		personID, status, rule         string
		deadline, createdAt, updatedAt time.Time
		createdBy, createdAtPrison     string
		updatedBy, updatedAtPrison     string
	)
	err := row.Scan(
		&reference, &version, &personID, &status, &rule, &deadline,
		&createdBy, &createdAtPrison, &updatedBy, &updatedAtPrison,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateInductionSchedule(
		reference, version, personID,
		domain.Status(status), domain.CalculationRule(rule), deadline,
		createdBy, createdAtPrison, updatedBy, updatedAtPrison,
		createdAt, updatedAt,
	), nil
}
