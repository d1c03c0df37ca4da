package persistence_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/eshields/caseplan/internal/schedules/domain"
	"github.com/eshields/caseplan/internal/schedules/infrastructure/persistence"
	"github.com/eshields/caseplan/internal/shared/infrastructure/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))
	return db
}

func TestSQLiteInductionRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := persistence.NewSQLiteInductionRepository(db)

	deadline := time.Date(2026, time.March, 30, 0, 0, 0, 0, time.UTC)

	t.Run("load current before any version", func(t *testing.T) {
		_, err := repo.LoadCurrent(ctx, "A1234BC")
		assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
	})

	t.Run("append and load round trip", func(t *testing.T) {
		s := domain.NewInductionSchedule("A1234BC", deadline, domain.RuleNewAdmission, "system", "LEI")
		require.NoError(t, repo.AppendVersion(ctx, s))

		loaded, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)
		assert.Equal(t, s.ID(), loaded.ID())
		assert.Equal(t, 1, loaded.Version())
		assert.Equal(t, "A1234BC", loaded.PersonID())
		assert.Equal(t, domain.StatusScheduled, loaded.Status())
		assert.Equal(t, domain.RuleNewAdmission, loaded.Rule())
		assert.True(t, loaded.Deadline().Equal(deadline))
		assert.Equal(t, "system", loaded.CreatedBy())
		assert.Equal(t, "LEI", loaded.CreatedAtPrison())
	})

	t.Run("versions accumulate as history", func(t *testing.T) {
		current, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)

		require.NoError(t, current.Exempt(domain.StatusExemptHealthIssue, "STAFF1", "MDI"))
		require.NoError(t, repo.AppendVersion(ctx, current))

		loaded, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.Version())
		assert.Equal(t, domain.StatusExemptHealthIssue, loaded.Status())
		assert.Equal(t, "STAFF1", loaded.UpdatedBy())
		assert.Equal(t, "MDI", loaded.UpdatedAtPrison())

		history, err := repo.History(ctx, "A1234BC")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, 1, history[0].Version())
		assert.Equal(t, 2, history[1].Version())
	})

	t.Run("duplicate version conflicts", func(t *testing.T) {
		current, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)

		// Two writers load version 2 and both try to append version 3.
		first := domain.RehydrateInductionSchedule(
			current.ID(), current.Version(), current.PersonID(), current.Status(),
			current.Rule(), current.Deadline(),
			current.CreatedBy(), current.CreatedAtPrison(),
			current.UpdatedBy(), current.UpdatedAtPrison(),
			current.CreatedAt(), current.UpdatedAt(),
		)
		require.NoError(t, first.ClearExemption(deadline, domain.RuleExemptionCleared, "STAFF1", "MDI"))
		require.NoError(t, repo.AppendVersion(ctx, first))

		require.NoError(t, current.ClearExemption(deadline, domain.RuleExemptionCleared, "STAFF2", "MDI"))
		err = repo.AppendVersion(ctx, current)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	t.Run("people are independent", func(t *testing.T) {
		s := domain.NewInductionSchedule("B5678CD", deadline, domain.RuleNewAdmission, "system", "LEI")
		require.NoError(t, repo.AppendVersion(ctx, s))

		history, err := repo.History(ctx, "B5678CD")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

func TestSQLiteReviewRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := persistence.NewSQLiteReviewRepository(db)

	from := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)

	t.Run("append and load round trip", func(t *testing.T) {
		s := domain.NewReviewSchedule("A1234BC", from, to, domain.RuleNewAdmission, "STAFF1", "LEI")
		require.NoError(t, repo.AppendVersion(ctx, s))

		loaded, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Version())
		assert.Equal(t, domain.StatusScheduled, loaded.Status())
		assert.True(t, loaded.WindowFrom().Equal(from))
		assert.True(t, loaded.WindowTo().Equal(to))
		assert.False(t, loaded.PreRelease())
	})

	t.Run("pre-release flag round trips", func(t *testing.T) {
		current, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)

		require.NoError(t, current.Complete(true, "STAFF1", "LEI"))
		require.NoError(t, repo.AppendVersion(ctx, current))

		loaded, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.Version())
		assert.Equal(t, domain.StatusCompleted, loaded.Status())
		assert.True(t, loaded.PreRelease())
	})

	t.Run("duplicate version conflicts", func(t *testing.T) {
		s := domain.NewReviewSchedule("A1234BC", from, to, domain.RuleNewAdmission, "STAFF1", "LEI")
		err := repo.AppendVersion(ctx, s)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	t.Run("history keeps version order", func(t *testing.T) {
		history, err := repo.History(ctx, "A1234BC")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, domain.StatusScheduled, history[0].Status())
		assert.Equal(t, domain.StatusCompleted, history[1].Status())
	})
}
