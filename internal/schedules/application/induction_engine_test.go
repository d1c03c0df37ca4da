package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshields/caseplan/internal/schedules/application"
	"github.com/eshields/caseplan/internal/schedules/domain"
)

var testNow = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

func newInductionFixture(t *testing.T) (*application.InductionEngine, *memInductionRepo, *memOutbox) {
	t.Helper()
	repo := newMemInductionRepo()
	ob := &memOutbox{}
	engine := application.NewInductionEngine(
		repo, ob, nopUnitOfWork{}, domain.DefaultDeadlineRules(),
		fixedClock(testNow), testLogger(),
	)
	return engine, repo, ob
}

func admissionEvent(personID string) domain.LifecycleEvent {
	return domain.LifecycleEvent{
		DeliveryID: "8c2c4f30-9e3f-4f2d-8f57-2f6a9d3f1a01",
		PersonID:   personID,
		EventType:  domain.EventTypeReceived,
		Reason:     domain.ReasonAdmission,
		PrisonID:   "LEI",
		OccurredAt: testNow,
	}
}

func TestInductionEngineHandleLifecycleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("admission creates version one", func(t *testing.T) {
		engine, repo, ob := newInductionFixture(t)

		events, err := engine.HandleLifecycleEvent(ctx, admissionEvent("A1234BC"))
		require.NoError(t, err)
		require.Len(t, events, 1)

		changed, ok := events[0].(*domain.InductionStatusChanged)
		require.True(t, ok)
		assert.Equal(t, 1, changed.Version)
		assert.Equal(t, domain.StatusScheduled, changed.NewStatus)
		assert.Equal(t, domain.RuleNewAdmission, changed.Rule)
		assert.Equal(t, time.Date(2026, time.March, 30, 0, 0, 0, 0, time.UTC), changed.NewDeadline)

		current, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)
		assert.Equal(t, 1, current.Version())
		assert.Equal(t, application.SystemActor, current.UpdatedBy())
		assert.Equal(t, "LEI", current.UpdatedAtPrison())

		assert.Equal(t, 1, ob.count())
		assert.Equal(t, []string{"caseplan.induction.status-changed"}, ob.routingKeys())
	})

	t.Run("non-admission event without schedule is a no-op", func(t *testing.T) {
		engine, repo, ob := newInductionFixture(t)

		ev := admissionEvent("A1234BC")
		ev.Reason = domain.ReasonTransfer
		events, err := engine.HandleLifecycleEvent(ctx, ev)
		require.NoError(t, err)
		assert.Empty(t, events)

		_, err = repo.LoadCurrent(ctx, "A1234BC")
		assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
		assert.Zero(t, ob.count())
	})

	t.Run("transfer on scheduled appends exemption then reschedule", func(t *testing.T) {
		engine, repo, ob := newInductionFixture(t)

		_, err := engine.HandleLifecycleEvent(ctx, admissionEvent("A1234BC"))
		require.NoError(t, err)

		ev := admissionEvent("A1234BC")
		ev.Reason = domain.ReasonTransfer
		ev.PrisonID = "MDI"
		events, err := engine.HandleLifecycleEvent(ctx, ev)
		require.NoError(t, err)
		require.Len(t, events, 2)

		first := events[0].(*domain.InductionStatusChanged)
		second := events[1].(*domain.InductionStatusChanged)
		assert.Equal(t, domain.StatusExemptTransfer, first.NewStatus)
		assert.Equal(t, domain.StatusScheduled, second.NewStatus)
		assert.Equal(t, domain.RuleTransfer, second.Rule)
		assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), second.NewDeadline)

		history, err := repo.History(ctx, "A1234BC")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "MDI", history[2].UpdatedAtPrison())

		assert.Equal(t, 3, ob.count())
	})

	t.Run("release exempts in a single version", func(t *testing.T) {
		engine, repo, _ := newInductionFixture(t)

		_, err := engine.HandleLifecycleEvent(ctx, admissionEvent("A1234BC"))
		require.NoError(t, err)

		ev := admissionEvent("A1234BC")
		ev.EventType = domain.EventTypeReleased
		ev.Reason = domain.ReasonRelease
		events, err := engine.HandleLifecycleEvent(ctx, ev)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, domain.StatusExemptRelease, events[0].(*domain.InductionStatusChanged).NewStatus)

		// Redelivery on the exempted schedule changes nothing.
		events, err = engine.HandleLifecycleEvent(ctx, ev)
		require.NoError(t, err)
		assert.Empty(t, events)

		current, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)
		assert.Equal(t, 2, current.Version())
	})

	t.Run("manual exemption blocks lifecycle movement", func(t *testing.T) {
		engine, repo, _ := newInductionFixture(t)

		_, err := engine.HandleLifecycleEvent(ctx, admissionEvent("A1234BC"))
		require.NoError(t, err)
		_, err = engine.Exempt(ctx, "A1234BC", domain.StatusExemptDrugAlcoholDependency, "STAFF1", "LEI")
		require.NoError(t, err)

		ev := admissionEvent("A1234BC")
		ev.Reason = domain.ReasonTransfer
		events, err := engine.HandleLifecycleEvent(ctx, ev)
		require.NoError(t, err)
		assert.Empty(t, events)

		current, err := repo.LoadCurrent(ctx, "A1234BC")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusExemptDrugAlcoholDependency, current.Status())
	})

	t.Run("unknown event kind is rejected", func(t *testing.T) {
		engine, _, _ := newInductionFixture(t)

		ev := admissionEvent("A1234BC")
		ev.Reason = "parole-board"
		_, err := engine.HandleLifecycleEvent(ctx, ev)
		assert.ErrorIs(t, err, domain.ErrUnknownEvent)
	})

	t.Run("version conflict surfaces", func(t *testing.T) {
		engine, repo, _ := newInductionFixture(t)
		repo.failNext = domain.ErrVersionConflict

		_, err := engine.HandleLifecycleEvent(ctx, admissionEvent("A1234BC"))
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})
}

func TestInductionEngineComplete(t *testing.T) {
	ctx := context.Background()
	engine, repo, ob := newInductionFixture(t)

	_, err := engine.HandleLifecycleEvent(ctx, admissionEvent("A1234BC"))
	require.NoError(t, err)

	events, err := engine.Complete(ctx, "A1234BC", "STAFF1", "LEI")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusCompleted, events[0].(*domain.InductionStatusChanged).NewStatus)

	current, err := repo.LoadCurrent(ctx, "A1234BC")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, current.Status())
	assert.Equal(t, "STAFF1", current.UpdatedBy())

	staged := ob.count()

	// Completing again is a silent no-op with no new version or message.
	events, err = engine.Complete(ctx, "A1234BC", "STAFF2", "LEI")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, staged, ob.count())

	completed, err := engine.IsCompleted(ctx, "A1234BC")
	require.NoError(t, err)
	assert.True(t, completed)

	completed, err = engine.IsCompleted(ctx, "Z9999ZZ")
	require.NoError(t, err)
	assert.False(t, completed)
}

func TestInductionEngineExemptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine, repo, _ := newInductionFixture(t)

	_, err := engine.HandleLifecycleEvent(ctx, admissionEvent("A1234BC"))
	require.NoError(t, err)

	events, err := engine.Exempt(ctx, "A1234BC", domain.StatusExemptDrugAlcoholDependency, "STAFF1", "LEI")
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Same exemption again is a no-op.
	events, err = engine.Exempt(ctx, "A1234BC", domain.StatusExemptDrugAlcoholDependency, "STAFF1", "LEI")
	require.NoError(t, err)
	assert.Empty(t, events)

	// Automated reasons are not staff exemptions.
	_, err = engine.Exempt(ctx, "A1234BC", domain.StatusExemptTransfer, "STAFF1", "LEI")
	assert.ErrorIs(t, err, domain.ErrNotExemption)

	events, err = engine.ClearExemption(ctx, "A1234BC", "STAFF1", "LEI")
	require.NoError(t, err)
	require.Len(t, events, 1)
	changed := events[0].(*domain.InductionStatusChanged)
	assert.Equal(t, domain.StatusScheduled, changed.NewStatus)
	assert.Equal(t, domain.RuleExemptionCleared, changed.Rule)
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), changed.NewDeadline)

	// Nothing to clear once rescheduled.
	_, err = engine.ClearExemption(ctx, "A1234BC", "STAFF1", "LEI")
	assert.ErrorIs(t, err, domain.ErrNotExempt)

	history, err := repo.History(ctx, "A1234BC")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}
