package application

import (
	"context"
	"log/slog"

	sharedDomain "github.com/eshields/caseplan/internal/shared/domain"
)

// ScheduleOrchestrator coordinates the two engines around the review
// eligibility gate: a review schedule starts only once the person's induction
// is completed and an action plan exists. Both triggers funnel through the
// same idempotent check, so their arrival order does not matter.
type ScheduleOrchestrator struct {
	induction  *InductionEngine
	review     *ReviewEngine
	actionPlan ActionPlanExistenceCheck
	logger     *slog.Logger
}

// NewScheduleOrchestrator creates an orchestrator.
func NewScheduleOrchestrator(
	induction *InductionEngine,
	review *ReviewEngine,
	actionPlan ActionPlanExistenceCheck,
	logger *slog.Logger,
) *ScheduleOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleOrchestrator{
		induction:  induction,
		review:     review,
		actionPlan: actionPlan,
		logger:     logger,
	}
}

// OnInductionCompleted records the induction interview and, when the
// eligibility gate now passes, creates the initial review schedule in the
// same call.
func (o *ScheduleOrchestrator) OnInductionCompleted(ctx context.Context, personID, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
	events, err := o.induction.Complete(ctx, personID, actor, prisonID)
	if err != nil {
		return nil, err
	}

	reviewEvents, err := o.maybeCreateReview(ctx, personID, actor, prisonID)
	if err != nil {
		return nil, err
	}
	return append(events, reviewEvents...), nil
}

// OnActionPlanCreated is the second leg of the gate, raised when the
// surrounding application records a person's first action plan.
func (o *ScheduleOrchestrator) OnActionPlanCreated(ctx context.Context, personID, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
	return o.maybeCreateReview(ctx, personID, actor, prisonID)
}

func (o *ScheduleOrchestrator) maybeCreateReview(ctx context.Context, personID, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
	completed, err := o.induction.IsCompleted(ctx, personID)
	if err != nil {
		return nil, err
	}
	if !completed {
		o.logger.Debug("review not started, induction incomplete", "person_id", personID)
		return nil, nil
	}

	hasPlan, err := o.actionPlan.Exists(ctx, personID)
	if err != nil {
		return nil, err
	}
	if !hasPlan {
		o.logger.Debug("review not started, no action plan", "person_id", personID)
		return nil, nil
	}

	return o.review.CreateInitialScheduleIfEligible(ctx, personID, actor, prisonID)
}
