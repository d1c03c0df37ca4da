package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eshields/caseplan/internal/schedules/domain"
	sharedApplication "github.com/eshields/caseplan/internal/shared/application"
	sharedDomain "github.com/eshields/caseplan/internal/shared/domain"
	"github.com/eshields/caseplan/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// SystemActor is recorded as the updater on versions produced by lifecycle
// events rather than staff action.
const SystemActor = "system"

// InductionEngine owns induction schedule state. Lifecycle events flow in
// through HandleLifecycleEvent; the surrounding application drives the
// external triggers (Complete, Exempt, ClearExemption).
type InductionEngine struct {
	repo       domain.InductionHistoryRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	rules      domain.DeadlineRules
	clock      Clock
	logger     *slog.Logger
}

// NewInductionEngine creates an induction engine.
func NewInductionEngine(
	repo domain.InductionHistoryRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	rules domain.DeadlineRules,
	clock Clock,
	logger *slog.Logger,
) *InductionEngine {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InductionEngine{
		repo:       repo,
		outboxRepo: outboxRepo,
		uow:        uow,
		rules:      rules,
		clock:      clock,
		logger:     logger,
	}
}

// HandleLifecycleEvent applies one lifecycle event to the person's induction
// schedule. It returns every new version's status-changed event, in order; a
// re-entry event produces two (exemption then reschedule). An empty result
// is a no-op.
func (e *InductionEngine) HandleLifecycleEvent(ctx context.Context, ev domain.LifecycleEvent) ([]sharedDomain.DomainEvent, error) {
	kind, err := ev.Kind()
	if err != nil {
		return nil, err
	}

	var events []sharedDomain.DomainEvent
	err = sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		current, err := e.repo.LoadCurrent(txCtx, ev.PersonID)
		if errors.Is(err, domain.ErrScheduleNotFound) {
			if kind != domain.KindAdmission {
				// Nothing to exempt or reschedule; lifecycle events
				// other than admission never create a schedule.
				return nil
			}
			events, err = e.createOnAdmission(txCtx, ev)
			return err
		}
		if err != nil {
			return err
		}

		steps := domain.Transition(current.Status(), kind)
		if len(steps) == 0 {
			e.logger.Debug("induction lifecycle no-op",
				"person_id", ev.PersonID,
				"status", current.Status(),
				"event_kind", kind,
			)
			return nil
		}

		for _, step := range steps {
			var deadline time.Time
			if step.Reschedules() {
				deadline, step.Rule = e.rules.InductionDeadline(kind, e.clock())
			}
			if err := current.Apply(step, deadline, SystemActor, ev.PrisonID); err != nil {
				return err
			}
			if err := e.repo.AppendVersion(txCtx, current); err != nil {
				return err
			}
		}

		events = current.DomainEvents()
		return e.stageNotifications(txCtx, events, ev.DeliveryID, ev.PrisonID)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (e *InductionEngine) createOnAdmission(ctx context.Context, ev domain.LifecycleEvent) ([]sharedDomain.DomainEvent, error) {
	deadline, rule := e.rules.InductionDeadline(domain.KindAdmission, e.clock())
	s := domain.NewInductionSchedule(ev.PersonID, deadline, rule, SystemActor, ev.PrisonID)

	if err := e.repo.AppendVersion(ctx, s); err != nil {
		return nil, err
	}

	events := s.DomainEvents()
	if err := e.stageNotifications(ctx, events, ev.DeliveryID, ev.PrisonID); err != nil {
		return nil, err
	}

	e.logger.Info("induction schedule created",
		"person_id", ev.PersonID,
		"deadline", deadline,
		"calculation_rule", rule,
	)
	return events, nil
}

// Complete records the induction interview; invoked by the orchestrator, not
// by lifecycle events. Calling it again on a completed schedule is a no-op.
func (e *InductionEngine) Complete(ctx context.Context, personID, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
	var events []sharedDomain.DomainEvent
	err := sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		current, err := e.repo.LoadCurrent(txCtx, personID)
		if err != nil {
			return err
		}

		if err := current.Complete(actor, prisonID); err != nil {
			if errors.Is(err, domain.ErrAlreadyCompleted) {
				return nil
			}
			return err
		}
		if err := e.repo.AppendVersion(txCtx, current); err != nil {
			return err
		}

		events = current.DomainEvents()
		return e.stageNotifications(txCtx, events, "", prisonID)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Exempt applies a manual exemption on staff request.
func (e *InductionEngine) Exempt(ctx context.Context, personID string, reason domain.Status, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
	var events []sharedDomain.DomainEvent
	err := sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		current, err := e.repo.LoadCurrent(txCtx, personID)
		if err != nil {
			return err
		}

		before := current.Version()
		if err := current.Exempt(reason, actor, prisonID); err != nil {
			return err
		}
		if current.Version() == before {
			return nil // already under this exemption
		}
		if err := e.repo.AppendVersion(txCtx, current); err != nil {
			return err
		}

		events = current.DomainEvents()
		return e.stageNotifications(txCtx, events, "", prisonID)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ClearExemption lifts a manual exemption, rescheduling with the standard
// reschedule lead time.
func (e *InductionEngine) ClearExemption(ctx context.Context, personID, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
	var events []sharedDomain.DomainEvent
	err := sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		current, err := e.repo.LoadCurrent(txCtx, personID)
		if err != nil {
			return err
		}

		deadline := domain.DateOnly(e.clock()).AddDate(0, 0, e.rules.RescheduleLeadDays)
		if err := current.ClearExemption(deadline, domain.RuleExemptionCleared, actor, prisonID); err != nil {
			return err
		}
		if err := e.repo.AppendVersion(txCtx, current); err != nil {
			return err
		}

		events = current.DomainEvents()
		return e.stageNotifications(txCtx, events, "", prisonID)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// IsCompleted reports whether the person's induction schedule exists and is
// completed.
func (e *InductionEngine) IsCompleted(ctx context.Context, personID string) (bool, error) {
	current, err := e.repo.LoadCurrent(ctx, personID)
	if errors.Is(err, domain.ErrScheduleNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current.Status() == domain.StatusCompleted, nil
}

// History returns the full audit chain for a person.
func (e *InductionEngine) History(ctx context.Context, personID string) ([]*domain.InductionSchedule, error) {
	return e.repo.History(ctx, personID)
}

func (e *InductionEngine) stageNotifications(ctx context.Context, events []sharedDomain.DomainEvent, deliveryID, prisonID string) error {
	causation := uuid.Nil
	if id, err := uuid.Parse(deliveryID); err == nil {
		causation = id
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(causation, SystemActor, prisonID))

	msgs := make([]*outbox.Message, 0, len(events))
	for _, event := range events {
		msg, err := outbox.NewMessage(event)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return e.outboxRepo.SaveBatch(ctx, msgs)
}
