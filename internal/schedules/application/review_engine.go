package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eshields/caseplan/internal/schedules/domain"
	sharedApplication "github.com/eshields/caseplan/internal/shared/application"
	sharedDomain "github.com/eshields/caseplan/internal/shared/domain"
	"github.com/eshields/caseplan/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// ReviewEngine owns review schedule state. A review schedule only comes into
// existence through CreateInitialScheduleIfEligible; lifecycle events mutate
// an existing one or restart a closed pre-release cycle on re-entry.
type ReviewEngine struct {
	repo       domain.ReviewHistoryRepository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	lookup     PersonLookup
	rules      domain.DeadlineRules
	clock      Clock
	logger     *slog.Logger
}

// NewReviewEngine creates a review engine.
func NewReviewEngine(
	repo domain.ReviewHistoryRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	lookup PersonLookup,
	rules domain.DeadlineRules,
	clock Clock,
	logger *slog.Logger,
) *ReviewEngine {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewEngine{
		repo:       repo,
		outboxRepo: outboxRepo,
		uow:        uow,
		lookup:     lookup,
		rules:      rules,
		clock:      clock,
		logger:     logger,
	}
}

// HandleLifecycleEvent applies one lifecycle event to the person's review
// schedule. Missing schedules are a no-op: lifecycle events never create a
// review. A completed pre-release cycle is restarted when the person comes
// back into prison with a release date beyond the pre-release horizon; a
// re-entry still inside the horizon leaves the cycle closed.
func (e *ReviewEngine) HandleLifecycleEvent(ctx context.Context, ev domain.LifecycleEvent) ([]sharedDomain.DomainEvent, error) {
	kind, err := ev.Kind()
	if err != nil {
		return nil, err
	}

	var events []sharedDomain.DomainEvent
	err = sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		current, err := e.repo.LoadCurrent(txCtx, ev.PersonID)
		if errors.Is(err, domain.ErrScheduleNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if current.Status() == domain.StatusCompleted && current.PreRelease() && kind.IsReEntry() {
			releaseDate, err := e.lookup.ReleaseDate(txCtx, ev.PersonID)
			if err != nil {
				return fmt.Errorf("look up release date for review restart: %w", err)
			}
			if e.rules.WithinPreReleaseHorizon(releaseDate, e.clock()) {
				e.logger.Debug("re-entry inside pre-release horizon, review stays closed",
					"person_id", ev.PersonID,
					"release_date", releaseDate,
				)
				return nil
			}
			events, err = e.restart(txCtx, current, ev)
			return err
		}

		steps := domain.Transition(current.Status(), kind)
		if len(steps) == 0 {
			e.logger.Debug("review lifecycle no-op",
				"person_id", ev.PersonID,
				"status", current.Status(),
				"event_kind", kind,
			)
			return nil
		}

		for _, step := range steps {
			var from, to time.Time
			if step.Reschedules() {
				from, to, step.Rule = e.rules.ReviewWindow(kind, e.clock())
			}
			if err := current.Apply(step, from, to, SystemActor, ev.PrisonID); err != nil {
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

// restart reopens a completed pre-release cycle on readmission: one version
// recording the transfer exemption, one rescheduling with the readmission
// window.
func (e *ReviewEngine) restart(ctx context.Context, current *domain.ReviewSchedule, ev domain.LifecycleEvent) ([]sharedDomain.DomainEvent, error) {
	if err := current.PrepareRestart(SystemActor, ev.PrisonID); err != nil {
		return nil, err
	}
	if err := e.repo.AppendVersion(ctx, current); err != nil {
		return nil, err
	}

	from, to, rule := e.rules.ReadmissionWindow(e.clock())
	if err := current.StartNextCycle(from, to, rule, SystemActor, ev.PrisonID); err != nil {
		return nil, err
	}
	if err := e.repo.AppendVersion(ctx, current); err != nil {
		return nil, err
	}

	e.logger.Info("pre-release review cycle restarted",
		"person_id", ev.PersonID,
		"window_from", from,
		"window_to", to,
	)

	events := current.DomainEvents()
	if err := e.stageNotifications(ctx, events, ev.DeliveryID, ev.PrisonID); err != nil {
		return nil, err
	}
	return events, nil
}

// CreateInitialScheduleIfEligible creates version 1 of a person's review
// schedule. It is idempotent: an existing schedule makes it a no-op. The
// caller is responsible for the eligibility gate itself.
func (e *ReviewEngine) CreateInitialScheduleIfEligible(ctx context.Context, personID, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
	var events []sharedDomain.DomainEvent
	err := sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		_, err := e.repo.LoadCurrent(txCtx, personID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrScheduleNotFound) {
			return err
		}

		from, to, rule := e.rules.InitialReviewWindow(e.clock())
		s := domain.NewReviewSchedule(personID, from, to, rule, actor, prisonID)
		if err := e.repo.AppendVersion(txCtx, s); err != nil {
			return err
		}

		events = s.DomainEvents()
		if err := e.stageNotifications(txCtx, events, "", prisonID); err != nil {
			return err
		}

		e.logger.Info("review schedule created",
			"person_id", personID,
			"window_from", from,
			"window_to", to,
			"calculation_rule", rule,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Complete records a held review. When the person's planned release date
// falls within the pre-release horizon the cycle closes as pre-release and no
// next window is scheduled; otherwise the next cycle opens immediately. A
// failed release-date lookup aborts the whole operation so the caller can
// retry.
func (e *ReviewEngine) Complete(ctx context.Context, personID, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
	releaseDate, err := e.lookup.ReleaseDate(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("look up release date for review completion: %w", err)
	}
	preRelease := e.rules.WithinPreReleaseHorizon(releaseDate, e.clock())

	var events []sharedDomain.DomainEvent
	err = sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		current, err := e.repo.LoadCurrent(txCtx, personID)
		if err != nil {
			return err
		}

		if err := current.Complete(preRelease, actor, prisonID); err != nil {
			if errors.Is(err, domain.ErrAlreadyCompleted) {
				return nil
			}
			return err
		}
		if err := e.repo.AppendVersion(txCtx, current); err != nil {
			return err
		}

		if !preRelease {
			from, to, rule := e.rules.NextReviewWindow(e.clock())
			if err := current.StartNextCycle(from, to, rule, actor, prisonID); err != nil {
				return err
			}
			if err := e.repo.AppendVersion(txCtx, current); err != nil {
				return err
			}
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
func (e *ReviewEngine) Exempt(ctx context.Context, personID string, reason domain.Status, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
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

// ClearExemption lifts a manual exemption, rescheduling the review with the
// short catch-up window.
func (e *ReviewEngine) ClearExemption(ctx context.Context, personID, actor, prisonID string) ([]sharedDomain.DomainEvent, error) {
	var events []sharedDomain.DomainEvent
	err := sharedApplication.WithUnitOfWork(ctx, e.uow, func(txCtx context.Context) error {
		current, err := e.repo.LoadCurrent(txCtx, personID)
		if err != nil {
			return err
		}

		to := domain.DateOnly(e.clock()).AddDate(0, 0, e.rules.ReviewAbsenceWindowDays)
		from := domain.DateOnly(e.clock())
		if err := current.ClearExemption(from, to, domain.RuleExemptionCleared, actor, prisonID); err != nil {
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

// History returns the full audit chain for a person.
func (e *ReviewEngine) History(ctx context.Context, personID string) ([]*domain.ReviewSchedule, error) {
	return e.repo.History(ctx, personID)
}

func (e *ReviewEngine) stageNotifications(ctx context.Context, events []sharedDomain.DomainEvent, deliveryID, prisonID string) error {
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
