package domain

import (
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/eshields/caseplan/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrAlreadyCompleted  = errors.New("schedule already completed")
	ErrScheduleCompleted = errors.New("schedule is completed and cannot transition")
	ErrNotExemption      = errors.New("status is not an exemption")
	ErrNotExempt         = errors.New("schedule is not exempt")
)

// InductionSchedule tracks the obligation to complete an initial induction
// interview for one person. The aggregate ID is the stable reference of the
// schedule slot; each accepted transition appends one immutable version to
// its history.
type InductionSchedule struct {
	sharedDomain.BaseAggregateRoot
	personID string
	status   Status
	rule     CalculationRule
	deadline time.Time

	updatedBy       string
	updatedAtPrison string
	createdBy       string
	createdAtPrison string
}

// NewInductionSchedule creates version 1 of a person's induction schedule.
func NewInductionSchedule(personID string, deadline time.Time, rule CalculationRule, actor, prisonID string) *InductionSchedule {
	s := &InductionSchedule{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		personID:          personID,
		status:            StatusScheduled,
		rule:              rule,
		deadline:          DateOnly(deadline),
		updatedBy:         actor,
		updatedAtPrison:   prisonID,
		createdBy:         actor,
		createdAtPrison:   prisonID,
	}
	s.AddDomainEvent(NewInductionStatusChanged(s, "", nil))
	return s
}

// Getters
func (s *InductionSchedule) PersonID() string        { return s.personID }
func (s *InductionSchedule) Status() Status          { return s.status }
func (s *InductionSchedule) Rule() CalculationRule   { return s.rule }
func (s *InductionSchedule) Deadline() time.Time     { return s.deadline }
func (s *InductionSchedule) UpdatedBy() string       { return s.updatedBy }
func (s *InductionSchedule) UpdatedAtPrison() string { return s.updatedAtPrison }
func (s *InductionSchedule) CreatedBy() string       { return s.createdBy }
func (s *InductionSchedule) CreatedAtPrison() string { return s.createdAtPrison }

func (s *InductionSchedule) advance(status Status, deadline time.Time, rule CalculationRule, actor, prisonID string) {
	oldStatus := s.status
	oldDeadline := s.deadline

	s.IncrementVersion()
	s.status = status
	s.deadline = deadline
	if rule != "" {
		s.rule = rule
	}
	s.updatedBy = actor
	s.updatedAtPrison = prisonID
	s.Touch()

	s.AddDomainEvent(NewInductionStatusChanged(s, oldStatus, &oldDeadline))
}

// Apply appends one transition step. Exemption steps keep the current
// deadline; reschedule steps replace it.
func (s *InductionSchedule) Apply(step Step, newDeadline time.Time, actor, prisonID string) error {
	if s.status.IsTerminal() {
		return ErrScheduleCompleted
	}

	if step.Reschedules() {
		s.advance(StatusScheduled, DateOnly(newDeadline), step.Rule, actor, prisonID)
		return nil
	}
	if !step.Status.IsExemption() {
		return fmt.Errorf("%w: %s", ErrNotExemption, step.Status)
	}
	s.advance(step.Status, s.deadline, "", actor, prisonID)
	return nil
}

// Complete records the induction interview. Completed schedules stay
// completed; calling this twice is the caller's no-op to absorb.
func (s *InductionSchedule) Complete(actor, prisonID string) error {
	if s.status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	s.advance(StatusCompleted, s.deadline, "", actor, prisonID)
	return nil
}

// Exempt applies a manual exemption. The deadline is retained so a later
// clear can resume from it.
func (s *InductionSchedule) Exempt(reason Status, actor, prisonID string) error {
	if s.status.IsTerminal() {
		return ErrScheduleCompleted
	}
	if !reason.IsManualExemption() {
		return fmt.Errorf("%w: %s", ErrNotExemption, reason)
	}
	if s.status == reason {
		return nil
	}
	s.advance(reason, s.deadline, "", actor, prisonID)
	return nil
}

// ClearExemption lifts a manual exemption back to scheduled with a fresh
// deadline.
func (s *InductionSchedule) ClearExemption(newDeadline time.Time, rule CalculationRule, actor, prisonID string) error {
	if !s.status.IsManualExemption() {
		return ErrNotExempt
	}
	s.advance(StatusScheduled, DateOnly(newDeadline), rule, actor, prisonID)
	return nil
}

// RehydrateInductionSchedule recreates one persisted version of a schedule.
func RehydrateInductionSchedule(
	reference uuid.UUID,
	version int,
	personID string,
	status Status,
	rule CalculationRule,
	deadline time.Time,
	createdBy, createdAtPrison string,
	updatedBy, updatedAtPrison string,
	createdAt, updatedAt time.Time,
) *InductionSchedule {
	entity := sharedDomain.RehydrateBaseEntity(reference, createdAt, updatedAt)
	return &InductionSchedule{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity, version),
		personID:          personID,
		status:            status,
		rule:              rule,
		deadline:          deadline,
		updatedBy:         updatedBy,
		updatedAtPrison:   updatedAtPrison,
		createdBy:         createdBy,
		createdAtPrison:   createdAtPrison,
	}
}
