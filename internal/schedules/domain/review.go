package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/eshields/caseplan/internal/shared/domain"
	"github.com/google/uuid"
)

// ReviewSchedule tracks the obligation to complete a periodic action-plan
// review for one person. It carries a date window rather than a single
// deadline, and a pre-release flag on its final completion.
type ReviewSchedule struct {
	sharedDomain.BaseAggregateRoot
	personID   string
	status     Status
	rule       CalculationRule
	windowFrom time.Time
	windowTo   time.Time
	preRelease bool

	updatedBy       string
	updatedAtPrison string
	createdBy       string
	createdAtPrison string
}

// NewReviewSchedule creates version 1 of a person's review schedule.
func NewReviewSchedule(personID string, from, to time.Time, rule CalculationRule, actor, prisonID string) *ReviewSchedule {
	s := &ReviewSchedule{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		personID:          personID,
		status:            StatusScheduled,
		rule:              rule,
		windowFrom:        DateOnly(from),
		windowTo:          DateOnly(to),
		updatedBy:         actor,
		updatedAtPrison:   prisonID,
		createdBy:         actor,
		createdAtPrison:   prisonID,
	}
	s.AddDomainEvent(NewReviewStatusChanged(s, "", nil, nil))
	return s
}

// Getters
func (s *ReviewSchedule) PersonID() string        { return s.personID }
func (s *ReviewSchedule) Status() Status          { return s.status }
func (s *ReviewSchedule) Rule() CalculationRule   { return s.rule }
func (s *ReviewSchedule) WindowFrom() time.Time   { return s.windowFrom }
func (s *ReviewSchedule) WindowTo() time.Time     { return s.windowTo }
func (s *ReviewSchedule) PreRelease() bool        { return s.preRelease }
func (s *ReviewSchedule) UpdatedBy() string       { return s.updatedBy }
func (s *ReviewSchedule) UpdatedAtPrison() string { return s.updatedAtPrison }
func (s *ReviewSchedule) CreatedBy() string       { return s.createdBy }
func (s *ReviewSchedule) CreatedAtPrison() string { return s.createdAtPrison }

func (s *ReviewSchedule) advance(status Status, from, to time.Time, rule CalculationRule, actor, prisonID string) {
	oldStatus := s.status
	oldFrom := s.windowFrom
	oldTo := s.windowTo

	s.IncrementVersion()
	s.status = status
	s.windowFrom = from
	s.windowTo = to
	if rule != "" {
		s.rule = rule
	}
	s.updatedBy = actor
	s.updatedAtPrison = prisonID
	s.Touch()

	s.AddDomainEvent(NewReviewStatusChanged(s, oldStatus, &oldFrom, &oldTo))
}

// Apply appends one transition step. Exemption steps keep the current
// window; reschedule steps replace it.
func (s *ReviewSchedule) Apply(step Step, from, to time.Time, actor, prisonID string) error {
	if s.status.IsTerminal() {
		return ErrScheduleCompleted
	}

	if step.Reschedules() {
		s.advance(StatusScheduled, DateOnly(from), DateOnly(to), step.Rule, actor, prisonID)
		return nil
	}
	if !step.Status.IsExemption() {
		return fmt.Errorf("%w: %s", ErrNotExemption, step.Status)
	}
	s.advance(step.Status, s.windowFrom, s.windowTo, "", actor, prisonID)
	return nil
}

// Complete records the review. When the person's release date is inside the
// pre-release horizon the completion is flagged and no further cycle starts.
func (s *ReviewSchedule) Complete(preRelease bool, actor, prisonID string) error {
	if s.status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	oldStatus := s.status
	oldFrom := s.windowFrom
	oldTo := s.windowTo

	s.IncrementVersion()
	s.status = StatusCompleted
	s.preRelease = preRelease
	s.updatedBy = actor
	s.updatedAtPrison = prisonID
	s.Touch()

	s.AddDomainEvent(NewReviewStatusChanged(s, oldStatus, &oldFrom, &oldTo))
	return nil
}

// PrepareRestart moves a pre-release-completed schedule into the transfer
// exemption that opens a readmission restart. This is the one sanctioned
// exit from the completed status, and only when the completion was flagged
// pre-release.
func (s *ReviewSchedule) PrepareRestart(actor, prisonID string) error {
	if s.status != StatusCompleted || !s.preRelease {
		return fmt.Errorf("cannot restart review cycle from status %s (pre-release %t)", s.status, s.preRelease)
	}
	oldStatus := s.status
	oldFrom := s.windowFrom
	oldTo := s.windowTo

	s.IncrementVersion()
	s.status = StatusExemptTransfer
	s.updatedBy = actor
	s.updatedAtPrison = prisonID
	s.Touch()

	s.AddDomainEvent(NewReviewStatusChanged(s, oldStatus, &oldFrom, &oldTo))
	return nil
}

// StartNextCycle appends a fresh scheduled version, beginning the next
// review cycle in the same history chain. It follows either a completion or
// the transfer exemption a readmission restart opens with.
func (s *ReviewSchedule) StartNextCycle(from, to time.Time, rule CalculationRule, actor, prisonID string) error {
	if s.status != StatusCompleted && s.status != StatusExemptTransfer {
		return fmt.Errorf("cannot start next cycle from status %s", s.status)
	}
	oldStatus := s.status
	oldFrom := s.windowFrom
	oldTo := s.windowTo

	s.IncrementVersion()
	s.status = StatusScheduled
	s.rule = rule
	s.windowFrom = DateOnly(from)
	s.windowTo = DateOnly(to)
	s.preRelease = false
	s.updatedBy = actor
	s.updatedAtPrison = prisonID
	s.Touch()

	s.AddDomainEvent(NewReviewStatusChanged(s, oldStatus, &oldFrom, &oldTo))
	return nil
}

// Exempt applies a manual exemption, keeping the window.
func (s *ReviewSchedule) Exempt(reason Status, actor, prisonID string) error {
	if s.status.IsTerminal() {
		return ErrScheduleCompleted
	}
	if !reason.IsManualExemption() {
		return fmt.Errorf("%w: %s", ErrNotExemption, reason)
	}
	if s.status == reason {
		return nil
	}
	s.advance(reason, s.windowFrom, s.windowTo, "", actor, prisonID)
	return nil
}

// ClearExemption lifts a manual exemption back to scheduled with a fresh window.
func (s *ReviewSchedule) ClearExemption(from, to time.Time, rule CalculationRule, actor, prisonID string) error {
	if !s.status.IsManualExemption() {
		return ErrNotExempt
	}
	s.advance(StatusScheduled, DateOnly(from), DateOnly(to), rule, actor, prisonID)
	return nil
}

// RehydrateReviewSchedule recreates one persisted version of a schedule.
func RehydrateReviewSchedule(
	reference uuid.UUID,
	version int,
	personID string,
	status Status,
	rule CalculationRule,
	from, to time.Time,
	preRelease bool,
	createdBy, createdAtPrison string,
	updatedBy, updatedAtPrison string,
	createdAt, updatedAt time.Time,
) *ReviewSchedule {
	entity := sharedDomain.RehydrateBaseEntity(reference, createdAt, updatedAt)
	return &ReviewSchedule{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity, version),
		personID:          personID,
		status:            status,
		rule:              rule,
		windowFrom:        from,
		windowTo:          to,
		preRelease:        preRelease,
		updatedBy:         updatedBy,
		updatedAtPrison:   updatedAtPrison,
		createdBy:         createdBy,
		createdAtPrison:   createdAtPrison,
	}
}
