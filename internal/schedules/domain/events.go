package domain

import (
	"time"

	sharedDomain "github.com/eshields/caseplan/internal/shared/domain"
)

const (
	InductionAggregateType = "InductionSchedule"
	ReviewAggregateType    = "ReviewSchedule"

	RoutingKeyInductionStatusChanged = "caseplan.induction.status-changed"
	RoutingKeyReviewStatusChanged    = "caseplan.review.status-changed"
)

// InductionStatusChanged is emitted once per accepted induction transition.
// It carries old and new state so downstream consumers can detect replays.
type InductionStatusChanged struct {
	sharedDomain.BaseEvent
	PersonID    string          `json:"person_id"`
	Version     int             `json:"version"`
	OldStatus   Status          `json:"old_status,omitempty"`
	NewStatus   Status          `json:"new_status"`
	OldDeadline *time.Time      `json:"old_deadline,omitempty"`
	NewDeadline time.Time       `json:"new_deadline"`
	Rule        CalculationRule `json:"calculation_rule"`
	PrisonID    string          `json:"prison_id,omitempty"`
}

// NewInductionStatusChanged creates the event for the schedule's current version.
func NewInductionStatusChanged(s *InductionSchedule, oldStatus Status, oldDeadline *time.Time) *InductionStatusChanged {
	return &InductionStatusChanged{
		BaseEvent:   sharedDomain.NewBaseEvent(s.ID(), InductionAggregateType, RoutingKeyInductionStatusChanged),
		PersonID:    s.PersonID(),
		Version:     s.Version(),
		OldStatus:   oldStatus,
		NewStatus:   s.Status(),
		OldDeadline: oldDeadline,
		NewDeadline: s.Deadline(),
		Rule:        s.Rule(),
		PrisonID:    s.UpdatedAtPrison(),
	}
}

// ReviewStatusChanged is emitted once per accepted review transition.
type ReviewStatusChanged struct {
	sharedDomain.BaseEvent
	PersonID      string          `json:"person_id"`
	Version       int             `json:"version"`
	OldStatus     Status          `json:"old_status,omitempty"`
	NewStatus     Status          `json:"new_status"`
	OldWindowFrom *time.Time      `json:"old_window_from,omitempty"`
	OldWindowTo   *time.Time      `json:"old_window_to,omitempty"`
	WindowFrom    time.Time       `json:"window_from"`
	WindowTo      time.Time       `json:"window_to"`
	Rule          CalculationRule `json:"calculation_rule"`
	PreRelease    bool            `json:"pre_release,omitempty"`
	PrisonID      string          `json:"prison_id,omitempty"`
}

// NewReviewStatusChanged creates the event for the schedule's current version.
func NewReviewStatusChanged(s *ReviewSchedule, oldStatus Status, oldFrom, oldTo *time.Time) *ReviewStatusChanged {
	return &ReviewStatusChanged{
		BaseEvent:     sharedDomain.NewBaseEvent(s.ID(), ReviewAggregateType, RoutingKeyReviewStatusChanged),
		PersonID:      s.PersonID(),
		Version:       s.Version(),
		OldStatus:     oldStatus,
		NewStatus:     s.Status(),
		OldWindowFrom: oldFrom,
		OldWindowTo:   oldTo,
		WindowFrom:    s.WindowFrom(),
		WindowTo:      s.WindowTo(),
		Rule:          s.Rule(),
		PreRelease:    s.PreRelease(),
		PrisonID:      s.UpdatedAtPrison(),
	}
}
