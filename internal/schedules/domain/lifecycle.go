package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownEvent marks an event type or reason the transition rules do
	// not recognise. Retrying cannot change the outcome, so dispatchers log
	// and drop these.
	ErrUnknownEvent = errors.New("unknown lifecycle event")
)

// Inbound lifecycle event types as delivered by the prison events topic.
const (
	EventTypeReceived = "received-into-prison"
	EventTypeReleased = "released-from-prison"
	EventTypeMerged   = "merged"
)

// Inbound reason sub-types.
const (
	ReasonAdmission              = "admission"
	ReasonTransfer               = "transfer"
	ReasonTemporaryAbsenceReturn = "temporary-absence-return"
	ReasonDeath                  = "death"
	ReasonRelease                = "release"
	ReasonMerge                  = "merge"
)

// EventKind is the normalised lifecycle event kind the transition table
// operates on.
type EventKind string

const (
	KindAdmission              EventKind = "admission"
	KindTransfer               EventKind = "transfer"
	KindTemporaryAbsenceReturn EventKind = "temporary-absence-return"
	KindRelease                EventKind = "release"
	KindDeath                  EventKind = "death"
	KindMerge                  EventKind = "merge"
)

// IsReEntry reports whether the kind puts the person back into a prison's
// care.
func (k EventKind) IsReEntry() bool {
	switch k {
	case KindAdmission, KindTransfer, KindTemporaryAbsenceReturn:
		return true
	}
	return false
}

// LifecycleEvent is a decoded inbound prisoner lifecycle event. Transport
// concerns (visibility, redelivery) are owned by the message broker; by the
// time an event reaches the engines it is a plain structured value.
type LifecycleEvent struct {
	DeliveryID string    `json:"delivery_id"`
	PersonID   string    `json:"person_id"`
	EventType  string    `json:"event_type"`
	Reason     string    `json:"reason"`
	PrisonID   string    `json:"prison_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Kind normalises the event type and reason into an EventKind.
func (e LifecycleEvent) Kind() (EventKind, error) {
	switch e.EventType {
	case EventTypeReceived:
		switch e.Reason {
		case ReasonAdmission:
			return KindAdmission, nil
		case ReasonTransfer:
			return KindTransfer, nil
		case ReasonTemporaryAbsenceReturn:
			return KindTemporaryAbsenceReturn, nil
		}
	case EventTypeReleased:
		switch e.Reason {
		case ReasonDeath:
			return KindDeath, nil
		case ReasonRelease:
			return KindRelease, nil
		}
	case EventTypeMerged:
		return KindMerge, nil
	}
	return "", fmt.Errorf("%w: type %q reason %q", ErrUnknownEvent, e.EventType, e.Reason)
}
