package application

import (
	"github.com/eshields/caseplan/internal/shared/domain"
	"github.com/google/uuid"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// NewEventMetadata creates dispatch-scoped metadata for domain events.
// CausationID ties an outbound notification back to the inbound delivery
// that produced it.
func NewEventMetadata(causationID uuid.UUID, actor, prisonID string) domain.EventMetadata {
	return domain.EventMetadata{
		CorrelationID: uuid.New(),
		CausationID:   causationID,
		Actor:         actor,
		PrisonID:      prisonID,
	}
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
