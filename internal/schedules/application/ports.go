package application

import (
	"context"
	"time"
)

// Clock supplies the current time; injected so deadline arithmetic is
// deterministic under test.
type Clock func() time.Time

// PersonLookup reads prisoner demographics from the search service. Data may
// be stale; staleness is not an error.
type PersonLookup interface {
	// ReleaseDate returns the person's current planned release date, or
	// nil when none is recorded.
	ReleaseDate(ctx context.Context, personID string) (*time.Time, error)

	// CurrentPrison returns the person's current prison code.
	CurrentPrison(ctx context.Context, personID string) (string, error)
}

// ActionPlanExistenceCheck reports whether an action plan exists for a
// person in the surrounding application.
type ActionPlanExistenceCheck interface {
	Exists(ctx context.Context, personID string) (bool, error)
}

// DeliveryDeduper tracks processed delivery ids so duplicate deliveries of
// the same message are dropped before they reach the engines. The transition
// table is itself idempotent; this is the stronger delivery-level guard.
type DeliveryDeduper interface {
	// Seen reports whether the delivery id was already processed.
	Seen(ctx context.Context, deliveryID string) (bool, error)

	// MarkProcessed records the delivery id after successful processing.
	MarkProcessed(ctx context.Context, deliveryID string) error
}
