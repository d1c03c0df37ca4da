package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eshields/caseplan/internal/schedules/domain"
	sharedApplication "github.com/eshields/caseplan/internal/shared/application"
	"github.com/eshields/caseplan/internal/shared/infrastructure/eventbus"
)

// conflictRetries bounds reprocessing when a concurrent writer wins the
// version race. The broker redelivers on exhaustion.
const conflictRetries = 3

// LifecycleEventDispatcher consumes prisoner lifecycle events from the bus
// and feeds them to both engines in a single transaction. It deduplicates
// deliveries, serialises processing per person, and absorbs optimistic
// version conflicts with a bounded retry. Unrecognised event shapes are
// logged and acknowledged so they do not wedge the queue.
type LifecycleEventDispatcher struct {
	induction *InductionEngine
	review    *ReviewEngine
	uow       sharedApplication.UnitOfWork
	deduper   DeliveryDeduper
	locks     *KeyedLocks
	logger    *slog.Logger
}

// NewLifecycleEventDispatcher creates a dispatcher.
func NewLifecycleEventDispatcher(
	induction *InductionEngine,
	review *ReviewEngine,
	uow sharedApplication.UnitOfWork,
	deduper DeliveryDeduper,
	logger *slog.Logger,
) *LifecycleEventDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleEventDispatcher{
		induction: induction,
		review:    review,
		uow:       uow,
		deduper:   deduper,
		locks:     NewKeyedLocks(),
		logger:    logger,
	}
}

// EventTypes returns the upstream routing keys the dispatcher subscribes to.
func (d *LifecycleEventDispatcher) EventTypes() []string {
	return []string{
		"prison-offender-events.prisoner.received",
		"prison-offender-events.prisoner.released",
		"prison-offender-events.prisoner.merged",
	}
}

// Handle decodes and processes one delivery. Returning nil acknowledges the
// message; an error triggers broker redelivery.
func (d *LifecycleEventDispatcher) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var ev domain.LifecycleEvent
	if err := json.Unmarshal(event.Payload, &ev); err != nil {
		d.logger.Warn("dropping undecodable lifecycle event",
			"routing_key", event.RoutingKey,
			"delivery_id", event.DeliveryID,
			"error", err,
		)
		return nil
	}
	if ev.DeliveryID == "" {
		ev.DeliveryID = event.DeliveryID
	}
	if ev.PersonID == "" {
		d.logger.Warn("dropping lifecycle event without person id",
			"routing_key", event.RoutingKey,
			"delivery_id", ev.DeliveryID,
		)
		return nil
	}

	return d.Dispatch(ctx, ev)
}

// Dispatch runs one lifecycle event through both engines under the person's
// lock. It is safe to call concurrently for different people.
func (d *LifecycleEventDispatcher) Dispatch(ctx context.Context, ev domain.LifecycleEvent) error {
	if _, err := ev.Kind(); err != nil {
		if errors.Is(err, domain.ErrUnknownEvent) {
			d.logger.Warn("dropping unrecognised lifecycle event",
				"event_type", ev.EventType,
				"reason", ev.Reason,
				"delivery_id", ev.DeliveryID,
			)
			return nil
		}
		return err
	}

	if ev.DeliveryID != "" {
		seen, err := d.deduper.Seen(ctx, ev.DeliveryID)
		if err != nil {
			return fmt.Errorf("check delivery dedup: %w", err)
		}
		if seen {
			d.logger.Debug("skipping duplicate delivery",
				"delivery_id", ev.DeliveryID,
				"person_id", ev.PersonID,
			)
			return nil
		}
	}

	unlock := d.locks.Lock(ev.PersonID)
	defer unlock()

	if err := d.process(ctx, ev); err != nil {
		return err
	}

	if ev.DeliveryID != "" {
		if err := d.deduper.MarkProcessed(ctx, ev.DeliveryID); err != nil {
			// The engines are idempotent for repeated lifecycle events,
			// so a lost dedup mark only costs a redundant pass.
			d.logger.Warn("failed to mark delivery processed",
				"delivery_id", ev.DeliveryID,
				"error", err,
			)
		}
	}
	return nil
}

// process applies the event to both engines inside one transaction, so a
// failure in either leg rolls back the whole delivery and a redelivery never
// sees a half-applied pair. The engines join the outer transaction through
// their own unit of work. Version conflicts retry the whole pair; each
// attempt reloads current state in a fresh transaction.
func (d *LifecycleEventDispatcher) process(ctx context.Context, ev domain.LifecycleEvent) error {
	var lastErr error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err := sharedApplication.WithUnitOfWork(ctx, d.uow, func(txCtx context.Context) error {
			if _, err := d.induction.HandleLifecycleEvent(txCtx, ev); err != nil {
				return fmt.Errorf("induction engine: %w", err)
			}
			if _, err := d.review.HandleLifecycleEvent(txCtx, ev); err != nil {
				return fmt.Errorf("review engine: %w", err)
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		lastErr = err
		d.logger.Debug("version conflict, retrying",
			"person_id", ev.PersonID,
			"attempt", attempt+1,
		)
	}
	return fmt.Errorf("event for %s after %d retries: %w", ev.PersonID, conflictRetries, lastErr)
}
