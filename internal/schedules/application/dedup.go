package application

import (
	"context"
	"sync"
)

// MemoryDeduper is an in-process DeliveryDeduper for local mode and tests.
// It is process-scoped; a restart forgets history, which is acceptable
// because the transition table absorbs redelivered events anyway.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryDeduper creates an empty deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

// Seen reports whether the delivery id was already processed.
func (d *MemoryDeduper) Seen(_ context.Context, deliveryID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[deliveryID]
	return ok, nil
}

// MarkProcessed records the delivery id.
func (d *MemoryDeduper) MarkProcessed(_ context.Context, deliveryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[deliveryID] = struct{}{}
	return nil
}
