package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshields/caseplan/internal/app"
	"github.com/eshields/caseplan/internal/schedules/domain"
	"github.com/eshields/caseplan/internal/shared/infrastructure/eventbus"
	"github.com/eshields/caseplan/internal/shared/infrastructure/migrations"
	"github.com/eshields/caseplan/pkg/config"
)

func TestNewContainerLocalMode(t *testing.T) {
	ctx := context.Background()
	t.Setenv("DATABASE_URL", "sqlite::memory:")

	cfg, err := config.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := app.NewContainer(ctx, cfg, logger, app.Options{})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NotNil(t, c.SQLiteDB)
	require.NoError(t, migrations.RunSQLiteMigrations(ctx, c.SQLiteDB))

	// Local mode runs one synchronous bus as both publisher and consumer.
	bus, ok := c.EventPublisher.(*eventbus.InProcessEventBus)
	require.True(t, ok, "local mode should publish through the in-process bus")
	assert.Same(t, bus, c.EventConsumer)

	// A lifecycle event published on the bus reaches the dispatcher and
	// lands in storage.
	lifecycle, err := json.Marshal(domain.LifecycleEvent{
		DeliveryID: "6d1a7c44-1b2f-4a7e-9f3c-58a1d2e4b901",
		PersonID:   "A1234BC",
		EventType:  domain.EventTypeReceived,
		Reason:     domain.ReasonAdmission,
		PrisonID:   "LEI",
	})
	require.NoError(t, err)
	envelope, err := json.Marshal(&eventbus.ConsumedEvent{
		RoutingKey: "prison-offender-events.prisoner.received",
		Payload:    lifecycle,
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "prison-offender-events.prisoner.received", envelope))

	current, err := c.InductionRepo.LoadCurrent(ctx, "A1234BC")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, current.Status())
}
