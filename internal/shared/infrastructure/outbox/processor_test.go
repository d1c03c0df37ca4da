package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshields/caseplan/internal/shared/infrastructure/outbox"
)

// fakeRepository is a test double for outbox.Repository.
type fakeRepository struct {
	mu       sync.Mutex
	messages []*outbox.Message
}

func (r *fakeRepository) Save(_ context.Context, msg *outbox.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = int64(len(r.messages) + 1)
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeRepository) SaveBatch(ctx context.Context, msgs []*outbox.Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRepository) GetUnpublished(_ context.Context, limit int) ([]*outbox.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*outbox.Message
	now := time.Now()
	for _, msg := range r.messages {
		if msg.PublishedAt != nil || msg.DeadLetteredAt != nil {
			continue
		}
		if msg.NextRetryAt != nil && msg.NextRetryAt.After(now) {
			continue
		}
		result = append(result, msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *fakeRepository) MarkPublished(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			now := time.Now()
			msg.PublishedAt = &now
			break
		}
	}
	return nil
}

func (r *fakeRepository) MarkFailed(_ context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			msg.RetryCount++
			msg.LastError = &errMsg
			msg.NextRetryAt = &nextRetryAt
			break
		}
	}
	return nil
}

func (r *fakeRepository) MarkDead(_ context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			now := time.Now()
			msg.DeadLetteredAt = &now
			msg.DeadLetterReason = &reason
			break
		}
	}
	return nil
}

func (r *fakeRepository) DeleteOld(context.Context, int) (int64, error) { return 0, nil }

func (r *fakeRepository) message(id int64) *outbox.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// fakePublisher is a test double for eventbus.Publisher.
type fakePublisher struct {
	mu         sync.Mutex
	published  []string
	shouldFail bool
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shouldFail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, routingKey)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) publishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func stagedMessage(routingKey string) *outbox.Message {
	payload, _ := json.Marshal(map[string]string{"person_id": "A1234BC"})
	return &outbox.Message{
		AggregateType: "InductionSchedule",
		AggregateID:   uuid.New(),
		EventType:     routingKey,
		RoutingKey:    routingKey,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}

func TestProcessorProcessOnce(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepository{}
	publisher := &fakePublisher{}
	processor := outbox.NewProcessor(repo, publisher, outbox.DefaultProcessorConfig(), nil)

	require.NoError(t, repo.Save(ctx, stagedMessage("caseplan.induction.status-changed")))
	require.NoError(t, repo.Save(ctx, stagedMessage("caseplan.review.status-changed")))

	require.NoError(t, processor.ProcessOnce(ctx))

	assert.Equal(t, 2, publisher.publishedCount())
	assert.True(t, repo.message(1).IsPublished())
	assert.True(t, repo.message(2).IsPublished())

	stats := processor.GetStats()
	assert.Equal(t, uint64(2), stats.PublishedCount)
}

func TestProcessorProcessOncePublishFailure(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepository{}
	publisher := &fakePublisher{shouldFail: true}
	processor := outbox.NewProcessor(repo, publisher, outbox.DefaultProcessorConfig(), nil)

	require.NoError(t, repo.Save(ctx, stagedMessage("caseplan.induction.status-changed")))
	require.NoError(t, processor.ProcessOnce(ctx))

	msg := repo.message(1)
	assert.False(t, msg.IsPublished())
	assert.Equal(t, 1, msg.RetryCount)
	require.NotNil(t, msg.LastError)
	assert.Contains(t, *msg.LastError, "broker unavailable")
	require.NotNil(t, msg.NextRetryAt)
	assert.True(t, msg.NextRetryAt.After(time.Now()))
}

func TestProcessorDeadLettersAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepository{}
	publisher := &fakePublisher{shouldFail: true}
	config := outbox.DefaultProcessorConfig()
	config.MaxRetries = 2
	processor := outbox.NewProcessor(repo, publisher, config, nil)

	require.NoError(t, repo.Save(ctx, stagedMessage("caseplan.induction.status-changed")))

	require.NoError(t, processor.ProcessOnce(ctx))
	msg := repo.message(1)
	assert.Nil(t, msg.DeadLetteredAt)

	// The second failed attempt reaches MaxRetries and dead-letters. Clear
	// the backoff so it is picked up without waiting.
	msg.NextRetryAt = nil
	require.NoError(t, processor.ProcessOnce(ctx))
	assert.NotNil(t, msg.DeadLetteredAt)
	require.NotNil(t, msg.DeadLetterReason)
	assert.Contains(t, *msg.DeadLetterReason, "broker unavailable")

	// Dead-lettered messages are never picked up again.
	require.NoError(t, processor.ProcessOnce(ctx))
	assert.Zero(t, publisher.publishedCount())
}

func TestProcessorRetryThenRecovery(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepository{}
	publisher := &fakePublisher{shouldFail: true}
	processor := outbox.NewProcessor(repo, publisher, outbox.DefaultProcessorConfig(), nil)

	require.NoError(t, repo.Save(ctx, stagedMessage("caseplan.review.status-changed")))
	require.NoError(t, processor.ProcessOnce(ctx))
	require.Zero(t, publisher.publishedCount())

	publisher.shouldFail = false
	repo.message(1).NextRetryAt = nil
	require.NoError(t, processor.ProcessOnce(ctx))

	assert.Equal(t, 1, publisher.publishedCount())
	assert.True(t, repo.message(1).IsPublished())
}

func TestProcessorStartStop(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepository{}
	publisher := &fakePublisher{}
	config := outbox.DefaultProcessorConfig()
	config.PollInterval = 10 * time.Millisecond
	processor := outbox.NewProcessor(repo, publisher, config, nil)

	require.NoError(t, repo.Save(ctx, stagedMessage("caseplan.induction.status-changed")))

	require.NoError(t, processor.Start(ctx))
	assert.True(t, processor.IsRunning())

	assert.Eventually(t, func() bool {
		return publisher.publishedCount() == 1
	}, time.Second, 5*time.Millisecond)

	processor.Stop()
	assert.False(t, processor.IsRunning())

	// Stopping twice is safe.
	processor.Stop()

	// Starting twice is safe too.
	require.NoError(t, processor.Start(ctx))
	require.NoError(t, processor.Start(ctx))
	processor.Stop()
}
