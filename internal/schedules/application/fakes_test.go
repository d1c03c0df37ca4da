package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/eshields/caseplan/internal/schedules/domain"
	"github.com/eshields/caseplan/internal/shared/infrastructure/outbox"
)

// nopUnitOfWork satisfies the UnitOfWork interface without a database.
type nopUnitOfWork struct{}

func (nopUnitOfWork) Begin(ctx context.Context) (context.Context, error) { return ctx, nil }
func (nopUnitOfWork) Commit(ctx context.Context) error                   { return nil }
func (nopUnitOfWork) Rollback(ctx context.Context) error                 { return nil }

// memInductionRepo keeps induction history in memory, enforcing the same
// unique (person, version) rule as the SQL stores.
type memInductionRepo struct {
	mu       sync.Mutex
	versions map[string][]*domain.InductionSchedule
	failNext error
}

func newMemInductionRepo() *memInductionRepo {
	return &memInductionRepo{versions: make(map[string][]*domain.InductionSchedule)}
}

func snapshotInduction(s *domain.InductionSchedule) *domain.InductionSchedule {
	return domain.RehydrateInductionSchedule(
		s.ID(), s.Version(), s.PersonID(), s.Status(), s.Rule(), s.Deadline(),
		s.CreatedBy(), s.CreatedAtPrison(), s.UpdatedBy(), s.UpdatedAtPrison(),
		s.CreatedAt(), s.UpdatedAt(),
	)
}

func (r *memInductionRepo) LoadCurrent(_ context.Context, personID string) (*domain.InductionSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.versions[personID]
	if len(history) == 0 {
		return nil, domain.ErrScheduleNotFound
	}
	return snapshotInduction(history[len(history)-1]), nil
}

func (r *memInductionRepo) History(_ context.Context, personID string) ([]*domain.InductionSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.InductionSchedule(nil), r.versions[personID]...), nil
}

func (r *memInductionRepo) AppendVersion(_ context.Context, s *domain.InductionSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if s.Version() != len(r.versions[s.PersonID()])+1 {
		return domain.ErrVersionConflict
	}
	r.versions[s.PersonID()] = append(r.versions[s.PersonID()], snapshotInduction(s))
	return nil
}

// memReviewRepo keeps review history in memory.
type memReviewRepo struct {
	mu       sync.Mutex
	versions map[string][]*domain.ReviewSchedule
}

func newMemReviewRepo() *memReviewRepo {
	return &memReviewRepo{versions: make(map[string][]*domain.ReviewSchedule)}
}

func snapshotReview(s *domain.ReviewSchedule) *domain.ReviewSchedule {
	return domain.RehydrateReviewSchedule(
		s.ID(), s.Version(), s.PersonID(), s.Status(), s.Rule(),
		s.WindowFrom(), s.WindowTo(), s.PreRelease(),
		s.CreatedBy(), s.CreatedAtPrison(), s.UpdatedBy(), s.UpdatedAtPrison(),
		s.CreatedAt(), s.UpdatedAt(),
	)
}

func (r *memReviewRepo) LoadCurrent(_ context.Context, personID string) (*domain.ReviewSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.versions[personID]
	if len(history) == 0 {
		return nil, domain.ErrScheduleNotFound
	}
	return snapshotReview(history[len(history)-1]), nil
}

func (r *memReviewRepo) History(_ context.Context, personID string) ([]*domain.ReviewSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.ReviewSchedule(nil), r.versions[personID]...), nil
}

func (r *memReviewRepo) AppendVersion(_ context.Context, s *domain.ReviewSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Version() != len(r.versions[s.PersonID()])+1 {
		return domain.ErrVersionConflict
	}
	r.versions[s.PersonID()] = append(r.versions[s.PersonID()], snapshotReview(s))
	return nil
}

// memOutbox records staged messages.
type memOutbox struct {
	mu       sync.Mutex
	messages []*outbox.Message
}

func (o *memOutbox) Save(_ context.Context, msg *outbox.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	msg.ID = int64(len(o.messages) + 1)
	o.messages = append(o.messages, msg)
	return nil
}

func (o *memOutbox) SaveBatch(ctx context.Context, msgs []*outbox.Message) error {
	for _, msg := range msgs {
		if err := o.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (o *memOutbox) GetUnpublished(context.Context, int) ([]*outbox.Message, error) { return nil, nil }
func (o *memOutbox) MarkPublished(context.Context, int64) error                     { return nil }
func (o *memOutbox) MarkFailed(context.Context, int64, string, time.Time) error     { return nil }
func (o *memOutbox) MarkDead(context.Context, int64, string) error                  { return nil }
func (o *memOutbox) DeleteOld(context.Context, int) (int64, error)                  { return 0, nil }

func (o *memOutbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}

func (o *memOutbox) routingKeys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.messages))
	for _, msg := range o.messages {
		keys = append(keys, msg.RoutingKey)
	}
	return keys
}

// stubLookup returns a fixed release date.
type stubLookup struct {
	releaseDate *time.Time
	prison      string
	err         error
}

func (l *stubLookup) ReleaseDate(context.Context, string) (*time.Time, error) {
	return l.releaseDate, l.err
}

func (l *stubLookup) CurrentPrison(context.Context, string) (string, error) {
	return l.prison, l.err
}

// stubPlanCheck reports a fixed action plan existence.
type stubPlanCheck struct {
	exists bool
	err    error
}

func (c *stubPlanCheck) Exists(context.Context, string) (bool, error) {
	return c.exists, c.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
