package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/underworld/app/combat/internal/errcode"
	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/pkg/logger"
)

func TestPairKey(t *testing.T) {
	assert.Equal(t, "3:9", PairKey(9, 3))
	assert.Equal(t, PairKey(3, 9), PairKey(9, 3))
}

func TestLocalPairLockerRejectsSecondHolder(t *testing.T) {
	l := NewLocalPairLocker(&PairLockConfig{TTL: time.Minute, Shards: 4})
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, "1:2")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(ctx, "1:2")
	assert.False(t, ok)

	_, ok, _ = l.TryLock(ctx, "1:3")
	assert.True(t, ok, "different pair must not be blocked")

	release()
	release2, ok, _ := l.TryLock(ctx, "1:2")
	assert.True(t, ok)
	release2()
}

func TestLocalPairLockerTTL(t *testing.T) {
	l := NewLocalPairLocker(&PairLockConfig{TTL: time.Second, Shards: 1})
	now := time.Now()
	l.now = func() time.Time { return now }

	staleRelease, ok, _ := l.TryLock(context.Background(), "1:2")
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	freshRelease, ok, _ := l.TryLock(context.Background(), "1:2")
	require.True(t, ok, "expired entry can be displaced")

	// 过期持有者释放不影响新持有者
	staleRelease()
	assert.Equal(t, 1, l.Held())
	freshRelease()
	assert.Equal(t, 0, l.Held())
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []event.Event
}

func (d *fakeDispatcher) Dispatch(_ context.Context, events []event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
}

type fakeReporter struct {
	errs []error
}

func (r *fakeReporter) CaptureError(_ context.Context, err error, _ map[string]string) {
	r.errs = append(r.errs, err)
}

type fixture struct {
	store      *repository.MemoryStore
	dispatcher *fakeDispatcher
	reporter   *fakeReporter
	coord      *Coordinator
	locker     *LocalPairLocker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore(&repository.Config{Driver: "memory", LockTimeout: time.Second}, nil)
	store.PutCharacter(&model.Character{UserID: 1, Level: 1, Money: 100, HP: 100, MaxHP: 100})
	store.PutCharacter(&model.Character{UserID: 2, Level: 1, Money: 100, HP: 100, MaxHP: 100})

	f := &fixture{
		store:      store,
		dispatcher: &fakeDispatcher{},
		reporter:   &fakeReporter{},
		locker:     NewLocalPairLocker(nil),
	}
	cfg := DefaultConfig()
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	coord, err := NewCoordinator(cfg, store, f.locker, f.dispatcher, f.reporter, nil, logger.NewNoop())
	require.NoError(t, err)
	f.coord = coord
	return f
}

func transfer(amount int64, calls *int) func(ctx context.Context, s Scope) error {
	return func(ctx context.Context, s Scope) error {
		*calls++
		a, b := s.Character(1), s.Character(2)
		a.Money -= amount
		b.Money += amount
		if err := s.SaveCharacter(ctx, a); err != nil {
			return err
		}
		if err := s.SaveCharacter(ctx, b); err != nil {
			return err
		}
		s.Emit(event.NewProgress(2, event.ProgressMoneyEarned, amount))
		return nil
	}
}

func TestRunCommitsAndDispatches(t *testing.T) {
	f := newFixture(t)
	calls := 0

	require.NoError(t, f.coord.Run(context.Background(), "transfer", []int64{2, 1}, transfer(30, &calls)))

	assert.Equal(t, 1, calls)
	c2, _ := f.store.GetCharacter(context.Background(), 2)
	assert.Equal(t, int64(130), c2.Money)
	assert.Len(t, f.dispatcher.events, 1)
	assert.Equal(t, 0, f.locker.Held())
}

func TestRunRetriesTransient(t *testing.T) {
	f := newFixture(t)
	f.store.FailCommits(repository.ErrConflict, 2)
	calls := 0

	require.NoError(t, f.coord.Run(context.Background(), "transfer", []int64{1, 2}, transfer(10, &calls)))

	assert.Equal(t, 3, calls)
	// 失败尝试中收集的事件不会投递
	assert.Len(t, f.dispatcher.events, 1)
	c1, _ := f.store.GetCharacter(context.Background(), 1)
	assert.Equal(t, int64(90), c1.Money)
}

func TestRunRetriesExhausted(t *testing.T) {
	f := newFixture(t)
	f.store.FailCommits(repository.ErrConflict, 10)
	calls := 0

	err := f.coord.Run(context.Background(), "transfer", []int64{1, 2}, transfer(10, &calls))

	assert.True(t, errcode.Is(err, errcode.ReasonTransientFailure))
	assert.Equal(t, 4, calls, "one attempt plus three retries")
	assert.Empty(t, f.dispatcher.events)
	c1, _ := f.store.GetCharacter(context.Background(), 1)
	assert.Equal(t, int64(100), c1.Money)
}

func TestRunBusinessErrorNotRetried(t *testing.T) {
	f := newFixture(t)
	calls := 0

	err := f.coord.Run(context.Background(), "transfer", []int64{1, 2}, func(ctx context.Context, s Scope) error {
		calls++
		s.Emit(event.NewProgress(1, event.ProgressKills, 1))
		return errcode.New(errcode.ReasonInsufficientFunds, "not enough money")
	})

	assert.True(t, errcode.Is(err, errcode.ReasonInsufficientFunds))
	assert.Equal(t, 1, calls)
	assert.Empty(t, f.dispatcher.events)
	assert.Empty(t, f.reporter.errs)
}

func TestRunNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.coord.Run(context.Background(), "fight", []int64{1, 404}, func(context.Context, Scope) error {
		t.Fatal("fn must not run when a character is missing")
		return nil
	})
	assert.True(t, errcode.Is(err, errcode.ReasonNotFound))
}

func TestRunBusy(t *testing.T) {
	f := newFixture(t)
	release, ok, _ := f.locker.TryLock(context.Background(), PairKey(1, 2))
	require.True(t, ok)
	defer release()

	err := f.coord.Run(context.Background(), "fight", []int64{2, 1}, func(context.Context, Scope) error { return nil })
	assert.True(t, errcode.Is(err, errcode.ReasonBusy))

	// 单角色操作不受角色对锁影响
	err = f.coord.Run(context.Background(), "crime", []int64{1}, func(context.Context, Scope) error { return nil })
	assert.NoError(t, err)
}

func TestRunInternalErrorReported(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("nil pointer somewhere")

	err := f.coord.Run(context.Background(), "crime", []int64{1}, func(context.Context, Scope) error { return boom })

	assert.True(t, errcode.Is(err, errcode.ReasonInternal))
	assert.ErrorIs(t, err, boom)
	require.Len(t, f.reporter.errs, 1)
}

func TestRunWithoutRetries(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.Retry.MaxRetries = 0
	coord, err := NewCoordinator(cfg, f.store, f.locker, f.dispatcher, f.reporter, nil, logger.NewNoop())
	require.NoError(t, err)

	f.store.FailCommits(repository.ErrConflict, 1)
	calls := 0
	err = coord.Run(context.Background(), "transfer", []int64{1, 2}, transfer(10, &calls))

	assert.True(t, errcode.Is(err, errcode.ReasonTransientFailure))
	assert.Equal(t, 1, calls)
}

func TestRunBoundedByPairLockTTL(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.PairLock.TTL = 20 * time.Millisecond
	coord, err := NewCoordinator(cfg, f.store, f.locker, f.dispatcher, f.reporter, nil, logger.NewNoop())
	require.NoError(t, err)

	err = coord.Run(context.Background(), "fight", []int64{1, 2}, func(ctx context.Context, _ Scope) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.True(t, errcode.Is(err, errcode.ReasonTransientFailure))
	assert.Equal(t, 0, f.locker.Held())
	assert.Empty(t, f.dispatcher.events)
}

func TestMaxRunDuration(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 47*time.Second, cfg.MaxRunDuration(10*time.Second))

	cfg.Retry.MaxRetries = 0
	assert.Equal(t, 10*time.Second, cfg.MaxRunDuration(10*time.Second))

	cfg.Retry.MaxRetries = 5
	cfg.Retry.Jitter = 0.5
	// 退避 1s 2s 4s 5s 5s，各乘 1.5
	assert.Equal(t, 25500*time.Millisecond, cfg.MaxRunDuration(0))
}
