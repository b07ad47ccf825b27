package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/underworld/app/combat/internal/model"
)

func newStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(&Config{Driver: "memory", LockTimeout: 200 * time.Millisecond}, nil)
	for _, id := range []int64{1, 2, 3} {
		s.PutCharacter(&model.Character{UserID: id, Level: 1, Money: 100, HP: 100, MaxHP: 100, Energy: 10, MaxEnergy: 10})
	}
	return s
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", ErrConflict)))
	assert.True(t, IsTransient(ErrLockTimeout))
	assert.True(t, IsTransient(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsTransient(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsTransient(ErrNotFound))
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []int64{1, 5, 9}, SortedUnique([]int64{9, 1, 5, 9, 1}))
	assert.Empty(t, SortedUnique(nil))
}

func TestCommitAppliesAllWrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, sc Scope) error {
		chars, err := sc.LockCharacters(ctx, 2, 1)
		if err != nil {
			return err
		}
		chars[1].Money += 40
		chars[2].Money -= 40
		if err := sc.SaveCharacter(ctx, chars[1]); err != nil {
			return err
		}
		if err := sc.SaveCharacter(ctx, chars[2]); err != nil {
			return err
		}
		rec := model.NewConfinement(model.KindHospital, 2, 5, 2, time.Now())
		rec.ID = 10
		if err := sc.CreateConfinement(ctx, rec); err != nil {
			return err
		}
		return sc.AppendFight(ctx, &model.FightRecord{ID: 1, AttackerID: 1, DefenderID: 2, WinnerID: 1})
	})
	require.NoError(t, err)

	c1, _ := s.GetCharacter(ctx, 1)
	c2, _ := s.GetCharacter(ctx, 2)
	assert.Equal(t, int64(140), c1.Money)
	assert.Equal(t, int64(60), c2.Money)
	rec, err := s.GetConfinement(ctx, model.KindHospital, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.ID)
	assert.Len(t, s.Fights(), 1)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, sc Scope) error {
		chars, err := sc.LockCharacters(ctx, 1)
		if err != nil {
			return err
		}
		chars[1].Money = 0
		_ = sc.SaveCharacter(ctx, chars[1])
		_ = sc.AppendCrimeLog(ctx, &model.CrimeLog{ID: 1, UserID: 1})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	c1, _ := s.GetCharacter(ctx, 1)
	assert.Equal(t, int64(100), c1.Money)
	assert.Empty(t, s.CrimeLogs())
}

func TestLockCharactersNotFound(t *testing.T) {
	s := newStore(t)
	err := s.WithinTx(context.Background(), func(ctx context.Context, sc Scope) error {
		_, err := sc.LockCharacters(ctx, 1, 99)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	// 失败后行锁已释放
	err = s.WithinTx(context.Background(), func(ctx context.Context, sc Scope) error {
		_, err := sc.LockCharacters(ctx, 1)
		return err
	})
	assert.NoError(t, err)
}

func TestRowLockTimeout(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	held := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, sc Scope) error {
			if _, err := sc.LockCharacters(ctx, 3); err != nil {
				return err
			}
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := s.WithinTx(ctx, func(ctx context.Context, sc Scope) error {
		_, err := sc.LockCharacters(ctx, 3)
		return err
	})
	close(done)

	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.True(t, IsTransient(err))
}

func TestDuplicateConfinementConflicts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	s.PutConfinement(&model.Confinement{ID: 1, Kind: model.KindJail, UserID: 1, ReleaseAt: time.Now().Add(time.Minute)})

	err := s.WithinTx(ctx, func(ctx context.Context, sc Scope) error {
		rec := model.NewConfinement(model.KindJail, 1, 3, 1, time.Now())
		rec.ID = 2
		return sc.CreateConfinement(ctx, rec)
	})
	assert.ErrorIs(t, err, ErrConflict)

	// 同一事务内先删除再创建是允许的
	err = s.WithinTx(ctx, func(ctx context.Context, sc Scope) error {
		if _, err := sc.DeleteConfinement(ctx, model.KindJail, 1); err != nil {
			return err
		}
		rec := model.NewConfinement(model.KindJail, 1, 3, 1, time.Now())
		rec.ID = 3
		return sc.CreateConfinement(ctx, rec)
	})
	require.NoError(t, err)
	rec, err := s.GetConfinement(ctx, model.KindJail, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.ID)
}

func TestDeleteConfinementIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	s.PutConfinement(&model.Confinement{ID: 5, Kind: model.KindHospital, UserID: 2, ReleaseAt: time.Now()})

	del := func() bool {
		var deleted bool
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, sc Scope) error {
			var err error
			deleted, err = sc.DeleteConfinement(ctx, model.KindHospital, 5)
			return err
		}))
		return deleted
	}

	assert.True(t, del())
	assert.False(t, del())
	_, err := s.GetConfinement(ctx, model.KindHospital, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListExpiredOrderAndLimit(t *testing.T) {
	s := newStore(t)
	now := time.Now()
	s.PutConfinement(&model.Confinement{ID: 1, Kind: model.KindJail, UserID: 1, ReleaseAt: now.Add(-time.Minute)})
	s.PutConfinement(&model.Confinement{ID: 2, Kind: model.KindJail, UserID: 2, ReleaseAt: now.Add(-2 * time.Minute)})
	s.PutConfinement(&model.Confinement{ID: 3, Kind: model.KindJail, UserID: 3, ReleaseAt: now.Add(time.Minute)})

	recs, err := s.ListExpired(context.Background(), model.KindJail, now, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[0].ID)

	recs, err = s.ListExpired(context.Background(), model.KindJail, now, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestFailCommits(t *testing.T) {
	s := newStore(t)
	s.FailCommits(ErrConflict, 1)

	noop := func(ctx context.Context, sc Scope) error { return nil }
	assert.ErrorIs(t, s.WithinTx(context.Background(), noop), ErrConflict)
	assert.NoError(t, s.WithinTx(context.Background(), noop))
}
