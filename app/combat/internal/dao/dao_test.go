package dao

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/pkg/database/postgres"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// recordingQuerier 记录最后一次执行的 SQL
type recordingQuerier struct {
	sql      string
	args     []any
	affected int64
	err      error
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	q.sql, q.args = sql, args
	return q.affected, q.err
}

func (q *recordingQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql, q.args = sql, args
	return nil, errors.New("query not supported")
}

func (q *recordingQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql, q.args = sql, args
	return nil
}

var _ postgres.Querier = (*recordingQuerier)(nil)

func TestCharacterUpdate(t *testing.T) {
	d := NewCharacterDAO(logger.NewNoop(), nil)
	q := &recordingQuerier{affected: 1}

	c := &model.Character{UserID: 9, Level: 3, Money: 120, HP: 50, MaxHP: 120}
	require.NoError(t, d.Update(context.Background(), q, c))

	assert.Contains(t, q.sql, "UPDATE characters SET")
	assert.Contains(t, q.sql, "WHERE user_id = $14")
	assert.Equal(t, int64(9), q.args[len(q.args)-1])
}

func TestCharacterUpdateMissingRow(t *testing.T) {
	d := NewCharacterDAO(logger.NewNoop(), nil)
	err := d.Update(context.Background(), &recordingQuerier{}, &model.Character{UserID: 1})
	assert.True(t, postgres.IsNoRows(err))
}

func TestConfinementInsertUsesKindTable(t *testing.T) {
	d := NewConfinementDAO(logger.NewNoop(), nil)
	q := &recordingQuerier{affected: 1}

	rec := model.NewConfinement(model.KindHospital, 4, 10, 3, time.Now())
	rec.ID = 77
	rec.Reason = model.ReasonFight
	require.NoError(t, d.Insert(context.Background(), q, rec))

	assert.Contains(t, q.sql, "INSERT INTO hospital_records")
	assert.Equal(t, int64(77), q.args[0])
}

func TestConfinementDeleteIdempotent(t *testing.T) {
	d := NewConfinementDAO(logger.NewNoop(), nil)

	deleted, err := d.DeleteByID(context.Background(), &recordingQuerier{affected: 0}, model.KindJail, 5)
	require.NoError(t, err)
	assert.False(t, deleted)

	q := &recordingQuerier{affected: 1}
	deleted, err = d.DeleteByID(context.Background(), q, model.KindJail, 5)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "DELETE FROM jail_records WHERE id = $1", q.sql)
}

func TestFightInsertEncodesRoundLog(t *testing.T) {
	d := NewFightDAO(logger.NewNoop(), nil)
	q := &recordingQuerier{affected: 1}

	r := &model.FightRecord{ID: 1, AttackerID: 2, DefenderID: 3, RoundLog: []string{"Round 1: miss"}}
	require.NoError(t, d.Insert(context.Background(), q, r))

	assert.Contains(t, q.args, `["Round 1: miss"]`)
}

func TestCrimeUpsert(t *testing.T) {
	d := NewCrimeDAO(logger.NewNoop(), nil)
	q := &recordingQuerier{affected: 1}

	def := &model.CrimeDefinition{ID: 1, Name: "Pickpocket", FailOutcome: model.FailEither}
	require.NoError(t, d.Upsert(context.Background(), q, def))

	assert.Contains(t, q.sql, "ON CONFLICT (id) DO UPDATE")
	assert.Contains(t, q.args, "either")
}

func TestExecErrorIsWrapped(t *testing.T) {
	d := NewCrimeDAO(logger.NewNoop(), nil)
	cause := errors.New("connection reset")
	err := d.InsertLog(context.Background(), &recordingQuerier{err: cause}, &model.CrimeLog{ID: 1})
	assert.ErrorIs(t, err, cause)
}
