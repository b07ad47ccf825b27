package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/underworld/app/combat/internal/errcode"
	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/rng"
)

func TestCrimeSuccess(t *testing.T) {
	// 0.1 判定成功，0.5 选中区间中点
	h := newHarness(t, rng.NewSequence(0.1, 0.5))
	h.put(newCharacter(1, 5))

	out, err := h.crime.ExecuteCrime(context.Background(), 1, 1)
	require.NoError(t, err)

	assert.True(t, out.Log.Success)
	assert.Equal(t, int64(150), out.Log.Payout)
	assert.Equal(t, int64(20), out.Log.XP)
	assert.Equal(t, "none", out.Log.Outcome)
	assert.Nil(t, out.Confinement)
	assert.Contains(t, out.Narrative, "pickpocketing")

	c := h.get(t, 1)
	assert.Equal(t, int64(250), c.Money)
	assert.Equal(t, 40, c.Energy)
	assert.Equal(t, int64(20), c.Exp)
	assert.Equal(t, testStart.UnixMilli()+60_000, c.CrimeCooldown)

	require.Len(t, h.store.CrimeLogs(), 1)
	assert.Equal(t, []string{event.NotifyCrimeSuccess}, h.events.NotificationKinds(1))
	assert.Len(t, h.events.Of(event.TypeState), 1)

	metrics := map[string]int64{}
	for _, e := range h.events.Of(event.TypeProgress) {
		metrics[e.Progress.Metric] += e.Progress.Delta
	}
	assert.Equal(t, map[string]int64{
		event.ProgressCrimesCommitted: 1,
		event.ProgressCrimesSucceeded: 1,
		event.ProgressMoneyEarned:     150,
	}, metrics)
}

func TestCrimeVIPBonus(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.1, 0.5))
	c := newCharacter(1, 5)
	vip := testStart.Add(time.Hour)
	c.VIPExpiresAt = &vip
	h.put(c)

	out, err := h.crime.ExecuteCrime(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(225), out.Log.Payout)
	assert.Equal(t, int64(30), out.Log.XP)
}

func TestCrimeFailureJail(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.9))
	h.put(newCharacter(1, 5))
	ctx := context.Background()

	out, err := h.crime.ExecuteCrime(ctx, 1, 1)
	require.NoError(t, err)

	assert.False(t, out.Log.Success)
	assert.Equal(t, int64(0), out.Log.Payout)
	assert.Equal(t, int64(6), out.Log.XP, "30% of the success XP")
	assert.Equal(t, "jail", out.Log.Outcome)

	// 等级 5 的缩放系数为 0.5
	require.NotNil(t, out.Confinement)
	assert.Equal(t, model.KindJail, out.Confinement.Kind)
	assert.Equal(t, 5, out.Confinement.Minutes)
	assert.Equal(t, int64(3), out.Confinement.Rate)
	require.NotNil(t, out.Confinement.CrimeID)
	assert.Equal(t, int64(1), *out.Confinement.CrimeID)

	c := h.get(t, 1)
	assert.Equal(t, int64(100), c.Money)
	assert.Equal(t, 40, c.Energy)

	st, err := h.confinement.Status(ctx, 1, model.KindJail)
	require.NoError(t, err)
	assert.True(t, st.Confined)
	assert.Equal(t, int64(300), st.RemainingSeconds)
	assert.Equal(t, int64(15), st.Cost)

	_, err = h.crime.ExecuteCrime(ctx, 1, 1)
	assert.True(t, errcode.Is(err, errcode.ReasonConfined))

	// 到期后未被清理的记录在下一次行动时就地释放
	h.clock.Advance(6 * time.Minute)
	st, err = h.confinement.Status(ctx, 1, model.KindJail)
	require.NoError(t, err)
	assert.False(t, st.Confined)

	out, err = h.crime.ExecuteCrime(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "jail", out.Log.Outcome)
	assert.Contains(t, h.events.NotificationKinds(1), event.NotifyReleased)
}

func TestCrimeFailureHospital(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.9))
	c := newCharacter(1, 20)
	c.HP = 100
	h.put(c)

	out, err := h.crime.ExecuteCrime(context.Background(), 1, 2)
	require.NoError(t, err)

	// 等级 20 的缩放系数为 2
	require.NotNil(t, out.Confinement)
	assert.Equal(t, model.KindHospital, out.Confinement.Kind)
	assert.Equal(t, 40, out.Confinement.Minutes)
	assert.Equal(t, int64(8), out.Confinement.Rate)
	assert.Equal(t, 60, out.Confinement.HPLoss)
	assert.Equal(t, 40, h.get(t, 1).HP)
}

func TestCrimeEitherPicksExactlyOne(t *testing.T) {
	tests := []struct {
		name string
		roll float64
		want model.ConfinementKind
	}{
		{"jail", 0.7, model.KindJail},
		{"hospital", 0.2, model.KindHospital},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, rng.NewSequence(0.9, tt.roll))
			h.put(newCharacter(1, 10))

			out, err := h.crime.ExecuteCrime(context.Background(), 1, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Confinement.Kind)

			jail, err := h.confinement.Status(context.Background(), 1, model.KindJail)
			require.NoError(t, err)
			hospital, err := h.confinement.Status(context.Background(), 1, model.KindHospital)
			require.NoError(t, err)
			assert.NotEqual(t, jail.Confined, hospital.Confined)
		})
	}
}

func TestCrimePreconditions(t *testing.T) {
	tests := []struct {
		name    string
		crimeID int64
		setup   func(h *harness, c *model.Character)
		want    errcode.Reason
	}{
		{name: "unknown crime", crimeID: 99, want: errcode.ReasonNotFound},
		{name: "disabled", crimeID: 4, want: errcode.ReasonCrimeDisabled},
		{
			name:    "jailed",
			crimeID: 1,
			setup: func(h *harness, c *model.Character) {
				rec := model.NewConfinement(model.KindJail, c.UserID, 10, 5, testStart)
				rec.ID = 900
				h.store.PutConfinement(rec)
			},
			want: errcode.ReasonConfined,
		},
		{name: "level too low", crimeID: 3, want: errcode.ReasonLevelTooLow},
		{
			name:    "no energy",
			crimeID: 1,
			setup:   func(_ *harness, c *model.Character) { c.Energy = 5 },
			want:    errcode.ReasonInsufficientEnergy,
		},
		{
			name:    "cooldown",
			crimeID: 1,
			setup:   func(_ *harness, c *model.Character) { c.CrimeCooldown = testStart.UnixMilli() + 1500 },
			want:    errcode.ReasonOnCooldown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, rng.NewSequence(0.1))
			c := newCharacter(1, 5)
			if tt.setup != nil {
				tt.setup(h, c)
			}
			h.put(c)
			before := h.get(t, 1)

			_, err := h.crime.ExecuteCrime(context.Background(), 1, tt.crimeID)
			require.Error(t, err)
			assert.Equal(t, tt.want, errcode.ReasonOf(err))

			assert.Equal(t, before.Energy, h.get(t, 1).Energy)
			assert.Empty(t, h.store.CrimeLogs())
			assert.Empty(t, h.events.Of(event.TypeNotification))
		})
	}
}

func TestCrimeCooldownRemaining(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.1))
	c := newCharacter(1, 5)
	c.CrimeCooldown = testStart.UnixMilli() + 1500
	h.put(c)

	_, err := h.crime.ExecuteCrime(context.Background(), 1, 1)
	e, ok := errcode.As(err)
	require.True(t, ok)
	assert.Equal(t, int64(2), e.Meta["remaining_seconds"])
}

func TestCrimeHistory(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.1, 0.5))
	h.put(newCharacter(1, 5))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.crime.ExecuteCrime(ctx, 1, 1)
		require.NoError(t, err)
		h.clock.Advance(time.Minute)
	}

	logs, err := h.crime.History(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Greater(t, logs[0].ID, logs[1].ID)
}

func TestCatalogLoad(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.1))
	ctx := context.Background()

	stored, err := h.store.ListCrimes(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	d, ok := h.catalog.Get(1)
	require.True(t, ok)
	d.Name = "changed"
	again, _ := h.catalog.Get(1)
	assert.Equal(t, "pickpocketing", again.Name)

	bad := testCrimes()
	bad[0].SuccessRate = 2
	assert.Error(t, h.catalog.Load(ctx, &CatalogConfig{Crimes: bad}))

	dup := testCrimes()
	dup[1].ID = dup[0].ID
	assert.Error(t, h.catalog.Load(ctx, &CatalogConfig{Crimes: dup}))

	// 加载失败保留旧目录
	assert.Len(t, h.catalog.List(), 4)
}
