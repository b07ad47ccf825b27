package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/underworld/app/combat/internal/errcode"
	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/rng"
	"github.com/lk2023060901/underworld/pkg/logger"
)

func bruiser(id int64) *model.Character {
	c := newCharacter(id, 10)
	c.Strength, c.Defense, c.Money = 100, 20, 0
	c.Name = "Sonny"
	return c
}

func weakling(id int64) *model.Character {
	c := newCharacter(id, 1)
	c.Strength, c.Defense, c.Money, c.HP = 0, 0, 1000, 10
	c.Name = "Vito"
	return c
}

func TestFightKnockoutIntoHospital(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.5))
	h.put(bruiser(1))
	h.put(weakling(2))
	ctx := context.Background()

	out, err := h.combat.RunFight(ctx, 1, 2)
	require.NoError(t, err)

	f := out.Fight
	assert.Equal(t, int64(1), f.WinnerID)
	assert.Equal(t, 1, f.Rounds)
	assert.Equal(t, 10, f.AttackerDamage)
	assert.Equal(t, int64(350), f.MoneyStolen)
	assert.Equal(t, int64(22), f.AttackerXP)
	assert.Equal(t, int64(25), f.DefenderXP)
	assert.Equal(t, "Sonny knocked out Vito after 1 rounds and took $350", f.Narrative)
	require.Len(t, h.store.Fights(), 1)

	winner, loser := h.get(t, 1), h.get(t, 2)
	assert.Equal(t, int64(350), winner.Money)
	assert.Equal(t, int64(650), loser.Money)
	assert.Equal(t, 0, loser.HP)
	assert.Equal(t, 1, winner.KillCount)

	// 等级 1 的缩放系数下限为 0.5
	require.NotNil(t, out.Hospital)
	assert.Equal(t, 10, out.Hospital.Minutes)
	assert.Equal(t, int64(5), out.Hospital.Rate)
	assert.Equal(t, 10, out.Hospital.HPLoss)
	assert.Equal(t, model.ReasonFight, out.Hospital.Reason)

	assert.Equal(t, []string{event.NotifyFightWon}, h.events.NotificationKinds(1))
	assert.Equal(t, []string{event.NotifyFightLost}, h.events.NotificationKinds(2))
	assert.Len(t, h.events.Of(event.TypeState), 2)
	progress := map[string]int64{}
	for _, e := range h.events.Of(event.TypeProgress) {
		progress[e.Progress.Metric] += e.Progress.Delta
	}
	assert.Equal(t, map[string]int64{
		event.ProgressFightsWon:  1,
		event.ProgressFightsLost: 1,
		event.ProgressKills:      1,
	}, progress)

	// 住院中的一方既不能出手也不能被攻击
	_, err = h.combat.RunFight(ctx, 1, 2)
	assert.True(t, errcode.Is(err, errcode.ReasonConfined))
	_, err = h.combat.RunFight(ctx, 2, 1)
	assert.True(t, errcode.Is(err, errcode.ReasonConfined))
	assert.Len(t, h.store.Fights(), 1)
}

func TestKnockedOutLoserStaysAtZeroHPAfterLevelUp(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.5))
	h.put(bruiser(1))
	loser := weakling(2)
	loser.Exp = 99
	h.put(loser)

	out, err := h.combat.RunFight(context.Background(), 1, 2)
	require.NoError(t, err)

	require.NotNil(t, out.Hospital)
	require.True(t, out.DefenderLevelUp.LeveledUp())
	assert.Equal(t, 0, out.Defender.HP)

	stored := h.get(t, 2)
	assert.Equal(t, 2, stored.Level)
	assert.Equal(t, 110, stored.MaxHP)
	assert.Equal(t, 0, stored.HP)

	for _, e := range h.events.Of(event.TypeState) {
		if e.UserID == 2 {
			assert.Equal(t, 0, e.Snapshot.HP)
		}
	}
}

func TestZeroHitBonusIsKept(t *testing.T) {
	policy := DefaultCombatPolicy()
	policy.Battle.HitBonus = 0
	policy.Battle.Fame.DefenseWeight = 0

	h := newHarness(t, rng.NewSequence(0.5))
	svc, err := NewCombatService(policy, nil, h.store, h.confinement, &seqIDs{}, nil, logger.NewNoop())
	require.NoError(t, err)
	assert.Zero(t, svc.policy.Battle.HitBonus)
	assert.Zero(t, svc.policy.Battle.Fame.DefenseWeight)
	assert.Equal(t, 20, svc.policy.Battle.RoundCap)

	defaults, err := NewCombatService(nil, nil, h.store, h.confinement, &seqIDs{}, nil, logger.NewNoop())
	require.NoError(t, err)
	assert.Equal(t, 0.20, defaults.policy.Battle.HitBonus)
}

func TestFightRoundCapTieGoesToDefender(t *testing.T) {
	// 0.99 让每一次出手都落空
	h := newHarness(t, rng.NewSequence(0.99))
	h.put(newCharacter(1, 5))
	h.put(newCharacter(2, 5))

	out, err := h.combat.RunFight(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(2), out.Fight.WinnerID)
	assert.Equal(t, 20, out.Fight.Rounds)
	assert.Nil(t, out.Hospital)
	assert.Equal(t, int64(39), out.Fight.MoneyStolen)
	assert.Equal(t, int64(10), out.Fight.AttackerXP)
	assert.Equal(t, int64(36), out.Fight.DefenderXP)
	assert.Equal(t, int64(61), out.Attacker.Money)
	assert.Equal(t, int64(139), out.Defender.Money)
	assert.Contains(t, out.Fight.Narrative, "outlasted")
}

func TestFightRejections(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.5))
	h.put(newCharacter(1, 5))
	ctx := context.Background()

	_, err := h.combat.RunFight(ctx, 1, 1)
	assert.True(t, errcode.Is(err, errcode.ReasonSelfTarget))

	_, err = h.combat.RunFight(ctx, 1, 404)
	assert.True(t, errcode.Is(err, errcode.ReasonNotFound))

	assert.Empty(t, h.store.Fights())
	assert.Empty(t, h.events.Of(event.TypeNotification))
}

func TestFightLevelUpNotifiesOnce(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.99))
	c := newCharacter(1, 1)
	c.Exp = 95
	h.put(c)
	h.put(newCharacter(2, 1))

	out, err := h.combat.RunFight(context.Background(), 2, 1)
	require.NoError(t, err)

	require.True(t, out.DefenderLevelUp.LeveledUp())
	assert.Equal(t, 2, out.Defender.Level)
	kinds := h.events.NotificationKinds(1)
	assert.ElementsMatch(t, []string{event.NotifyFightWon, event.NotifyLevelUp}, kinds)
}

func TestFightMoneyConservationAndBounds(t *testing.T) {
	h := newHarness(t, rng.New(7))
	ctx := context.Background()

	var total int64
	for id := int64(1); id <= 4; id++ {
		c := newCharacter(id, int(id)*3)
		c.Strength = int(id) * 10
		c.Money = 1000 * id
		total += c.Money
		h.put(c)
	}

	src := rng.New(99)
	for i := 0; i < 200; i++ {
		a := 1 + src.Int64N(4)
		d := 1 + src.Int64N(4)
		_, err := h.combat.RunFight(ctx, a, d)
		if err != nil {
			reason := errcode.ReasonOf(err)
			require.Contains(t, []errcode.Reason{errcode.ReasonSelfTarget, errcode.ReasonConfined}, reason)
		}
		h.clock.Advance(30 * time.Minute)
	}

	var sum int64
	for id := int64(1); id <= 4; id++ {
		c := h.get(t, id)
		requireBounds(t, c)
		sum += c.Money
	}
	assert.Equal(t, total, sum)
	assert.NotEmpty(t, h.store.Fights())
}

func TestConcurrentReversedFights(t *testing.T) {
	h := newHarness(t, rng.New(11))
	ctx := context.Background()

	var total int64
	for id := int64(1); id <= 3; id++ {
		c := newCharacter(id, 5)
		c.Money = 500
		total += c.Money
		h.put(c)
	}

	pairs := [][2]int64{{1, 2}, {2, 1}, {2, 3}, {3, 2}, {3, 1}, {1, 3}}
	var wg sync.WaitGroup
	errs := make(chan error, len(pairs)*25)
	for _, p := range pairs {
		wg.Add(1)
		go func(a, d int64) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := h.combat.RunFight(ctx, a, d); err != nil {
					errs <- err
				}
			}
		}(p[0], p[1])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		reason := errcode.ReasonOf(err)
		assert.Contains(t, []errcode.Reason{errcode.ReasonBusy, errcode.ReasonConfined}, reason, "unexpected error: %v", err)
	}

	var sum int64
	for id := int64(1); id <= 3; id++ {
		c := h.get(t, id)
		requireBounds(t, c)
		sum += c.Money
	}
	assert.Equal(t, total, sum)
}

func TestFightHistory(t *testing.T) {
	h := newHarness(t, rng.NewSequence(0.99))
	h.put(newCharacter(1, 5))
	h.put(newCharacter(2, 5))
	h.put(newCharacter(3, 5))
	ctx := context.Background()

	_, err := h.combat.RunFight(ctx, 1, 2)
	require.NoError(t, err)
	_, err = h.combat.RunFight(ctx, 3, 2)
	require.NoError(t, err)

	fights, err := h.combat.History(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, fights, 2)
	assert.Equal(t, int64(3), fights[0].AttackerID)

	fights, err = h.combat.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, fights, 1)
}
