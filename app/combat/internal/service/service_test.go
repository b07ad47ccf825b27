package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/manager"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/app/combat/internal/rng"
	"github.com/lk2023060901/underworld/pkg/logger"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type seqIDs struct {
	n atomic.Int64
}

func (g *seqIDs) NextID() (int64, error) {
	return g.n.Inc(), nil
}

type collector struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collector) Dispatch(_ context.Context, events []event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
}

func (c *collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// Of 按类型筛选事件
func (c *collector) Of(t event.Type) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (c *collector) NotificationKinds(userID int64) []string {
	var kinds []string
	for _, e := range c.Of(event.TypeNotification) {
		if e.UserID == userID {
			kinds = append(kinds, e.Notification.Kind)
		}
	}
	return kinds
}

type harness struct {
	clock       *testClock
	store       *repository.MemoryStore
	events      *collector
	catalog     *CrimeCatalog
	combat      *CombatService
	crime       *CrimeService
	confinement *ConfinementService
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, src rng.Source) *harness {
	t.Helper()
	l := logger.NewNoop()
	h := &harness{
		clock:  &testClock{t: testStart},
		store:  repository.NewMemoryStore(&repository.Config{Driver: "memory", LockTimeout: 2 * time.Second}, l),
		events: &collector{},
	}

	coordCfg := manager.DefaultConfig()
	coordCfg.Retry.BaseDelay = time.Millisecond
	coordCfg.Retry.MaxDelay = 2 * time.Millisecond
	coord, err := manager.NewCoordinator(coordCfg, h.store, nil, h.events, nil, nil, l)
	require.NoError(t, err)

	opts := []Option{WithClock(h.clock.Now), WithRand(src)}
	ids := &seqIDs{}

	h.confinement, err = NewConfinementService(nil, coord, h.store, nil, l, opts...)
	require.NoError(t, err)
	h.combat, err = NewCombatService(nil, coord, h.store, h.confinement, ids, nil, l, opts...)
	require.NoError(t, err)

	h.catalog = NewCrimeCatalog(h.store, l)
	require.NoError(t, h.catalog.Load(context.Background(), &CatalogConfig{Crimes: testCrimes()}))
	h.crime = NewCrimeService(h.catalog, coord, h.store, h.confinement, ids, nil, l, opts...)
	return h
}

func testCrimes() []model.CrimeDefinition {
	base := model.CrimeDefinition{
		Enabled:         true,
		RequiredLevel:   1,
		EnergyCost:      10,
		SuccessRate:     0.5,
		MinReward:       100,
		MaxReward:       200,
		XPReward:        20,
		CooldownSeconds: 60,
		JailMinutes:     10,
		HospitalMinutes: 20,
		HPLoss:          30,
		JailRate:        5,
		HospitalRate:    4,
	}
	pickpocket := base
	pickpocket.ID, pickpocket.Name, pickpocket.FailOutcome = 1, "pickpocketing", model.FailJail

	mugging := base
	mugging.ID, mugging.Name, mugging.FailOutcome = 2, "a mugging", model.FailHospital

	heist := base
	heist.ID, heist.Name, heist.FailOutcome, heist.RequiredLevel = 3, "a bank heist", model.FailEither, 10

	closed := base
	closed.ID, closed.Name, closed.FailOutcome, closed.Enabled = 4, "a closed racket", model.FailJail, false

	return []model.CrimeDefinition{pickpocket, mugging, heist, closed}
}

func (h *harness) put(c *model.Character) {
	h.store.PutCharacter(c)
}

func (h *harness) get(t *testing.T, id int64) *model.Character {
	t.Helper()
	c, err := h.store.GetCharacter(context.Background(), id)
	require.NoError(t, err)
	return c
}

func newCharacter(id int64, level int) *model.Character {
	maxHP := 100 + (level-1)*10
	return &model.Character{
		UserID:    id,
		Level:     level,
		Money:     100,
		Energy:    50,
		MaxEnergy: 100,
		HP:        maxHP,
		MaxHP:     maxHP,
		Strength:  5,
		Defense:   5,
	}
}

func requireBounds(t *testing.T, c *model.Character) {
	t.Helper()
	require.GreaterOrEqual(t, c.HP, 0)
	require.LessOrEqual(t, c.HP, c.MaxHP)
	require.GreaterOrEqual(t, c.Energy, 0)
	require.LessOrEqual(t, c.Energy, c.MaxEnergy)
	require.GreaterOrEqual(t, c.Money, int64(0))
	require.GreaterOrEqual(t, c.Level, 1)
}
