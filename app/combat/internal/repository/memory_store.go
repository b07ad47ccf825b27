package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// MemoryStore 进程内存储，行锁为每个角色一个带超时的互斥量，用于单机部署与测试
type MemoryStore struct {
	mu           sync.Mutex
	characters   map[int64]*model.Character
	rowLocks     map[int64]chan struct{}
	confinements map[model.ConfinementKind]map[int64]*model.Confinement // kind -> user_id -> record
	fights       []*model.FightRecord
	crimeLogs    []*model.CrimeLog
	crimes       map[int64]*model.CrimeDefinition

	lockTimeout time.Duration
	commitErrs  []error
	logger      logger.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储
func NewMemoryStore(cfg *Config, l logger.Logger) *MemoryStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if l == nil {
		l = logger.NewNoop()
	}
	return &MemoryStore{
		characters: make(map[int64]*model.Character),
		rowLocks:   make(map[int64]chan struct{}),
		confinements: map[model.ConfinementKind]map[int64]*model.Confinement{
			model.KindJail:     {},
			model.KindHospital: {},
		},
		crimes:      make(map[int64]*model.CrimeDefinition),
		lockTimeout: cfg.LockTimeout,
		logger:      l.Named("repository.memory"),
	}
}

// PutCharacter 直接写入角色
func (s *MemoryStore) PutCharacter(c *model.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[c.UserID] = c.Clone()
}

// PutConfinement 直接写入监禁记录
func (s *MemoryStore) PutConfinement(rec *model.Confinement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.confinements[rec.Kind][rec.UserID] = &cp
}

// FailCommits 让接下来的 n 次提交返回 err，用于模拟瞬时故障
func (s *MemoryStore) FailCommits(err error, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.commitErrs = append(s.commitErrs, err)
	}
}

// Fights 全部战斗记录
func (s *MemoryStore) Fights() []*model.FightRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.FightRecord(nil), s.fights...)
}

// CrimeLogs 全部犯罪日志
func (s *MemoryStore) CrimeLogs() []*model.CrimeLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.CrimeLog(nil), s.crimeLogs...)
}

func (s *MemoryStore) rowLock(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.rowLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[id] = ch
	}
	return ch
}

func (s *MemoryStore) lockRow(ctx context.Context, id int64) error {
	ch := s.rowLock(id)

	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		t := time.NewTimer(s.lockTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: character %d", ErrLockTimeout, id)
	}
}

func (s *MemoryStore) unlockRow(id int64) {
	<-s.rowLock(id)
}

// WithinTx 在作用域中执行 fn，成功后原子提交
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, sc Scope) error) error {
	sc := &memScope{
		store: s,
		chars: make(map[int64]*model.Character),
	}
	defer sc.release()

	if err := fn(ctx, sc); err != nil {
		return err
	}
	return s.commit(sc)
}

func (s *MemoryStore) commit(sc *memScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.commitErrs) > 0 {
		err := s.commitErrs[0]
		s.commitErrs = s.commitErrs[1:]
		return err
	}

	// 先校验唯一约束，保证提交要么全部生效要么全部不生效
	deleted := make(map[int64]bool, len(sc.deletes))
	for _, d := range sc.deletes {
		deleted[d.id] = true
	}
	for _, rec := range sc.creates {
		if existing, ok := s.confinements[rec.Kind][rec.UserID]; ok && !deleted[existing.ID] {
			return fmt.Errorf("%w: duplicate %s record for user %d", ErrConflict, rec.Kind, rec.UserID)
		}
	}

	for id, c := range sc.chars {
		if sc.dirty[id] {
			s.characters[id] = c.Clone()
		}
	}
	for _, d := range sc.deletes {
		for uid, rec := range s.confinements[d.kind] {
			if rec.ID == d.id {
				delete(s.confinements[d.kind], uid)
			}
		}
	}
	for _, rec := range sc.creates {
		cp := *rec
		s.confinements[rec.Kind][rec.UserID] = &cp
	}
	s.fights = append(s.fights, sc.fights...)
	s.crimeLogs = append(s.crimeLogs, sc.logs...)
	return nil
}

// GetCharacter 读取角色副本
func (s *MemoryStore) GetCharacter(_ context.Context, userID int64) (*model.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[userID]
	if !ok {
		return nil, fmt.Errorf("%w: character %d", ErrNotFound, userID)
	}
	return c.Clone(), nil
}

// GetConfinement 读取监禁记录副本
func (s *MemoryStore) GetConfinement(_ context.Context, kind model.ConfinementKind, userID int64) (*model.Confinement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.confinements[kind][userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s record of user %d", ErrNotFound, kind, userID)
	}
	cp := *rec
	return &cp, nil
}

// ListExpired 列出已到期记录，按释放时间升序
func (s *MemoryStore) ListExpired(_ context.Context, kind model.ConfinementKind, now time.Time, limit int) ([]*model.Confinement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Confinement, 0)
	for _, rec := range s.confinements[kind] {
		if !rec.ReleaseAt.After(now) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReleaseAt.Before(out[j].ReleaseAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListFights 角色参与的最近战斗，新的在前
func (s *MemoryStore) ListFights(_ context.Context, userID int64, limit int) ([]*model.FightRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.FightRecord, 0)
	for i := len(s.fights) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		f := s.fights[i]
		if f.AttackerID == userID || f.DefenderID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

// ListCrimeLogs 角色最近犯罪日志，新的在前
func (s *MemoryStore) ListCrimeLogs(_ context.Context, userID int64, limit int) ([]*model.CrimeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.CrimeLog, 0)
	for i := len(s.crimeLogs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.crimeLogs[i].UserID == userID {
			out = append(out, s.crimeLogs[i])
		}
	}
	return out, nil
}

// SyncCrimes 覆盖写入犯罪定义
func (s *MemoryStore) SyncCrimes(_ context.Context, defs []*model.CrimeDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		cp := *d
		s.crimes[d.ID] = &cp
	}
	return nil
}

// ListCrimes 全部犯罪定义
func (s *MemoryStore) ListCrimes(_ context.Context) ([]*model.CrimeDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.CrimeDefinition, 0, len(s.crimes))
	for _, d := range s.crimes {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type confDelete struct {
	kind model.ConfinementKind
	id   int64
}

// memScope 缓冲写入，提交时一次性生效
type memScope struct {
	store   *MemoryStore
	locked  []int64
	chars   map[int64]*model.Character
	dirty   map[int64]bool
	creates []*model.Confinement
	deletes []confDelete
	fights  []*model.FightRecord
	logs    []*model.CrimeLog
}

func (sc *memScope) release() {
	for i := len(sc.locked) - 1; i >= 0; i-- {
		sc.store.unlockRow(sc.locked[i])
	}
	sc.locked = nil
}

func (sc *memScope) holds(id int64) bool {
	for _, l := range sc.locked {
		if l == id {
			return true
		}
	}
	return false
}

func (sc *memScope) LockCharacters(ctx context.Context, ids ...int64) (map[int64]*model.Character, error) {
	out := make(map[int64]*model.Character, len(ids))
	for _, id := range SortedUnique(ids) {
		if !sc.holds(id) {
			if err := sc.store.lockRow(ctx, id); err != nil {
				return nil, err
			}
			sc.locked = append(sc.locked, id)
		}

		if c, ok := sc.chars[id]; ok {
			out[id] = c
			continue
		}
		c, err := sc.store.GetCharacter(ctx, id)
		if err != nil {
			return nil, err
		}
		sc.chars[id] = c
		out[id] = c
	}
	return out, nil
}

func (sc *memScope) SaveCharacter(_ context.Context, c *model.Character) error {
	if !sc.holds(c.UserID) {
		return fmt.Errorf("character %d saved without row lock", c.UserID)
	}
	c.Clamp()
	c.UpdatedAt = time.Now()
	sc.chars[c.UserID] = c
	if sc.dirty == nil {
		sc.dirty = make(map[int64]bool)
	}
	sc.dirty[c.UserID] = true
	return nil
}

func (sc *memScope) GetConfinement(ctx context.Context, kind model.ConfinementKind, userID int64) (*model.Confinement, error) {
	for i := len(sc.creates) - 1; i >= 0; i-- {
		if rec := sc.creates[i]; rec.Kind == kind && rec.UserID == userID {
			cp := *rec
			return &cp, nil
		}
	}
	rec, err := sc.store.GetConfinement(ctx, kind, userID)
	if err != nil {
		return nil, err
	}
	for _, d := range sc.deletes {
		if d.kind == kind && d.id == rec.ID {
			return nil, fmt.Errorf("%w: %s record of user %d", ErrNotFound, kind, userID)
		}
	}
	return rec, nil
}

func (sc *memScope) CreateConfinement(_ context.Context, rec *model.Confinement) error {
	cp := *rec
	sc.creates = append(sc.creates, &cp)
	return nil
}

func (sc *memScope) DeleteConfinement(ctx context.Context, kind model.ConfinementKind, id int64) (bool, error) {
	for _, d := range sc.deletes {
		if d.kind == kind && d.id == id {
			return false, nil
		}
	}

	sc.store.mu.Lock()
	found := false
	for _, rec := range sc.store.confinements[kind] {
		if rec.ID == id {
			found = true
			break
		}
	}
	sc.store.mu.Unlock()

	if !found {
		return false, nil
	}
	sc.deletes = append(sc.deletes, confDelete{kind: kind, id: id})
	return true, nil
}

func (sc *memScope) AppendFight(_ context.Context, r *model.FightRecord) error {
	sc.fights = append(sc.fights, r)
	return nil
}

func (sc *memScope) AppendCrimeLog(_ context.Context, l *model.CrimeLog) error {
	sc.logs = append(sc.logs, l)
	return nil
}
