package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/underworld/app/combat/internal/dao"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/database/postgres"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// PostgresStore 基于 PostgreSQL 的存储，行锁使用 SELECT ... FOR UPDATE
type PostgresStore struct {
	db           *postgres.Client
	characters   *dao.CharacterDAO
	confinements *dao.ConfinementDAO
	fights       *dao.FightDAO
	crimes       *dao.CrimeDAO
	txOpts       postgres.TxOptions
	logger       logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore 创建 PostgreSQL 存储
func NewPostgresStore(
	cfg *Config,
	db *postgres.Client,
	characterDAO *dao.CharacterDAO,
	confinementDAO *dao.ConfinementDAO,
	fightDAO *dao.FightDAO,
	crimeDAO *dao.CrimeDAO,
	l logger.Logger,
) (*PostgresStore, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge store config: %w", err)
	}

	return &PostgresStore{
		db:           db,
		characters:   characterDAO,
		confinements: confinementDAO,
		fights:       fightDAO,
		crimes:       crimeDAO,
		txOpts: postgres.TxOptions{
			IsoLevel:         postgres.TxIsolationLevel(newCfg.IsolationLevel),
			LockTimeout:      newCfg.LockTimeout,
			StatementTimeout: newCfg.StatementTimeout,
		},
		logger: l.Named("repository.postgres"),
	}, nil
}

// WithinTx 在事务中执行 fn
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, sc Scope) error) error {
	return s.db.WithTxOptions(ctx, s.txOpts, func(tx postgres.Tx) error {
		return fn(ctx, &pgScope{store: s, tx: tx})
	})
}

func notFound(err error, format string, args ...any) error {
	if postgres.IsNoRows(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

// GetCharacter 读取角色（不加锁）
func (s *PostgresStore) GetCharacter(ctx context.Context, userID int64) (*model.Character, error) {
	c, err := s.characters.GetByID(ctx, s.db, userID)
	if err != nil {
		return nil, notFound(err, "character %d", userID)
	}
	return c, nil
}

// GetConfinement 读取监禁记录（不加锁）
func (s *PostgresStore) GetConfinement(ctx context.Context, kind model.ConfinementKind, userID int64) (*model.Confinement, error) {
	rec, err := s.confinements.GetByUser(ctx, s.db, kind, userID, false)
	if err != nil {
		return nil, notFound(err, "%s record of user %d", kind, userID)
	}
	return rec, nil
}

// ListExpired 列出已到期记录
func (s *PostgresStore) ListExpired(ctx context.Context, kind model.ConfinementKind, now time.Time, limit int) ([]*model.Confinement, error) {
	return s.confinements.ListExpired(ctx, s.db, kind, now, uint64(limit))
}

// ListFights 最近战斗
func (s *PostgresStore) ListFights(ctx context.Context, userID int64, limit int) ([]*model.FightRecord, error) {
	return s.fights.ListByUser(ctx, s.db, userID, uint64(limit))
}

// ListCrimeLogs 最近犯罪日志
func (s *PostgresStore) ListCrimeLogs(ctx context.Context, userID int64, limit int) ([]*model.CrimeLog, error) {
	return s.crimes.ListLogs(ctx, s.db, userID, uint64(limit))
}

// SyncCrimes 在一个事务中 upsert 全部犯罪定义
func (s *PostgresStore) SyncCrimes(ctx context.Context, defs []*model.CrimeDefinition) error {
	return s.db.WithTx(ctx, func(tx postgres.Tx) error {
		for _, def := range defs {
			if err := s.crimes.Upsert(ctx, tx, def); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCrimes 全部犯罪定义
func (s *PostgresStore) ListCrimes(ctx context.Context) ([]*model.CrimeDefinition, error) {
	return s.crimes.List(ctx, s.db)
}

// pgScope 事务作用域
type pgScope struct {
	store *PostgresStore
	tx    postgres.Tx
}

func (sc *pgScope) LockCharacters(ctx context.Context, ids ...int64) (map[int64]*model.Character, error) {
	out := make(map[int64]*model.Character, len(ids))
	// 逐行按 ID 升序加锁，所有进程的加锁顺序一致
	for _, id := range SortedUnique(ids) {
		c, err := sc.store.characters.LockByID(ctx, sc.tx, id)
		if err != nil {
			return nil, notFound(err, "character %d", id)
		}
		out[id] = c
	}
	return out, nil
}

func (sc *pgScope) SaveCharacter(ctx context.Context, c *model.Character) error {
	c.Clamp()
	c.UpdatedAt = time.Now()
	if err := sc.store.characters.Update(ctx, sc.tx, c); err != nil {
		return notFound(err, "character %d", c.UserID)
	}
	return nil
}

func (sc *pgScope) GetConfinement(ctx context.Context, kind model.ConfinementKind, userID int64) (*model.Confinement, error) {
	rec, err := sc.store.confinements.GetByUser(ctx, sc.tx, kind, userID, true)
	if err != nil {
		return nil, notFound(err, "%s record of user %d", kind, userID)
	}
	return rec, nil
}

func (sc *pgScope) CreateConfinement(ctx context.Context, rec *model.Confinement) error {
	return sc.store.confinements.Insert(ctx, sc.tx, rec)
}

func (sc *pgScope) DeleteConfinement(ctx context.Context, kind model.ConfinementKind, id int64) (bool, error) {
	return sc.store.confinements.DeleteByID(ctx, sc.tx, kind, id)
}

func (sc *pgScope) AppendFight(ctx context.Context, r *model.FightRecord) error {
	return sc.store.fights.Insert(ctx, sc.tx, r)
}

func (sc *pgScope) AppendCrimeLog(ctx context.Context, l *model.CrimeLog) error {
	return sc.store.crimes.InsertLog(ctx, sc.tx, l)
}
