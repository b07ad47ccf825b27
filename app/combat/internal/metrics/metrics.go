package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/underworld/pkg/config"
)

// Config 指标配置
type Config struct {
	// Namespace 指标命名空间
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Namespace: "combat",
	}
}

// CombatMetrics 战斗与惩罚服务指标
type CombatMetrics struct {
	config *Config

	// 业务指标
	FightsTotal       *prometheus.CounterVec // 战斗总数（按结果）
	CrimesTotal       *prometheus.CounterVec // 犯罪总数（按结果）
	ConfinementsTotal *prometheus.CounterVec // 入狱/入院次数（按类型、原因）
	ReleasesTotal     *prometheus.CounterVec // 释放次数（按类型、方式）
	ProgressTotal     *prometheus.CounterVec // 进度累计值（按指标名）

	// 事务指标
	TxTotal      *prometheus.CounterVec   // 事务总数（按操作、结果）
	TxDuration   *prometheus.HistogramVec // 事务耗时（含重试）
	TxRetries    *prometheus.CounterVec   // 重试次数（按操作）
	PairLockBusy prometheus.Counter       // 同一对角色并发被拒次数

	// 事件投递
	EventsTotal   *prometheus.CounterVec // 投递次数（按 sink、结果）
	EventsDropped prometheus.Counter     // 队列满丢弃

	// 数据库指标
	DBQueryTotal    *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec
}

// New 创建战斗服务指标
func New(cfg *Config) (*CombatMetrics, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge metrics config: %w", err)
	}
	ns := newCfg.Namespace

	return &CombatMetrics{
		config: newCfg,

		FightsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "fights_total", Help: "已结算战斗数"},
			[]string{"result"}, // attacker_won / defender_won
		),
		CrimesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "crimes_total", Help: "已结算犯罪数"},
			[]string{"result"}, // success / failure
		),
		ConfinementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "confinements_total", Help: "入狱与入院次数"},
			[]string{"kind", "reason"},
		),
		ReleasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "releases_total", Help: "释放次数"},
			[]string{"kind", "mode"}, // mode: natural / paid
		),
		ProgressTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "progress_total", Help: "进度指标累计值"},
			[]string{"metric"},
		),

		TxTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "tx_total", Help: "事务作用域执行次数"},
			[]string{"op", "result"},
		),
		TxDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "tx_duration_seconds",
				Help:      "事务作用域耗时（含重试）",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"op"},
		),
		TxRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "tx_retries_total", Help: "瞬时错误重试次数"},
			[]string{"op"},
		),
		PairLockBusy: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: ns, Name: "pair_lock_busy_total", Help: "同一对角色并发请求被拒次数"},
		),

		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "events_total", Help: "事件投递次数"},
			[]string{"sink", "result"},
		),
		EventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: ns, Name: "events_dropped_total", Help: "投递队列满而丢弃的事件数"},
		),

		DBQueryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: ns, Name: "db_queries_total", Help: "数据库查询总数"},
			[]string{"operation", "result"},
		),
		DBQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "db_query_duration_seconds",
				Help:      "数据库查询延迟",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
	}, nil
}

// Register 注册指标到 Prometheus Registry
func (m *CombatMetrics) Register(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.FightsTotal,
		m.CrimesTotal,
		m.ConfinementsTotal,
		m.ReleasesTotal,
		m.ProgressTotal,
		m.TxTotal,
		m.TxDuration,
		m.TxRetries,
		m.PairLockBusy,
		m.EventsTotal,
		m.EventsDropped,
		m.DBQueryTotal,
		m.DBQueryDuration,
	}

	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

// RecordDBQuery 记录数据库查询
func (m *CombatMetrics) RecordDBQuery(operation string, success bool, duration float64) {
	if m == nil {
		return
	}
	m.DBQueryTotal.WithLabelValues(operation, result(success)).Inc()
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// RecordTx 记录一次事务作用域
func (m *CombatMetrics) RecordTx(op, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.TxTotal.WithLabelValues(op, outcome).Inc()
	m.TxDuration.WithLabelValues(op).Observe(duration)
}

// RecordRetry 记录一次重试
func (m *CombatMetrics) RecordRetry(op string) {
	if m == nil {
		return
	}
	m.TxRetries.WithLabelValues(op).Inc()
}

// RecordBusy 记录同对并发被拒
func (m *CombatMetrics) RecordBusy() {
	if m == nil {
		return
	}
	m.PairLockBusy.Inc()
}

// RecordFight 记录战斗结果
func (m *CombatMetrics) RecordFight(attackerWon bool) {
	if m == nil {
		return
	}
	label := "defender_won"
	if attackerWon {
		label = "attacker_won"
	}
	m.FightsTotal.WithLabelValues(label).Inc()
}

// RecordCrime 记录犯罪结果
func (m *CombatMetrics) RecordCrime(success bool) {
	if m == nil {
		return
	}
	label := "failure"
	if success {
		label = "success"
	}
	m.CrimesTotal.WithLabelValues(label).Inc()
}

// RecordConfinement 记录入狱/入院
func (m *CombatMetrics) RecordConfinement(kind, reason string) {
	if m == nil {
		return
	}
	m.ConfinementsTotal.WithLabelValues(kind, reason).Inc()
}

// RecordRelease 记录释放
func (m *CombatMetrics) RecordRelease(kind, mode string) {
	if m == nil {
		return
	}
	m.ReleasesTotal.WithLabelValues(kind, mode).Inc()
}

// RecordProgress 累加进度指标
func (m *CombatMetrics) RecordProgress(metric string, delta float64) {
	if m == nil || delta <= 0 {
		return
	}
	m.ProgressTotal.WithLabelValues(metric).Add(delta)
}

// RecordEvent 记录事件投递
func (m *CombatMetrics) RecordEvent(sink string, success bool) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(sink, result(success)).Inc()
}

// RecordDropped 记录丢弃事件
func (m *CombatMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// GetConfig 获取配置
func (m *CombatMetrics) GetConfig() *Config {
	return m.config
}
