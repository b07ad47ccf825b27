// Package rng 提供可注入的随机源，测试中可固定种子或序列
package rng

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source 随机源
type Source interface {
	// Float64 返回 [0,1)
	Float64() float64
	// Int64N 返回 [0,n)
	Int64N(n int64) int64
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New 使用固定种子创建并发安全的随机源
func New(seed uint64) Source {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeSeeded 使用当前时间作为种子
func NewTimeSeeded() Source {
	return New(uint64(time.Now().UnixNano()))
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *lockedSource) Int64N(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Int64N(n)
}

// Uniform 返回 [lo,hi) 上的均匀分布
func Uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// UniformInt 返回 [lo,hi] 上的均匀整数
func UniformInt(src Source, lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + src.Int64N(hi-lo+1)
}

// Bernoulli 以概率 p 返回 true
func Bernoulli(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// Sequence 按顺序循环返回给定的值，用于构造确定性场景
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequence 创建序列随机源，values 取值应在 [0,1)
func NewSequence(values ...float64) *Sequence {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &Sequence{values: values}
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

func (s *Sequence) Int64N(n int64) int64 {
	v := int64(s.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}
