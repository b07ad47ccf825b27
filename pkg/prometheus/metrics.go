package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewCounter 创建并注册 Counter
func (c *Client) NewCounter(name, help string, labels []string) (*prometheus.CounterVec, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	if err := c.registry.Register(counter); err != nil {
		return nil, err
	}
	return counter, nil
}

// NewGauge 创建并注册 Gauge
func (c *Client) NewGauge(name, help string, labels []string) (*prometheus.GaugeVec, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	if err := c.registry.Register(gauge); err != nil {
		return nil, err
	}
	return gauge, nil
}

// NewHistogram 创建并注册 Histogram，buckets 为空时使用默认分桶
func (c *Client) NewHistogram(name, help string, labels []string, buckets []float64) (*prometheus.HistogramVec, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	if err := c.registry.Register(histogram); err != nil {
		return nil, err
	}
	return histogram, nil
}
