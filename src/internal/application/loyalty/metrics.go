package loyalty

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 積分引擎的 Prometheus 指標
type Metrics struct {
	pointsEarned    *prometheus.CounterVec
	pointsDeducted  *prometheus.CounterVec
	tierChanges     *prometheus.CounterVec
	redemptions     prometheus.Counter
	rejections      *prometheus.CounterVec
	failures        *prometheus.CounterVec
	conflictRetries prometheus.Counter
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics 註冊在全域 registry 的共用指標（只建立一次，避免重複註冊 panic）
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics 在 reg 上註冊指標；已註冊過的同名指標直接沿用，其他錯誤 panic
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		pointsEarned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Name:      "points_earned_total",
			Help:      "Total points credited to accounts, by source.",
		}, []string{"source"}),
		pointsDeducted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Name:      "points_deducted_total",
			Help:      "Total points debited from accounts, by reason.",
		}, []string{"reason"}),
		tierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Name:      "tier_changes_total",
			Help:      "Number of tier transitions, by direction.",
		}, []string{"direction"}),
		redemptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loyalty",
			Name:      "redemptions_total",
			Help:      "Number of rewards redeemed.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Name:      "operation_rejections_total",
			Help:      "Operations rejected by a precondition, by operation and error code.",
		}, []string{"operation", "code"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Name:      "operation_failures_total",
			Help:      "Operations that did not commit because of a persistence failure.",
		}, []string{"operation"}),
		conflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loyalty",
			Name:      "conflict_retries_total",
			Help:      "Snapshot writes retried after a version conflict.",
		}),
	}

	m.pointsEarned = registerCounterVec(reg, m.pointsEarned)
	m.pointsDeducted = registerCounterVec(reg, m.pointsDeducted)
	m.tierChanges = registerCounterVec(reg, m.tierChanges)
	m.rejections = registerCounterVec(reg, m.rejections)
	m.failures = registerCounterVec(reg, m.failures)
	m.redemptions = registerCounter(reg, m.redemptions)
	m.conflictRetries = registerCounter(reg, m.conflictRetries)
	return m
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return c
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(prometheus.Counter)
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observeEarned(source string, points int) {
	if m == nil {
		return
	}
	m.pointsEarned.WithLabelValues(source).Add(float64(points))
}

func (m *Metrics) observeDeducted(reason string, points int) {
	if m == nil {
		return
	}
	m.pointsDeducted.WithLabelValues(reason).Add(float64(points))
}

func (m *Metrics) observeTierChange(upgraded bool) {
	if m == nil {
		return
	}
	direction := "down"
	if upgraded {
		direction = "up"
	}
	m.tierChanges.WithLabelValues(direction).Inc()
}

func (m *Metrics) observeRedemption() {
	if m == nil {
		return
	}
	m.redemptions.Inc()
}

func (m *Metrics) observeRejection(operation, code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) observeFailure(operation string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation).Inc()
}

func (m *Metrics) observeConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}
