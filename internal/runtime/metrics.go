package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks dispatch statistics for one scope.
type Metrics struct {
	mu sync.RWMutex

	// Per-feature counts
	featureCounts map[string]*FeatureMetrics

	// Prometheus collectors
	dispatchedTotal *prometheus.CounterVec
	queuedTotal     *prometheus.CounterVec
	replayedTotal   *prometheus.CounterVec
	expiredTotal    *prometheus.CounterVec
	evictedTotal    *prometheus.CounterVec
	failedTotal     *prometheus.CounterVec
	pendingActions  *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

// FeatureMetrics holds counters for a single feature key.
type FeatureMetrics struct {
	Dispatched    uint64    `json:"dispatched"`
	Queued        uint64    `json:"queued"`
	Replayed      uint64    `json:"replayed"`
	Expired       uint64    `json:"expired"`
	Evicted       uint64    `json:"evicted"`
	Failed        uint64    `json:"failed"`
	Pending       uint64    `json:"pending"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// MetricsSnapshot provides a point-in-time view of a scope's dispatch metrics.
type MetricsSnapshot struct {
	TotalDispatched uint64                     `json:"total_dispatched"`
	TotalQueued     uint64                     `json:"total_queued"`
	TotalReplayed   uint64                     `json:"total_replayed"`
	TotalExpired    uint64                     `json:"total_expired"`
	TotalEvicted    uint64                     `json:"total_evicted"`
	TotalFailed     uint64                     `json:"total_failed"`
	TotalPending    uint64                     `json:"total_pending"`
	FeatureMetrics  map[string]*FeatureMetrics `json:"feature_metrics"`
	CollectedAt     time.Time                  `json:"collected_at"`
}

// newFlowCounterVec creates a counter vec in the featureflow/dispatch
// namespace, pinned to one scope through a const label so several scopes can
// share a registry without descriptor collisions.
func newFlowCounterVec(scope, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "featureflow",
			Subsystem:   "dispatch",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"scope": scope},
		},
		labels,
	)
}

// newFlowGaugeVec creates a gauge vec with the same namespace and scope label
// conventions as newFlowCounterVec.
func newFlowGaugeVec(scope, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   "featureflow",
			Subsystem:   "dispatch",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"scope": scope},
		},
		labels,
	)
}

// NewMetrics creates a metrics collector for the named scope.
func NewMetrics(scope string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		featureCounts:   make(map[string]*FeatureMetrics),
		registerer:      registerer,
		dispatchedTotal: newFlowCounterVec(scope, "dispatched_total", "Total number of actions delivered directly to a live implementation", []string{"feature"}),
		queuedTotal:     newFlowCounterVec(scope, "queued_total", "Total number of actions queued while no live implementation was registered", []string{"feature"}),
		replayedTotal:   newFlowCounterVec(scope, "replayed_total", "Total number of queued actions replayed to a newly registered implementation", []string{"feature"}),
		expiredTotal:    newFlowCounterVec(scope, "expired_total", "Total number of queued actions dropped after exceeding the action expiry", []string{"feature"}),
		evictedTotal:    newFlowCounterVec(scope, "evicted_total", "Total number of queued actions evicted to enforce the queue size cap", []string{"feature"}),
		failedTotal:     newFlowCounterVec(scope, "failed_total", "Total number of delivered actions that returned an error or panicked", []string{"feature"}),
		pendingActions:  newFlowGaugeVec(scope, "pending_actions", "Current number of queued actions awaiting an implementation", []string{"feature"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.dispatchedTotal,
		m.queuedTotal,
		m.replayedTotal,
		m.expiredTotal,
		m.evictedTotal,
		m.failedTotal,
		m.pendingActions,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			// Check if it's already registered (not an error)
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordDispatched records an action delivered directly to a live
// implementation.
func (m *Metrics) RecordDispatched(feature string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fm := m.getOrCreateFeatureMetrics(feature)
	fm.Dispatched++
	fm.LastUpdatedAt = time.Now()

	m.dispatchedTotal.WithLabelValues(feature).Inc()
}

// RecordQueued records an action parked for an absent implementation.
func (m *Metrics) RecordQueued(feature string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fm := m.getOrCreateFeatureMetrics(feature)
	fm.Queued++
	fm.Pending++
	fm.LastUpdatedAt = time.Now()

	m.queuedTotal.WithLabelValues(feature).Inc()
	m.pendingActions.WithLabelValues(feature).Set(float64(fm.Pending))
}

// RecordReplayed records one queued action handed to a newly registered
// implementation. Pending counts are synced separately because the whole
// queue empties in one drain.
func (m *Metrics) RecordReplayed(feature string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fm := m.getOrCreateFeatureMetrics(feature)
	fm.Replayed++
	fm.LastUpdatedAt = time.Now()

	m.replayedTotal.WithLabelValues(feature).Inc()
}

// RecordExpired records queued actions dropped by a lazy expiry purge.
func (m *Metrics) RecordExpired(feature string, count int) {
	if count <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fm := m.getOrCreateFeatureMetrics(feature)
	fm.Expired += uint64(count)
	if fm.Pending >= uint64(count) {
		fm.Pending -= uint64(count)
	} else {
		fm.Pending = 0
	}
	fm.LastUpdatedAt = time.Now()

	m.expiredTotal.WithLabelValues(feature).Add(float64(count))
	m.pendingActions.WithLabelValues(feature).Set(float64(fm.Pending))
}

// RecordEvicted records one queued action shed to respect the size cap.
func (m *Metrics) RecordEvicted(feature string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fm := m.getOrCreateFeatureMetrics(feature)
	fm.Evicted++
	if fm.Pending > 0 {
		fm.Pending--
	}
	fm.LastUpdatedAt = time.Now()

	m.evictedTotal.WithLabelValues(feature).Inc()
	m.pendingActions.WithLabelValues(feature).Set(float64(fm.Pending))
}

// RecordFailed records a delivered action that returned an error or panicked.
func (m *Metrics) RecordFailed(feature string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fm := m.getOrCreateFeatureMetrics(feature)
	fm.Failed++
	fm.LastUpdatedAt = time.Now()

	m.failedTotal.WithLabelValues(feature).Inc()
}

// SetPendingCount directly sets the pending count for a feature (for sync
// after drains and clears).
func (m *Metrics) SetPendingCount(feature string, count int) {
	if count < 0 {
		count = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fm := m.getOrCreateFeatureMetrics(feature)
	fm.Pending = uint64(count)
	fm.LastUpdatedAt = time.Now()

	m.pendingActions.WithLabelValues(feature).Set(float64(count))
}

// GetSnapshot returns a point-in-time snapshot of all dispatch metrics.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		FeatureMetrics: make(map[string]*FeatureMetrics),
		CollectedAt:    time.Now(),
	}

	for feature, fm := range m.featureCounts {
		// Create a copy
		fmCopy := *fm
		snapshot.FeatureMetrics[feature] = &fmCopy
		snapshot.TotalDispatched += fm.Dispatched
		snapshot.TotalQueued += fm.Queued
		snapshot.TotalReplayed += fm.Replayed
		snapshot.TotalExpired += fm.Expired
		snapshot.TotalEvicted += fm.Evicted
		snapshot.TotalFailed += fm.Failed
		snapshot.TotalPending += fm.Pending
	}

	return snapshot
}

// GetFeatureMetrics returns metrics for a specific feature.
func (m *Metrics) GetFeatureMetrics(feature string) *FeatureMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if fm, ok := m.featureCounts[feature]; ok {
		// Return a copy
		fmCopy := *fm
		return &fmCopy
	}
	return nil
}

func (m *Metrics) getOrCreateFeatureMetrics(feature string) *FeatureMetrics {
	if fm, ok := m.featureCounts[feature]; ok {
		return fm
	}
	fm := &FeatureMetrics{}
	m.featureCounts[feature] = fm
	return fm
}

// Reset resets all metrics (useful for testing and scope resets).
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.featureCounts = make(map[string]*FeatureMetrics)
	m.dispatchedTotal.Reset()
	m.queuedTotal.Reset()
	m.replayedTotal.Reset()
	m.expiredTotal.Reset()
	m.evictedTotal.Reset()
	m.failedTotal.Reset()
	m.pendingActions.Reset()
}
