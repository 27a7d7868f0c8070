package runtime

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/featureflow/internal/runtime/config"
	errspkg "github.com/drblury/featureflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/featureflow/internal/runtime/logging"
)

// ScopeDependencies holds the optional collaborators that a Scope can use.
// Leave fields nil (or zero) to use the defaults.
type ScopeDependencies struct {
	// Executor runs delivered actions. Defaults to DirectExecutor.
	Executor AffinityExecutor
	// Clock supplies enqueue timestamps and drives expiry. Defaults to the
	// real clock; tests inject a mock.
	Clock clock.Clock
	// Logger receives scope lifecycle and action failure logs. Defaults to a
	// wrapped slog.Default().
	Logger loggingpkg.ServiceLogger
	// Hooks observe the action lifecycle. The zero value installs none.
	Hooks DispatchHooks
	// MetricsRegisterer receives the scope's Prometheus collectors when
	// metrics are enabled. Defaults to prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
}

// Scope is an isolated dispatch domain: a registry of feature
// implementations, the pending queues for absent ones, one lock guarding
// both, and the scope's own metrics. Nothing is shared between scopes.
type Scope struct {
	name   string
	conf   configpkg.Config
	logger loggingpkg.ServiceLogger

	exec    AffinityExecutor
	clk     clock.Clock
	hooks   DispatchHooks
	metrics *Metrics
	tracer  trace.Tracer

	// mu guards registry, queues, and seq. It is held only for bookkeeping,
	// never while an action or hook runs, so actions may safely call back
	// into the scope.
	mu       sync.Mutex
	registry *featureRegistry
	queues   map[FeatureKey]*featureQueue
	seq      uint64
}

// NewScope constructs a scope for the supplied configuration, panicking if
// the configuration is invalid. Use TryNewScope to handle the error instead.
func NewScope(name string, conf configpkg.Config, deps ScopeDependencies) *Scope {
	s, err := TryNewScope(name, conf, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewScope constructs a scope for the supplied configuration. The name
// must be non-blank and the configuration must validate; violations come back
// as a ConfigValidationError.
func TryNewScope(name string, conf configpkg.Config, deps ScopeDependencies) (*Scope, error) {
	var errs []error
	if strings.TrimSpace(name) == "" {
		errs = append(errs, errspkg.ErrScopeNameRequired)
	}
	if err := conf.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errspkg.NewConfigValidationError(errors.Join(errs...))
	}

	s := &Scope{
		name:     name,
		conf:     conf,
		exec:     deps.Executor,
		clk:      deps.Clock,
		logger:   deps.Logger,
		hooks:    deps.Hooks,
		registry: newFeatureRegistry(),
		queues:   make(map[FeatureKey]*featureQueue),
	}

	if s.exec == nil {
		s.exec = DirectExecutor{}
	}
	if s.clk == nil {
		s.clk = clock.New()
	}
	if s.logger == nil {
		s.logger = loggingpkg.NewSlogServiceLogger(slog.Default())
	}
	s.logger = s.logger.With(loggingpkg.LogFields{"scope": name})

	s.metrics = NewMetrics(name, deps.MetricsRegisterer)
	if conf.MetricsEnabled {
		if err := s.metrics.Register(); err != nil {
			s.logger.Error("Failed to register dispatch metrics", err, nil)
		}
	}

	if conf.TracingEnabled {
		s.tracer = otel.Tracer("featureflow-dispatch")
	}

	if duplicate := sharedDirectory.noteScope(name); duplicate && conf.DebugMode {
		s.logger.Info("Duplicate scope name detected, scopes remain isolated", nil)
	}

	s.logger.Debug("Scope created", loggingpkg.LogFields{
		"max_queue_size": conf.MaxQueueSize,
		"action_expiry":  conf.ActionExpiry.String(),
		"debug_mode":     conf.DebugMode,
	})

	return s, nil
}

// BuildScope constructs a scope from the individual queue settings with
// default collaborators.
func BuildScope(name string, maxQueueSize int, actionExpiry time.Duration, debugMode bool) (*Scope, error) {
	conf := configpkg.Config{
		MaxQueueSize: maxQueueSize,
		ActionExpiry: actionExpiry,
		DebugMode:    debugMode,
	}
	return TryNewScope(name, conf, ScopeDependencies{})
}

// CreateScope constructs a scope with the default configuration and default
// collaborators.
func CreateScope(name string) (*Scope, error) {
	return TryNewScope(name, configpkg.DefaultConfig(), ScopeDependencies{})
}

var (
	defaultScopeOnce sync.Once
	defaultScope     *Scope
)

// Default returns the process-wide default scope, building it on first use
// through the same factory as any other scope. Code that wants isolation
// should take a *Scope dependency instead of calling this.
func Default() *Scope {
	defaultScopeOnce.Do(func() {
		defaultScope = NewScope("default", configpkg.DefaultConfig(), ScopeDependencies{})
	})
	return defaultScope
}

// Name returns the scope's name.
func (s *Scope) Name() string { return s.name }

// Config returns a copy of the scope's configuration.
func (s *Scope) Config() configpkg.Config { return s.conf }

// Metrics returns the scope's metrics collector.
func (s *Scope) Metrics() *Metrics { return s.metrics }

// IsRegistered reports whether the key currently resolves to a live
// implementation.
func (s *Scope) IsRegistered(key FeatureKey) bool {
	if key.IsZero() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, live := s.registry.get(key)
	return live
}

// Unregister removes the key's registration. Pending queues are untouched:
// later dispatches queue again until a new implementation registers.
func (s *Scope) Unregister(key FeatureKey) {
	if key.IsZero() {
		return
	}

	s.mu.Lock()
	removed := s.registry.remove(key)
	s.mu.Unlock()

	if !removed {
		return
	}

	if s.conf.DebugMode {
		sharedDirectory.dropRegistration(key, s.name)
	}
	if s.hooks.OnUnregister != nil {
		s.hooks.OnUnregister(s.name, key.String())
	}
	s.logger.Debug("Feature unregistered", loggingpkg.LogFields{"feature": key.String()})
}

// PendingCount returns the number of non-expired actions queued for the key.
// Expired entries found along the way are dropped and counted.
func (s *Scope) PendingCount(key FeatureKey) int {
	if key.IsZero() {
		return 0
	}

	s.mu.Lock()
	q, ok := s.queues[key]
	if !ok {
		s.mu.Unlock()
		return 0
	}
	n, expired := q.sizeAfterPurge(s.conf.ActionExpiry, s.clk.Now())
	if n == 0 {
		delete(s.queues, key)
	}
	s.mu.Unlock()

	s.reportExpired(key, expired)
	return n
}

// ClearQueue discards every action pending for the key without running any of
// them. Returns the number of actions dropped.
func (s *Scope) ClearQueue(key FeatureKey) int {
	if key.IsZero() {
		return 0
	}

	s.mu.Lock()
	q, ok := s.queues[key]
	if !ok {
		s.mu.Unlock()
		return 0
	}
	cleared := q.clear()
	delete(s.queues, key)
	s.mu.Unlock()

	feature := key.String()
	for _, qa := range cleared {
		s.dropHook(qa, DropCleared)
	}
	s.metrics.SetPendingCount(feature, 0)
	s.logger.Debug("Queue cleared", loggingpkg.LogFields{
		"feature": feature,
		"dropped": len(cleared),
	})
	return len(cleared)
}

// Reset clears every registration, queue, and metric in the scope. The scope
// object itself stays usable; this exists mainly for test isolation.
func (s *Scope) Reset() {
	s.mu.Lock()
	keys := s.registry.liveKeys()
	s.registry.clear()
	var cleared []*queuedAction
	for _, q := range s.queues {
		cleared = append(cleared, q.clear()...)
	}
	s.queues = make(map[FeatureKey]*featureQueue)
	s.mu.Unlock()

	for _, qa := range cleared {
		s.dropHook(qa, DropCleared)
	}
	s.metrics.Reset()

	if s.conf.DebugMode {
		for _, key := range keys {
			sharedDirectory.dropRegistration(key, s.name)
		}
	}

	s.logger.Debug("Scope reset", loggingpkg.LogFields{
		"registrations": len(keys),
		"dropped":       len(cleared),
	})
}

// queueFor returns the key's queue, creating it on first use. Caller must
// hold s.mu.
func (s *Scope) queueFor(key FeatureKey) *featureQueue {
	q, ok := s.queues[key]
	if !ok {
		q = &featureQueue{}
		s.queues[key] = q
	}
	return q
}

// reportExpired records and announces actions dropped by a lazy expiry purge.
func (s *Scope) reportExpired(key FeatureKey, expired []*queuedAction) {
	if len(expired) == 0 {
		return
	}
	s.metrics.RecordExpired(key.String(), len(expired))
	for _, qa := range expired {
		s.dropHook(qa, DropExpired)
	}
}

func (s *Scope) dropHook(qa *queuedAction, reason DropReason) {
	if s.hooks.OnDrop == nil {
		return
	}
	s.hooks.OnDrop(ActionInfo{
		Scope:      s.name,
		Feature:    qa.key.String(),
		ActionID:   qa.id,
		Priority:   qa.priority,
		EnqueuedAt: qa.enqueuedAt,
	}, reason)
}
