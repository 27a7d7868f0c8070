package runtime

import (
	"context"
	"fmt"
	runtimedebug "runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/featureflow/internal/runtime/errors"
	idspkg "github.com/drblury/featureflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/featureflow/internal/runtime/logging"
)

// Action is a deferred unit of work bound to a feature implementation. The
// dispatcher invokes it with the implementation that was live at delivery
// time. Returned errors are logged and counted, never propagated to the
// dispatch caller; the contract is fire-and-forget.
//
// A queued action may hold its captured state for up to the scope's action
// expiry, so captured values should be small.
type Action func(ctx context.Context, impl any) error

type dispatchOptions struct {
	priority Priority
}

// DispatchOption adjusts a single Dispatch call.
type DispatchOption func(*dispatchOptions)

// WithPriority sets the action's queueing priority. Values outside the
// defined levels are ignored and the default of PriorityNormal applies.
func WithPriority(p Priority) DispatchOption {
	return func(o *dispatchOptions) {
		if p.valid() {
			o.priority = p
		}
	}
}

// Dispatch sends an action to the key's implementation. If a live
// implementation is registered the action is invoked through the scope's
// executor right away; otherwise it is queued and replayed when one
// registers. The call never blocks on user code and returns nothing: failures
// surface through logs, metrics, and hooks.
func (s *Scope) Dispatch(key FeatureKey, action Action, opts ...DispatchOption) {
	if key.IsZero() {
		s.logger.Error("Dispatch rejected", errspkg.ErrKeyRequired, nil)
		return
	}
	if action == nil {
		s.logger.Error("Dispatch rejected", errspkg.ErrActionRequired, loggingpkg.LogFields{
			"feature": key.String(),
		})
		return
	}

	o := dispatchOptions{priority: PriorityNormal}
	for _, opt := range opts {
		opt(&o)
	}

	id := idspkg.CreateULID()

	s.mu.Lock()
	impl, live := s.registry.get(key)
	if live {
		s.mu.Unlock()
		s.deliver(ActionInfo{
			Scope:    s.name,
			Feature:  key.String(),
			ActionID: id,
			Priority: o.priority,
		}, action, impl)
		return
	}

	now := s.clk.Now()
	s.seq++
	qa := &queuedAction{
		id:         id,
		key:        key,
		fn:         action,
		priority:   o.priority,
		seq:        s.seq,
		enqueuedAt: now,
	}
	q := s.queueFor(key)
	evicted, expired := q.enqueue(qa, s.conf.MaxQueueSize, s.conf.ActionExpiry, now)
	if q.size() == 0 {
		delete(s.queues, key)
	}
	s.mu.Unlock()

	feature := key.String()
	s.reportExpired(key, expired)

	switch {
	case evicted == qa:
		// Zero queue capacity: the action was refused outright.
		s.metrics.RecordEvicted(feature)
		s.dropHook(qa, DropUnqueued)
		return
	case evicted != nil:
		s.metrics.RecordEvicted(feature)
		s.dropHook(evicted, DropEvicted)
	}

	s.metrics.RecordQueued(feature)
	if s.hooks.OnEnqueue != nil {
		s.hooks.OnEnqueue(ActionInfo{
			Scope:      s.name,
			Feature:    feature,
			ActionID:   qa.id,
			Priority:   qa.priority,
			EnqueuedAt: qa.enqueuedAt,
		})
	}
}

// Register installs impl as the key's live implementation, holding it with a
// strong handle so it stays alive for the lifetime of the registration. Any
// queued actions are replayed to it in priority/FIFO order.
func (s *Scope) Register(key FeatureKey, impl any) {
	if impl == nil {
		s.logger.Error("Register rejected", errspkg.ErrImplRequired, loggingpkg.LogFields{
			"feature": key.String(),
		})
		return
	}
	s.RegisterHandle(key, NewPinHandle(impl))
}

// RegisterHandle installs a handle as the key's registration, replacing any
// previous one. If the handle resolves, the key's queued actions are drained
// and replayed to the resolved implementation in priority/FIFO order; a
// failed action never aborts the rest of the batch. A handle that is already
// dead leaves the queue in place for a future registration.
func (s *Scope) RegisterHandle(key FeatureKey, h Handle) {
	if key.IsZero() {
		s.logger.Error("Register rejected", errspkg.ErrKeyRequired, nil)
		return
	}
	if h == nil {
		s.logger.Error("Register rejected", errspkg.ErrHandleRequired, loggingpkg.LogFields{
			"feature": key.String(),
		})
		return
	}

	impl, live := h.Resolve()

	s.mu.Lock()
	s.registry.put(key, h)
	var batch, expired []*queuedAction
	if live {
		if q, ok := s.queues[key]; ok {
			batch, expired = q.drainOrdered(s.conf.ActionExpiry, s.clk.Now())
			delete(s.queues, key)
		}
	}
	s.mu.Unlock()

	feature := key.String()
	s.reportExpired(key, expired)
	if live {
		s.metrics.SetPendingCount(feature, 0)
	}

	if s.conf.DebugMode {
		if others := sharedDirectory.noteRegistration(key, s.name); len(others) > 0 {
			s.logger.Info("Feature key registered in multiple scopes", loggingpkg.LogFields{
				"feature":      feature,
				"other_scopes": others,
			})
		}
	}

	if s.hooks.OnRegister != nil {
		s.hooks.OnRegister(s.name, feature, len(batch))
	}
	s.logger.Debug("Feature registered", loggingpkg.LogFields{
		"feature":  feature,
		"replayed": len(batch),
	})

	for _, qa := range batch {
		s.deliver(ActionInfo{
			Scope:      s.name,
			Feature:    feature,
			ActionID:   qa.id,
			Priority:   qa.priority,
			EnqueuedAt: qa.enqueuedAt,
			Replayed:   true,
		}, qa.fn, impl)
	}
}

// deliver hands an action to the executor, running inline when the caller is
// already on the affinity context.
func (s *Scope) deliver(info ActionInfo, fn Action, impl any) {
	run := func() { s.runAction(info, fn, impl) }
	if s.exec.IsOnAffinityContext() {
		run()
		return
	}
	s.exec.Run(run)
}

// runAction invokes one action with tracing, metrics, hook notifications, and
// failure containment. Always called off the scope lock.
func (s *Scope) runAction(info ActionInfo, fn Action, impl any) {
	info.StartedAt = s.clk.Now()
	if s.hooks.OnDeliver != nil {
		s.hooks.OnDeliver(info)
	}

	ctx := context.Background()
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "featureflow.Deliver")
		span.SetAttributes(
			attribute.String("featureflow.scope", info.Scope),
			attribute.String("featureflow.feature", info.Feature),
			attribute.String("featureflow.action_id", info.ActionID),
			attribute.String("featureflow.priority", info.Priority.String()),
			attribute.Bool("featureflow.replayed", info.Replayed),
		)
	}

	panicked, err := s.invokeAction(ctx, info, fn, impl)
	info.Duration = s.clk.Now().Sub(info.StartedAt)

	if info.Replayed {
		s.metrics.RecordReplayed(info.Feature)
	} else {
		s.metrics.RecordDispatched(info.Feature)
	}

	if err != nil {
		s.metrics.RecordFailed(info.Feature)
		if !panicked {
			s.logger.Error("Action failed", err, loggingpkg.LogFields{
				"feature":   info.Feature,
				"action_id": info.ActionID,
			})
		}
		if span != nil {
			span.RecordError(err)
		}
	}
	if span != nil {
		span.End()
	}

	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(info, err)
	}
}

// invokeAction runs the user callback, converting a panic into an error so a
// misbehaving implementation can never take down the dispatcher or abort a
// replay batch.
func (s *Scope) invokeAction(ctx context.Context, info ActionInfo, fn Action, impl any) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("action panicked: %v", r)
			s.logger.Error("Action panicked", err, loggingpkg.LogFields{
				"feature":   info.Feature,
				"action_id": info.ActionID,
				"stack":     string(runtimedebug.Stack()),
			})
		}
	}()
	return false, fn(ctx, impl)
}
