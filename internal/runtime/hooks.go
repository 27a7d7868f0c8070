package runtime

import (
	"time"
)

// ActionInfo provides information about an action's lifecycle to hooks.
type ActionInfo struct {
	// Scope is the name of the scope handling the action.
	Scope string
	// Feature is the display name of the feature key.
	Feature string
	// ActionID is the unique identifier assigned at dispatch time.
	ActionID string
	// Priority is the action's dispatch priority.
	Priority Priority
	// EnqueuedAt is when the action was queued. Zero for actions delivered
	// directly to a live implementation.
	EnqueuedAt time.Time
	// StartedAt is when delivery began (set for OnDeliver and OnComplete).
	StartedAt time.Time
	// Duration is how long the action ran (only set in OnComplete).
	Duration time.Duration
	// Replayed is true when the delivery came from a replay batch rather than
	// a direct dispatch.
	Replayed bool
}

// DropReason explains why a queued action was discarded without running.
type DropReason string

const (
	// DropExpired marks actions that outlived the configured action expiry.
	DropExpired DropReason = "expired"
	// DropEvicted marks actions shed to keep a queue within its size cap.
	DropEvicted DropReason = "evicted"
	// DropCleared marks actions discarded by ClearQueue or Reset.
	DropCleared DropReason = "cleared"
	// DropUnqueued marks actions refused outright because the scope runs with
	// a queue size of zero.
	DropUnqueued DropReason = "unqueued"
)

// DispatchHooks defines callbacks for action lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type DispatchHooks struct {
	// OnEnqueue is called when an action is parked for an absent
	// implementation.
	OnEnqueue func(info ActionInfo)

	// OnDeliver is called when an action is about to be invoked on a live
	// implementation, for both direct dispatches and replays.
	OnDeliver func(info ActionInfo)

	// OnComplete is called when a delivered action returns. The error is nil
	// on success; recovered panics surface here as errors as well.
	OnComplete func(info ActionInfo, err error)

	// OnDrop is called when a queued action is discarded without running.
	OnDrop func(info ActionInfo, reason DropReason)

	// OnRegister is called after an implementation is registered, with the
	// number of actions replayed to it.
	OnRegister func(scope, feature string, replayed int)

	// OnUnregister is called after a registration is removed.
	OnUnregister func(scope, feature string)
}

// Merge combines two DispatchHooks, creating a new DispatchHooks that calls
// both. The hooks from 'other' are called after the hooks from 'h'.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnEnqueue:    chainEnqueueHooks(h.OnEnqueue, other.OnEnqueue),
		OnDeliver:    chainDeliverHooks(h.OnDeliver, other.OnDeliver),
		OnComplete:   chainCompleteHooks(h.OnComplete, other.OnComplete),
		OnDrop:       chainDropHooks(h.OnDrop, other.OnDrop),
		OnRegister:   chainRegisterHooks(h.OnRegister, other.OnRegister),
		OnUnregister: chainUnregisterHooks(h.OnUnregister, other.OnUnregister),
	}
}

func chainEnqueueHooks(a, b func(ActionInfo)) func(ActionInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info ActionInfo) {
		a(info)
		b(info)
	}
}

func chainDeliverHooks(a, b func(ActionInfo)) func(ActionInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info ActionInfo) {
		a(info)
		b(info)
	}
}

func chainCompleteHooks(a, b func(ActionInfo, error)) func(ActionInfo, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info ActionInfo, err error) {
		a(info, err)
		b(info, err)
	}
}

func chainDropHooks(a, b func(ActionInfo, DropReason)) func(ActionInfo, DropReason) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info ActionInfo, reason DropReason) {
		a(info, reason)
		b(info, reason)
	}
}

func chainRegisterHooks(a, b func(string, string, int)) func(string, string, int) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(scope, feature string, replayed int) {
		a(scope, feature, replayed)
		b(scope, feature, replayed)
	}
}

func chainUnregisterHooks(a, b func(string, string)) func(string, string) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(scope, feature string) {
		a(scope, feature)
		b(scope, feature)
	}
}

// LoggingHooks returns pre-built hooks that log action lifecycle events.
func LoggingHooks(logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}) DispatchHooks {
	return DispatchHooks{
		OnEnqueue: func(info ActionInfo) {
			logger.Info("Action queued", map[string]interface{}{
				"scope":     info.Scope,
				"feature":   info.Feature,
				"action_id": info.ActionID,
				"priority":  info.Priority.String(),
			})
		},
		OnDeliver: func(info ActionInfo) {
			logger.Info("Action delivered", map[string]interface{}{
				"scope":     info.Scope,
				"feature":   info.Feature,
				"action_id": info.ActionID,
				"priority":  info.Priority.String(),
				"replayed":  info.Replayed,
			})
		},
		OnComplete: func(info ActionInfo, err error) {
			if err != nil {
				logger.Error("Action failed", err, map[string]interface{}{
					"scope":       info.Scope,
					"feature":     info.Feature,
					"action_id":   info.ActionID,
					"duration_ms": info.Duration.Milliseconds(),
				})
				return
			}
			logger.Info("Action completed", map[string]interface{}{
				"scope":       info.Scope,
				"feature":     info.Feature,
				"action_id":   info.ActionID,
				"duration_ms": info.Duration.Milliseconds(),
			})
		},
		OnDrop: func(info ActionInfo, reason DropReason) {
			logger.Info("Action dropped", map[string]interface{}{
				"scope":     info.Scope,
				"feature":   info.Feature,
				"action_id": info.ActionID,
				"priority":  info.Priority.String(),
				"reason":    string(reason),
			})
		},
		OnRegister: func(scope, feature string, replayed int) {
			logger.Info("Feature registered", map[string]interface{}{
				"scope":    scope,
				"feature":  feature,
				"replayed": replayed,
			})
		},
		OnUnregister: func(scope, feature string) {
			logger.Info("Feature unregistered", map[string]interface{}{
				"scope":   scope,
				"feature": feature,
			})
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger a callback when a
// delivered action fails.
func AlertingHooks(alertFunc func(info ActionInfo, err error)) DispatchHooks {
	return DispatchHooks{
		OnComplete: func(info ActionInfo, err error) {
			if err != nil && alertFunc != nil {
				alertFunc(info, err)
			}
		},
	}
}
