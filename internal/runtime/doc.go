/*
Package runtime provides the core dispatch machinery for featureflow.

# Architecture Overview

The runtime package implements deferred, type-keyed dispatch: actions sent to
a feature key either run against the currently registered implementation or
wait in a bounded priority queue until one registers. The root featureflow
package re-exports this surface; nothing here is imported directly by
applications.

# Package Structure

The runtime package is organized into the following components:

## Scope (scope.go, dispatch.go)

The Scope struct is an isolated dispatch domain that wires together:
  - Feature registry (live registrations held through handles)
  - Per-feature pending queues with priority, FIFO, expiry, and eviction
  - An AffinityExecutor that runs delivered actions
  - Per-feature metrics and optional OpenTelemetry spans
  - Lifecycle hooks for external observers

One mutex guards the registry and queues together. It is held only for
bookkeeping and never while an action, hook, or tap runs, which is what makes
re-entrant dispatch from inside an action safe.

## Keys & Handles (key.go, handle.go)

FeatureKey identifies a feature either by explicit name or by a Go type
(KeyFor). Handles decide how strongly a registration holds its
implementation: PinHandle keeps it alive, WeakHandle lets the collector
reclaim it, HandleFunc adapts custom resolvers.

## Queueing (queue.go, priority.go, registry.go)

featureQueue keeps one FIFO slice per priority tier, purges expired entries
lazily before any size accounting, and evicts from the head of the lowest
occupied tier when full. featureRegistry is a plain map guarded by the scope
lock that drops entries whose handles no longer resolve.

## Execution (executor.go)

AffinityExecutor abstracts where actions run. DirectExecutor runs them
inline; SerialExecutor owns a single worker goroutine with a bounded buffer,
panic containment, and Start/Stop lifecycle for implementations that must be
driven from one goroutine.

## Observability (metrics.go, hooks.go, eventtap.go, debug.go)

Metrics counts dispatched, queued, replayed, expired, evicted, and failed
actions per feature and doubles as a Prometheus collector set. DispatchHooks
deliver the same lifecycle to in-process observers, and EventTap publishes it
as JSON messages over a Watermill publisher. debug.go exposes the snapshot,
Dump, and the HTTP debug handler.

## Diagnostics Directory (directory.go)

A process-wide directory that powers the debug-mode warnings for duplicate
scope names and keys registered in multiple scopes. Never consulted during
dispatch.

# Sub-packages

  - config/: Scope configuration with validation
  - errors/: Sentinel errors and error types
  - ids/: ULID generation for action IDs
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Tap message metadata utilities

# Usage Example

	scope, err := runtime.TryNewScope("app", config.DefaultConfig(), runtime.ScopeDependencies{})
	if err != nil {
		return err
	}

	key := runtime.KeyFor[PaymentService]()
	scope.Dispatch(key, func(ctx context.Context, impl any) error {
		return impl.(PaymentService).Charge(ctx, order)
	})

	// Later, possibly from another goroutine: the queued charge replays here.
	scope.Register(key, paymentService)
*/
package runtime
