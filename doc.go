// Package featureflow is an in-process dispatcher that decouples callers from
// feature implementations that may not exist yet. Callers dispatch actions
// against a FeatureKey; if an implementation is registered the action runs
// immediately, otherwise it is queued and replayed the moment one arrives.
// Registration order stops mattering: subsystems that come up late, load
// lazily, or get torn down and replaced simply receive their backlog when
// they appear.
//
// A Scope is an isolated dispatch domain holding the registrations, the
// pending queues, and the metrics for one part of an application. Most
// programs use the process-wide Default scope through the package-level
// Register and Dispatch functions; libraries that want isolation construct
// their own with NewScope or CreateScope and pass it around explicitly.
//
// # Keys and handles
//
// Feature keys come in two flavors: NewFeatureKey("payments") names a
// feature explicitly, while KeyFor[PaymentService]() derives a key from an
// interface type so provider and consumer agree on identity without sharing
// a constant. Implementations are held through a Handle: Register pins the
// value for the lifetime of the registration, RegisterHandle with
// NewWeakHandle lets the garbage collector reclaim an implementation whose
// owner has gone away, after which dispatches queue again.
//
// # Queueing
//
// Pending actions are ordered by priority (WithPriority) and FIFO within a
// priority, bounded per feature by Config.MaxQueueSize, and aged out after
// Config.ActionExpiry. When a queue is full the oldest action of the lowest
// priority is evicted to make room. Dispatch is fire-and-forget: action
// errors and panics are logged and counted, never returned.
//
// # Execution
//
// Actions run through the scope's AffinityExecutor. The default
// DirectExecutor runs them inline on whichever goroutine triggered delivery;
// SerialExecutor funnels every action through one worker goroutine for
// implementations that require single-threaded access.
//
// # Observability
//
// Each scope counts dispatched, queued, replayed, expired, evicted, and
// failed actions per feature and exposes them as Prometheus collectors.
// DispatchHooks observe the lifecycle in-process, LoggingHooks adapts them to
// a ServiceLogger, and NewEventTap publishes them as JSON messages on a
// Watermill topic. DebugHandler serves a point-in-time scope snapshot over
// HTTP, and enabling Config.TracingEnabled wraps each delivery in an
// OpenTelemetry span.
package featureflow
