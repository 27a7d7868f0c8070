package featureflow

import (
	"context"

	runtimepkg "github.com/drblury/featureflow/internal/runtime"
	configpkg "github.com/drblury/featureflow/internal/runtime/config"
	errspkg "github.com/drblury/featureflow/internal/runtime/errors"
	idspkg "github.com/drblury/featureflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/featureflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/featureflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/featureflow/internal/runtime/metadata"
)

type (
	Config            = configpkg.Config
	Scope             = runtimepkg.Scope
	ScopeDependencies = runtimepkg.ScopeDependencies

	FeatureKey = runtimepkg.FeatureKey

	Handle            = runtimepkg.Handle
	HandleFunc        = runtimepkg.HandleFunc
	PinHandle         = runtimepkg.PinHandle
	WeakHandle[T any] = runtimepkg.WeakHandle[T]

	Action         = runtimepkg.Action
	DispatchOption = runtimepkg.DispatchOption
	Priority       = runtimepkg.Priority

	AffinityExecutor    = runtimepkg.AffinityExecutor
	DirectExecutor      = runtimepkg.DirectExecutor
	SerialExecutor      = runtimepkg.SerialExecutor
	SerialOption        = runtimepkg.SerialOption
	SerialExecutorStats = runtimepkg.SerialExecutorStats
	PanicHandler        = runtimepkg.PanicHandler

	// Dispatch lifecycle hooks
	DispatchHooks = runtimepkg.DispatchHooks
	ActionInfo    = runtimepkg.ActionInfo
	DropReason    = runtimepkg.DropReason

	// Dispatch metrics
	Metrics         = runtimepkg.Metrics
	FeatureMetrics  = runtimepkg.FeatureMetrics
	MetricsSnapshot = runtimepkg.MetricsSnapshot

	DebugInfo = runtimepkg.DebugInfo

	// Event tap
	EventTap     = runtimepkg.EventTap
	TapOption    = runtimepkg.TapOption
	TapEvent     = runtimepkg.TapEvent
	TapEventKind = runtimepkg.TapEventKind

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigValidationError = errspkg.ConfigValidationError
)

const (
	PriorityLow      = runtimepkg.PriorityLow
	PriorityNormal   = runtimepkg.PriorityNormal
	PriorityHigh     = runtimepkg.PriorityHigh
	PriorityCritical = runtimepkg.PriorityCritical

	DropExpired  = runtimepkg.DropExpired
	DropEvicted  = runtimepkg.DropEvicted
	DropCleared  = runtimepkg.DropCleared
	DropUnqueued = runtimepkg.DropUnqueued

	TapEventEnqueued     = runtimepkg.TapEventEnqueued
	TapEventDelivered    = runtimepkg.TapEventDelivered
	TapEventCompleted    = runtimepkg.TapEventCompleted
	TapEventFailed       = runtimepkg.TapEventFailed
	TapEventDropped      = runtimepkg.TapEventDropped
	TapEventRegistered   = runtimepkg.TapEventRegistered
	TapEventUnregistered = runtimepkg.TapEventUnregistered

	// Metadata keys stamped on tap messages.
	MetadataKeyTapEventKind = runtimepkg.MetadataKeyTapEventKind
	MetadataKeyTapScope     = runtimepkg.MetadataKeyTapScope
)

var (
	NewScope    = runtimepkg.NewScope
	TryNewScope = runtimepkg.TryNewScope
	BuildScope  = runtimepkg.BuildScope
	CreateScope = runtimepkg.CreateScope

	DefaultConfig  = configpkg.DefaultConfig
	ValidateConfig = configpkg.ValidateConfig

	NewFeatureKey = runtimepkg.NewFeatureKey
	NewPinHandle  = runtimepkg.NewPinHandle

	WithPriority = runtimepkg.WithPriority

	NewSerialExecutor = runtimepkg.NewSerialExecutor
	WithQueueCapacity = runtimepkg.WithQueueCapacity
	WithPanicHandler  = runtimepkg.WithPanicHandler

	// Dispatch lifecycle hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	// Event tap
	NewEventTap     = runtimepkg.NewEventTap
	DecodeTapEvent  = runtimepkg.DecodeTapEvent
	WithTapLogger   = runtimepkg.WithTapLogger
	WithTapMetadata = runtimepkg.WithTapMetadata
	WithTapClock    = runtimepkg.WithTapClock

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrScopeRequired     = errspkg.ErrScopeRequired
	ErrScopeNameRequired = errspkg.ErrScopeNameRequired
	ErrKeyRequired       = errspkg.ErrKeyRequired
	ErrActionRequired    = errspkg.ErrActionRequired
	ErrHandleRequired    = errspkg.ErrHandleRequired
	ErrImplRequired      = errspkg.ErrImplRequired
	ErrPublisherRequired = errspkg.ErrPublisherRequired
	ErrTopicRequired     = errspkg.ErrTopicRequired
	ErrMessageRequired   = errspkg.ErrMessageRequired
	ErrExecutorStopped   = errspkg.ErrExecutorStopped
	ErrExecutorRunning   = errspkg.ErrExecutorRunning

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// KeyFor derives a feature key from a type, typically an interface. All calls
// with the same type yield the same key, so a consumer can dispatch against
// an interface without sharing a key constant with the provider.
func KeyFor[T any]() FeatureKey {
	return runtimepkg.KeyFor[T]()
}

// NewWeakHandle wraps impl in a handle that does not keep it alive. Once the
// owner drops its own reference and the garbage collector reclaims the value,
// the registration resolves as absent and dispatches queue again.
func NewWeakHandle[T any](impl *T) WeakHandle[T] {
	return runtimepkg.NewWeakHandle(impl)
}

// RegisterFeature registers impl on s under the key derived from T.
func RegisterFeature[T any](s *Scope, impl T) {
	s.Register(KeyFor[T](), impl)
}

// DispatchFeature dispatches a typed action on s under the key derived from
// T. The callback receives the implementation already asserted to T.
func DispatchFeature[T any](s *Scope, fn func(ctx context.Context, impl T) error, opts ...DispatchOption) {
	s.Dispatch(KeyFor[T](), func(ctx context.Context, impl any) error {
		return fn(ctx, impl.(T))
	}, opts...)
}

// NewEntryServiceLogger wraps an entry-style logger (for example a
// logrus.Entry) so it can be supplied to a scope.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

// Default returns the process-wide default scope.
func Default() *Scope {
	return runtimepkg.Default()
}

// Register registers impl on the default scope.
func Register(key FeatureKey, impl any) {
	runtimepkg.Default().Register(key, impl)
}

// RegisterHandle registers a handle on the default scope.
func RegisterHandle(key FeatureKey, h Handle) {
	runtimepkg.Default().RegisterHandle(key, h)
}

// Unregister removes the key's registration from the default scope.
func Unregister(key FeatureKey) {
	runtimepkg.Default().Unregister(key)
}

// IsRegistered reports whether the key is live on the default scope.
func IsRegistered(key FeatureKey) bool {
	return runtimepkg.Default().IsRegistered(key)
}

// Dispatch sends an action through the default scope.
func Dispatch(key FeatureKey, action Action, opts ...DispatchOption) {
	runtimepkg.Default().Dispatch(key, action, opts...)
}

// PendingCount returns the default scope's pending count for the key.
func PendingCount(key FeatureKey) int {
	return runtimepkg.Default().PendingCount(key)
}

// ClearQueue discards the default scope's pending actions for the key.
func ClearQueue(key FeatureKey) int {
	return runtimepkg.Default().ClearQueue(key)
}
