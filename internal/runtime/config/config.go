package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxQueueSize bounds the number of pending actions a scope retains
	// per feature key while the implementation is absent.
	DefaultMaxQueueSize = 64

	// DefaultActionExpiry is how long a pending action stays replayable before
	// it is dropped during the next queue sweep.
	DefaultActionExpiry = 5 * time.Minute
)

// Config groups the dispatch settings required to initialise a Scope. All
// fields have usable defaults; see DefaultConfig.
type Config struct {
	// MaxQueueSize caps the pending actions retained per feature key. When the
	// cap is reached the lowest-priority, oldest pending action is evicted to
	// make room. Zero disables queueing entirely: dispatches to unregistered
	// features are dropped immediately. Negative values are invalid.
	MaxQueueSize int

	// ActionExpiry is the time-to-live for a pending action. Expired actions
	// are discarded lazily the next time their queue is touched, so an expiry
	// never fires a timer of its own. Must be positive.
	ActionExpiry time.Duration

	// DebugMode enables cross-scope diagnostics: duplicate scope names and
	// features registered under multiple scopes are reported at registration
	// time. Has no effect on the dispatch path.
	DebugMode bool

	// MetricsEnabled wires the scope's counters into a Prometheus registerer.
	MetricsEnabled bool

	// TracingEnabled starts an OpenTelemetry span around each delivered
	// action.
	TracingEnabled bool
}

// DefaultConfig returns a Config suitable for most scopes: a bounded queue
// with a five minute action expiry and no diagnostics.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize: DefaultMaxQueueSize,
		ActionExpiry: DefaultActionExpiry,
	}
}

// Validate checks that the configuration describes a scope that can actually
// run. Returns an error describing every invalid field, not just the first.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateQueue()...)
	errs = append(errs, c.validateExpiry()...)

	return errors.Join(errs...)
}

// validateQueue checks the pending queue bounds.
func (c *Config) validateQueue() []error {
	if c.MaxQueueSize < 0 {
		return []error{fmt.Errorf("queue: max queue size must not be negative, got %d", c.MaxQueueSize)}
	}
	return nil
}

// validateExpiry checks the action time-to-live.
func (c *Config) validateExpiry() []error {
	if c.ActionExpiry <= 0 {
		return []error{fmt.Errorf("queue: action expiry must be positive, got %s", c.ActionExpiry)}
	}
	return nil
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
