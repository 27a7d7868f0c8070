package errors

import sterrors "errors"

var (
	ErrScopeRequired     = sterrors.New("featureflow: scope is required")
	ErrScopeNameRequired = sterrors.New("featureflow: scope name must not be blank")
	ErrKeyRequired       = sterrors.New("featureflow: feature key is required")
	ErrActionRequired    = sterrors.New("featureflow: action function is required")
	ErrHandleRequired    = sterrors.New("featureflow: handle is required")
	ErrImplRequired      = sterrors.New("featureflow: implementation is required")
	ErrPublisherRequired = sterrors.New("featureflow: tap publisher is required")
	ErrTopicRequired     = sterrors.New("featureflow: tap topic is required")
	ErrMessageRequired   = sterrors.New("featureflow: tap message is required")
	ErrExecutorStopped   = sterrors.New("featureflow: serial executor is stopped")
	ErrExecutorRunning   = sterrors.New("featureflow: serial executor already running")
)

// ConfigValidationError wraps the field-level errors produced while validating
// a scope configuration. Construction fails fast with this type so invalid
// sizes, expiries, or names never reach a running dispatcher.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "featureflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err in a ConfigValidationError. A nil err
// returns nil so callers can pass through Validate results unconditionally.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
