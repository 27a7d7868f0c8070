package runtime

import "weak"

// Handle provides access to a feature implementation without dictating how
// long that implementation lives. The registry stores handles, never bare
// implementations, so callers choose the lifetime policy per registration.
//
// Resolve returns the implementation and true while it is alive. Once a
// handle reports false it must keep reporting false; the registry treats the
// first false as permission to drop the registration.
type Handle interface {
	Resolve() (any, bool)
}

// HandleFunc adapts a plain function to the Handle interface.
type HandleFunc func() (any, bool)

func (f HandleFunc) Resolve() (any, bool) { return f() }

// PinHandle keeps the implementation reachable for as long as the handle
// itself is referenced. This is the default lifetime used by Register.
type PinHandle struct {
	impl any
}

// NewPinHandle wraps an implementation in a strong handle.
func NewPinHandle(impl any) PinHandle {
	return PinHandle{impl: impl}
}

func (h PinHandle) Resolve() (any, bool) {
	if h.impl == nil {
		return nil, false
	}
	return h.impl, true
}

// WeakHandle holds a feature implementation without keeping it alive. When
// the collector reclaims the implementation the handle resolves to absent and
// the registration is dropped the next time the slot is touched.
//
// Actions delivered to a weakly held implementation pin it for the duration
// of the call: Resolve hands out a strong reference that the dispatcher holds
// until the action returns.
type WeakHandle[T any] struct {
	ptr weak.Pointer[T]
}

// NewWeakHandle wraps a pointer implementation in a weak handle. The caller
// must keep its own strong reference for as long as the feature should stay
// registered.
func NewWeakHandle[T any](impl *T) WeakHandle[T] {
	return WeakHandle[T]{ptr: weak.Make(impl)}
}

func (h WeakHandle[T]) Resolve() (any, bool) {
	strong := h.ptr.Value()
	if strong == nil {
		return nil, false
	}
	return strong, true
}
