package runtime

import (
	"fmt"
	"reflect"
)

// FeatureKey identifies a feature slot within a scope. Keys are comparable
// values so they can index registry and queue maps directly. Two keys are the
// same slot if and only if they compare equal.
//
// Keys come in two flavours. Named keys are built from an arbitrary string
// with NewFeatureKey. Typed keys are derived from a Go interface type with
// KeyFor, which guarantees that every package referring to the same interface
// lands on the same slot without sharing a string constant.
type FeatureKey struct {
	name string
	typ  reflect.Type
}

// NewFeatureKey returns a key for the given name. Keys built from equal names
// are equal.
func NewFeatureKey(name string) FeatureKey {
	return FeatureKey{name: name}
}

// KeyFor derives a feature key from the type parameter. The conventional use
// is an interface type that the registered implementation satisfies:
//
//	key := runtime.KeyFor[GreeterService]()
func KeyFor[T any]() FeatureKey {
	return FeatureKey{typ: reflect.TypeOf((*T)(nil)).Elem()}
}

// IsZero reports whether the key was never initialised. Zero keys are rejected
// by every scope operation.
func (k FeatureKey) IsZero() bool {
	return k.name == "" && k.typ == nil
}

func (k FeatureKey) String() string {
	if k.typ != nil {
		return k.typ.String()
	}
	if k.name != "" {
		return k.name
	}
	return "<zero>"
}

// GoString makes %#v output readable in test failures and debug dumps.
func (k FeatureKey) GoString() string {
	return fmt.Sprintf("runtime.FeatureKey(%s)", k.String())
}
