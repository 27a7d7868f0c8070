package metadata

// Metadata carries the string headers attached to published tap messages.
// Values are never mutated in place; each operation returns a fresh map, so
// one Metadata value can serve as a shared template across messages.
type Metadata map[string]string

// New builds a Metadata map from alternating key/value pairs. A trailing key
// without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// Get returns the value for key, or the empty string when absent.
func (m Metadata) Get(key string) string {
	return m[key]
}

// Clone returns a writable copy. A nil map clones to an empty one.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a copy of m with one extra pair set.
func (m Metadata) With(key, value string) Metadata {
	merged := make(Metadata, len(m)+1)
	for k, v := range m {
		merged[k] = v
	}
	merged[key] = value
	return merged
}

// WithAll returns a copy of m with every entry of extra set, overwriting
// duplicate keys.
func (m Metadata) WithAll(extra Metadata) Metadata {
	merged := make(Metadata, len(m)+len(extra))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
