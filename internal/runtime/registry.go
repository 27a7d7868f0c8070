package runtime

// featureRegistry maps feature keys to the handle of their current
// implementation. At most one handle per key. The registry performs no
// locking: every method must be called with the scope lock held.
type featureRegistry struct {
	entries map[FeatureKey]Handle
}

func newFeatureRegistry() *featureRegistry {
	return &featureRegistry{entries: make(map[FeatureKey]Handle)}
}

// put installs a handle for the key, replacing and returning any previous
// one. Registration replays the queue unconditionally, so the dispatcher
// ignores the result; it is there for callers that care about displacement.
func (r *featureRegistry) put(key FeatureKey, h Handle) (Handle, bool) {
	prev, existed := r.entries[key]
	r.entries[key] = h
	return prev, existed
}

// get resolves the key's handle. A handle that no longer resolves is treated
// the same as a missing registration and removed on the spot.
func (r *featureRegistry) get(key FeatureKey) (any, bool) {
	h, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	impl, alive := h.Resolve()
	if !alive {
		delete(r.entries, key)
		return nil, false
	}
	return impl, true
}

// remove clears the key's registration. Reports whether one existed.
func (r *featureRegistry) remove(key FeatureKey) bool {
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

// liveKeys returns the keys whose handles currently resolve, dropping dead
// entries as it goes.
func (r *featureRegistry) liveKeys() []FeatureKey {
	keys := make([]FeatureKey, 0, len(r.entries))
	for key, h := range r.entries {
		if _, alive := h.Resolve(); !alive {
			delete(r.entries, key)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func (r *featureRegistry) clear() {
	r.entries = make(map[FeatureKey]Handle)
}
