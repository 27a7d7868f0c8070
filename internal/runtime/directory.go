package runtime

import (
	"sort"
	"sync"
)

// scopeDirectory tracks scope names and debug-mode registrations across the
// whole process so constructors and Register can emit operator diagnostics:
// two scopes sharing a name, or one feature key registered under differently
// named scopes. Both conditions are legal; the directory only makes them
// visible. It is never consulted on the dispatch path.
type scopeDirectory struct {
	mu            sync.Mutex
	scopeNames    map[string]int
	registrations map[FeatureKey]map[string]struct{}
}

// sharedDirectory is the process-wide directory all scopes report into.
var sharedDirectory = newScopeDirectory()

func newScopeDirectory() *scopeDirectory {
	return &scopeDirectory{
		scopeNames:    make(map[string]int),
		registrations: make(map[FeatureKey]map[string]struct{}),
	}
}

// noteScope records a scope name at construction time. Reports whether the
// name was already taken by an earlier scope.
func (d *scopeDirectory) noteScope(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scopeNames[name]++
	return d.scopeNames[name] > 1
}

// noteRegistration records that a scope registered a key and returns the
// names of other scopes currently holding the same key.
func (d *scopeDirectory) noteRegistration(key FeatureKey, scope string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	holders, ok := d.registrations[key]
	if !ok {
		holders = make(map[string]struct{})
		d.registrations[key] = holders
	}
	holders[scope] = struct{}{}

	others := make([]string, 0, len(holders))
	for name := range holders {
		if name != scope {
			others = append(others, name)
		}
	}
	sort.Strings(others)
	return others
}

// dropRegistration forgets one scope's claim on a key.
func (d *scopeDirectory) dropRegistration(key FeatureKey, scope string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	holders, ok := d.registrations[key]
	if !ok {
		return
	}
	delete(holders, scope)
	if len(holders) == 0 {
		delete(d.registrations, key)
	}
}

// reset clears the directory. Test isolation only.
func (d *scopeDirectory) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scopeNames = make(map[string]int)
	d.registrations = make(map[FeatureKey]map[string]struct{})
}
