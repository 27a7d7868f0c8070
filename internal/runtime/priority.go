package runtime

// Priority orders pending actions queued for an absent feature. Higher
// priorities are replayed first when the feature's implementation arrives, and
// lower priorities are evicted first when a queue hits its size cap.
type Priority int

const (
	// PriorityLow marks actions that are safe to shed first under pressure.
	PriorityLow Priority = iota
	// PriorityNormal is the default for Dispatch calls that do not override it.
	PriorityNormal
	// PriorityHigh marks actions that should run ahead of routine work.
	PriorityHigh
	// PriorityCritical marks actions that are evicted only when nothing of
	// lower priority remains to shed.
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "unknown"
}

// valid reports whether p is one of the defined priority levels.
func (p Priority) valid() bool {
	_, ok := priorityNames[p]
	return ok
}
