package runtime

import (
	"net/http"
	"sort"
	"time"

	jsoncodec "github.com/drblury/featureflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/featureflow/internal/runtime/logging"
)

// DebugInfo is a point-in-time snapshot of a scope's state for diagnostics
// and telemetry tooling.
type DebugInfo struct {
	Scope             string         `json:"scope"`
	RegisteredCount   int            `json:"registered_count"`
	RegisteredNames   []string       `json:"registered_names"`
	PerFeaturePending map[string]int `json:"per_feature_pending"`
	TotalPending      int            `json:"total_pending"`
	// ExpiredRemoved counts the expired actions dropped by the lazy purge
	// that runs while this snapshot counts the queues.
	ExpiredRemoved int       `json:"expired_removed"`
	MaxQueueSize   int       `json:"max_queue_size"`
	ActionExpiryMS int64     `json:"action_expiry_ms"`
	DebugMode      bool      `json:"debug_mode"`
	CollectedAt    time.Time `json:"collected_at"`
}

// DebugInfo captures the scope's current registrations and pending queues.
// Read-only apart from the lazy expiry purge that naturally occurs while
// counting.
func (s *Scope) DebugInfo() DebugInfo {
	now := s.clk.Now()

	s.mu.Lock()
	keys := s.registry.liveKeys()
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, key.String())
	}

	pending := make(map[string]int, len(s.queues))
	total := 0
	expiredByKey := make(map[FeatureKey][]*queuedAction)
	for key, q := range s.queues {
		n, expired := q.sizeAfterPurge(s.conf.ActionExpiry, now)
		if len(expired) > 0 {
			expiredByKey[key] = expired
		}
		if n == 0 {
			delete(s.queues, key)
			continue
		}
		pending[key.String()] = n
		total += n
	}
	s.mu.Unlock()

	expiredRemoved := 0
	for key, expired := range expiredByKey {
		expiredRemoved += len(expired)
		s.reportExpired(key, expired)
	}

	sort.Strings(names)

	return DebugInfo{
		Scope:             s.name,
		RegisteredCount:   len(names),
		RegisteredNames:   names,
		PerFeaturePending: pending,
		TotalPending:      total,
		ExpiredRemoved:    expiredRemoved,
		MaxQueueSize:      s.conf.MaxQueueSize,
		ActionExpiryMS:    s.conf.ActionExpiry.Milliseconds(),
		DebugMode:         s.conf.DebugMode,
		CollectedAt:       time.Now(),
	}
}

// Dump formats the debug snapshot as indented JSON, emits it through the
// scope logger, and returns it.
func (s *Scope) Dump() string {
	info := s.DebugInfo()
	data, err := jsoncodec.MarshalIndent(info, "", "  ")
	if err != nil {
		s.logger.Error("Failed to format debug snapshot", err, nil)
		return "{}"
	}
	s.logger.Info("Scope debug dump", loggingpkg.LogFields{
		"registered":    info.RegisteredCount,
		"total_pending": info.TotalPending,
	})
	return string(data)
}

// DebugHandler returns an HTTP handler that serves the debug snapshot as
// JSON. Mount it wherever the application exposes operational endpoints.
func (s *Scope) DebugHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := jsoncodec.Encode(w, s.DebugInfo()); err != nil {
			s.logger.Error("Failed to encode debug snapshot", err, nil)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	})
}
