package runtime

import (
	"time"
)

const priorityTierCount = int(PriorityCritical) + 1

// queuedAction is one deferred unit of work awaiting a live implementation.
// Immutable after creation.
type queuedAction struct {
	id         string
	key        FeatureKey
	fn         Action
	priority   Priority
	seq        uint64
	enqueuedAt time.Time
}

// age reports how long the action has been queued. Both timestamps come from
// the scope clock, so with a real clock the comparison rides the monotonic
// reading and is immune to wall-clock adjustments.
func (a *queuedAction) age(now time.Time) time.Duration {
	return now.Sub(a.enqueuedAt)
}

// featureQueue holds the pending actions for one feature key. One tier per
// priority level; within a tier entries stay in insertion (sequence) order,
// so the head of a tier is always its oldest entry.
//
// The queue performs no locking and consults no clock of its own. Callers
// hold the scope lock and pass the current time in, which keeps the structure
// deterministic under a mock clock.
type featureQueue struct {
	tiers [priorityTierCount][]*queuedAction
}

// enqueue inserts an action, enforcing expiry and the size cap first.
// Expired entries are purged before the cap is evaluated. If the queue is
// still full, the oldest entry of the lowest occupied tier is evicted to make
// room. A maxSize of zero refuses the action outright: it is returned as the
// evicted entry and nothing is stored.
func (q *featureQueue) enqueue(a *queuedAction, maxSize int, expiry time.Duration, now time.Time) (evicted *queuedAction, expired []*queuedAction) {
	expired = q.purgeExpired(expiry, now)

	if maxSize == 0 {
		return a, expired
	}
	if q.size() >= maxSize {
		evicted = q.evictOne()
	}

	q.tiers[a.priority] = append(q.tiers[a.priority], a)
	return evicted, expired
}

// drainOrdered removes and returns every non-expired entry in replay order:
// priority descending, FIFO within a tier. The queue is empty afterwards.
func (q *featureQueue) drainOrdered(expiry time.Duration, now time.Time) (batch []*queuedAction, expired []*queuedAction) {
	expired = q.purgeExpired(expiry, now)

	total := q.size()
	if total == 0 {
		return nil, expired
	}

	batch = make([]*queuedAction, 0, total)
	for tier := priorityTierCount - 1; tier >= 0; tier-- {
		batch = append(batch, q.tiers[tier]...)
		q.tiers[tier] = nil
	}
	return batch, expired
}

// clear removes and returns every entry without regard to expiry. Used by
// clearQueue and reset, where the caller drops the work rather than runs it.
func (q *featureQueue) clear() []*queuedAction {
	total := q.size()
	if total == 0 {
		return nil
	}

	cleared := make([]*queuedAction, 0, total)
	for tier := priorityTierCount - 1; tier >= 0; tier-- {
		cleared = append(cleared, q.tiers[tier]...)
		q.tiers[tier] = nil
	}
	return cleared
}

// sizeAfterPurge reports the live entry count, dropping expired entries as a
// side effect so the count never includes undeliverable work.
func (q *featureQueue) sizeAfterPurge(expiry time.Duration, now time.Time) (int, []*queuedAction) {
	expired := q.purgeExpired(expiry, now)
	return q.size(), expired
}

func (q *featureQueue) size() int {
	total := 0
	for tier := range q.tiers {
		total += len(q.tiers[tier])
	}
	return total
}

// purgeExpired drops every entry older than the expiry. Entries within a tier
// are ordered by enqueue time, so expired entries always form a prefix.
// An entry whose age equals the expiry exactly is still deliverable.
func (q *featureQueue) purgeExpired(expiry time.Duration, now time.Time) []*queuedAction {
	var dropped []*queuedAction
	for tier := range q.tiers {
		entries := q.tiers[tier]
		cut := 0
		for cut < len(entries) && entries[cut].age(now) > expiry {
			cut++
		}
		if cut == 0 {
			continue
		}
		dropped = append(dropped, entries[:cut]...)
		if cut == len(entries) {
			q.tiers[tier] = nil
		} else {
			q.tiers[tier] = entries[cut:]
		}
	}
	return dropped
}

// evictOne removes the oldest entry of the lowest occupied tier. Returns nil
// only when the queue is empty.
func (q *featureQueue) evictOne() *queuedAction {
	for tier := 0; tier < priorityTierCount; tier++ {
		entries := q.tiers[tier]
		if len(entries) == 0 {
			continue
		}
		victim := entries[0]
		if len(entries) == 1 {
			q.tiers[tier] = nil
		} else {
			q.tiers[tier] = entries[1:]
		}
		return victim
	}
	return nil
}
