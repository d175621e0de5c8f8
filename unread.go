package gramsetu

import (
	"sync"

	"go.uber.org/zap"
)

// UnreadTracker maintains the peer→unread-count map and its derived total.
// Every mutation writes the full map through the store synchronously; the
// total is always recomputed from the map, never stored, so a restart
// cannot drift the two apart.
//
// Reset/ResetAll racing an Increment across callbacks is last-write-wins by
// design; callers must not assume strict ordering between them.
type UnreadTracker struct {
	mu     sync.Mutex
	counts map[string]int
	total  int
	store  UnreadStore
	log    *zap.Logger
}

// NewUnreadTracker rehydrates the map from the store. A store that cannot
// be read starts the tracker empty; the error is logged, not surfaced.
func NewUnreadTracker(store UnreadStore, log *zap.Logger) *UnreadTracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &UnreadTracker{
		counts: map[string]int{},
		store:  store,
		log:    log,
	}
	if store != nil {
		counts, err := store.Load()
		if err != nil {
			log.Warn("unread store load failed, starting empty", zap.Error(err))
		} else {
			t.counts = counts
		}
	}
	t.total = sumCounts(t.counts)
	return t
}

// Increment adds one unread message for peerID.
func (t *UnreadTracker) Increment(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[peerID]++
	t.recomputeAndPersistLocked()
}

// SetCount sets an absolute count for peerID, used when a count is known
// authoritatively.
func (t *UnreadTracker) SetCount(peerID string, n int) {
	if n < 0 {
		n = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[peerID] = n
	t.recomputeAndPersistLocked()
}

// Reset clears the count for peerID; called when the user opens that
// conversation.
func (t *UnreadTracker) Reset(peerID string) {
	t.SetCount(peerID, 0)
}

// ResetAll clears the entire map and wipes the persisted state. This is the
// coarse "user opened the chat surface" signal: it means the notifications
// were seen, not that every message was read.
func (t *UnreadTracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = map[string]int{}
	t.recomputeAndPersistLocked()
}

// Count returns the unread count for peerID.
func (t *UnreadTracker) Count(peerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[peerID]
}

// Total returns the sum of all per-peer counts.
func (t *UnreadTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Snapshot returns a copy of the current map.
func (t *UnreadTracker) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// recomputeAndPersistLocked keeps the total and the store in step with the
// map. Store failures are a local environment fault: logged, never fatal.
// Callers hold t.mu.
func (t *UnreadTracker) recomputeAndPersistLocked() {
	t.total = sumCounts(t.counts)
	if t.store == nil {
		return
	}
	if err := t.store.Save(t.counts); err != nil {
		t.log.Warn("unread store save failed", zap.Error(err))
	}
}

func sumCounts(counts map[string]int) int {
	total := 0
	for _, v := range counts {
		total += v
	}
	return total
}
