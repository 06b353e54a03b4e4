// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/repllog/broker/pkg/logger"
)

// delayedOperation is satisfied by DelayedProduce and DelayedFetch. A
// purgatory never parks a goroutine waiting on one: completion is
// always driven by an external event (another fetch/append touching
// the same partition) or by the operation's own timeout timer, both of
// which call tryComplete from whatever goroutine triggered them.
type delayedOperation interface {
	// tryComplete evaluates whether the operation can complete right
	// now and, if so, completes it and returns true. Must not block.
	tryComplete(nowMs int64) bool
	// forceComplete completes the operation unconditionally, used on
	// timeout. Returns false if another goroutine already completed it.
	forceComplete(nowMs int64) bool
	completed() bool
}

// Purgatory holds delayed operations watched against the partitions
// they're waiting on. Produce and fetch each get their own Purgatory
// instance so a burst of produce completions never has to scan fetch
// watchers or vice versa.
type Purgatory struct {
	mu       sync.Mutex
	watchers map[TopicPartition][]delayedOperation
	logger   *logger.Logger

	watchedGauge int64 // approximate count, for metrics/diagnostics only
}

// NewPurgatory creates an empty purgatory identified by name in logs.
func NewPurgatory(name string, lg *logger.Logger) *Purgatory {
	if lg == nil {
		lg = logger.Default()
	}
	return &Purgatory{
		watchers: make(map[TopicPartition][]delayedOperation),
		logger:   lg.WithComponent("purgatory").WithFields("purgatory", name),
	}
}

// TryCompleteElseWatch attempts to complete op immediately; if it can't,
// op is registered against every key in watchKeys so a later
// CheckAndComplete on any of them gets a chance to finish it. Returns
// true iff op completed synchronously.
func (pg *Purgatory) TryCompleteElseWatch(op delayedOperation, watchKeys []TopicPartition, nowMs int64) bool {
	if op.tryComplete(nowMs) {
		return true
	}

	pg.mu.Lock()
	for _, key := range watchKeys {
		pg.watchers[key] = append(pg.watchers[key], op)
		atomic.AddInt64(&pg.watchedGauge, 1)
	}
	pg.mu.Unlock()

	// The operation may have completed between the first tryComplete
	// and being registered as a watcher (e.g. a concurrent fetch
	// advanced the HW in that window). Give it one more chance.
	if op.tryComplete(nowMs) {
		return true
	}
	return false
}

// CheckAndComplete re-evaluates every operation watching key and
// removes the ones that complete. Returns the number completed.
func (pg *Purgatory) CheckAndComplete(key TopicPartition, nowMs int64) int {
	pg.mu.Lock()
	ops := pg.watchers[key]
	delete(pg.watchers, key)
	pg.mu.Unlock()

	if len(ops) == 0 {
		return 0
	}

	completedCount := 0
	remaining := ops[:0]
	for _, op := range ops {
		if op.completed() {
			atomic.AddInt64(&pg.watchedGauge, -1)
			continue
		}
		if op.tryComplete(nowMs) {
			completedCount++
			atomic.AddInt64(&pg.watchedGauge, -1)
			continue
		}
		remaining = append(remaining, op)
	}

	if len(remaining) > 0 {
		pg.mu.Lock()
		pg.watchers[key] = append(pg.watchers[key], remaining...)
		pg.mu.Unlock()
	}
	return completedCount
}

// Purge drops completed operations that are still sitting in the
// watcher lists because nothing has touched their key since they
// finished. Safe to call periodically from a background task; it is
// never required for correctness, only for bounding memory.
func (pg *Purgatory) Purge() int {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	purged := 0
	for key, ops := range pg.watchers {
		live := ops[:0]
		for _, op := range ops {
			if op.completed() {
				purged++
				continue
			}
			live = append(live, op)
		}
		if len(live) == 0 {
			delete(pg.watchers, key)
		} else {
			pg.watchers[key] = live
		}
	}
	atomic.AddInt64(&pg.watchedGauge, -int64(purged))
	return purged
}

// Watched returns the approximate number of operations currently
// watched, for metrics.
func (pg *Purgatory) Watched() int64 {
	return atomic.LoadInt64(&pg.watchedGauge)
}

// scheduleTimeout arranges for onTimeout to run after d, returning a
// stop function. Shared by DelayedProduce and DelayedFetch.
func scheduleTimeout(d time.Duration, onTimeout func()) func() bool {
	timer := time.AfterFunc(d, onTimeout)
	return timer.Stop
}
