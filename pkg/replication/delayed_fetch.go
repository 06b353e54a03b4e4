// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// fetchWait is one partition's slice of an outstanding fetch request.
type fetchWait struct {
	req    PartitionFetchRequest
	result PartitionFetchResult
}

// fetchPartitionLookup re-reads a partition on behalf of a DelayedFetch.
// It is the same operation the immediate (non-delayed) fetch path uses;
// a DelayedFetch just calls it again each time it's woken.
type fetchPartitionLookup func(req PartitionFetchRequest) PartitionFetchResult

// DelayedFetch represents a fetch request that didn't have minBytes
// available immediately. It is watched against every partition it
// reads from and re-evaluated whenever one of them accepts a new
// append or a follower's fetch state changes the HW.
type DelayedFetch struct {
	id         string
	createdMs  int64
	minBytes   int64
	waits      []fetchWait
	lookup     fetchPartitionLookup
	onComplete func(id string, results []PartitionFetchResult)

	done      int32
	stopTimer func() bool
}

// NewDelayedFetch constructs a DelayedFetch. onComplete runs exactly
// once: either synchronously inside TryCompleteElseWatch if minBytes is
// already satisfied, from a later CheckAndComplete, or from the timeout
// timer with whatever partial data is available.
func NewDelayedFetch(nowMs int64, timeout time.Duration, minBytes int64, waits []fetchWait, lookup fetchPartitionLookup, onComplete func(id string, results []PartitionFetchResult)) *DelayedFetch {
	df := &DelayedFetch{
		id:         uuid.NewString(),
		createdMs:  nowMs,
		minBytes:   minBytes,
		waits:      waits,
		lookup:     lookup,
		onComplete: onComplete,
	}
	df.stopTimer = scheduleTimeout(timeout, func() {
		df.forceComplete(time.Now().UnixMilli())
	})
	return df
}

// tryComplete re-reads every waited partition and completes once their
// combined available bytes reach minBytes, or as soon as any partition
// reports an error (not-leader, offset-out-of-range): errors are never
// worth waiting out the full timeout for.
func (df *DelayedFetch) tryComplete(nowMs int64) bool {
	if df.completed() {
		return false
	}

	var totalBytes int64
	hasError := false
	results := make([]PartitionFetchResult, len(df.waits))
	for i, w := range df.waits {
		res := df.lookup(w.req)
		results[i] = res
		if res.ErrorCode != 0 {
			hasError = true
			continue
		}
		totalBytes += res.Size
	}

	if !hasError && totalBytes < df.minBytes {
		return false
	}

	for i := range df.waits {
		df.waits[i].result = results[i]
	}
	return df.complete()
}

// forceComplete runs the same re-read tryComplete does and completes
// unconditionally with whatever was found, satisfying the "never wait
// past fetch.max.wait.ms" guarantee.
func (df *DelayedFetch) forceComplete(nowMs int64) bool {
	for i, w := range df.waits {
		df.waits[i].result = df.lookup(w.req)
	}
	return df.complete()
}

func (df *DelayedFetch) complete() bool {
	if !atomic.CompareAndSwapInt32(&df.done, 0, 1) {
		return false
	}
	df.stopTimer()

	results := make([]PartitionFetchResult, len(df.waits))
	for i, w := range df.waits {
		results[i] = w.result
	}
	df.onComplete(df.id, results)
	return true
}

func (df *DelayedFetch) completed() bool {
	return atomic.LoadInt32(&df.done) == 1
}

func (df *DelayedFetch) watchKeys() []TopicPartition {
	keys := make([]TopicPartition, len(df.waits))
	for i, w := range df.waits {
		keys[i] = w.req.TopicPartition
	}
	return keys
}

var errDelayedFetchNoPartitions = errors.New("replication: delayed fetch has no partitions")
