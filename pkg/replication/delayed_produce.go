// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/repllog/broker/pkg/kafka/protocol"
)

// produceWait is one partition's outstanding acks=-1 requirement: the
// produce response for that partition can't go out until the
// partition's HW reaches requiredOffset.
type produceWait struct {
	tp             TopicPartition
	requiredOffset int64
	result         PartitionProduceResult // pre-filled on success; ErrorCode overwritten on timeout/demotion
}

// partitionStatusLookup reports a partition's current HW and whether
// this broker is still its leader, so a DelayedProduce can tell the
// difference between "not caught up yet" and "I stopped being leader
// while this was outstanding".
type partitionStatusLookup func(tp TopicPartition) (hw int64, stillLeader bool, ok bool)

// DelayedProduce represents one acks=-1 produce request waiting for its
// partitions' high watermarks to catch up to the offsets it wrote. It
// is watched in the produce purgatory against every partition it
// touches and force-completed by its own timer if none of them catch
// up in time.
type DelayedProduce struct {
	id        string
	createdMs int64
	waits     []produceWait
	lookup    partitionStatusLookup
	onComplete func(id string, results []PartitionProduceResult)

	done      int32 // atomic CAS guard: exactly one goroutine completes this
	stopTimer func() bool
}

// NewDelayedProduce constructs a DelayedProduce for the given
// per-partition requirements. onComplete is invoked exactly once, from
// whichever goroutine first observes completion (a watcher check, a
// timeout, or the synchronous tryComplete inside TryCompleteElseWatch).
func NewDelayedProduce(nowMs int64, timeout time.Duration, waits []produceWait, lookup partitionStatusLookup, onComplete func(id string, results []PartitionProduceResult)) *DelayedProduce {
	dp := &DelayedProduce{
		id:        uuid.NewString(),
		createdMs: nowMs,
		waits:     waits,
		lookup:    lookup,
		onComplete: onComplete,
	}
	dp.stopTimer = scheduleTimeout(timeout, func() {
		dp.forceComplete(time.Now().UnixMilli())
	})
	return dp
}

func (dp *DelayedProduce) completed() bool {
	return atomic.LoadInt32(&dp.done) == 1
}

// tryComplete succeeds once every waited partition's HW has reached its
// required offset. A partition whose leadership moved away from this
// broker completes the whole request early with NotLeaderForPartition
// for that partition, since a produce ack can never become valid again
// once the leader has changed mid-flight.
func (dp *DelayedProduce) tryComplete(nowMs int64) bool {
	if dp.completed() {
		return false
	}

	allSatisfied := true
	demoted := false
	for i := range dp.waits {
		hw, stillLeader, ok := dp.lookup(dp.waits[i].tp)
		if !ok {
			demoted = true
			dp.waits[i].result.ErrorCode = protocol.UnknownTopicOrPartition
			continue
		}
		if !stillLeader {
			demoted = true
			dp.waits[i].result.ErrorCode = protocol.NotLeaderForPartition
			continue
		}
		if hw < dp.waits[i].requiredOffset {
			allSatisfied = false
		}
	}

	if demoted {
		return dp.complete(false)
	}
	if !allSatisfied {
		return false
	}
	return dp.complete(false)
}

// forceComplete is invoked by the timeout timer. Any partition that
// still hasn't caught up is reported as RequestTimedOut; the ones that
// did catch up still report success, since the write is durable
// regardless of whether every acks=-1 replica confirmed in time.
func (dp *DelayedProduce) forceComplete(nowMs int64) bool {
	for i := range dp.waits {
		hw, stillLeader, ok := dp.lookup(dp.waits[i].tp)
		if ok && stillLeader && hw >= dp.waits[i].requiredOffset {
			continue
		}
		dp.waits[i].result.ErrorCode = protocol.RequestTimedOut
	}
	return dp.complete(true)
}

func (dp *DelayedProduce) complete(timedOut bool) bool {
	if !atomic.CompareAndSwapInt32(&dp.done, 0, 1) {
		return false
	}
	dp.stopTimer()

	results := make([]PartitionProduceResult, len(dp.waits))
	for i, w := range dp.waits {
		results[i] = w.result
	}
	dp.onComplete(dp.id, results)
	return true
}

func (dp *DelayedProduce) watchKeys() []TopicPartition {
	keys := make([]TopicPartition, len(dp.waits))
	for i, w := range dp.waits {
		keys[i] = w.tp
	}
	return keys
}
