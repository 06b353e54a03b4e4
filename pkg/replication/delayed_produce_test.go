// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repllog/broker/pkg/kafka/protocol"
)

func TestDelayedProduceCompletesWhenHwCatchesUp(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	hw := int64(0)
	lookup := func(TopicPartition) (int64, bool, bool) { return hw, true, true }

	var got []PartitionProduceResult
	done := make(chan struct{})
	dp := NewDelayedProduce(0, time.Second, []produceWait{{tp: tp, requiredOffset: 1}}, lookup, func(_ string, results []PartitionProduceResult) {
		got = results
		close(done)
	})

	assert.False(t, dp.tryComplete(0))

	hw = 1
	assert.True(t, dp.tryComplete(0))

	<-done
	require.Len(t, got, 1)
	assert.Equal(t, protocol.None, got[0].ErrorCode)
}

func TestDelayedProduceTimesOut(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	lookup := func(TopicPartition) (int64, bool, bool) { return 0, true, true }

	done := make(chan []PartitionProduceResult, 1)
	NewDelayedProduce(0, 20*time.Millisecond, []produceWait{{tp: tp, requiredOffset: 1}}, lookup, func(_ string, results []PartitionProduceResult) {
		done <- results
	})

	select {
	case results := <-done:
		require.Len(t, results, 1)
		assert.Equal(t, protocol.RequestTimedOut, results[0].ErrorCode)
	case <-time.After(time.Second):
		t.Fatal("delayed produce never timed out")
	}
}

func TestDelayedProduceCompletesEarlyOnDemotion(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	lookup := func(TopicPartition) (int64, bool, bool) { return 0, false, true }

	var got []PartitionProduceResult
	done := make(chan struct{})
	dp := NewDelayedProduce(0, time.Minute, []produceWait{{tp: tp, requiredOffset: 1}}, lookup, func(_ string, results []PartitionProduceResult) {
		got = results
		close(done)
	})

	assert.True(t, dp.tryComplete(0))
	<-done
	require.Len(t, got, 1)
	assert.Equal(t, protocol.NotLeaderForPartition, got[0].ErrorCode)
}

func TestDelayedProduceWatchKeys(t *testing.T) {
	tp1 := TopicPartition{Topic: "orders", Partition: 0}
	tp2 := TopicPartition{Topic: "orders", Partition: 1}
	dp := NewDelayedProduce(0, time.Minute, []produceWait{{tp: tp1, requiredOffset: 1}, {tp: tp2, requiredOffset: 2}}, func(TopicPartition) (int64, bool, bool) {
		return 0, true, true
	}, func(string, []PartitionProduceResult) {})
	defer dp.forceComplete(0)

	assert.ElementsMatch(t, []TopicPartition{tp1, tp2}, dp.watchKeys())
}
