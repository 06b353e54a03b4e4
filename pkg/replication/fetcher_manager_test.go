// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetchClient struct {
	mu      sync.Mutex
	calls   int32
	batches map[TopicPartition][]FetchedBatch
}

func (c *fakeFetchClient) FetchFromLeader(ctx context.Context, leaderBrokerID int32, req PartitionFetchRequest) (FetchedBatch, error) {
	atomic.AddInt32(&c.calls, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	qs := c.batches[req.TopicPartition]
	if len(qs) == 0 {
		return FetchedBatch{}, nil
	}
	batch := qs[0]
	c.batches[req.TopicPartition] = qs[1:]
	return batch, nil
}

func TestFetcherManagerAppliesFetchedBatches(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	client := &fakeFetchClient{batches: map[TopicPartition][]FetchedBatch{
		tp: {{Records: []LogRecord{{Key: []byte("k"), Value: []byte("v")}}, HighWatermark: 1}},
	}}

	applied := make(chan FetchedBatch, 1)
	fm := NewFetcherManager(FetcherManagerConfig{
		BrokerID: 2,
		Client:   client,
		Apply: func(tp TopicPartition, batch FetchedBatch) (int64, error) {
			applied <- batch
			return int64(len(batch.Records)), nil
		},
		MaxWait:   100 * time.Millisecond,
		MaxBytes:  1024,
		Backoff:   5 * time.Millisecond,
		IdleSleep: 5 * time.Millisecond,
	})
	defer fm.Shutdown()

	fm.AddPartition(1, tp, 0)

	select {
	case batch := <-applied:
		require.Len(t, batch.Records, 1)
		assert.Equal(t, []byte("k"), batch.Records[0].Key)
	case <-time.After(time.Second):
		t.Fatal("fetcher never applied a batch")
	}
}

func TestFetcherManagerRemovePartitionStopsFetching(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	client := &fakeFetchClient{batches: map[TopicPartition][]FetchedBatch{}}

	var applyCount int32
	fm := NewFetcherManager(FetcherManagerConfig{
		BrokerID: 2,
		Client:   client,
		Apply: func(TopicPartition, FetchedBatch) (int64, error) {
			atomic.AddInt32(&applyCount, 1)
			return 0, nil
		},
		Backoff:   2 * time.Millisecond,
		IdleSleep: 2 * time.Millisecond,
	})
	defer fm.Shutdown()

	fm.AddPartition(1, tp, 0)
	time.Sleep(20 * time.Millisecond)
	fm.RemovePartition(tp)

	callsAtRemoval := atomic.LoadInt32(&client.calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, callsAtRemoval, atomic.LoadInt32(&client.calls))
}
