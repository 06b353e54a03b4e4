// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighWatermarkCheckpointReadMissingFileReturnsEmpty(t *testing.T) {
	ck := NewHighWatermarkCheckpoint(t.TempDir())
	entries, err := ck.Read()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHighWatermarkCheckpointWriteThenRead(t *testing.T) {
	ck := NewHighWatermarkCheckpoint(t.TempDir())
	entries := map[TopicPartition]int64{
		{Topic: "orders", Partition: 0}: 42,
		{Topic: "orders", Partition: 1}: 7,
		{Topic: "clicks", Partition: 0}: 0,
	}

	require.NoError(t, ck.Write(entries))

	got, err := ck.Read()
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestHighWatermarkCheckpointWriteIsAtomic(t *testing.T) {
	ck := NewHighWatermarkCheckpoint(t.TempDir())
	first := map[TopicPartition]int64{{Topic: "orders", Partition: 0}: 1}
	require.NoError(t, ck.Write(first))

	second := map[TopicPartition]int64{{Topic: "orders", Partition: 0}: 2}
	require.NoError(t, ck.Write(second))

	got, err := ck.Read()
	require.NoError(t, err)
	assert.Equal(t, second, got)
}
