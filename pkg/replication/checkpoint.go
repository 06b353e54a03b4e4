// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	checkpointSchemaVersion = 0
	checkpointFileName      = "replication-offset-checkpoint"
)

// HighWatermarkCheckpoint persists the HW of every partition whose log
// lives under one data directory into a single text file, so a restart
// can recover each partition's committed offset without replaying the
// whole log. The write path is write-temp-then-rename so a crash mid
// write never leaves a half-written checkpoint in place of a good one.
//
// File format:
//
//	line 1: schema version (currently "0")
//	line 2: entry count
//	lines 3..n+2: "<topic> <partition> <hw>", one per partition
type HighWatermarkCheckpoint struct {
	path string
	mu   sync.Mutex
}

// NewHighWatermarkCheckpoint returns a checkpoint file scoped to dataDir.
func NewHighWatermarkCheckpoint(dataDir string) *HighWatermarkCheckpoint {
	return &HighWatermarkCheckpoint{path: filepath.Join(dataDir, checkpointFileName)}
}

// Write atomically replaces the checkpoint file's contents with
// entries. A storage failure here (disk full, permission denied, I/O
// error) is unrecoverable: the caller is expected to treat it as a
// fatal condition and halt rather than keep serving with an HW it can
// no longer durably record.
func (c *HighWatermarkCheckpoint) Write(entries map[TopicPartition]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]TopicPartition, 0, len(entries))
	for tp := range entries {
		keys = append(keys, tp)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Topic != keys[j].Topic {
			return keys[i].Topic < keys[j].Topic
		}
		return keys[i].Partition < keys[j].Partition
	})

	tmpPath := c.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%d\n", checkpointSchemaVersion)
	fmt.Fprintf(w, "%d\n", len(keys))
	for _, tp := range keys {
		fmt.Fprintf(w, "%s %d %d\n", tp.Topic, tp.Partition, entries[tp])
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return nil
}

// Read loads the checkpoint file, returning an empty map if it doesn't
// exist yet (a brand new data directory).
func (c *HighWatermarkCheckpoint) Read() (map[TopicPartition]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[TopicPartition]int64{}, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("read checkpoint schema version: %w", scanner.Err())
	}
	var version int
	if _, err := fmt.Sscanf(scanner.Text(), "%d", &version); err != nil {
		return nil, fmt.Errorf("parse checkpoint schema version: %w", err)
	}
	if version != checkpointSchemaVersion {
		return nil, fmt.Errorf("unsupported checkpoint schema version %d", version)
	}

	if !scanner.Scan() {
		return nil, fmt.Errorf("read checkpoint entry count: %w", scanner.Err())
	}
	var count int
	if _, err := fmt.Sscanf(scanner.Text(), "%d", &count); err != nil {
		return nil, fmt.Errorf("parse checkpoint entry count: %w", err)
	}

	entries := make(map[TopicPartition]int64, count)
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("checkpoint truncated: expected %d entries, got %d", count, i)
		}
		var topic string
		var partition int32
		var hw int64
		if _, err := fmt.Sscanf(scanner.Text(), "%s %d %d", &topic, &partition, &hw); err != nil {
			return nil, fmt.Errorf("parse checkpoint entry %q: %w", scanner.Text(), err)
		}
		entries[TopicPartition{Topic: topic, Partition: partition}] = hw
	}
	return entries, nil
}
