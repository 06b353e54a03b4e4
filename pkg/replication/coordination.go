// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"fmt"
	"sync"
)

// CoordinationStore is the narrow view the replica manager has onto the
// cluster's coordination layer: compare-and-swap updates to a
// partition's ISR, gated by leader epoch so a deposed leader's writes
// are rejected even if they arrive after a new leader has already
// published a change.
//
// The production implementation is backed by the Raft-replicated
// metadata log (see pkg/raft); InMemoryCoordinationStore exists for
// tests and single-node operation.
type CoordinationStore interface {
	// CasIsr applies isr as the new ISR for tp, provided leaderEpoch
	// still matches the store's record of the current leader epoch and
	// expectVersion still matches the store's current ISR version for
	// tp. It returns the new version on success. ErrStaleLeaderEpoch is
	// returned if a newer leader has since taken over; a version
	// mismatch is reported as an error wrapping ErrStaleControllerEpoch.
	// Partition does not retry a failed CAS: it logs the failure and
	// leaves its ISR unchanged.
	CasIsr(tp TopicPartition, leaderEpoch, expectVersion int32, isr []int32) (newVersion int32, err error)

	// WritePartitionState persists the full controller-assigned state
	// for tp, called when the controller issues a leader/follower
	// transition. It is not versioned against expectVersion: the
	// controller is always authoritative here.
	WritePartitionState(state PartitionState) error

	// ReadPartitionState returns the last state written for tp, or
	// ErrUnknownPartition if none exists.
	ReadPartitionState(tp TopicPartition) (PartitionState, error)
}

type isrRecord struct {
	leaderEpoch int32
	version     int32
	isr         []int32
}

// InMemoryCoordinationStore is a process-local CoordinationStore. It
// gives single-broker deployments and tests the same CAS semantics the
// Raft-backed store provides, without requiring a cluster.
type InMemoryCoordinationStore struct {
	mu     sync.Mutex
	isrs   map[TopicPartition]isrRecord
	states map[TopicPartition]PartitionState
}

// NewInMemoryCoordinationStore returns an empty store.
func NewInMemoryCoordinationStore() *InMemoryCoordinationStore {
	return &InMemoryCoordinationStore{
		isrs:   make(map[TopicPartition]isrRecord),
		states: make(map[TopicPartition]PartitionState),
	}
}

func (s *InMemoryCoordinationStore) CasIsr(tp TopicPartition, leaderEpoch, expectVersion int32, isr []int32) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.isrs[tp]
	if ok {
		if leaderEpoch < rec.leaderEpoch {
			return 0, ErrStaleLeaderEpoch
		}
		if leaderEpoch == rec.leaderEpoch && expectVersion != rec.version {
			return 0, fmt.Errorf("%w: isr version %d does not match expected %d", ErrStaleControllerEpoch, rec.version, expectVersion)
		}
	}

	newVersion := int32(1)
	if ok {
		newVersion = rec.version + 1
	}
	s.isrs[tp] = isrRecord{leaderEpoch: leaderEpoch, version: newVersion, isr: append([]int32{}, isr...)}
	return newVersion, nil
}

func (s *InMemoryCoordinationStore) WritePartitionState(state PartitionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tp := TopicPartition{Topic: state.Topic, Partition: state.Partition}
	s.states[tp] = state
	s.isrs[tp] = isrRecord{leaderEpoch: state.LeaderEpoch, version: state.ZkVersion, isr: append([]int32{}, state.ISR...)}
	return nil
}

func (s *InMemoryCoordinationStore) ReadPartitionState(tp TopicPartition) (PartitionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[tp]
	if !ok {
		return PartitionState{}, ErrUnknownPartition
	}
	return state, nil
}
