// Copyright 2025 Takhin Data, Inc.

package raft

import (
	"fmt"
	"time"

	"github.com/repllog/broker/pkg/replication"
)

// CoordinationStore adapts a *Node into replication.CoordinationStore:
// every ISR change and leadership assignment is committed through Raft
// so all replicas of the metadata log agree on it, matching how the
// controller's own topic/partition commands already flow through
// Node.Apply.
type CoordinationStore struct {
	node    *Node
	timeout time.Duration
}

// NewCoordinationStore wraps node for use as a replication.CoordinationStore.
// A zero timeout defaults to 5s, matching the other Node.* convenience
// methods' typical call sites.
func NewCoordinationStore(node *Node, timeout time.Duration) *CoordinationStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CoordinationStore{node: node, timeout: timeout}
}

var _ replication.CoordinationStore = (*CoordinationStore)(nil)

// CasIsr commits a CommandCasIsr entry and unwraps the FSM's CasIsrResult.
func (c *CoordinationStore) CasIsr(tp replication.TopicPartition, leaderEpoch, expectVersion int32, isr []int32) (int32, error) {
	resp, err := c.node.Apply(Command{
		Type:          CommandCasIsr,
		TopicName:     tp.Topic,
		Partition:     tp.Partition,
		LeaderEpoch:   leaderEpoch,
		ExpectVersion: expectVersion,
		Isr:           isr,
	}, c.timeout)
	if err != nil {
		return 0, fmt.Errorf("raft apply cas isr: %w", err)
	}

	result, ok := resp.(CasIsrResult)
	if !ok {
		return 0, fmt.Errorf("raft apply cas isr: unexpected response type %T", resp)
	}
	if result.Err != nil {
		return 0, result.Err
	}
	return result.NewVersion, nil
}

// WritePartitionState commits a CommandWritePartitionState entry.
func (c *CoordinationStore) WritePartitionState(state replication.PartitionState) error {
	rec := &PartitionStateRecord{
		Topic:           state.Topic,
		Partition:       state.Partition,
		ControllerEpoch: state.ControllerEpoch,
		Leader:          state.Leader,
		LeaderEpoch:     state.LeaderEpoch,
		ISR:             state.ISR,
		Replicas:        state.Replicas,
		ZkVersion:       state.ZkVersion,
	}
	_, err := c.node.Apply(Command{
		Type:      CommandWritePartitionState,
		TopicName: state.Topic,
		Partition: state.Partition,
		State:     rec,
	}, c.timeout)
	if err != nil {
		return fmt.Errorf("raft apply write partition state: %w", err)
	}
	return nil
}

// ReadPartitionState reads the FSM's locally applied state directly,
// without going through Raft consensus: any node that has caught up on
// the log has the same answer a round-trip through Apply would give,
// and a read never needs to be linearized against concurrent writers
// the way a CAS does.
func (c *CoordinationStore) ReadPartitionState(tp replication.TopicPartition) (replication.PartitionState, error) {
	rec, ok := c.node.GetFSM().PartitionState(tp.Topic, tp.Partition)
	if !ok {
		return replication.PartitionState{}, replication.ErrUnknownPartition
	}
	return replication.PartitionState{
		Topic:           rec.Topic,
		Partition:       rec.Partition,
		ControllerEpoch: rec.ControllerEpoch,
		Leader:          rec.Leader,
		LeaderEpoch:     rec.LeaderEpoch,
		ISR:             rec.ISR,
		Replicas:        rec.Replicas,
		ZkVersion:       rec.ZkVersion,
	}, nil
}
