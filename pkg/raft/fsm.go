package raft

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/repllog/broker/pkg/storage/topic"
)

// FSM implements the raft.FSM interface for Takhin
type FSM struct {
	topicManager *topic.Manager

	isrMu sync.Mutex
	isr   map[string]isrState // "topic/partition" -> state

	stateMu sync.Mutex
	states  map[string]PartitionStateRecord // "topic/partition" -> last written controller state
}

type isrState struct {
	leaderEpoch int32
	version     int32
	members     []int32
}

// PartitionStateRecord is the controller-assigned leadership state the
// FSM remembers for one partition, committed via CommandWritePartitionState.
type PartitionStateRecord struct {
	Topic           string
	Partition       int32
	ControllerEpoch int32
	Leader          int32
	LeaderEpoch     int32
	ISR             []int32
	Replicas        []int32
	ZkVersion       int32
}

// NewFSM creates a new FSM
func NewFSM(topicManager *topic.Manager) *FSM {
	return &FSM{
		topicManager: topicManager,
		isr:          make(map[string]isrState),
		states:       make(map[string]PartitionStateRecord),
	}
}

// TopicManager returns the underlying topic manager
func (f *FSM) TopicManager() *topic.Manager {
	return f.topicManager
}

// CommandType represents the type of command
type CommandType string

const (
	CommandCreateTopic         CommandType = "create_topic"
	CommandDeleteTopic         CommandType = "delete_topic"
	CommandAppend              CommandType = "append"
	CommandCasIsr              CommandType = "cas_isr"
	CommandWritePartitionState CommandType = "write_partition_state"
)

// Command represents a Raft command
type Command struct {
	Type      CommandType `json:"type"`
	TopicName string      `json:"topic_name,omitempty"`
	NumParts  int32       `json:"num_partitions,omitempty"`
	Partition int32       `json:"partition,omitempty"`
	Key       []byte      `json:"key,omitempty"`
	Value     []byte      `json:"value,omitempty"`

	// LeaderEpoch/ExpectVersion/Isr carry a CommandCasIsr's arguments.
	LeaderEpoch   int32   `json:"leader_epoch,omitempty"`
	ExpectVersion int32   `json:"expect_version,omitempty"`
	Isr           []int32 `json:"isr,omitempty"`

	// State carries a CommandWritePartitionState's argument.
	State *PartitionStateRecord `json:"state,omitempty"`
}

// CasIsrResult is the Apply() return value for a CommandCasIsr command.
type CasIsrResult struct {
	NewVersion int32
	Err        error
}

// Apply applies a Raft log entry to the FSM
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	switch cmd.Type {
	case CommandCreateTopic:
		return f.applyCreateTopic(cmd)
	case CommandDeleteTopic:
		return f.applyDeleteTopic(cmd)
	case CommandAppend:
		return f.applyAppend(cmd)
	case CommandCasIsr:
		return f.applyCasIsr(cmd)
	case CommandWritePartitionState:
		return f.applyWritePartitionState(cmd)
	default:
		return fmt.Errorf("unknown command type: %s", cmd.Type)
	}
}

// applyCreateTopic creates a new topic
func (f *FSM) applyCreateTopic(cmd Command) interface{} {
	if err := f.topicManager.CreateTopic(cmd.TopicName, cmd.NumParts); err != nil {
		return err
	}
	return nil
}

// applyDeleteTopic deletes a topic
func (f *FSM) applyDeleteTopic(cmd Command) interface{} {
	if err := f.topicManager.DeleteTopic(cmd.TopicName); err != nil {
		return err
	}
	return nil
}

// applyCasIsr is the Raft-committed half of replication.CoordinationStore's
// CasIsr: every node applies the same compare-and-swap against its own isr
// map, so the result is identical on every replica of the metadata log.
func (f *FSM) applyCasIsr(cmd Command) interface{} {
	key := fmt.Sprintf("%s/%d", cmd.TopicName, cmd.Partition)

	f.isrMu.Lock()
	defer f.isrMu.Unlock()

	rec, ok := f.isr[key]
	if ok {
		if cmd.LeaderEpoch < rec.leaderEpoch {
			return CasIsrResult{Err: fmt.Errorf("stale leader epoch %d < %d", cmd.LeaderEpoch, rec.leaderEpoch)}
		}
		if cmd.LeaderEpoch == rec.leaderEpoch && cmd.ExpectVersion != rec.version {
			return CasIsrResult{Err: fmt.Errorf("isr version %d does not match expected %d", rec.version, cmd.ExpectVersion)}
		}
	}

	newVersion := int32(1)
	if ok {
		newVersion = rec.version + 1
	}
	f.isr[key] = isrState{leaderEpoch: cmd.LeaderEpoch, version: newVersion, members: append([]int32{}, cmd.Isr...)}
	return CasIsrResult{NewVersion: newVersion}
}

// applyWritePartitionState records the controller's latest leadership
// assignment for a partition, and seeds the ISR table to match so a
// subsequent CasIsr's expectVersion lines up with what the controller
// just published.
func (f *FSM) applyWritePartitionState(cmd Command) interface{} {
	if cmd.State == nil {
		return fmt.Errorf("write_partition_state command missing state")
	}
	key := fmt.Sprintf("%s/%d", cmd.State.Topic, cmd.State.Partition)

	f.stateMu.Lock()
	f.states[key] = *cmd.State
	f.stateMu.Unlock()

	f.isrMu.Lock()
	f.isr[key] = isrState{
		leaderEpoch: cmd.State.LeaderEpoch,
		version:     cmd.State.ZkVersion,
		members:     append([]int32{}, cmd.State.ISR...),
	}
	f.isrMu.Unlock()
	return nil
}

// PartitionState returns the last state committed for topic/partition,
// or ok=false if none has been written yet.
func (f *FSM) PartitionState(topicName string, partition int32) (PartitionStateRecord, bool) {
	key := fmt.Sprintf("%s/%d", topicName, partition)
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	rec, ok := f.states[key]
	return rec, ok
}

// applyAppend appends a message to a topic
func (f *FSM) applyAppend(cmd Command) interface{} {
	topic, exists := f.topicManager.GetTopic(cmd.TopicName)
	if !exists {
		return fmt.Errorf("topic not found: %s", cmd.TopicName)
	}

	offset, err := topic.Append(cmd.Partition, cmd.Key, cmd.Value)
	if err != nil {
		return err
	}
	return offset
}

// Snapshot returns a snapshot of the FSM
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	// Get all topics
	topics := f.topicManager.ListTopics()

	snapshot := &FSMSnapshot{
		topics: topics,
	}
	return snapshot, nil
}

// Restore restores the FSM from a snapshot
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	// Read snapshot data
	var snapshot struct {
		Topics []string `json:"topics"`
	}

	decoder := json.NewDecoder(rc)
	if err := decoder.Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	// Note: In a real implementation, we would restore the full state
	// including all topic data. For now, we just restore topic names.
	return nil
}

// FSMSnapshot implements raft.FSMSnapshot
type FSMSnapshot struct {
	topics []string
}

// Persist writes the snapshot to the given sink
func (s *FSMSnapshot) Persist(sink raft.SnapshotSink) error {
	// Encode snapshot
	snapshot := struct {
		Topics []string `json:"topics"`
	}{
		Topics: s.topics,
	}

	encoder := json.NewEncoder(sink)
	if err := encoder.Encode(snapshot); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return sink.Close()
}

// Release is called when the snapshot is no longer needed
func (s *FSMSnapshot) Release() {
	// Nothing to release
}
