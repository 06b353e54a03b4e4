// Copyright 2025 Takhin Data, Inc.

// Package replication implements the broker-side replica manager: it
// owns the set of topic-partitions hosted on this broker, routes produce
// and fetch requests to the partition leader, executes leader/follower
// transitions on command from the controller, and maintains each
// partition's in-sync-replica set and high watermark.
package replication

import (
	"strings"

	"github.com/repllog/broker/pkg/kafka/protocol"
	"github.com/repllog/broker/pkg/storage/log"
)

// TopicPartition identifies a partition within a topic. It is used
// directly as a map key throughout this package.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// DebuggingReplicaID is the sentinel fetch-request replica id that
// disables the "leader only" check, matching the Kafka protocol's
// debugging consumer id. Accepting it is logged at warn level (see
// DESIGN.md Open Questions).
const DebuggingReplicaID int32 = -2

// ConsumerReplicaID is the replica id used by ordinary (non-replica)
// consumer fetches.
const ConsumerReplicaID int32 = -1

// internalTopicPrefix marks topics owned by the broker itself (group
// and transaction metadata) rather than produced to by ordinary
// clients.
const internalTopicPrefix = "__"

func isInternalTopic(topic string) bool {
	return strings.HasPrefix(topic, internalTopicPrefix)
}

// LogRecord is a single key/value pair appended to a partition's log.
// Its shape matches log.Log.AppendBatch's parameter type exactly so the
// concrete *log.Log satisfies LocalLog without an adapter.
type LogRecord = struct {
	Key, Value []byte
}

// LocalLog is the narrow interface Partition and ReplicaManager use to
// reach the underlying segment-log engine (pkg/storage/log), per the
// "ownership of the log" design note: the log engine owns its files, the
// replica manager only ever holds it through this interface.
type LocalLog interface {
	Append(key, value []byte) (int64, error)
	AppendBatch(records []LogRecord) ([]int64, error)
	Read(offset int64) (*log.Record, error)
	ReadRange(offset, maxBytes int64) (*log.Segment, int64, int64, error)
	HighWaterMark() int64 // log engine's LEO; see DESIGN.md naming note
	TruncateTo(offset int64) error
	Delete() error
	Close() error
	Dir() string
}

// AppendResult describes the outcome of a successful partition append.
type AppendResult struct {
	FirstOffset int64
	LastOffset  int64
	Timestamp   int64
	HwAdvanced  bool
}

// FetchResult describes the outcome of a local partition read.
type FetchResult struct {
	Segment        *log.Segment
	Position       int64
	Size           int64
	HighWatermark  int64
	LeaderLEOAtReq int64 // leader LEO captured before the read; "read to log end" check
	FetchOffset    int64
}

// PartitionState is the controller-supplied description of a partition's
// desired leadership, carried by LeaderAndIsr-style requests.
type PartitionState struct {
	Topic           string
	Partition       int32
	ControllerEpoch int32
	Leader          int32
	LeaderEpoch     int32
	ISR             []int32
	Replicas        []int32
	ZkVersion       int32
}

// RequiredAcks mirrors the produce request's acks field.
type RequiredAcks int16

const (
	AcksNone   RequiredAcks = 0
	AcksLeader RequiredAcks = 1
	AcksAll    RequiredAcks = -1
)

func (a RequiredAcks) Valid() bool {
	return a == AcksNone || a == AcksLeader || a == AcksAll
}

// PartitionProduceResult is the provisional per-partition response built
// while dispatching a produce request, before any delayed completion.
type PartitionProduceResult struct {
	TopicPartition TopicPartition
	BaseOffset     int64
	Timestamp      int64
	ErrorCode      protocol.ErrorCode
	RequiredOffset int64 // last written offset + 1; only meaningful on success
}

// PartitionFetchResult is the provisional per-partition response built
// while dispatching a fetch request, before any delayed completion.
type PartitionFetchResult struct {
	TopicPartition TopicPartition
	ErrorCode      protocol.ErrorCode
	HighWatermark  int64
	Segment        *log.Segment
	Position       int64
	Size           int64
}

// PartitionFetchRequest is one partition's slice of an incoming fetch.
type PartitionFetchRequest struct {
	TopicPartition TopicPartition
	FetchOffset    int64
	MaxBytes       int64
}

// FetchedBatch is what a LeaderFetchClient hands back after fetching one
// partition's data from its leader over the wire: already-decoded
// records ready to append to the local follower log, plus the leader's
// HW at the time of the fetch. Unlike PartitionFetchResult (which
// describes a local zero-copy read still addressed by segment/position
// for the socket layer to stream out), a FetchedBatch has already
// crossed the wire, so there's no segment pointer left to share.
type FetchedBatch struct {
	Records       []LogRecord
	HighWatermark int64
}
