// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"errors"

	"github.com/repllog/broker/pkg/kafka/protocol"
)

// Sentinel errors returned by Partition and ReplicaManager operations.
// Each maps to exactly one protocol.ErrorCode via errorCodeFor, so
// callers on the RPC boundary never need a second translation table.
var (
	ErrNotLeader              = errors.New("replication: not leader for partition")
	ErrNotEnoughReplicas      = errors.New("replication: not enough replicas in isr")
	ErrNotEnoughReplicasAfter = errors.New("replication: isr shrank below min.insync.replicas after append")
	ErrUnknownPartition       = errors.New("replication: unknown topic or partition")
	ErrReplicaNotAvailable    = errors.New("replication: replica not available")
	ErrStaleControllerEpoch   = errors.New("replication: stale controller epoch")
	ErrStaleLeaderEpoch       = errors.New("replication: stale leader epoch")
	ErrInvalidRequiredAcks    = errors.New("replication: invalid required acks")
	ErrInvalidTopic           = errors.New("replication: internal topic not allowed")
	ErrOffsetOutOfRange       = errors.New("replication: offset out of range")
	ErrRequestTimedOut        = errors.New("replication: request timed out")

	// ErrStorageFailure is never returned to a caller: it triggers an
	// immediate process halt per spec (a broker that cannot durably
	// record state must not keep serving).
	ErrStorageFailure = errors.New("replication: unrecoverable storage failure")
)

// errorCodeFor classifies an error returned by a Partition or
// ReplicaManager operation into the wire-protocol error code taxonomy.
// Unrecognized errors classify as protocol.UnknownServerError so callers
// always get a valid, non-zero code instead of silently succeeding.
func errorCodeFor(err error) protocol.ErrorCode {
	switch {
	case err == nil:
		return protocol.None
	case errors.Is(err, ErrNotLeader):
		return protocol.NotLeaderForPartition
	case errors.Is(err, ErrStaleLeaderEpoch):
		return protocol.FencedLeaderEpoch
	case errors.Is(err, ErrNotEnoughReplicas):
		return protocol.NotEnoughReplicas
	case errors.Is(err, ErrNotEnoughReplicasAfter):
		return protocol.NotEnoughReplicasAfterAppend
	case errors.Is(err, ErrUnknownPartition):
		return protocol.UnknownTopicOrPartition
	case errors.Is(err, ErrReplicaNotAvailable):
		return protocol.ReplicaNotAvailable
	case errors.Is(err, ErrStaleControllerEpoch):
		return protocol.StaleControllerEpoch
	case errors.Is(err, ErrInvalidRequiredAcks):
		return protocol.InvalidRequiredAcks
	case errors.Is(err, ErrInvalidTopic):
		return protocol.InvalidTopicException
	case errors.Is(err, ErrOffsetOutOfRange):
		return protocol.OffsetOutOfRange
	case errors.Is(err, ErrRequestTimedOut):
		return protocol.RequestTimedOut
	default:
		return protocol.UnknownServerError
	}
}
