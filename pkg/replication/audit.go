// Copyright 2025 Takhin Data, Inc.

package replication

import "go.uber.org/zap"

// Audit records controller-driven role transitions to the same
// structured zap stream pkg/coordinator uses for group-membership
// events, so an operator reconstructing "what happened to this
// partition" finds both kinds of event in one place.
type Audit struct {
	log *zap.Logger
}

// NewAudit wraps log for use as a Partition role-transition recorder.
// A nil log is replaced with zap.NewNop(), so ManagerConfig.Audit is
// optional.
func NewAudit(log *zap.Logger) *Audit {
	if log == nil {
		log = zap.NewNop()
	}
	return &Audit{log: log}
}

func (a *Audit) becameLeader(tp TopicPartition, leaderEpoch int32) {
	a.log.Info("became leader",
		zap.String("topic", tp.Topic),
		zap.Int32("partition", tp.Partition),
		zap.Int32("leader_epoch", leaderEpoch))
}

func (a *Audit) becameFollower(tp TopicPartition, leaderID, leaderEpoch int32) {
	a.log.Info("became follower",
		zap.String("topic", tp.Topic),
		zap.Int32("partition", tp.Partition),
		zap.Int32("leader", leaderID),
		zap.Int32("leader_epoch", leaderEpoch))
}

func (a *Audit) stoppedReplica(tp TopicPartition, deleted bool) {
	a.log.Info("stopped replica",
		zap.String("topic", tp.Topic),
		zap.Int32("partition", tp.Partition),
		zap.Bool("deleted", deleted))
}
