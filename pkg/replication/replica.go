// Copyright 2025 Takhin Data, Inc.

package replication

// Replica is a single broker's view of one partition. The leader's own
// Replica carries the only authoritative HW; a follower's local Replica
// holds the HW mirrored from the leader, and remote Replica views leave
// HW unset — for those only LEO/LastCaughtUpTimeMs are meaningful, which
// is what the leader tracks about its followers via fetch requests.
type Replica struct {
	BrokerID int32

	// LEO is the offset one past the last record in this replica's log.
	LEO int64

	// HW on the local leader replica is the minimum LEO across the
	// current ISR. On a follower's local replica it is the copy mirrored
	// from fetch responses (see ReplicaManager.ApplyFetchedRecords).
	HW int64

	// LastCaughtUpTimeMs is the wall-clock time this replica last had
	// LEO >= the leader's LEO at the moment of that replica's request.
	LastCaughtUpTimeMs int64

	// Log is set only for the local replica (leader or follower); remote
	// replica views never have one.
	Log LocalLog
}

func newLocalReplica(brokerID int32, lg LocalLog) *Replica {
	return &Replica{BrokerID: brokerID, Log: lg}
}

func newRemoteReplica(brokerID int32, nowMs int64) *Replica {
	return &Replica{BrokerID: brokerID, LastCaughtUpTimeMs: nowMs}
}
