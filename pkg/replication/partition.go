// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"fmt"
	"sync"
	"time"

	"github.com/repllog/broker/pkg/logger"
	"github.com/repllog/broker/pkg/metrics"
)

// PartitionCallbacks is the narrow, injected set of hooks a Partition
// uses to reach back into its owning ReplicaManager. A Partition never
// holds a *ReplicaManager reference directly — this breaks the
// Partition<->ReplicaManager cycle the original design would otherwise
// have.
type PartitionCallbacks struct {
	// Now returns the current wall-clock time in epoch milliseconds.
	Now func() int64
	// CompleteDelayedProduce attempts to complete any DelayedProduce
	// watching this partition, called after the HW may have advanced.
	CompleteDelayedProduce func(TopicPartition)
	// CompleteDelayedFetch attempts to complete any DelayedFetch
	// watching this partition, called after a follower fetch or a
	// leadership change.
	CompleteDelayedFetch func(TopicPartition)
	// NotifyIsrChange records that this partition's ISR changed, for
	// batched propagation to the coordination store.
	NotifyIsrChange func(TopicPartition)
}

// Partition models one topic-partition: its assigned replica set, the
// in-sync subset of it, the leader epoch, and — when this broker leads
// it — the local log and high watermark.
type Partition struct {
	TP TopicPartition

	mu sync.RWMutex

	brokerID        int32
	leaderID        int32 // -1 when unknown/offline
	leaderEpoch     int32
	controllerEpoch int32
	assigned        []int32
	isr             []int32
	isrVersion      int32

	minInSyncReplicas   int
	replicaLagTimeMaxMs int64

	local  *Replica           // non-nil iff this broker hosts a replica locally
	remote map[int32]*Replica // brokerID -> remote replica view, leader-side bookkeeping only

	deps   PartitionCallbacks
	coord  CoordinationStore
	logger *logger.Logger
}

// PartitionConfig configures a newly materialised Partition.
type PartitionConfig struct {
	TP                  TopicPartition
	BrokerID            int32
	MinInSyncReplicas   int
	ReplicaLagTimeMaxMs int64
	Coord               CoordinationStore
	Callbacks           PartitionCallbacks
	Logger              *logger.Logger
}

// NewPartition creates a Partition in the offline state: no leader
// known, no local replica materialised. It becomes a leader or follower
// only through MakeLeader/MakeFollower, driven by the controller.
func NewPartition(cfg PartitionConfig) *Partition {
	if cfg.MinInSyncReplicas <= 0 {
		cfg.MinInSyncReplicas = 1
	}
	if cfg.ReplicaLagTimeMaxMs <= 0 {
		cfg.ReplicaLagTimeMaxMs = 10000
	}
	if cfg.Callbacks.Now == nil {
		cfg.Callbacks.Now = func() int64 { return time.Now().UnixMilli() }
	}
	lg := cfg.Logger
	if lg == nil {
		lg = logger.Default()
	}
	return &Partition{
		TP:                  cfg.TP,
		brokerID:            cfg.BrokerID,
		leaderID:            -1,
		minInSyncReplicas:   cfg.MinInSyncReplicas,
		replicaLagTimeMaxMs: cfg.ReplicaLagTimeMaxMs,
		remote:              make(map[int32]*Replica),
		deps:                cfg.Callbacks,
		coord:               cfg.Coord,
		logger:              lg.WithComponent("partition").WithFields("topic", cfg.TP.Topic, "partition", cfg.TP.Partition),
	}
}

// IsLeader reports whether this broker currently leads the partition and
// has a local log to serve it from.
func (p *Partition) IsLeader() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.leaderID == p.brokerID && p.local != nil
}

// IsFollower reports whether this broker is a non-leading assigned
// replica with a local log being fed by the fetcher manager.
func (p *Partition) IsFollower() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.leaderID != p.brokerID && p.local != nil
}

// LeaderID returns the current leader broker id, or -1 if unknown.
func (p *Partition) LeaderID() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.leaderID
}

// LeaderEpoch returns the current leader epoch.
func (p *Partition) LeaderEpoch() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.leaderEpoch
}

// ISR returns a copy of the current in-sync replica set.
func (p *Partition) ISR() []int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]int32, len(p.isr))
	copy(out, p.isr)
	return out
}

// AssignedReplicas returns a copy of the assigned replica set.
func (p *Partition) AssignedReplicas() []int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]int32, len(p.assigned))
	copy(out, p.assigned)
	return out
}

// HighWatermark returns the leader's current HW, or 0 if not leading.
func (p *Partition) HighWatermark() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.local == nil {
		return 0
	}
	return p.local.HW
}

// LogEndOffset returns the local replica's LEO, or 0 if there is none.
func (p *Partition) LogEndOffset() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.local == nil {
		return 0
	}
	return p.local.LEO
}

// AppendToLeader appends records to the local log iff this broker
// currently leads the partition. acks=-1 additionally demands
// |ISR| >= minInSyncReplicas both before and after the append. The log
// append itself happens without the partition lock held; only the
// offset/HW bookkeeping around it is serialised.
func (p *Partition) AppendToLeader(records []LogRecord, acks RequiredAcks) (AppendResult, error) {
	p.mu.RLock()
	if p.leaderID != p.brokerID || p.local == nil {
		p.mu.RUnlock()
		return AppendResult{}, ErrNotLeader
	}
	if acks == AcksAll && len(p.isr) < p.minInSyncReplicas {
		p.mu.RUnlock()
		return AppendResult{}, ErrNotEnoughReplicas
	}
	lg := p.local.Log
	p.mu.RUnlock()

	offsets, err := lg.AppendBatch(records)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append to log: %w", err)
	}
	if len(offsets) == 0 {
		return AppendResult{}, nil
	}

	p.mu.Lock()
	p.local.LEO = lg.HighWaterMark()
	hwAdvanced := p.recomputeHwLocked()
	shortIsr := acks == AcksAll && len(p.isr) < p.minInSyncReplicas
	p.mu.Unlock()

	if shortIsr {
		return AppendResult{}, ErrNotEnoughReplicasAfter
	}

	if hwAdvanced && p.deps.CompleteDelayedProduce != nil {
		p.deps.CompleteDelayedProduce(p.TP)
	}

	return AppendResult{
		FirstOffset: offsets[0],
		LastOffset:  offsets[len(offsets)-1],
		Timestamp:   p.deps.Now(),
		HwAdvanced:  hwAdvanced,
	}, nil
}

// ReadFromLocal reads from the local log, honoring maxOffset as an
// inclusive ceiling: ordinary consumer fetches pass the HW, replica
// fetches pass nil to read all the way to the LEO.
func (p *Partition) ReadFromLocal(offset, maxBytes int64, maxOffset *int64) (FetchResult, error) {
	p.mu.RLock()
	if p.local == nil {
		p.mu.RUnlock()
		return FetchResult{}, ErrReplicaNotAvailable
	}
	leoAtReq := p.local.LEO
	hw := p.local.HW
	lg := p.local.Log
	p.mu.RUnlock()

	ceiling := leoAtReq
	if maxOffset != nil && *maxOffset < ceiling {
		ceiling = *maxOffset
	}
	if offset < 0 || offset > ceiling {
		return FetchResult{}, ErrOffsetOutOfRange
	}
	if offset == ceiling {
		return FetchResult{HighWatermark: hw, LeaderLEOAtReq: leoAtReq, FetchOffset: offset}, nil
	}

	seg, pos, size, err := lg.ReadRange(offset, maxBytes)
	if err != nil {
		return FetchResult{}, fmt.Errorf("read range: %w", err)
	}
	return FetchResult{
		Segment:        seg,
		Position:       pos,
		Size:           size,
		HighWatermark:  hw,
		LeaderLEOAtReq: leoAtReq,
		FetchOffset:    offset,
	}, nil
}

// UpdateFollowerFetchState records a follower's progress after it issues
// a fetch request against the leader, then re-evaluates ISR membership
// and the HW. leaderLEOAtFetchStart is the leader's LEO captured when
// the fetch began: a follower only counts as caught up if its fetch
// offset reaches that value, not merely the leader's LEO at response
// time (see DESIGN.md Open Questions on "read to log end").
func (p *Partition) UpdateFollowerFetchState(followerID int32, fetchOffset int64, leaderLEOAtFetchStart int64) {
	now := p.deps.Now()

	p.mu.Lock()
	r, ok := p.remote[followerID]
	if !ok {
		r = newRemoteReplica(followerID, now)
		p.remote[followerID] = r
	}
	r.LEO = fetchOffset
	if fetchOffset >= leaderLEOAtFetchStart {
		r.LastCaughtUpTimeMs = now
	}
	p.mu.Unlock()

	p.maybeExpandIsr(followerID)
	hwAdvanced := p.maybeAdvanceHw()

	if hwAdvanced && p.deps.CompleteDelayedProduce != nil {
		p.deps.CompleteDelayedProduce(p.TP)
	}
	if p.deps.CompleteDelayedFetch != nil {
		p.deps.CompleteDelayedFetch(p.TP)
	}
	p.recordMetrics()
}

// maybeExpandIsr adds followerID to the ISR iff it is currently outside
// it and its LEO has reached the leader's *current HW*, not LEO — the
// anti-oscillation tie-break: expanding against the HW means a follower
// that just caught up can't fall straight back out of the ISR because
// the leader took one more write before the CAS landed.
func (p *Partition) maybeExpandIsr(followerID int32) {
	p.mu.Lock()
	if p.local == nil || p.leaderID != p.brokerID {
		p.mu.Unlock()
		return
	}
	if containsInt32(p.isr, followerID) {
		p.mu.Unlock()
		return
	}
	r, ok := p.remote[followerID]
	if !ok || r.LEO < p.local.HW {
		p.mu.Unlock()
		return
	}
	newIsr := append(append([]int32{}, p.isr...), followerID)
	leaderEpoch, expectVersion := p.leaderEpoch, p.isrVersion
	tp := p.TP
	p.mu.Unlock()

	newVersion, err := p.casIsr(tp, leaderEpoch, expectVersion, newIsr)
	if err != nil {
		p.logger.Warn("isr expand cas failed", "follower", followerID, "error", err)
		return
	}

	p.mu.Lock()
	if p.isrVersion == expectVersion {
		p.isr = newIsr
		p.isrVersion = newVersion
	}
	p.mu.Unlock()

	metrics.RecordISRExpand(tp.Topic, tp.Partition)
	if p.deps.NotifyIsrChange != nil {
		p.deps.NotifyIsrChange(tp)
	}
}

// MaybeShrinkIsr removes any ISR follower — never the leader — whose
// LastCaughtUpTimeMs is older than now-maxLagMs. Called periodically by
// the replica manager's background ISR check, not from the fetch path,
// so a follower that simply stops fetching is still evicted.
func (p *Partition) MaybeShrinkIsr(maxLagMs int64) {
	now := p.deps.Now()

	p.mu.Lock()
	if p.local == nil || p.leaderID != p.brokerID {
		p.mu.Unlock()
		return
	}
	shrunk := make([]int32, 0, len(p.isr))
	removed := false
	for _, id := range p.isr {
		if id == p.brokerID {
			shrunk = append(shrunk, id)
			continue
		}
		r, ok := p.remote[id]
		if ok && now-r.LastCaughtUpTimeMs < maxLagMs {
			shrunk = append(shrunk, id)
		} else {
			removed = true
		}
	}
	if !removed {
		p.mu.Unlock()
		return
	}
	leaderEpoch, expectVersion := p.leaderEpoch, p.isrVersion
	tp := p.TP
	p.mu.Unlock()

	newVersion, err := p.casIsr(tp, leaderEpoch, expectVersion, shrunk)
	if err != nil {
		p.logger.Warn("isr shrink cas failed", "error", err)
		return
	}

	p.mu.Lock()
	if p.isrVersion == expectVersion {
		p.isr = shrunk
		p.isrVersion = newVersion
	}
	p.mu.Unlock()

	metrics.RecordISRShrink(tp.Topic, tp.Partition)
	if p.deps.NotifyIsrChange != nil {
		p.deps.NotifyIsrChange(tp)
	}
	p.maybeAdvanceHw()
	p.recordMetrics()
}

// maybeAdvanceHw recomputes the HW as min(LEO) over the ISR and advances
// it if strictly greater than the current value. Returns whether it moved.
func (p *Partition) maybeAdvanceHw() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recomputeHwLocked()
}

// recomputeHwLocked must be called with p.mu held for writing.
func (p *Partition) recomputeHwLocked() bool {
	if p.local == nil || p.leaderID != p.brokerID {
		return false
	}
	minLeo := p.local.LEO
	for _, id := range p.isr {
		if id == p.brokerID {
			continue
		}
		r, ok := p.remote[id]
		if !ok {
			return false // an ISR member we've never heard a fetch from: can't advance yet
		}
		if r.LEO < minLeo {
			minLeo = r.LEO
		}
	}
	if minLeo > p.local.HW {
		p.local.HW = minLeo
		return true
	}
	return false
}

// MakeLeader transitions the partition to leader under the given
// controller state. It is a no-op (returning false) if the requested
// leader epoch is not newer than the current one. checkpointedHW seeds
// the HW when a checkpoint was recovered for this partition; an HW
// higher than the log's own LEO is clamped down to the LEO.
func (p *Partition) MakeLeader(state PartitionState, lg LocalLog, checkpointedHW int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state.ControllerEpoch < p.controllerEpoch {
		return false, ErrStaleControllerEpoch
	}
	if state.LeaderEpoch <= p.leaderEpoch && p.leaderID != -1 {
		return false, ErrStaleLeaderEpoch
	}

	wasLeader := p.leaderID == p.brokerID

	p.controllerEpoch = state.ControllerEpoch
	p.leaderEpoch = state.LeaderEpoch
	p.leaderID = p.brokerID
	p.assigned = append([]int32{}, state.Replicas...)
	p.isr = append([]int32{}, state.ISR...)
	p.isrVersion = state.ZkVersion

	leo := lg.HighWaterMark()
	hw := checkpointedHW
	if hw > leo {
		hw = leo
	}
	p.local = newLocalReplica(p.brokerID, lg)
	p.local.LEO = leo
	p.local.HW = hw

	if wasLeader {
		return false, nil
	}
	p.remote = make(map[int32]*Replica)
	return true, nil
}

// MakeFollower transitions the partition to follower of state.Leader.
// It only updates bookkeeping: the local LEO is set to the log engine's
// own LEO. The local log is not truncated, here or by the replica
// manager; the caller adds this partition to the fetcher manager.
func (p *Partition) MakeFollower(state PartitionState, lg LocalLog) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state.ControllerEpoch < p.controllerEpoch {
		return false, ErrStaleControllerEpoch
	}
	if state.LeaderEpoch <= p.leaderEpoch && p.leaderID != -1 {
		return false, ErrStaleLeaderEpoch
	}

	wasFollowerOfSameLeader := p.leaderID == state.Leader && p.local != nil

	p.controllerEpoch = state.ControllerEpoch
	p.leaderEpoch = state.LeaderEpoch
	p.leaderID = state.Leader
	p.assigned = append([]int32{}, state.Replicas...)
	p.isr = append([]int32{}, state.ISR...)
	p.isrVersion = state.ZkVersion
	p.remote = make(map[int32]*Replica)

	if p.local == nil {
		p.local = newLocalReplica(p.brokerID, lg)
	}
	p.local.LEO = lg.HighWaterMark()

	return !wasFollowerOfSameLeader, nil
}

// StopReplica takes the partition fully offline. If del is true the
// local log's on-disk directory is removed; otherwise the log is merely
// closed so its file handles are released.
func (p *Partition) StopReplica(del bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.local == nil {
		return nil
	}
	var err error
	if del {
		err = p.local.Log.Delete()
	} else {
		err = p.local.Log.Close()
	}
	p.local = nil
	p.leaderID = -1
	p.remote = make(map[int32]*Replica)
	return err
}

func (p *Partition) casIsr(tp TopicPartition, leaderEpoch, expectVersion int32, isr []int32) (int32, error) {
	if p.coord == nil {
		return expectVersion + 1, nil
	}
	return p.coord.CasIsr(tp, leaderEpoch, expectVersion, isr)
}

func (p *Partition) recordMetrics() {
	p.mu.RLock()
	isrSize := len(p.isr)
	total := len(p.assigned)
	leo := int64(0)
	if p.local != nil {
		leo = p.local.LEO
	}
	now := p.deps.Now()
	type lagSample struct {
		id      int32
		lag     int64
		lagTime int64
	}
	samples := make([]lagSample, 0, len(p.remote))
	for id, r := range p.remote {
		samples = append(samples, lagSample{id: id, lag: leo - r.LEO, lagTime: now - r.LastCaughtUpTimeMs})
	}
	tp := p.TP
	p.mu.RUnlock()

	for _, s := range samples {
		metrics.UpdateReplicationMetrics(tp.Topic, tp.Partition, s.id, s.lag, isrSize, total)
		metrics.UpdateReplicationLagTime(tp.Topic, tp.Partition, s.id, s.lagTime)
	}
}

func containsInt32(xs []int32, v int32) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
