// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"fmt"
	"sync"
	"time"

	"github.com/repllog/broker/pkg/logger"
	"github.com/repllog/broker/pkg/metrics"
)

// LogOpener creates or reopens the on-disk log for a partition. It is
// how the replica manager reaches the storage engine without importing
// its concrete constructor directly into every call site.
type LogOpener func(tp TopicPartition) (LocalLog, error)

// ManagerConfig configures a ReplicaManager.
type ManagerConfig struct {
	BrokerID              int32
	DataDir               string
	MinInSyncReplicas     int
	ReplicaLagTimeMaxMs   int64
	ProduceTimeout        time.Duration
	FetchMaxWait          time.Duration
	IsrPropagationPeriod  time.Duration
	IsrPropagationBlackout time.Duration
	IsrPropagationForce   time.Duration
	CheckpointInterval    time.Duration
	OpenLog               LogOpener
	Coord                 CoordinationStore
	Logger                *logger.Logger
	Audit                 *Audit
}

// ReplicaManager owns every partition hosted on this broker. It is the
// single entry point the socket layer calls into for produce and fetch
// requests, and the single entry point the controller calls into for
// leadership changes.
type ReplicaManager struct {
	brokerID int32

	mu         sync.RWMutex
	partitions map[TopicPartition]*Partition

	minInSyncReplicas   int
	replicaLagTimeMaxMs int64
	produceTimeout      time.Duration
	fetchMaxWait        time.Duration

	isrPropagationPeriod   time.Duration
	isrPropagationBlackout time.Duration
	isrPropagationForce    time.Duration
	checkpointInterval     time.Duration

	isrChangeMu   sync.Mutex
	isrChanged    map[TopicPartition]int64 // tp -> last-changed wall time ms
	lastPropagate int64

	produceP *Purgatory
	fetchP   *Purgatory

	openLog LogOpener
	coord   CoordinationStore
	ckpt    map[string]*HighWatermarkCheckpoint // dataDir -> checkpoint

	logger *logger.Logger
	audit  *Audit

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReplicaManager constructs a ReplicaManager with no partitions
// loaded. Call Start to launch its background tasks.
func NewReplicaManager(cfg ManagerConfig) *ReplicaManager {
	if cfg.MinInSyncReplicas <= 0 {
		cfg.MinInSyncReplicas = 1
	}
	if cfg.ReplicaLagTimeMaxMs <= 0 {
		cfg.ReplicaLagTimeMaxMs = 10000
	}
	if cfg.ProduceTimeout <= 0 {
		cfg.ProduceTimeout = 30 * time.Second
	}
	if cfg.FetchMaxWait <= 0 {
		cfg.FetchMaxWait = 500 * time.Millisecond
	}
	if cfg.IsrPropagationPeriod <= 0 {
		cfg.IsrPropagationPeriod = 2500 * time.Millisecond
	}
	if cfg.IsrPropagationBlackout <= 0 {
		cfg.IsrPropagationBlackout = 5 * time.Second
	}
	if cfg.IsrPropagationForce <= 0 {
		cfg.IsrPropagationForce = 60 * time.Second
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 5 * time.Second
	}
	if cfg.Coord == nil {
		cfg.Coord = NewInMemoryCoordinationStore()
	}
	if cfg.Audit == nil {
		cfg.Audit = NewAudit(nil)
	}
	lg := cfg.Logger
	if lg == nil {
		lg = logger.Default()
	}
	lg = lg.WithComponent("replica-manager").WithFields("broker_id", cfg.BrokerID)

	return &ReplicaManager{
		brokerID:               cfg.BrokerID,
		partitions:             make(map[TopicPartition]*Partition),
		minInSyncReplicas:      cfg.MinInSyncReplicas,
		replicaLagTimeMaxMs:    cfg.ReplicaLagTimeMaxMs,
		produceTimeout:         cfg.ProduceTimeout,
		fetchMaxWait:           cfg.FetchMaxWait,
		isrPropagationPeriod:   cfg.IsrPropagationPeriod,
		isrPropagationBlackout: cfg.IsrPropagationBlackout,
		isrPropagationForce:    cfg.IsrPropagationForce,
		checkpointInterval:     cfg.CheckpointInterval,
		isrChanged:             make(map[TopicPartition]int64),
		produceP:               NewPurgatory("produce", lg),
		fetchP:                 NewPurgatory("fetch", lg),
		openLog:                cfg.OpenLog,
		coord:                  cfg.Coord,
		ckpt:                   make(map[string]*HighWatermarkCheckpoint),
		logger:                 lg,
		audit:                  cfg.Audit,
		stopCh:                 make(chan struct{}),
	}
}

// Start launches the ISR-propagation and HW-checkpoint background
// tasks. Safe to call once per ReplicaManager lifetime.
func (rm *ReplicaManager) Start() {
	rm.wg.Add(2)
	go rm.isrPropagationLoop()
	go rm.checkpointLoop()
}

// Shutdown stops background tasks, force-completes every outstanding
// delayed operation, checkpoints the HW of every partition with a local
// replica synchronously, and closes every local log.
func (rm *ReplicaManager) Shutdown() error {
	close(rm.stopCh)
	rm.wg.Wait()

	for _, pg := range []*Purgatory{rm.produceP, rm.fetchP} {
		pg.mu.Lock()
		var ops []delayedOperation
		for key, watching := range pg.watchers {
			ops = append(ops, watching...)
			delete(pg.watchers, key)
		}
		pg.mu.Unlock()
		for _, op := range ops {
			op.forceComplete(nowMs())
		}
	}

	if err := rm.checkpointAll(); err != nil {
		rm.logger.Error("final checkpoint failed", "error", err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	var errs []error
	for _, p := range rm.partitions {
		if err := p.StopReplica(false); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown partitions: %v", errs)
	}
	return nil
}

// GetPartition returns the partition for tp, creating it in the offline
// state if it doesn't exist yet.
func (rm *ReplicaManager) GetPartition(tp TopicPartition) *Partition {
	rm.mu.RLock()
	p, ok := rm.partitions[tp]
	rm.mu.RUnlock()
	if ok {
		return p
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if p, ok := rm.partitions[tp]; ok {
		return p
	}
	p = NewPartition(PartitionConfig{
		TP:                  tp,
		BrokerID:            rm.brokerID,
		MinInSyncReplicas:   rm.minInSyncReplicas,
		ReplicaLagTimeMaxMs: rm.replicaLagTimeMaxMs,
		Coord:               rm.coord,
		Callbacks: PartitionCallbacks{
			Now:                    nowMs,
			CompleteDelayedProduce: rm.completeDelayedProduce,
			CompleteDelayedFetch:   rm.completeDelayedFetch,
			NotifyIsrChange:        rm.notifyIsrChange,
		},
		Logger: rm.logger,
	})
	rm.partitions[tp] = p
	return p
}

func nowMs() int64 { return time.Now().UnixMilli() }

// AppendMessages is the produce entry point. It appends to every
// partition in records, then — for any partition written with acks=-1
// — registers a DelayedProduce and does not return until every such
// partition's HW has caught up or the produce timeout expires.
func (rm *ReplicaManager) AppendMessages(acks RequiredAcks, allowInternalTopics bool, records map[TopicPartition][]LogRecord) ([]PartitionProduceResult, error) {
	if !acks.Valid() {
		return nil, ErrInvalidRequiredAcks
	}

	results := make([]PartitionProduceResult, 0, len(records))
	var waits []produceWait

	for tp, recs := range records {
		if isInternalTopic(tp.Topic) && !allowInternalTopics {
			results = append(results, PartitionProduceResult{TopicPartition: tp, ErrorCode: errorCodeFor(ErrInvalidTopic)})
			continue
		}
		p := rm.GetPartition(tp)
		res, err := p.AppendToLeader(recs, acks)
		code := errorCodeFor(err)
		pr := PartitionProduceResult{TopicPartition: tp, ErrorCode: code}
		if err == nil {
			pr.BaseOffset = res.FirstOffset
			pr.Timestamp = res.Timestamp
			pr.RequiredOffset = res.LastOffset + 1
		}
		results = append(results, pr)

		if err == nil && acks == AcksAll {
			waits = append(waits, produceWait{tp: tp, requiredOffset: pr.RequiredOffset, result: pr})
		}
	}

	if acks != AcksAll || len(waits) == 0 {
		return results, nil
	}

	done := make(chan []PartitionProduceResult, 1)
	dp := NewDelayedProduce(nowMs(), rm.produceTimeout, waits, rm.partitionStatus, func(_ string, finalResults []PartitionProduceResult) {
		done <- finalResults
	})
	rm.produceP.TryCompleteElseWatch(dp, dp.watchKeys(), nowMs())

	finalResults := <-done
	byTP := make(map[TopicPartition]PartitionProduceResult, len(finalResults))
	for _, r := range finalResults {
		byTP[r.TopicPartition] = r
	}
	for i, r := range results {
		if updated, ok := byTP[r.TopicPartition]; ok {
			results[i] = updated
		}
	}
	return results, nil
}

// FetchMessages is the fetch entry point, used both by ordinary
// consumers (replicaID == ConsumerReplicaID) and by follower brokers
// replicating from this leader (replicaID >= 0). minBytes/maxWait only
// apply to consumer fetches with data not yet available; a replica
// fetch that updates follower state always returns immediately so the
// fetcher's backoff, not this manager's purgatory, controls its pace.
func (rm *ReplicaManager) FetchMessages(replicaID int32, minBytes int64, maxWait time.Duration, reqs []PartitionFetchRequest) ([]PartitionFetchResult, error) {
	if len(reqs) == 0 {
		return nil, errDelayedFetchNoPartitions
	}

	lookup := func(req PartitionFetchRequest) PartitionFetchResult {
		return rm.readOnePartition(replicaID, req)
	}

	results := make([]PartitionFetchResult, len(reqs))
	var totalBytes int64
	hasError := false
	for i, req := range reqs {
		results[i] = lookup(req)
		if results[i].ErrorCode != 0 {
			hasError = true
		} else {
			totalBytes += results[i].Size
		}
	}

	isReplicaFetch := replicaID != ConsumerReplicaID
	if isReplicaFetch || hasError || totalBytes >= minBytes || maxWait <= 0 {
		return results, nil
	}

	waits := make([]fetchWait, len(reqs))
	for i, req := range reqs {
		waits[i] = fetchWait{req: req, result: results[i]}
	}

	done := make(chan []PartitionFetchResult, 1)
	df := NewDelayedFetch(nowMs(), maxWait, minBytes, waits, lookup, func(_ string, finalResults []PartitionFetchResult) {
		done <- finalResults
	})
	rm.fetchP.TryCompleteElseWatch(df, df.watchKeys(), nowMs())

	return <-done, nil
}

func (rm *ReplicaManager) readOnePartition(replicaID int32, req PartitionFetchRequest) PartitionFetchResult {
	p := rm.GetPartition(req.TopicPartition)

	if replicaID == DebuggingReplicaID {
		rm.logger.Warn("debugging replica id bypasses leader-only check", "topic", req.TopicPartition.Topic, "partition", req.TopicPartition.Partition)
	} else if !p.IsLeader() {
		return PartitionFetchResult{TopicPartition: req.TopicPartition, ErrorCode: errorCodeFor(ErrNotLeader)}
	}

	var maxOffset *int64
	if replicaID == ConsumerReplicaID {
		hw := p.HighWatermark()
		maxOffset = &hw
	}
	// DebuggingReplicaID and real follower replica ids read to the LEO.

	res, err := p.ReadFromLocal(req.FetchOffset, req.MaxBytes, maxOffset)
	if err != nil {
		return PartitionFetchResult{TopicPartition: req.TopicPartition, ErrorCode: errorCodeFor(err)}
	}
	return PartitionFetchResult{
		TopicPartition: req.TopicPartition,
		HighWatermark:  res.HighWatermark,
		Segment:        res.Segment,
		Position:       res.Position,
		Size:           res.Size,
	}
}

// RecordFollowerFetch updates a leader's view of a follower's progress;
// called by the socket layer once it has sent the fetch response bytes
// for a replica fetch, so the HW reflects only data the follower is
// known to have actually received.
func (rm *ReplicaManager) RecordFollowerFetch(tp TopicPartition, followerID int32, fetchOffset, leaderLEOAtFetchStart int64) {
	p := rm.GetPartition(tp)
	p.UpdateFollowerFetchState(followerID, fetchOffset, leaderLEOAtFetchStart)
}

// BecomeLeaderOrFollower applies a controller-issued batch of partition
// state changes, mirroring the LeaderAndIsr request semantics: for each
// state, this broker becomes either the leader or a follower of it, and
// the fetcher manager is reconciled to match.
func (rm *ReplicaManager) BecomeLeaderOrFollower(states []PartitionState, fetchers *FetcherManager) []error {
	errs := make([]error, len(states))
	for i, state := range states {
		tp := TopicPartition{Topic: state.Topic, Partition: state.Partition}
		p := rm.GetPartition(tp)

		if state.Leader == rm.brokerID {
			errs[i] = rm.makeLeader(p, state, fetchers)
		} else {
			errs[i] = rm.makeFollower(p, state, fetchers)
		}
	}
	return errs
}

func (rm *ReplicaManager) makeLeader(p *Partition, state PartitionState, fetchers *FetcherManager) error {
	lg, err := rm.openLogFor(p.TP)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	checkpointedHW := rm.checkpointedHWFor(p.TP, lg.Dir())

	became, err := p.MakeLeader(state, lg, checkpointedHW)
	if err != nil {
		return err
	}
	if became && fetchers != nil {
		fetchers.RemovePartition(p.TP)
	}
	if became {
		rm.audit.becameLeader(p.TP, state.LeaderEpoch)
	}
	if p.deps.CompleteDelayedFetch != nil {
		p.deps.CompleteDelayedFetch(p.TP)
	}
	return nil
}

// makeFollower transitions p to follower of state.Leader and, on a
// fresh transition, arms the fetcher manager to start replicating from
// this follower's current LEO. The local log is not truncated on this
// transition, and the fetcher does not truncate it either.
func (rm *ReplicaManager) makeFollower(p *Partition, state PartitionState, fetchers *FetcherManager) error {
	lg, err := rm.openLogFor(p.TP)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}

	became, err := p.MakeFollower(state, lg)
	if err != nil {
		return err
	}
	if became && fetchers != nil {
		fetchers.AddPartition(state.Leader, p.TP, lg.HighWaterMark())
	}
	if became {
		rm.audit.becameFollower(p.TP, state.Leader, state.LeaderEpoch)
	}
	return nil
}

// ApplyFetchedRecords is the FetchApplier a FetcherManager uses to land
// a batch fetched from a leader into this broker's local follower log,
// advancing the follower's LEO and mirrored HW.
func (rm *ReplicaManager) ApplyFetchedRecords(tp TopicPartition, batch FetchedBatch) (int64, error) {
	p := rm.GetPartition(tp)
	p.mu.RLock()
	local := p.local
	p.mu.RUnlock()
	if local == nil {
		return 0, ErrReplicaNotAvailable
	}

	if len(batch.Records) > 0 {
		if _, err := local.Log.AppendBatch(batch.Records); err != nil {
			return 0, fmt.Errorf("append fetched records: %w", err)
		}
	}

	p.mu.Lock()
	p.local.LEO = local.Log.HighWaterMark()
	if batch.HighWatermark > p.local.HW {
		p.local.HW = batch.HighWatermark
	}
	leo := p.local.LEO
	p.mu.Unlock()

	metrics.UpdateStorageMetrics(tp.Topic, tp.Partition, 0, 0, leo, 0)
	return leo, nil
}

// StopReplicas takes the listed partitions offline, optionally deleting
// their logs, removing them from this manager's index entirely.
func (rm *ReplicaManager) StopReplicas(tps []TopicPartition, del bool, fetchers *FetcherManager) error {
	var errs []error
	rm.mu.Lock()
	for _, tp := range tps {
		p, ok := rm.partitions[tp]
		if !ok {
			continue
		}
		if err := p.StopReplica(del); err != nil {
			errs = append(errs, err)
		}
		delete(rm.partitions, tp)
		if fetchers != nil {
			fetchers.RemovePartition(tp)
		}
		rm.audit.stoppedReplica(tp, del)
	}
	rm.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("stop replicas: %v", errs)
	}
	return nil
}

func (rm *ReplicaManager) openLogFor(tp TopicPartition) (LocalLog, error) {
	if rm.openLog == nil {
		return nil, fmt.Errorf("replication: no log opener configured")
	}
	return rm.openLog(tp)
}

func (rm *ReplicaManager) partitionStatus(tp TopicPartition) (hw int64, stillLeader bool, ok bool) {
	rm.mu.RLock()
	p, exists := rm.partitions[tp]
	rm.mu.RUnlock()
	if !exists {
		return 0, false, false
	}
	return p.HighWatermark(), p.IsLeader(), true
}

func (rm *ReplicaManager) completeDelayedProduce(tp TopicPartition) {
	rm.produceP.CheckAndComplete(tp, nowMs())
}

func (rm *ReplicaManager) completeDelayedFetch(tp TopicPartition) {
	rm.fetchP.CheckAndComplete(tp, nowMs())
}

func (rm *ReplicaManager) notifyIsrChange(tp TopicPartition) {
	rm.isrChangeMu.Lock()
	rm.isrChanged[tp] = nowMs()
	rm.isrChangeMu.Unlock()
}

// isrPropagationLoop periodically tells the coordination store which
// partitions changed ISR, batching changes so a flapping partition
// doesn't generate one write per flap. A change is eligible once it has
// sat quietly for isrPropagationBlackout, or unconditionally once it
// has been pending for isrPropagationForce, whichever comes first.
func (rm *ReplicaManager) isrPropagationLoop() {
	defer rm.wg.Done()
	ticker := time.NewTicker(rm.isrPropagationPeriod)
	defer ticker.Stop()

	firstSeen := make(map[TopicPartition]int64)

	for {
		select {
		case <-rm.stopCh:
			return
		case <-ticker.C:
			now := nowMs()

			rm.isrChangeMu.Lock()
			pending := make(map[TopicPartition]int64, len(rm.isrChanged))
			for tp, t := range rm.isrChanged {
				pending[tp] = t
			}
			rm.isrChangeMu.Unlock()

			var toPropagate []TopicPartition
			for tp, lastChange := range pending {
				if _, ok := firstSeen[tp]; !ok {
					firstSeen[tp] = now
				}
				quiet := now-lastChange >= rm.isrPropagationBlackout.Milliseconds()
				forced := now-firstSeen[tp] >= rm.isrPropagationForce.Milliseconds()
				if quiet || forced {
					toPropagate = append(toPropagate, tp)
				}
			}

			if len(toPropagate) == 0 {
				continue
			}

			rm.isrChangeMu.Lock()
			for _, tp := range toPropagate {
				delete(rm.isrChanged, tp)
			}
			rm.isrChangeMu.Unlock()
			for _, tp := range toPropagate {
				delete(firstSeen, tp)
			}

			for _, tp := range toPropagate {
				p := rm.GetPartition(tp)
				if err := rm.coord.WritePartitionState(PartitionState{
					Topic:       tp.Topic,
					Partition:   tp.Partition,
					Leader:      p.LeaderID(),
					LeaderEpoch: p.LeaderEpoch(),
					ISR:         p.ISR(),
					Replicas:    p.AssignedReplicas(),
				}); err != nil {
					rm.logger.Warn("propagate isr change failed", "topic", tp.Topic, "partition", tp.Partition, "error", err)
				}
			}
		}
	}
}

// checkpointLoop periodically writes the HW of each partition with a
// local replica (leader or follower) to its data directory's
// checkpoint file.
func (rm *ReplicaManager) checkpointLoop() {
	defer rm.wg.Done()
	ticker := time.NewTicker(rm.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rm.stopCh:
			return
		case <-ticker.C:
			if err := rm.checkpointAll(); err != nil {
				rm.logger.Fatal("high watermark checkpoint failed, halting", "error", err)
			}
		}
	}
}

func (rm *ReplicaManager) checkpointAll() error {
	rm.mu.RLock()
	byDir := make(map[string]map[TopicPartition]int64)
	for tp, p := range rm.partitions {
		p.mu.RLock()
		local := p.local
		p.mu.RUnlock()
		if local == nil {
			continue
		}
		dir := local.Log.Dir()
		if byDir[dir] == nil {
			byDir[dir] = make(map[TopicPartition]int64)
		}
		byDir[dir][tp] = p.HighWatermark()
	}
	rm.mu.RUnlock()

	for dir, entries := range byDir {
		ck := rm.checkpointFor(dir)
		if err := ck.Write(entries); err != nil {
			return fmt.Errorf("checkpoint %s: %w", dir, err)
		}
	}
	return nil
}

func (rm *ReplicaManager) checkpointFor(dir string) *HighWatermarkCheckpoint {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	ck, ok := rm.ckpt[dir]
	if !ok {
		ck = NewHighWatermarkCheckpoint(dir)
		rm.ckpt[dir] = ck
	}
	return ck
}

func (rm *ReplicaManager) checkpointedHWFor(tp TopicPartition, dir string) int64 {
	ck := rm.checkpointFor(dir)
	entries, err := ck.Read()
	if err != nil {
		rm.logger.Warn("read checkpoint failed", "dir", dir, "error", err)
		return 0
	}
	return entries[tp]
}
