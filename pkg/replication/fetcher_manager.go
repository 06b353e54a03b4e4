// Copyright 2025 Takhin Data, Inc.

package replication

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/repllog/broker/pkg/logger"
)

// LeaderFetchClient is the outbound half of inter-broker replication: it
// issues one partition's fetch against its leader broker over whatever
// transport the socket/RPC layer provides. FetcherManager never knows
// how the bytes get there.
type LeaderFetchClient interface {
	FetchFromLeader(ctx context.Context, leaderBrokerID int32, req PartitionFetchRequest) (FetchedBatch, error)
}

// FetchApplier appends a batch fetched from a leader into this broker's
// local follower replica and advances its bookkeeping. It is the
// follower-side half of ReplicaManager's per-partition state.
type FetchApplier func(tp TopicPartition, batch FetchedBatch) (nextFetchOffset int64, err error)

// FetcherManager owns one goroutine per leader broker this broker
// follows partitions from. Each goroutine repeatedly fetches every
// partition assigned to it in one round, applies the results, and
// backs off independently per partition on empty or failed fetches so
// one stalled partition never blocks the others on the same leader.
type FetcherManager struct {
	brokerID    int32
	client      LeaderFetchClient
	apply       FetchApplier
	maxWait     time.Duration
	maxBytes    int64
	backoff     time.Duration
	idleSleep   time.Duration
	logger      *logger.Logger

	mu       sync.Mutex
	fetchers map[int32]*leaderFetcher
}

// FetcherManagerConfig configures a FetcherManager.
type FetcherManagerConfig struct {
	BrokerID  int32
	Client    LeaderFetchClient
	Apply     FetchApplier
	MaxWait   time.Duration
	MaxBytes  int64
	Backoff   time.Duration
	IdleSleep time.Duration
	Logger    *logger.Logger
}

// NewFetcherManager constructs a FetcherManager. It starts with no
// leaders being followed; AddPartition spins up a leaderFetcher
// goroutine the first time a given leader is referenced.
func NewFetcherManager(cfg FetcherManagerConfig) *FetcherManager {
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = 200 * time.Millisecond
	}
	lg := cfg.Logger
	if lg == nil {
		lg = logger.Default()
	}
	return &FetcherManager{
		brokerID:  cfg.BrokerID,
		client:    cfg.Client,
		apply:     cfg.Apply,
		maxWait:   cfg.MaxWait,
		maxBytes:  cfg.MaxBytes,
		backoff:   cfg.Backoff,
		idleSleep: cfg.IdleSleep,
		logger:    lg.WithComponent("fetcher-manager"),
		fetchers:  make(map[int32]*leaderFetcher),
	}
}

// AddPartition starts fetching tp from leaderID beginning at
// fetchOffset (the replica manager passes the follower log's own LEO).
func (fm *FetcherManager) AddPartition(leaderID int32, tp TopicPartition, fetchOffset int64) {
	fm.mu.Lock()
	lf, ok := fm.fetchers[leaderID]
	if !ok {
		lf = newLeaderFetcher(fm, leaderID)
		fm.fetchers[leaderID] = lf
		lf.start()
	}
	fm.mu.Unlock()

	lf.addPartition(tp, fetchOffset)
}

// RemovePartition stops fetching tp, from whichever leader it was
// assigned to, typically because this broker stopped being a follower
// of it (leadership moved here, or the replica was reassigned away).
func (fm *FetcherManager) RemovePartition(tp TopicPartition) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	for _, lf := range fm.fetchers {
		lf.removePartition(tp)
	}
}

// Shutdown stops every leader fetcher goroutine and waits for them to
// exit.
func (fm *FetcherManager) Shutdown() {
	fm.mu.Lock()
	fetchers := make([]*leaderFetcher, 0, len(fm.fetchers))
	for _, lf := range fm.fetchers {
		fetchers = append(fetchers, lf)
	}
	fm.fetchers = make(map[int32]*leaderFetcher)
	fm.mu.Unlock()

	for _, lf := range fetchers {
		lf.stop()
	}
}

// leaderFetcher drives fetches against a single leader broker for
// however many partitions are currently assigned to it.
type leaderFetcher struct {
	mgr      *FetcherManager
	leaderID int32

	mu         sync.Mutex
	partitions map[TopicPartition]int64
	limiters   map[TopicPartition]*rate.Limiter

	stopCh chan struct{}
	doneCh chan struct{}
}

func newLeaderFetcher(mgr *FetcherManager, leaderID int32) *leaderFetcher {
	return &leaderFetcher{
		mgr:        mgr,
		leaderID:   leaderID,
		partitions: make(map[TopicPartition]int64),
		limiters:   make(map[TopicPartition]*rate.Limiter),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

func (lf *leaderFetcher) addPartition(tp TopicPartition, fetchOffset int64) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.partitions[tp] = fetchOffset
	lf.limiters[tp] = rate.NewLimiter(rate.Every(lf.mgr.backoff), 1)
}

func (lf *leaderFetcher) removePartition(tp TopicPartition) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.partitions, tp)
	delete(lf.limiters, tp)
}

func (lf *leaderFetcher) start() {
	go lf.run()
}

func (lf *leaderFetcher) stop() {
	close(lf.stopCh)
	<-lf.doneCh
}

// run fetches every assigned partition once per pass. A partition is
// skipped for this pass if its backoff limiter hasn't allowed a token
// yet; an empty or errored fetch consumes a fresh backoff interval
// before that partition is retried. When no partitions are assigned at
// all, the loop sleeps on idleSleep instead of spinning — this is the
// idle-loop case where there's nothing to fetch yet.
func (lf *leaderFetcher) run() {
	defer close(lf.doneCh)

	for {
		select {
		case <-lf.stopCh:
			return
		default:
		}

		snapshot := lf.snapshotPartitions()
		if len(snapshot) == 0 {
			select {
			case <-lf.stopCh:
				return
			case <-time.After(lf.mgr.idleSleep):
			}
			continue
		}

		anyFetched := false
		for tp, offset := range snapshot {
			select {
			case <-lf.stopCh:
				return
			default:
			}
			if !lf.limiterFor(tp).Allow() {
				continue
			}
			anyFetched = true
			lf.fetchOne(tp, offset)
		}

		if !anyFetched {
			select {
			case <-lf.stopCh:
				return
			case <-time.After(lf.mgr.idleSleep):
			}
		}
	}
}

func (lf *leaderFetcher) fetchOne(tp TopicPartition, offset int64) {
	ctx, cancel := context.WithTimeout(context.Background(), lf.mgr.maxWait+5*time.Second)
	defer cancel()

	batch, err := lf.mgr.client.FetchFromLeader(ctx, lf.leaderID, PartitionFetchRequest{
		TopicPartition: tp,
		FetchOffset:    offset,
		MaxBytes:       lf.mgr.maxBytes,
	})
	if err != nil {
		lf.mgr.logger.Warn("fetch from leader failed", "leader", lf.leaderID, "topic", tp.Topic, "partition", tp.Partition, "error", err)
		return
	}

	nextOffset, err := lf.mgr.apply(tp, batch)
	if err != nil {
		lf.mgr.logger.Warn("apply fetched records failed", "topic", tp.Topic, "partition", tp.Partition, "error", err)
		return
	}

	lf.mu.Lock()
	if _, stillAssigned := lf.partitions[tp]; stillAssigned {
		lf.partitions[tp] = nextOffset
	}
	lf.mu.Unlock()
}

func (lf *leaderFetcher) limiterFor(tp TopicPartition) *rate.Limiter {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.limiters[tp]
}

func (lf *leaderFetcher) snapshotPartitions() map[TopicPartition]int64 {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	out := make(map[TopicPartition]int64, len(lf.partitions))
	for tp, offset := range lf.partitions {
		out[tp] = offset
	}
	return out
}
