// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// supervisor owns the lifecycle of one river: it polls the sink-stored
// enable flag, contends for exclusive ownership of the river against any
// sibling process via sync.LockTable, and starts/stops the slurper(s)
// and indexer accordingly. Its ticking reconcile loop and atomic active
// flag are grounded on reconciler/reconciler.go's Controller, generalized
// from reconciling a single collection diff to reconciling "should this
// river's workers be running right now".
package supervisor

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-core-stack/mongoriver/checkpoint"
	"github.com/go-core-stack/mongoriver/errors"
	"github.com/go-core-stack/mongoriver/gridfs"
	"github.com/go-core-stack/mongoriver/indexer"
	"github.com/go-core-stack/mongoriver/queue"
	"github.com/go-core-stack/mongoriver/river"
	"github.com/go-core-stack/mongoriver/sink"
	"github.com/go-core-stack/mongoriver/slurper"
	"github.com/go-core-stack/mongoriver/source"
	syncpkg "github.com/go-core-stack/mongoriver/sync"
	"github.com/go-core-stack/mongoriver/topology"
	"github.com/go-core-stack/mongoriver/transform"
)

// tickInterval is how often the supervisor re-evaluates the enable flag
// and its ownership of the river
const tickInterval = time.Second

// lockTableName is the collection in the lock store database hosting
// one row per river currently owned by a supervisor process
const lockTableName = "river-locks"

// riverLockKey is the unique key inserted into the lock table for the
// duration this process owns a river
type riverLockKey struct {
	Name string `bson:"name"`
}

// Supervisor owns the run/stop lifecycle of a single river's workers
type Supervisor struct {
	def         *river.Definition
	client      source.Client
	sinkClient  sink.Client
	checkpoints checkpoint.Store
	transformer transform.Transformer
	lockStore   source.Database
	bulkRate    int64

	riverIndex string

	shardCache *topology.ShardCache

	active atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	lock    syncpkg.Lock
	wg      sync.WaitGroup
	closeCh chan struct{}
	once    sync.Once
}

// New builds a Supervisor for one river. lockStore is the database
// backing the ownership/lock tables; syncpkg.InitializeOwner must already
// have been called against it before Run starts ticking.
func New(def *river.Definition, client source.Client, sinkClient sink.Client, checkpoints checkpoint.Store, transformer transform.Transformer, lockStore source.Database, riverIndex string, bulkRate int64) *Supervisor {
	return &Supervisor{
		def:         def,
		client:      client,
		sinkClient:  sinkClient,
		checkpoints: checkpoints,
		transformer: transformer,
		lockStore:   lockStore,
		bulkRate:    bulkRate,
		riverIndex:  riverIndex,
		shardCache:  topology.NewShardCache(),
		closeCh:     make(chan struct{}),
	}
}

// Run ticks until ctx is cancelled, starting/stopping the river's workers
// as the enable flag and lock ownership dictate. It returns once ctx is
// done and any running workers have been stopped.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stop()
			return
		case <-s.closeCh:
			s.stop()
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

// Close stops the supervisor idempotently; safe to call multiple times
// and from any goroutine.
func (s *Supervisor) Close() {
	s.once.Do(func() {
		close(s.closeCh)
	})
}

// reconcile is one tick: check the enable flag, and if enabled and not
// currently running, attempt to take ownership and start the workers
func (s *Supervisor) reconcile(ctx context.Context) {
	enabled, err := s.sinkClient.GetEnabled(ctx, s.riverIndex, s.def.Name())
	if err != nil {
		log.Printf("supervisor[%s]: failed to read enable flag: %s", s.def.Name(), err)
		return
	}

	if !enabled {
		if s.active.Load() {
			s.stop()
		}
		return
	}

	if s.active.Load() {
		return
	}

	if err := s.start(ctx); err != nil {
		log.Printf("supervisor[%s]: not starting this tick: %s", s.def.Name(), err)
	}
}

// start contends for the river's lock and, on success, spins up one
// slurper per topology member plus the single indexer
func (s *Supervisor) start(ctx context.Context) error {
	table, err := syncpkg.LocateLockTable(s.lockStore, lockTableName)
	if err != nil {
		return err
	}

	lock, err := table.TryAcquire(ctx, &riverLockKey{Name: s.def.Name()})
	if err != nil {
		// another process already owns this river; try again next tick
		return errors.Wrapf(errors.GetErrCode(err), "lock table %s: %s", table.Name(), err)
	}

	members, err := topology.Discover(ctx, s.client, s.shardCache)
	if err != nil {
		_ = lock.Close()
		return err
	}

	workerCtx, cancel := context.WithCancel(ctx)

	q := queue.New(s.def.ThrottleSize())
	fetcher := gridfs.NewFetcher(1<<24, 1<<24)

	s.mu.Lock()
	s.cancel = cancel
	s.lock = lock
	s.mu.Unlock()

	for _, m := range members {
		sl := slurper.New(s.client, s.checkpoints, q, s.def, fetcher)
		sl.ShardID = m.ShardID
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sl.Run(workerCtx)
		}()
	}

	ix := indexer.New(s.def, q, s.sinkClient, s.checkpoints, s.transformer, s.bulkRate)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ix.Run(workerCtx)
	}()

	s.active.Store(true)
	log.Printf("supervisor[%s]: started %d slurper(s) and 1 indexer", s.def.Name(), len(members))
	return nil
}

// stop cancels the workers, releases the river lock, and waits for the
// workers to exit. Safe to call when not active.
func (s *Supervisor) stop() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}

	s.mu.Lock()
	cancel := s.cancel
	lock := s.lock
	s.cancel = nil
	s.lock = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if lock != nil {
		if err := lock.Close(); err != nil {
			log.Printf("supervisor[%s]: failed to release river lock: %s", s.def.Name(), err)
		}
	}
	log.Printf("supervisor[%s]: stopped", s.def.Name())
}
