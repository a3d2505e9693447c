// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package supervisor

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/go-core-stack/mongoriver/errors"
	"github.com/go-core-stack/mongoriver/river"
	"github.com/go-core-stack/mongoriver/sink"
	"github.com/go-core-stack/mongoriver/source"
	syncpkg "github.com/go-core-stack/mongoriver/sync"
	"github.com/go-core-stack/mongoriver/transform"
)

// lockCollection backs the owner-table/river-locks collections the sync
// package reads and writes; keys are compared by their marshaled bytes.
type lockCollection struct {
	source.Collection
	mu   sync.Mutex
	docs map[string][]byte
}

func newLockCollection() *lockCollection {
	return &lockCollection{docs: map[string][]byte{}}
}

func keyOf(key interface{}) string {
	b, _ := bson.Marshal(key)
	return string(b)
}

func (c *lockCollection) SetKeyType(keyType reflect.Type) error { return nil }

func (c *lockCollection) InsertOne(ctx context.Context, key interface{}, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := keyOf(key)
	if _, exists := c.docs[k]; exists {
		return errors.Wrap(errors.AlreadyExists, "duplicate key")
	}
	b, err := bson.Marshal(data)
	if err != nil {
		return err
	}
	c.docs[k] = b
	return nil
}

func (c *lockCollection) UpdateOne(ctx context.Context, key interface{}, data interface{}, upsert bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := bson.Marshal(data)
	if err != nil {
		return err
	}
	c.docs[keyOf(key)] = b
	return nil
}

func (c *lockCollection) FindOne(ctx context.Context, key interface{}, data interface{}) error {
	c.mu.Lock()
	b, ok := c.docs[keyOf(key)]
	c.mu.Unlock()
	if !ok {
		return errors.Wrap(errors.NotFound, "no document found")
	}
	return bson.Unmarshal(b, data)
}

func (c *lockCollection) DeleteOne(ctx context.Context, key interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, keyOf(key))
	return nil
}

func (c *lockCollection) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := int64(len(c.docs))
	c.docs = map[string][]byte{}
	return n, nil
}

func (c *lockCollection) Watch(ctx context.Context, filter interface{}, cb source.WatchCallbackfn) error {
	return nil
}

// lockDatabase hosts the owner-table and river-locks collections used by
// the sync package's ownership/lock infrastructure
type lockDatabase struct {
	mu   sync.Mutex
	name string
	cols map[string]*lockCollection
}

func newLockDatabase(name string) *lockDatabase {
	return &lockDatabase{name: name, cols: map[string]*lockCollection{}}
}

func (d *lockDatabase) Name() string { return d.name }

func (d *lockDatabase) Collection(name string) source.Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cols[name]
	if !ok {
		c = newLockCollection()
		d.cols[name] = c
	}
	return c
}

func (d *lockDatabase) ListShards(ctx context.Context) ([]source.ShardDescriptor, error) {
	return nil, nil
}

func (d *lockDatabase) CollectionExists(ctx context.Context, name string) (bool, error) {
	return true, nil
}

var ownerOnce sync.Once

// ensureOwnerInitialized initializes the package-level sync owner
// singleton exactly once for the whole test binary
func ensureOwnerInitialized(t *testing.T) {
	t.Helper()
	var err error
	ownerOnce.Do(func() {
		err = syncpkg.InitializeOwner(context.Background(), newLockDatabase("admin"), "supervisor-test")
	})
	if err != nil {
		t.Fatalf("unexpected error initializing owner table: %s", err)
	}
}

// itemsCollection is the fake source collection backing the river's
// source database/collection; FindMany always reports no documents so
// bootstrap enqueues nothing.
type itemsCollection struct {
	source.Collection
}

func (c *itemsCollection) FindMany(ctx context.Context, filter interface{}, data interface{}) error {
	return nil
}

// fakeCursor is an always-already-exhausted tailable cursor
type fakeCursor struct{}

func (fakeCursor) Next(ctx context.Context) bool   { return false }
func (fakeCursor) Decode(v interface{}) error      { return nil }
func (fakeCursor) Err() error                      { return nil }
func (fakeCursor) Close(ctx context.Context) error { return nil }

// oplogCollection is the fake local.oplog.rs collection
type oplogCollection struct {
	source.Collection
}

func (c *oplogCollection) LastTimestamp(ctx context.Context) (bson.Timestamp, error) {
	return bson.Timestamp{T: 1, I: 1}, nil
}

func (c *oplogCollection) Tail(ctx context.Context, filter interface{}) (source.Cursor, error) {
	return fakeCursor{}, nil
}

type namedSourceDatabase struct {
	name string
	col  source.Collection
}

func (d *namedSourceDatabase) Name() string                             { return d.name }
func (d *namedSourceDatabase) Collection(name string) source.Collection { return d.col }
func (d *namedSourceDatabase) ListShards(ctx context.Context) ([]source.ShardDescriptor, error) {
	return nil, nil
}
func (d *namedSourceDatabase) CollectionExists(ctx context.Context, name string) (bool, error) {
	return true, nil
}

// fakeSourceClient is an unsharded (mongod) deployment exposing one
// empty source collection and an empty, immediately-exhausted oplog
type fakeSourceClient struct {
	source.Client
}

func (c *fakeSourceClient) ServerStatus(ctx context.Context) (*source.ServerInfo, error) {
	return &source.ServerInfo{Process: source.ProcessMongod}, nil
}

func (c *fakeSourceClient) Database(name string) source.Database {
	if name == "local" {
		return &namedSourceDatabase{name: name, col: &oplogCollection{}}
	}
	return &namedSourceDatabase{name: name, col: &itemsCollection{}}
}

// fakeSinkClient exposes a toggleable enable flag; every other sink
// operation is unreachable in this test since the queue never receives
// events for the indexer to flush.
type fakeSinkClient struct {
	sink.Client
	mu      sync.Mutex
	enabled bool
}

func (c *fakeSinkClient) GetEnabled(ctx context.Context, riverIndex, riverName string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled, nil
}

func (c *fakeSinkClient) SetEnabled(ctx context.Context, riverIndex, riverName string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	return nil
}

// fakeCheckpointStore always reports a never-seen namespace
type fakeCheckpointStore struct{}

func (fakeCheckpointStore) Get(ctx context.Context, namespace string) (bson.Timestamp, error) {
	return bson.Timestamp{}, nil
}
func (fakeCheckpointStore) Set(ctx context.Context, namespace string, ts bson.Timestamp) error {
	return nil
}
func (fakeCheckpointStore) Action(namespace string, ts bson.Timestamp) (sink.Action, error) {
	return sink.Action{}, nil
}

func Test_Supervisor_StartsWhenEnabledAndStopsWhenDisabled(t *testing.T) {
	ensureOwnerInitialized(t)

	def, err := river.New("orders-river", "testdb", "items", "orders-index", "_doc", -1, 10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error building definition: %s", err)
	}

	sinkClient := &fakeSinkClient{enabled: true}
	s := New(def, &fakeSourceClient{}, sinkClient, fakeCheckpointStore{}, transform.NoOp{}, newLockDatabase("admin"), "rivers-index", 0)

	ctx := context.Background()
	s.reconcile(ctx)
	if !s.active.Load() {
		t.Fatalf("expected supervisor to become active once enabled and the lock is acquired")
	}

	sinkClient.mu.Lock()
	sinkClient.enabled = false
	sinkClient.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.reconcile(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for supervisor to stop after disable")
	}

	if s.active.Load() {
		t.Errorf("expected supervisor to be inactive after the enable flag was cleared")
	}
}

func Test_Supervisor_CloseIsIdempotent(t *testing.T) {
	ensureOwnerInitialized(t)

	def, err := river.New("close-river", "testdb", "items", "close-index", "_doc", -1, 10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error building definition: %s", err)
	}

	s := New(def, &fakeSourceClient{}, &fakeSinkClient{enabled: false}, fakeCheckpointStore{}, transform.NoOp{}, newLockDatabase("admin"), "rivers-index", 0)
	s.Close()
	s.Close()
}
