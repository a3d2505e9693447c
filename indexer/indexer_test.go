// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package indexer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/go-core-stack/mongoriver/checkpoint"
	"github.com/go-core-stack/mongoriver/oplog"
	"github.com/go-core-stack/mongoriver/queue"
	"github.com/go-core-stack/mongoriver/river"
	"github.com/go-core-stack/mongoriver/sink"
	"github.com/go-core-stack/mongoriver/transform"
)

func newDef(t *testing.T, opts ...river.Option) *river.Definition {
	t.Helper()
	def, err := river.New("t", "testdb", "items", "items-index", "_doc", queue.Unbounded, 10, 50*time.Millisecond, opts...)
	if err != nil {
		t.Fatalf("unexpected error building definition: %s", err)
	}
	return def
}

type fakeBulk struct {
	added []sink.Action
	err   error
}

func (b *fakeBulk) Add(ctx context.Context, a sink.Action) error {
	b.added = append(b.added, a)
	return nil
}

func (b *fakeBulk) Close(ctx context.Context) (sink.Stats, error) {
	if b.err != nil {
		return sink.Stats{}, b.err
	}
	return sink.Stats{Indexed: int64(len(b.added))}, nil
}

type fakeSinkClient struct {
	sink.Client
	bulk       *fakeBulk
	checkpoint *sink.Timestamp
}

func (c *fakeSinkClient) NewBulk() sink.BulkIndexer {
	c.bulk = &fakeBulk{}
	return c.bulk
}

func (c *fakeSinkClient) CheckpointAction(riverIndex, riverName, namespace string, ts sink.Timestamp) (sink.Action, error) {
	body, _ := json.Marshal(map[string]interface{}{"ts": ts.T})
	return sink.Action{Index: riverIndex, ID: riverName + ":" + namespace, Op: sink.ActionIndex, Body: body}, nil
}

func (c *fakeSinkClient) GetCheckpoint(ctx context.Context, riverIndex, riverName, namespace string) (*sink.Timestamp, error) {
	return c.checkpoint, nil
}

func (c *fakeSinkClient) SetCheckpoint(ctx context.Context, riverIndex, riverName, namespace string, ts sink.Timestamp) error {
	c.checkpoint = &ts
	return nil
}

func (c *fakeSinkClient) Refresh(ctx context.Context, index string) error { return nil }

func (c *fakeSinkClient) GetMapping(ctx context.Context, index, typeName string) (map[string]interface{}, error) {
	return map[string]interface{}{"properties": map[string]interface{}{}}, nil
}

func (c *fakeSinkClient) DeleteMapping(ctx context.Context, index, typeName string) error { return nil }

func (c *fakeSinkClient) PutMapping(ctx context.Context, index, typeName string, mapping map[string]interface{}) error {
	return nil
}

func newEvent(id string, op oplog.Op, body bson.M) *oplog.Event {
	raw, _ := bson.Marshal(body)
	return &oplog.Event{
		ID: oplog.EventIdentity{
			ID:        id,
			Namespace: "testdb.items",
			Op:        op,
			Timestamp: bson.Timestamp{T: 100, I: 1},
		},
		Payload: oplog.Document{Body: raw},
	}
}

func Test_Process_InsertProducesIndexAction(t *testing.T) {
	def := newDef(t)
	sc := &fakeSinkClient{}
	ckpt := checkpoint.New(sc, "rivers", def.Name())
	ix := New(def, queue.New(queue.Unbounded), sc, ckpt, transform.NoOp{}, 0)

	ev := newEvent("abc", oplog.OpInsert, bson.M{"name": "widget"})
	if err := ix.process(context.Background(), []*oplog.Event{ev}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if len(sc.bulk.added) != 2 {
		t.Fatalf("expected 1 data action + 1 checkpoint action, got %d", len(sc.bulk.added))
	}
	if sc.bulk.added[0].Op != sink.ActionIndex || sc.bulk.added[0].ID != "abc" {
		t.Errorf("unexpected first action: %+v", sc.bulk.added[0])
	}
}

func Test_Process_UpdateProducesDeleteThenIndex(t *testing.T) {
	def := newDef(t)
	sc := &fakeSinkClient{}
	ckpt := checkpoint.New(sc, "rivers", def.Name())
	ix := New(def, queue.New(queue.Unbounded), sc, ckpt, transform.NoOp{}, 0)

	ev := newEvent("abc", oplog.OpUpdate, bson.M{"name": "widget2"})
	if err := ix.process(context.Background(), []*oplog.Event{ev}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if len(sc.bulk.added) != 3 {
		t.Fatalf("expected delete+index+checkpoint, got %d", len(sc.bulk.added))
	}
	if sc.bulk.added[0].Op != sink.ActionDelete || sc.bulk.added[1].Op != sink.ActionIndex {
		t.Errorf("expected delete-then-index ordering, got %+v", sc.bulk.added[:2])
	}
}

func Test_Process_DeleteProducesDeleteAction(t *testing.T) {
	def := newDef(t)
	sc := &fakeSinkClient{}
	ckpt := checkpoint.New(sc, "rivers", def.Name())
	ix := New(def, queue.New(queue.Unbounded), sc, ckpt, transform.NoOp{}, 0)

	ev := newEvent("abc", oplog.OpDelete, bson.M{"_id": "abc"})
	if err := ix.process(context.Background(), []*oplog.Event{ev}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if len(sc.bulk.added) != 2 || sc.bulk.added[0].Op != sink.ActionDelete {
		t.Fatalf("expected a single delete action plus checkpoint, got %+v", sc.bulk.added)
	}
}

// ignoringTransformer marks every event ignored, simulating a script
// that filters out a class of documents entirely
type ignoringTransformer struct{}

func (ignoringTransformer) Apply(ctx context.Context, sc *transform.ScriptContext) error {
	sc.Ignore = true
	return nil
}

func Test_IgnoreDirectiveStillAdvancesCheckpoint(t *testing.T) {
	def := newDef(t)
	sc := &fakeSinkClient{}
	ckpt := checkpoint.New(sc, "rivers", def.Name())
	ix := New(def, queue.New(queue.Unbounded), sc, ckpt, ignoringTransformer{}, 0)

	ev := newEvent("abc", oplog.OpInsert, bson.M{"name": "widget"})
	if err := ix.process(context.Background(), []*oplog.Event{ev}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if len(sc.bulk.added) != 1 {
		t.Fatalf("expected only the checkpoint action to survive an ignored batch, got %d actions", len(sc.bulk.added))
	}
	if sc.checkpoint != nil {
		t.Fatalf("SetCheckpoint must not be called directly; checkpoint only advances via the bulk action")
	}
	if sc.bulk.added[0].Body == nil {
		t.Fatalf("expected the checkpoint action body to be the ts-stamped document")
	}
}

func Test_Process_DropCollectionResetsIndexWhenPolicyEnabled(t *testing.T) {
	def := newDef(t, river.WithDropCollectionPolicy(true))
	sc := &fakeSinkClient{}
	ckpt := checkpoint.New(sc, "rivers", def.Name())
	ix := New(def, queue.New(queue.Unbounded), sc, ckpt, transform.NoOp{}, 0)

	dropBody, _ := bson.Marshal(bson.M{"drop": "items"})
	events := []*oplog.Event{
		newEvent("keep-before-drop", oplog.OpInsert, bson.M{"name": "stale"}),
		{
			ID:      oplog.EventIdentity{Namespace: "testdb.items", Op: oplog.OpCommand, Timestamp: bson.Timestamp{T: 101, I: 1}},
			Payload: oplog.Command{Raw: dropBody},
		},
	}

	if err := ix.process(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	// the pre-drop insert action must have been discarded; only the
	// checkpoint action for the batch remains
	if len(sc.bulk.added) != 1 {
		t.Fatalf("expected drop to clear prior actions, leaving only the checkpoint, got %d", len(sc.bulk.added))
	}
}
