// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package checkpoint

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/go-core-stack/mongoriver/sink"
)

// fakeSinkClient implements only the checkpoint-related subset of
// sink.Client meaningfully; every other method is a harmless no-op,
// following the teacher's hand-written-fake test style.
type fakeSinkClient struct {
	sink.Client
	checkpoints map[string]sink.Timestamp
}

func newFakeSinkClient() *fakeSinkClient {
	return &fakeSinkClient{checkpoints: map[string]sink.Timestamp{}}
}

func (f *fakeSinkClient) GetCheckpoint(ctx context.Context, riverIndex, riverName, namespace string) (*sink.Timestamp, error) {
	ts, ok := f.checkpoints[riverName+":"+namespace]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

func (f *fakeSinkClient) SetCheckpoint(ctx context.Context, riverIndex, riverName, namespace string, ts sink.Timestamp) error {
	f.checkpoints[riverName+":"+namespace] = ts
	return nil
}

func (f *fakeSinkClient) CheckpointAction(riverIndex, riverName, namespace string, ts sink.Timestamp) (sink.Action, error) {
	return sink.Action{Index: riverIndex, ID: riverName + ":" + namespace, Op: sink.ActionIndex}, nil
}

func Test_Store_GetReturnsZeroWhenAbsent(t *testing.T) {
	s := New(newFakeSinkClient(), "river-idx", "river-a")
	ts, err := s.Get(context.Background(), "db.coll")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !ts.IsZero() {
		t.Errorf("expected zero timestamp for absent checkpoint, got %v", ts)
	}
}

func Test_Store_SetThenGet(t *testing.T) {
	s := New(newFakeSinkClient(), "river-idx", "river-a")
	ctx := context.Background()
	want := bson.Timestamp{T: 100, I: 2}

	if err := s.Set(ctx, "db.coll", want); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	got, err := s.Get(ctx, "db.coll")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func Test_Store_MonotonicityAcrossSets(t *testing.T) {
	s := New(newFakeSinkClient(), "river-idx", "river-a")
	ctx := context.Background()

	older := bson.Timestamp{T: 100, I: 1}
	newer := bson.Timestamp{T: 100, I: 5}

	if err := s.Set(ctx, "db.coll", older); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := s.Set(ctx, "db.coll", newer); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	got, err := s.Get(ctx, "db.coll")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != newer {
		t.Errorf("expected store to reflect the latest Set, got %v", got)
	}
}

func Test_Store_ActionBuildsCheckpointIndexAction(t *testing.T) {
	s := New(newFakeSinkClient(), "river-idx", "river-a")
	action, err := s.Action("db.coll", bson.Timestamp{T: 1, I: 1})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if action.Op != sink.ActionIndex {
		t.Errorf("expected an index action, got %v", action.Op)
	}
	if action.Index != "river-idx" {
		t.Errorf("expected checkpoint action to target the river index, got %s", action.Index)
	}
}
