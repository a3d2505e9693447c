// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// checkpoint bridges the mongo-side bson.Timestamp the slurper works in
// to the transport-neutral sink.Timestamp the sink package persists,
// keeping the sink package free of a mongo-driver dependency.

package checkpoint

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/go-core-stack/mongoriver/sink"
)

// Store reads and writes the per-namespace checkpoint record. Writes go
// through the indexer only, in the same bulk as the data they protect;
// reads come from slurpers at startup. Stale reads are acceptable since
// the indexer always advances the checkpoint monotonically.
type Store interface {
	// Get returns the last durable timestamp for db.collection, or the
	// zero Timestamp if none has ever been written
	Get(ctx context.Context, namespace string) (bson.Timestamp, error)

	// Set writes the checkpoint directly; used only by tests. The
	// indexer's normal path uses Action instead, so the
	// write lands in the same bulk as the data it protects.
	Set(ctx context.Context, namespace string, ts bson.Timestamp) error

	// Action builds the bulk index action for this namespace's
	// checkpoint, for inclusion in an indexer bulk
	Action(namespace string, ts bson.Timestamp) (sink.Action, error)
}

type store struct {
	client     sink.Client
	riverIndex string
	riverName  string
}

// New builds a Store backed by client, scoped to one river (one
// db.collection source -> index/type target)
func New(client sink.Client, riverIndex, riverName string) Store {
	return &store{client: client, riverIndex: riverIndex, riverName: riverName}
}

func toBSON(ts sink.Timestamp) bson.Timestamp {
	return bson.Timestamp{T: ts.T, I: ts.I}
}

func fromBSON(ts bson.Timestamp) sink.Timestamp {
	return sink.Timestamp{T: ts.T, I: ts.I}
}

func (s *store) Get(ctx context.Context, namespace string) (bson.Timestamp, error) {
	ts, err := s.client.GetCheckpoint(ctx, s.riverIndex, s.riverName, namespace)
	if err != nil {
		return bson.Timestamp{}, err
	}
	if ts == nil {
		return bson.Timestamp{}, nil
	}
	return toBSON(*ts), nil
}

func (s *store) Set(ctx context.Context, namespace string, ts bson.Timestamp) error {
	return s.client.SetCheckpoint(ctx, s.riverIndex, s.riverName, namespace, fromBSON(ts))
}

func (s *store) Action(namespace string, ts bson.Timestamp) (sink.Action, error) {
	return s.client.CheckpointAction(s.riverIndex, s.riverName, namespace, fromBSON(ts))
}
