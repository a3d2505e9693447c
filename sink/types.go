// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// sink models the Elasticsearch side of the pipeline: target index
// lifecycle, mapping management, bulk submission, and the two
// well-known records (checkpoint, enable flag) persisted alongside the
// indexed data. It depends only on go-elasticsearch, never on the mongo
// driver, so checkpoint timestamps are carried as a plain (seconds,
// ordinal) pair mirroring bson.Timestamp's shape.

package sink

import "context"

// Timestamp mirrors bson.Timestamp's (T, I) pair without importing the
// mongo driver into this package
type Timestamp struct {
	T uint32
	I uint32
}

// Before reports whether ts sorts strictly before other
func (ts Timestamp) Before(other Timestamp) bool {
	if ts.T != other.T {
		return ts.T < other.T
	}
	return ts.I < other.I
}

// IsZero reports whether ts is the zero value
func (ts Timestamp) IsZero() bool {
	return ts.T == 0 && ts.I == 0
}

// ActionOp distinguishes a bulk index action from a delete action
type ActionOp string

const (
	ActionIndex  ActionOp = "index"
	ActionDelete ActionOp = "delete"
)

// Action is one item of a bulk request
type Action struct {
	Index   string
	ID      string
	Routing string
	Parent  string
	Op      ActionOp
	// Body is the JSON-encoded document; unused for ActionDelete
	Body []byte
}

// Stats summarizes the outcome of a bulk submission
type Stats struct {
	Indexed int64
	Deleted int64
	Failed  int64
}

// BulkIndexer accumulates actions and submits them as a single bulk
// request on Close
type BulkIndexer interface {
	Add(ctx context.Context, action Action) error
	Close(ctx context.Context) (Stats, error)
}

// Client is the Elasticsearch contract required by core: index lifecycle,
// mapping management, bulk submission and the two well-known records
// (checkpoint, enable flag).
type Client interface {
	CreateIndex(ctx context.Context, index string) error
	DeleteIndex(ctx context.Context, index string) error
	Refresh(ctx context.Context, index string) error

	PutMapping(ctx context.Context, index, typeName string, mapping map[string]interface{}) error
	DeleteMapping(ctx context.Context, index, typeName string) error
	GetMapping(ctx context.Context, index, typeName string) (map[string]interface{}, error)

	// GetCheckpoint reads the stored _last_ts for db.collection, nil if
	// none has ever been written
	GetCheckpoint(ctx context.Context, riverIndex, riverName, namespace string) (*Timestamp, error)

	// SetCheckpoint is used only by tests (via checkpoint.Store.Set); the
	// indexer's normal path writes the checkpoint as part of the same
	// bulk as the data it protects, via a NewBulk() index action
	SetCheckpoint(ctx context.Context, riverIndex, riverName, namespace string, ts Timestamp) error

	// GetEnabled reads the per-river enable flag
	GetEnabled(ctx context.Context, riverIndex, riverName string) (bool, error)

	// SetEnabled writes the per-river enable flag
	SetEnabled(ctx context.Context, riverIndex, riverName string, enabled bool) error

	// CheckpointAction builds the bulk index action writing the
	// checkpoint record, for inclusion in the same bulk as the data it
	// protects
	CheckpointAction(riverIndex, riverName, namespace string, ts Timestamp) (Action, error)

	NewBulk() BulkIndexer
}
