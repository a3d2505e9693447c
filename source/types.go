// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Initial reference and motivation taken from the teacher's db/store.go
// interface-segregation pattern, extended with the tailable-cursor and
// GridFS contract required to tail a change feed out of MongoDB.

package source

import (
	"context"
	"io"
	"reflect"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// WatchCallbackfn is invoked for every change-stream event observed by Watch
type WatchCallbackfn func(op string, key interface{})

// ServerInfo reports the subset of serverStatus used to distinguish a
// replica-set member from a mongos router
type ServerInfo struct {
	Process string
}

// ShardDescriptor is one row of the config.shards collection
type ShardDescriptor struct {
	ID   string `bson:"_id"`
	Host string `bson:"host"`
}

// GridFSFile is the metadata half of a GridFS file, paired with a readable
// content stream by GridFSOpen
type GridFSFile struct {
	ID          bson.RawValue
	Filename    string
	ContentType string
	MD5         string
	Length      int64
	ChunkSize   int32
}

// Cursor abstracts a tailable, await-data mongo cursor so that slurper
// code never imports the driver package directly
type Cursor interface {
	// Next blocks (subject to ctx) until another document is available or
	// the cursor is exhausted/closed
	Next(ctx context.Context) bool

	// Decode unmarshals the current document into v
	Decode(v interface{}) error

	// Err returns the error, if any, that caused Next to return false
	Err() error

	Close(ctx context.Context) error
}

// Collection is the interface segregation for a single mongo collection,
// generalized from the teacher's StoreCollection to add the tailable
// oplog cursor and GridFS accessors this domain requires
type Collection interface {
	// SetKeyType records the key type used to decode Watch callbacks;
	// only pointer key types are supported
	SetKeyType(keyType reflect.Type) error

	InsertOne(ctx context.Context, key interface{}, data interface{}) error
	UpdateOne(ctx context.Context, key interface{}, data interface{}, upsert bool) error
	FindOne(ctx context.Context, key interface{}, data interface{}) error
	FindMany(ctx context.Context, filter interface{}, data interface{}) error

	// FindManyPage is FindMany with server-side skip/limit pushdown
	FindManyPage(ctx context.Context, filter interface{}, data interface{}, skip, limit int64) error

	// Count reports the number of documents matching filter
	Count(ctx context.Context, filter interface{}) (int64, error)

	DeleteOne(ctx context.Context, key interface{}) error
	DeleteMany(ctx context.Context, filter interface{}) (int64, error)

	// Watch observes changes to this collection via a mongo change stream
	Watch(ctx context.Context, filter interface{}, cb WatchCallbackfn) error

	// Tail opens a tailable + await-data cursor over this collection
	// filtered server-side by filter, sorted implicitly in natural order.
	// Used exclusively against local.oplog.rs.
	Tail(ctx context.Context, filter interface{}) (Cursor, error)

	// LastTimestamp returns the ts field of the most recent entry in
	// natural order, used by full-collection bootstrap to stamp synthetic
	// insert events with the oplog position the copy was taken at.
	// Meaningful only when called against local.oplog.rs.
	LastTimestamp(ctx context.Context) (bson.Timestamp, error)

	// GridFSOpen returns the metadata and a readable content stream for
	// the GridFS file identified by id, backed by the bucket named after
	// this collection's logical files namespace
	GridFSOpen(ctx context.Context, id interface{}) (*GridFSFile, io.ReadCloser, error)
}

// Database groups collections scoped to a single mongo database name
type Database interface {
	// Name returns the database name this handle is scoped to
	Name() string

	Collection(name string) Collection

	// ListShards reads config.shards; only meaningful when called against
	// the config database of a sharded cluster
	ListShards(ctx context.Context) ([]ShardDescriptor, error)

	// CollectionExists reports whether name is a collection that
	// actually exists in this database, as opposed to one that simply
	// returns no documents; used to detect a missing local.oplog.rs
	// (not a replica set member), which is a fatal condition rather
	// than a transient query returning empty
	CollectionExists(ctx context.Context, name string) (bool, error)
}

// Client is the top-level connection handle
type Client interface {
	Database(name string) Database

	// ServerStatus reports whether the connected process is a mongod or
	// a mongos, used to decide replica-set vs sharded-cluster topology
	ServerStatus(ctx context.Context) (*ServerInfo, error)

	// Authenticate re-authenticates against authSource using the supplied
	// local credentials; used as the fallback path when the configured
	// admin credential is rejected, re-authenticating directly against
	// the river's source database instead of admin
	Authenticate(ctx context.Context, user, password, authSource string) error

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
