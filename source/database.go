// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package source

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type mongoDatabase struct {
	db *mongo.Database
}

// Name returns the underlying database name, used as part of the lease
// and lock table cache keys in the sync package.
func (d *mongoDatabase) Name() string {
	return d.db.Name()
}

func (d *mongoDatabase) Collection(name string) Collection {
	return &mongoCollection{
		parent:  d,
		colName: name,
		col:     d.db.Collection(name),
	}
}

// ListShards reads the shards collection, expected to be called against
// the config database of a sharded cluster
func (d *mongoDatabase) ListShards(ctx context.Context) ([]ShardDescriptor, error) {
	var shards []ShardDescriptor
	col := d.Collection(configShardsCollName)
	if err := col.FindMany(ctx, map[string]interface{}{}, &shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// CollectionExists reports whether name is a real collection in this
// database, as opposed to one that simply has no matching documents;
// used to tell a genuinely missing local.oplog.rs (not a replica set
// member) apart from an oplog that exists but happens to be empty.
func (d *mongoDatabase) CollectionExists(ctx context.Context, name string) (bool, error) {
	names, err := d.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}
