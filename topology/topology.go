// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// topology discovers whether a source deployment is a plain replica set or
// a sharded cluster, per the §4.3.1 rule: a single slurper over a replica
// set, one slurper per shard over a mongos. The shard list is cached
// in-process and invalidated by a change-stream watch on config.shards,
// since a stale read for one polling interval is an accepted cost for
// this class of rarely-changing reference data.

package topology

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/go-core-stack/mongoriver/source"
)

// Member is one server set a slurper should be pointed at: either the
// whole replica set (ShardID empty) or a single shard of a sharded
// cluster.
type Member struct {
	ShardID string
	Hosts   string // config.shards host value as stored, e.g. "rs/h1:27018,h2:27018"
}

// Discover inspects the connected deployment's serverStatus and returns
// one Member per slurper that should run. A replica-set deployment
// yields exactly one Member with an empty ShardID; a sharded deployment
// (serverStatus.process contains "mongos") yields one Member per row of
// config.shards, read through a small cache.
func Discover(ctx context.Context, client source.Client, cache *ShardCache) ([]Member, error) {
	info, err := client.ServerStatus(ctx)
	if err != nil {
		return nil, err
	}

	if !strings.Contains(info.Process, source.ProcessMongos) {
		return []Member{{}}, nil
	}

	shards, err := cache.List(ctx, client)
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(shards))
	for _, s := range shards {
		members = append(members, Member{ShardID: s.ID, Hosts: s.Host})
	}
	return members, nil
}

// ShardCache holds the last-read config.shards rows, refreshed on first
// use and invalidated by a change-stream watch so subsequent reads are
// typically served from memory.
type ShardCache struct {
	mu       sync.RWMutex
	shards   []source.ShardDescriptor
	fetched  bool
	watching bool
}

// NewShardCache builds an empty cache; the first List call populates it
// and starts the invalidating watch.
func NewShardCache() *ShardCache {
	return &ShardCache{}
}

// List returns the cached shard list, populating it (and starting the
// invalidation watch) on first use.
func (c *ShardCache) List(ctx context.Context, client source.Client) ([]source.ShardDescriptor, error) {
	c.mu.RLock()
	if c.fetched {
		defer c.mu.RUnlock()
		return c.shards, nil
	}
	c.mu.RUnlock()

	return c.refresh(ctx, client)
}

func (c *ShardCache) refresh(ctx context.Context, client source.Client) ([]source.ShardDescriptor, error) {
	config := client.Database("config")
	shards, err := config.ListShards(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.shards = shards
	c.fetched = true
	alreadyWatching := c.watching
	c.watching = true
	c.mu.Unlock()

	if !alreadyWatching {
		c.startWatch(ctx, client)
	}

	return shards, nil
}

// startWatch observes config.shards for any change and drops the cached
// copy so the next List call re-reads the collection; the watch
// deliberately never reconciles in-place since shard topology changes are
// rare enough that a full re-read is simpler than an incremental merge.
func (c *ShardCache) startWatch(ctx context.Context, client source.Client) {
	col := client.Database("config").Collection("shards")
	err := col.Watch(ctx, nil, func(op string, key interface{}) {
		c.mu.Lock()
		c.fetched = false
		c.mu.Unlock()
	})
	if err != nil {
		log.Printf("topology: failed to watch config.shards for changes, cache will not auto-invalidate: %s", err)
		c.mu.Lock()
		c.watching = false
		c.mu.Unlock()
	}
}
