// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package sink

import (
	"bytes"
	"context"
	"log"
	"sync/atomic"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

type esBulkIndexer struct {
	bi       esutil.BulkIndexer
	indexed  atomic.Int64
	deleted  atomic.Int64
	failed   atomic.Int64
}

func newBulkIndexer(es *elasticsearch.Client) *esBulkIndexer {
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{Client: es})
	if err != nil {
		// esutil.NewBulkIndexer only fails on invalid config, never on
		// transient cluster conditions; a panic here would be a wiring
		// bug, not a runtime/transport fault
		log.Panicf("failed to construct bulk indexer: %s", err)
	}
	return &esBulkIndexer{bi: bi}
}

func (b *esBulkIndexer) Add(ctx context.Context, action Action) error {
	item := esutil.BulkIndexerItem{
		Index:      action.Index,
		DocumentID: action.ID,
		Action:     string(action.Op),
	}
	if action.Routing != "" {
		item.Routing = action.Routing
	} else if action.Parent != "" {
		// Elasticsearch 7+ dropped classic parent/child mapping types in
		// favor of join fields, which co-locate parent and child by
		// routing the child to its parent's shard; esutil.BulkIndexerItem
		// has no dedicated parent field, so an explicit parent override
		// with no routing of its own is applied as the routing key.
		item.Routing = action.Parent
	}
	if action.Op == ActionIndex {
		item.Body = bytes.NewReader(action.Body)
	}
	item.OnSuccess = func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem) {
		if action.Op == ActionDelete {
			b.deleted.Add(1)
		} else {
			b.indexed.Add(1)
		}
	}
	item.OnFailure = func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
		b.failed.Add(1)
		if err != nil {
			log.Printf("bulk item failed: index=%s id=%s: %s", item.Index, item.DocumentID, err)
		} else {
			log.Printf("bulk item failed: index=%s id=%s: %s", item.Index, item.DocumentID, res.Error.Reason)
		}
	}

	return b.bi.Add(ctx, item)
}

func (b *esBulkIndexer) Close(ctx context.Context) (Stats, error) {
	if err := b.bi.Close(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{
		Indexed: b.indexed.Load(),
		Deleted: b.deleted.Load(),
		Failed:  b.failed.Load(),
	}, nil
}
