// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package mapping

import (
	"context"
	"log"

	"github.com/go-core-stack/mongoriver/errors"
	"github.com/go-core-stack/mongoriver/sink"
)

// gridFSProperties is the fixed field mapping installed for attachment
// documents: content as binary, the string metadata fields as text, and
// the two size fields as long
var gridFSProperties = map[string]interface{}{
	"content":     map[string]interface{}{"type": "binary"},
	"filename":    map[string]interface{}{"type": "text"},
	"contentType": map[string]interface{}{"type": "text"},
	"md5":         map[string]interface{}{"type": "text"},
	"length":      map[string]interface{}{"type": "long"},
	"chunkSize":   map[string]interface{}{"type": "long"},
}

// EnsureTargetReady creates the target index if absent, tolerating
// "already exists", and installs the GridFS field mapping when isGridFS
// is set. A transient cluster-unavailable condition is logged and
// treated as recoverable: the caller proceeds, and the first indexer
// bulk either succeeds once the cluster recovers or fails and is
// retried by the indexer loop. Any other failure aborts startup.
func EnsureTargetReady(ctx context.Context, client sink.Client, index, typeName string, isGridFS bool) error {
	if err := client.CreateIndex(ctx, index); err != nil {
		switch {
		case errors.IsAlreadyExists(err):
			// index already present, nothing to do
		case errors.IsClusterNotReady(err):
			log.Printf("cluster not ready while creating index %s, proceeding: %s", index, err)
		default:
			return err
		}
	}

	if !isGridFS {
		return nil
	}

	if err := client.PutMapping(ctx, index, typeName, gridFSProperties); err != nil {
		if errors.IsClusterNotReady(err) {
			log.Printf("cluster not ready while installing GridFS mapping on %s, proceeding: %s", index, err)
			return nil
		}
		return err
	}
	return nil
}
