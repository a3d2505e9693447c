// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// gridfs fetches GridFS attachment content for oplog entries targeting a
// ".files" namespace and serializes it into the envelope the indexer
// embeds in the sink document. Content reads are wrapped in a
// namespace-keyed rate limiter (github.com/go-core-stack/mongoriver/rate)
// so a single large attachment cannot saturate a slurper's I/O budget.

package gridfs

import (
	"context"
	"encoding/base64"
	"io"

	"github.com/go-core-stack/mongoriver/errors"
	"github.com/go-core-stack/mongoriver/oplog"
	"github.com/go-core-stack/mongoriver/rate"
	"github.com/go-core-stack/mongoriver/source"
)

// Fetcher loads full GridFS file content and builds an attachment event
type Fetcher struct {
	limiters *rate.LimitManager
	// burst bounds the per-namespace limiter's burst size in bytes
	burst int64
	// ratePerSecond bounds the per-namespace limiter's nominal rate
	ratePerSecond int64
}

// NewFetcher builds a Fetcher whose per-namespace reads are throttled to
// ratePerSecond bytes/sec with the given burst
func NewFetcher(ratePerSecond, burst int64) *Fetcher {
	return &Fetcher{
		limiters:      rate.NewLimitManager(ratePerSecond),
		burst:         burst,
		ratePerSecond: ratePerSecond,
	}
}

// Fetch opens and reads the GridFS file identified by id out of col,
// throttled by a limiter keyed on namespace, and returns it as a
// Document event payload upgraded to Attachment.
func (f *Fetcher) Fetch(ctx context.Context, col source.Collection, namespace string, id interface{}) (*oplog.Attachment, error) {
	meta, rc, err := col.GridFSOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	limited, err := f.limitedReader(ctx, namespace, rc)
	if err != nil {
		return nil, err
	}
	defer limited.Close()

	content, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if got := limited.BytesRead(); got != meta.Length {
		return nil, errors.Wrapf(errors.Unknown, "gridfs short read for namespace %s: expected %d bytes, got %d", namespace, meta.Length, got)
	}

	return &oplog.Attachment{
		Content:     content,
		Filename:    meta.Filename,
		ContentType: meta.ContentType,
		MD5:         meta.MD5,
		Length:      meta.Length,
		ChunkSize:   int64(meta.ChunkSize),
	}, nil
}

func (f *Fetcher) limitedReader(ctx context.Context, namespace string, rc io.ReadCloser) (rate.RateLimitedReader, error) {
	if _, err := f.limiters.NewLimiter(namespace, f.ratePerSecond, f.burst); err != nil {
		// limiter for this namespace already registered; fall through
		// and wrap with the existing one
	}
	return f.limiters.WrapReader(ctx, namespace, rc)
}

// EncodeEnvelope renders the fixed GridFS attachment envelope: base64
// content plus the metadata fields, ready to be marshaled as the sink
// document body.
func EncodeEnvelope(a *oplog.Attachment) map[string]interface{} {
	return map[string]interface{}{
		"content":     base64.StdEncoding.EncodeToString(a.Content),
		"filename":    a.Filename,
		"contentType": a.ContentType,
		"md5":         a.MD5,
		"length":      a.Length,
		"chunkSize":   a.ChunkSize,
	}
}
