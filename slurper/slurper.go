// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// slurper tails a single source MongoDB deployment's oplog and produces
// normalized change events onto the event queue. Its outer
// reconnect-and-reposition loop is grounded on experimental/
// replicate_mongo.go's bookmark-then-drain control flow, generalized from
// a one-shot reseed into a resumable tailing loop that resumes from a
// durable checkpoint instead of an in-memory change-stream token.
package slurper

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/go-core-stack/mongoriver/checkpoint"
	"github.com/go-core-stack/mongoriver/errors"
	"github.com/go-core-stack/mongoriver/gridfs"
	"github.com/go-core-stack/mongoriver/oplog"
	"github.com/go-core-stack/mongoriver/queue"
	"github.com/go-core-stack/mongoriver/river"
	"github.com/go-core-stack/mongoriver/source"
)

// reconnectDelay is the pause between outer-loop iterations, short enough
// to recover quickly but long enough to avoid a tight reconnect spin
const reconnectDelay = 500 * time.Millisecond

// fatalErr wraps a runOnce error that must terminate this slurper's
// goroutine outright instead of restarting the outer loop: a missing
// local.oplog.rs (not a replica set member) or an auth failure that
// survives the local-credential fallback, per the §4.3.5 error-recovery
// table
type fatalErr struct {
	err error
}

func (e *fatalErr) Error() string { return e.err.Error() }
func (e *fatalErr) Unwrap() error { return e.err }

func fatal(err error) error { return &fatalErr{err: err} }

// Slurper tails one source deployment (a replica set, or a single shard
// of a sharded cluster) for a single river definition
type Slurper struct {
	// ShardID is empty for an unsharded deployment, or the shard
	// identifier this instance is responsible for; carried only for
	// logging, since event ordering is not preserved across shards
	ShardID string

	client      source.Client
	checkpoints checkpoint.Store
	queue       queue.Queue
	def         *river.Definition
	fetcher     *gridfs.Fetcher
}

// New builds a Slurper reading from client and writing normalized events
// onto q, for the river described by def
func New(client source.Client, checkpoints checkpoint.Store, q queue.Queue, def *river.Definition, fetcher *gridfs.Fetcher) *Slurper {
	return &Slurper{client: client, checkpoints: checkpoints, queue: q, def: def, fetcher: fetcher}
}

// Run tails the oplog until ctx is cancelled, reconnecting and
// repositioning after any driver error per the §4.3.5 error-recovery
// table. It never propagates errors to its caller; every failure either
// self-heals by restarting the outer loop or is fatal only for this
// goroutine.
func (s *Slurper) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			var fe *fatalErr
			if stderrors.As(err, &fe) {
				log.Printf("slurper[%s/%s]: fatal: %s, stopping", s.def.Namespace(), s.ShardID, fe.err)
				return
			}
			log.Printf("slurper[%s/%s]: %s, reconnecting", s.def.Namespace(), s.ShardID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// runOnce performs one outer iteration: resume-position resolution,
// optional full-collection bootstrap, then tails the oplog until the
// cursor errors, is exhausted, or ctx is cancelled
func (s *Slurper) runOnce(ctx context.Context) error {
	if err := s.ensureAuthenticated(ctx); err != nil {
		return err
	}

	namespace := s.def.Namespace()
	localDB := s.client.Database("local")

	exists, err := localDB.CollectionExists(ctx, "oplog.rs")
	if err != nil {
		return err
	}
	if !exists {
		return fatal(fmt.Errorf("local.oplog.rs not found: source is not a replica set member"))
	}
	oplogCol := localDB.Collection("oplog.rs")

	db := s.client.Database(s.def.SourceDatabase())
	col := db.Collection(s.def.SourceCollection())

	resumeTs, err := s.checkpoints.Get(ctx, namespace)
	if err != nil {
		return err
	}

	if resumeTs.IsZero() {
		if it := s.def.InitialTimestamp(); it != nil {
			resumeTs = bson.Timestamp{T: uint32(it.Unix())}
		} else {
			t0, err := oplogCol.LastTimestamp(ctx)
			if err != nil {
				return err
			}
			if err := s.bootstrap(ctx, col, t0); err != nil {
				return err
			}
			resumeTs = t0
		}
	}

	filter := oplog.BuildFilter(s.def.SourceDatabase(), s.def.SourceCollection(), s.def.IsGridFS(), s.def.Filter(), resumeTs)
	cursor, err := oplogCol.Tail(ctx, filter)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var entry oplog.Entry
		if err := cursor.Decode(&entry); err != nil {
			log.Printf("slurper[%s/%s]: decode error, skipping entry: %s", namespace, s.ShardID, err)
			continue
		}
		if err := s.handleEntry(ctx, &entry, col); err != nil {
			log.Printf("slurper[%s/%s]: error handling oplog entry: %s", namespace, s.ShardID, err)
		}
	}

	if err := cursor.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		// "no such element" on a tailable cursor is the benign case of
		// the cursor running dry without new data; any other error is a
		// real driver fault, both are handled the same way: the outer
		// loop restarts and repositions from the last checkpoint
		return err
	}
	return nil
}

// ensureAuthenticated probes the admin database and, if the configured
// credential is rejected, falls back to re-authenticating directly
// against the river's source database per §4.3.5/§7 error kinds 4/5. A
// river with no configured credentials skips the probe entirely. A
// rejection that survives the local-credential fallback is fatal for
// this slurper.
func (s *Slurper) ensureAuthenticated(ctx context.Context) error {
	if s.def.Username() == "" {
		return nil
	}

	_, err := s.client.ServerStatus(ctx)
	if err == nil {
		return nil
	}
	if !errors.IsAuthFailure(err) {
		return err
	}

	log.Printf("slurper[%s/%s]: admin authentication rejected, attempting local credential path: %s", s.def.Namespace(), s.ShardID, err)

	password, err := s.def.Password()
	if err != nil {
		return fatal(fmt.Errorf("local credential unavailable: %w", err))
	}
	if err := s.client.Authenticate(ctx, s.def.Username(), password, s.def.SourceDatabase()); err != nil {
		return fatal(fmt.Errorf("local credential authentication failed: %w", err))
	}
	return nil
}

// bootstrap performs the full-collection copy: every current document is
// enqueued as a synthetic insert event stamped with t0, the oplog
// position the copy was taken at
func (s *Slurper) bootstrap(ctx context.Context, col source.Collection, t0 bson.Timestamp) error {
	var docs []bson.Raw
	if err := col.FindMany(ctx, bson.D{}, &docs); err != nil {
		return err
	}

	namespace := s.def.Namespace()
	for _, raw := range docs {
		id, err := raw.LookupErr("_id")
		if err != nil {
			continue
		}
		body := stripFields(raw, s.def.ExcludeFields())
		ev := &oplog.Event{
			ID: oplog.EventIdentity{
				ID:        id,
				Namespace: namespace,
				Op:        oplog.OpInsert,
				Timestamp: t0,
			},
			Payload: oplog.Document{Body: body},
		}
		if err := s.queue.Put(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// handleEntry converts one oplog entry into zero or more queued events,
// per the §4.3.4 event-production rules
func (s *Slurper) handleEntry(ctx context.Context, entry *oplog.Entry, col source.Collection) error {
	if entry.FromMigrate {
		return nil
	}
	if entry.IsChunkWrite() {
		return nil
	}

	namespace := s.def.Namespace()

	if entry.IsCommand() {
		return s.queue.Put(ctx, &oplog.Event{
			ID: oplog.EventIdentity{
				Namespace: namespace,
				Op:        oplog.OpCommand,
				Timestamp: entry.Ts,
			},
			Payload: oplog.Command{Raw: entry.O},
		})
	}

	if entry.IsGridFSFile() {
		return s.handleGridFS(ctx, entry, col)
	}

	switch entry.Op {
	case source.OpUpdate:
		return s.handleUpdate(ctx, entry, col)
	case source.OpInsert, source.OpDelete:
		id, ok := entry.DocumentID()
		if !ok {
			return nil
		}
		op := oplog.OpInsert
		var payload oplog.EventPayload = oplog.Document{Body: stripFields(entry.O, s.def.ExcludeFields())}
		if entry.Op == source.OpDelete {
			op = oplog.OpDelete
			payload = oplog.Document{Body: entry.O}
		}
		return s.queue.Put(ctx, &oplog.Event{
			ID: oplog.EventIdentity{
				ID:        id,
				Namespace: namespace,
				Op:        op,
				Timestamp: entry.Ts,
			},
			Payload: payload,
		})
	default:
		return nil
	}
}

// handleUpdate re-queries the source collection using the oplog entry's
// update selector (o2) and emits one update event per currently matching
// document. This is eventually-consistent latest-state replication, not
// a point-in-time mutation log: the re-query happens after the update has
// already landed, so rapid successive updates on the same selector may
// cause an older oplog timestamp to observe newer document state. The
// source accepts this; documents deleted between the oplog write and the
// re-query silently drop an event, which is the expected at-least-once
// behavior.
func (s *Slurper) handleUpdate(ctx context.Context, entry *oplog.Entry, col source.Collection) error {
	if len(entry.O2) == 0 {
		return nil
	}

	var docs []bson.Raw
	if err := col.FindMany(ctx, entry.O2, &docs); err != nil {
		return err
	}

	namespace := s.def.Namespace()
	for _, raw := range docs {
		id, err := raw.LookupErr("_id")
		if err != nil {
			continue
		}
		ev := &oplog.Event{
			ID: oplog.EventIdentity{
				ID:        id,
				Namespace: namespace,
				Op:        oplog.OpUpdate,
				Timestamp: entry.Ts,
			},
			Payload: oplog.Document{Body: stripFields(raw, s.def.ExcludeFields())},
		}
		if err := s.queue.Put(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// handleGridFS fetches the full GridFS file (metadata + content) named by
// the oplog entry and emits an attachment event
func (s *Slurper) handleGridFS(ctx context.Context, entry *oplog.Entry, col source.Collection) error {
	id, ok := entry.DocumentID()
	if !ok {
		return nil
	}

	op := oplog.OpInsert
	if entry.Op == source.OpUpdate {
		op = oplog.OpUpdate
	} else if entry.Op == source.OpDelete {
		return s.queue.Put(ctx, &oplog.Event{
			ID: oplog.EventIdentity{
				ID:        id,
				Namespace: s.def.Namespace(),
				Op:        oplog.OpDelete,
				Timestamp: entry.Ts,
			},
			Payload: oplog.Document{Body: entry.O},
		})
	}

	attachment, err := s.fetcher.Fetch(ctx, col, s.def.Namespace(), id)
	if err != nil {
		return err
	}

	return s.queue.Put(ctx, &oplog.Event{
		ID: oplog.EventIdentity{
			ID:        id,
			Namespace: s.def.Namespace(),
			Op:        op,
			Timestamp: entry.Ts,
		},
		Payload: *attachment,
	})
}

// stripFields removes the named top-level fields from raw, used to honor
// the river's configured exclude-field list before a document is queued
func stripFields(raw bson.Raw, excluded []string) bson.Raw {
	if len(excluded) == 0 || len(raw) == 0 {
		return raw
	}
	drop := make(map[string]bool, len(excluded))
	for _, f := range excluded {
		drop[f] = true
	}

	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return raw
	}
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if drop[e.Key] {
			continue
		}
		out = append(out, e)
	}
	body, err := bson.Marshal(out)
	if err != nil {
		return raw
	}
	return body
}
