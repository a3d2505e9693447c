// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// indexer drains the event queue, batches events, applies the configured
// transformation, translates them into Elasticsearch bulk actions, and
// durably checkpoints progress in the same bulk as the data it protects.
// Its accumulate-then-submit-with-stats loop is grounded on
// reconciler/pipeline.go's context-cancelable processing loop, with the
// batch-flush-and-report shape of the apm-server modelindexer/
// high-scale-search StreamProcessor manufacturers observed in the pack.
package indexer

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/go-core-stack/mongoriver/checkpoint"
	"github.com/go-core-stack/mongoriver/gridfs"
	"github.com/go-core-stack/mongoriver/oplog"
	"github.com/go-core-stack/mongoriver/queue"
	"github.com/go-core-stack/mongoriver/rate"
	"github.com/go-core-stack/mongoriver/river"
	"github.com/go-core-stack/mongoriver/sink"
	"github.com/go-core-stack/mongoriver/transform"
)

// bulkPacingLogThreshold is the minimum pacing delay worth logging; sub-
// threshold waits are the normal, expected cost of throttling and would
// just add noise.
const bulkPacingLogThreshold = 250 * time.Millisecond

// Indexer is the single queue consumer for one river
type Indexer struct {
	def         *river.Definition
	queue       queue.Queue
	sinkClient  sink.Client
	checkpoints checkpoint.Store
	transformer transform.Transformer

	bulkLimiter *rate.Limiter
}

// New builds an Indexer draining q and writing to sinkClient, for the
// river described by def. transformer may be transform.NoOp{} when no
// script is configured. bulkRate bounds the pace (actions/sec) at which
// batches are submitted to the sink; pass 0 to disable pacing.
func New(def *river.Definition, q queue.Queue, sinkClient sink.Client, checkpoints checkpoint.Store, transformer transform.Transformer, bulkRate int64) *Indexer {
	ix := &Indexer{
		def:         def,
		queue:       q,
		sinkClient:  sinkClient,
		checkpoints: checkpoints,
		transformer: transformer,
	}
	if bulkRate > 0 {
		mgr := rate.NewLimitManager(bulkRate)
		lim, err := mgr.NewLimiter(def.Name(), bulkRate, bulkRate)
		if err != nil {
			log.Printf("indexer[%s]: failed to install bulk pacing limiter: %s", def.Name(), err)
		} else {
			ix.bulkLimiter = lim
		}
	}
	return ix
}

// Run loops accumulating and submitting batches until ctx is cancelled.
// In-flight events not yet bulk-submitted when Run returns are discarded;
// they are replayed on the next start from the stored checkpoint.
func (ix *Indexer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := ix.runBatch(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("indexer[%s]: %s", ix.def.Name(), err)
		}
	}
}

// runBatch accumulates one batch (blocking for the first event, then
// polling up to BulkTimeout until the batch fills or the queue goes
// quiet) and submits it
func (ix *Indexer) runBatch(ctx context.Context) error {
	first, err := ix.queue.Take(ctx)
	if err != nil {
		return err
	}
	events := []*oplog.Event{first}

	for len(events) < ix.def.BulkSize() {
		ev, ok := ix.queue.Poll(ctx, ix.def.BulkTimeout())
		if !ok {
			break
		}
		events = append(events, ev)
	}

	return ix.process(ctx, events)
}

type counters struct {
	inserted int64
	updated  int64
	deleted  int64
}

// process transforms events into bulk actions, appends the checkpoint
// action, and submits the bulk, logging throughput stats on completion
func (ix *Indexer) process(ctx context.Context, events []*oplog.Event) error {
	start := time.Now()
	var actions []sink.Action
	var stats counters
	var maxTs bson.Timestamp

	for _, ev := range events {
		if tsAfter(ev.ID.Timestamp, maxTs) {
			maxTs = ev.ID.Timestamp
		}

		if _, ok := ev.Payload.(oplog.Command); ok {
			if dropped, isDrop := ev.DropCollection(); isDrop && dropped == ix.def.SourceCollection() {
				if ix.def.DropCollectionPolicy() {
					actions = nil
					stats = counters{}
					if err := ix.handleDropCollection(ctx); err != nil {
						log.Printf("indexer[%s]: drop-collection handling failed: %s", ix.def.Name(), err)
					}
				}
			}
			continue
		}

		itemActions, op, err := ix.transformEvent(ctx, ev)
		if err != nil {
			log.Printf("indexer[%s]: dropping event: %s", ix.def.Name(), err)
			continue
		}
		if itemActions == nil {
			continue
		}
		actions = append(actions, itemActions...)
		switch op {
		case oplog.OpInsert:
			stats.inserted++
		case oplog.OpUpdate:
			stats.updated++
		case oplog.OpDelete:
			stats.deleted++
		}
	}

	if !maxTs.IsZero() {
		ckptAction, err := ix.checkpoints.Action(ix.def.Namespace(), maxTs)
		if err != nil {
			return err
		}
		actions = append(actions, ckptAction)
	}

	if ix.bulkLimiter != nil && len(actions) > 0 {
		waitStart := time.Now()
		if err := ix.bulkLimiter.WaitN(ctx, len(actions)); err != nil {
			return err
		}
		if waited := time.Since(waitStart); waited > bulkPacingLogThreshold {
			log.Printf("indexer[%s]: bulk pacing delayed %d actions by %s", ix.bulkLimiter.Key(), len(actions), waited.Truncate(time.Millisecond))
		}
	}

	bulk := ix.sinkClient.NewBulk()
	for _, a := range actions {
		if err := bulk.Add(ctx, a); err != nil {
			log.Printf("indexer[%s]: failed to add bulk action id=%s: %s", ix.def.Name(), a.ID, err)
		}
	}
	result, err := bulk.Close(ctx)
	if err != nil {
		// transport failure: the checkpoint action above was part of this
		// same bulk and was never durably written, so the next loop turn
		// naturally replays from the last stored checkpoint
		return err
	}

	elapsed := time.Since(start)
	total := result.Indexed + result.Deleted
	throughput := float64(0)
	if elapsed > 0 {
		throughput = float64(total) / elapsed.Seconds()
	}
	log.Printf("indexer[%s]: batch done inserted=%d updated=%d deleted=%d failed=%d elapsed=%s docs/sec=%.1f",
		ix.def.Name(), stats.inserted, stats.updated, stats.deleted, result.Failed, elapsed, throughput)

	return nil
}

// handleDropCollection implements the drop-collection-with-policy-enabled
// workflow: refresh the index, capture the current mapping so any
// customization survives, then delete and reinstall it
func (ix *Indexer) handleDropCollection(ctx context.Context) error {
	index := ix.def.TargetIndex()
	typeName := ix.def.TargetType()

	if err := ix.sinkClient.Refresh(ctx, index); err != nil {
		return err
	}
	mapping, err := ix.sinkClient.GetMapping(ctx, index, typeName)
	if err != nil {
		return err
	}
	if err := ix.sinkClient.DeleteMapping(ctx, index, typeName); err != nil {
		return err
	}
	if len(mapping) == 0 {
		return nil
	}
	return ix.sinkClient.PutMapping(ctx, index, typeName, mapping)
}

// transformEvent builds the document body, applies the configured
// Transformer, and translates the (possibly rewritten) event into the
// bulk action(s) it produces. Returns (nil, "", nil) for an event that is
// dropped (missing id, or an explicit ignore directive) without error.
func (ix *Indexer) transformEvent(ctx context.Context, ev *oplog.Event) ([]sink.Action, oplog.Op, error) {
	id, ok := idString(ev.ID.ID)
	if !ok {
		return nil, "", nil
	}

	doc, err := ix.buildDocument(ev)
	if err != nil {
		return nil, "", err
	}

	if field := ix.def.IncludeCollectionField(); field != "" {
		doc[field] = ix.def.SourceCollection()
	}

	sc := &transform.ScriptContext{
		Document:  doc,
		Operation: string(ev.ID.Op),
		ID:        id,
	}
	if err := ix.transformer.Apply(ctx, sc); err != nil {
		log.Printf("indexer[%s]: script evaluation error, keeping original document/operation: %s", ix.def.Name(), err)
		sc = &transform.ScriptContext{Document: doc, Operation: string(ev.ID.Op), ID: id}
	}

	if sc.Ignore {
		return nil, "", nil
	}

	op := oplog.Op(sc.Operation)
	if sc.Deleted {
		op = oplog.OpDelete
	}

	index := ix.def.TargetIndex()
	if sc.Index != "" {
		index = sc.Index
	}
	routing := sc.Routing
	parent := sc.Parent
	if sc.ID != "" {
		id = sc.ID
	}

	var body []byte
	if op != oplog.OpDelete {
		body, err = json.Marshal(sc.Document)
		if err != nil {
			return nil, "", err
		}
	}

	switch op {
	case oplog.OpInsert:
		return []sink.Action{{Index: index, ID: id, Routing: routing, Parent: parent, Op: sink.ActionIndex, Body: body}}, oplog.OpInsert, nil
	case oplog.OpUpdate:
		return []sink.Action{
			{Index: index, ID: id, Routing: routing, Parent: parent, Op: sink.ActionDelete},
			{Index: index, ID: id, Routing: routing, Parent: parent, Op: sink.ActionIndex, Body: body},
		}, oplog.OpUpdate, nil
	case oplog.OpDelete:
		return []sink.Action{{Index: index, ID: id, Routing: routing, Parent: parent, Op: sink.ActionDelete}}, oplog.OpDelete, nil
	default:
		return nil, "", nil
	}
}

// buildDocument renders the event payload as the map a Transformer
// operates on: the document body for insert/update/delete, or the
// serialized GridFS envelope for an attachment
func (ix *Indexer) buildDocument(ev *oplog.Event) (map[string]interface{}, error) {
	switch p := ev.Payload.(type) {
	case oplog.Document:
		if len(p.Body) == 0 {
			return map[string]interface{}{}, nil
		}
		var doc bson.M
		if err := bson.Unmarshal(p.Body, &doc); err != nil {
			return nil, err
		}
		return map[string]interface{}(doc), nil
	case oplog.Attachment:
		return gridfs.EncodeEnvelope(&p), nil
	default:
		return map[string]interface{}{}, nil
	}
}

// idString converts the event's carried identity (typically a
// bson.RawValue extracted by the slurper, but a plain string or integer
// is also accepted to keep hand-written test fakes simple) into the
// string form Elasticsearch document ids require
func idString(id interface{}) (string, bool) {
	switch v := id.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case bson.RawValue:
		switch v.Type {
		case bson.TypeObjectID:
			oid, ok := v.ObjectIDOK()
			return oid.Hex(), ok
		case bson.TypeString:
			s, ok := v.StringValueOK()
			return s, ok
		case bson.TypeInt32:
			i, ok := v.Int32OK()
			return strconv.Itoa(int(i)), ok
		case bson.TypeInt64:
			i, ok := v.Int64OK()
			return strconv.FormatInt(i, 10), ok
		default:
			if len(v.Value) == 0 {
				return "", false
			}
			return v.String(), true
		}
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

// tsAfter reports whether a sorts strictly after b
func tsAfter(a, b bson.Timestamp) bool {
	if a.T != b.T {
		return a.T > b.T
	}
	return a.I > b.I
}
