// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Queue is the handoff between slurpers (producers) and the indexer
// (single consumer). Unlike reconciler.Pipeline, it never deduplicates by
// key: every change event must be delivered, including repeated updates
// to the same document. Two backing implementations are selected by
// ThrottleSize, mirroring the control-flow shape of reconciler.Pipeline's
// context-cancelable channel loop (reconciler/pipeline.go) without its
// sync.Map dedup step.

package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/go-core-stack/mongoriver/oplog"
)

// Unbounded is the ThrottleSize value requesting an unbounded queue
const Unbounded = -1

// Queue is a FIFO handoff of oplog events with cancellation-aware
// blocking Put/Take and a Poll that waits at most a given timeout.
type Queue interface {
	// Put enqueues ev, blocking if the queue is bounded and full, until
	// space is available or ctx is done
	Put(ctx context.Context, ev *oplog.Event) error

	// Take blocks until an event is available or ctx is done
	Take(ctx context.Context) (*oplog.Event, error)

	// Poll waits up to timeout for an event; returns (nil, false) on
	// timeout without error
	Poll(ctx context.Context, timeout time.Duration) (*oplog.Event, bool)

	// Len reports the number of events currently queued
	Len() int
}

// New builds a Queue. throttleSize == Unbounded selects a linked-list
// backed queue that never blocks producers; throttleSize >= 1
// selects a buffered-channel backed queue of that capacity.
func New(throttleSize int) Queue {
	if throttleSize == Unbounded {
		return newUnboundedQueue()
	}
	if throttleSize < 1 {
		throttleSize = 1
	}
	return newBoundedQueue(throttleSize)
}

// boundedQueue is a buffered-channel backed FIFO; producers block on Put
// when the channel is full.
type boundedQueue struct {
	ch chan *oplog.Event
}

func newBoundedQueue(capacity int) *boundedQueue {
	return &boundedQueue{ch: make(chan *oplog.Event, capacity)}
}

func (q *boundedQueue) Put(ctx context.Context, ev *oplog.Event) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *boundedQueue) Take(ctx context.Context) (*oplog.Event, error) {
	select {
	case ev := <-q.ch:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *boundedQueue) Poll(ctx context.Context, timeout time.Duration) (*oplog.Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-q.ch:
		return ev, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (q *boundedQueue) Len() int {
	return len(q.ch)
}

// unboundedQueue is a container/list linked list guarded by a mutex and
// condition variable; Put never blocks on capacity.
type unboundedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

func newUnboundedQueue() *unboundedQueue {
	q := &unboundedQueue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *unboundedQueue) Put(ctx context.Context, ev *oplog.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.items.PushBack(ev)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

func (q *unboundedQueue) Take(ctx context.Context) (*oplog.Event, error) {
	// watch ctx cancellation in a helper goroutine so a blocked Wait()
	// can be woken up; this is the standard way to make a sync.Cond
	// cancellation-observing
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.cond.Broadcast()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value.(*oplog.Event), nil
}

func (q *unboundedQueue) Poll(ctx context.Context, timeout time.Duration) (*oplog.Event, bool) {
	type result struct {
		ev *oplog.Event
		ok bool
	}
	resCh := make(chan result, 1)
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		ev, err := q.Take(pollCtx)
		if err != nil {
			resCh <- result{nil, false}
			return
		}
		resCh <- result{ev, true}
	}()

	res := <-resCh
	return res.ev, res.ok
}

func (q *unboundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
