// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package batch implements the priority-queued worker pool (C3): workers
// drain requests keyed by queued_at, consult the rate limiter, execute
// through an LLMClient, and route results to success/retry/permanent
// failure.
package batch

import (
	"container/heap"
	"sync"

	"github.com/teradata-labs/llmbatch/pkg/types"
)

// priorityQueue is a heap.Interface over *types.Request ordered by
// QueuedAt, the oldest first. Go has no blocking priority queue in the
// standard library (unlike Python's queue.PriorityQueue), so it is paired
// with a notify channel in requestQueue below.
type priorityQueue []*types.Request

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	return q[i].QueuedAt().Before(q[j].QueuedAt())
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)   { *q = append(*q, x.(*types.Request)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// requestQueue is a thread-safe blocking priority queue keyed by
// Request.QueuedAt, mirroring queue.PriorityQueue's get(timeout=...)
// semantics via a notify channel a waiter can select on.
type requestQueue struct {
	mu     sync.Mutex
	pq     priorityQueue
	notify chan struct{}
}

func newRequestQueue() *requestQueue {
	return &requestQueue{notify: make(chan struct{}, 1)}
}

func (q *requestQueue) Put(r *types.Request) {
	q.mu.Lock()
	heap.Push(&q.pq, r)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// tryGet pops the oldest request if one is present, else returns nil.
func (q *requestQueue) tryGet() *types.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pq.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.pq).(*types.Request)
}
