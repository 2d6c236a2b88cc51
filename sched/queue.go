// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"sync"

	"github.com/nyxlang/nyx/fiber"
)

// globalQueue is the scheduler-wide, unbounded FIFO fallback queue: a
// fiber lands here when the processor that made it runnable has no
// room locally, and a processor checks here (with GlobalQueueBias odds)
// so no fiber waits forever behind a busy local producer. Implemented
// as a doubly linked list, adapted from the teacher's container/list:
// unlike a slice-backed ring this never needs to reallocate/resize to
// stay unbounded, at the cost of a per-node allocation.
type globalQueue struct {
	mu         sync.Mutex
	root       node
	len        int
}

type node struct {
	next, prev *node
	f          *fiber.Fiber
}

func newGlobalQueue() *globalQueue {
	q := &globalQueue{}
	q.root.next = &q.root
	q.root.prev = &q.root
	return q
}

// PushBack enqueues f at the tail.
func (q *globalQueue) PushBack(f *fiber.Fiber) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := &node{f: f}
	last := q.root.prev
	n.prev, n.next = last, &q.root
	last.next, q.root.prev = n, n
	q.len++
}

// PopFront dequeues and returns the head fiber, or nil if empty.
func (q *globalQueue) PopFront() *fiber.Fiber {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.root.next
	if n == &q.root {
		return nil
	}
	n.prev.next, n.next.prev = n.next, n.prev
	q.len--
	return n.f
}

// PopN dequeues up to n fibers at once, for a worker refilling its
// local run queue from the global one.
func (q *globalQueue) PopN(n int) []*fiber.Fiber {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*fiber.Fiber, 0, n)
	for i := 0; i < n; i++ {
		cur := q.root.next
		if cur == &q.root {
			break
		}
		cur.prev.next, cur.next.prev = cur.next, cur.prev
		q.len--
		out = append(out, cur.f)
	}
	return out
}

// Len reports the queue's current length.
func (q *globalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}
