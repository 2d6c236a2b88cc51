// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package proc implements the Processor: the resource a Worker must
// hold to run fibers. Each Processor owns a bounded local run queue
// (a classic work-stealing deque — LIFO from the owner, FIFO to a
// stealer) and the heap region currently being bump-allocated into on
// its behalf.
package proc

import (
	"sync"

	"golang.org/x/exp/rand"

	"github.com/nyxlang/nyx/fiber"
	"github.com/nyxlang/nyx/heap"
)

// RunqCap is the local run queue's fixed capacity; beyond it, a put
// overflows to the scheduler's global run queue.
const RunqCap = 256

// GlobalQueueBias is the 1-in-N chance a Processor checks the global
// run queue before its own local queue, preventing a busy local
// producer from starving globally queued work.
const GlobalQueueBias = 32

// Processor is one slot of parallelism: a Worker must acquire a
// Processor before it can run fibers.
type Processor struct {
	ID int

	mu    sync.Mutex
	runq  [RunqCap]*fiber.Fiber
	head  int
	tail  int
	count int

	// runnext is a single-slot LIFO fast path: the fiber most recently
	// made runnable by the processor's own owner (e.g. a fiber that
	// just spawned a child) runs next, ahead of anything already
	// queued, matching the real scheduler's "run what you just made
	// runnable" heuristic.
	runnext *fiber.Fiber

	rng *rand.Rand

	// Region is the heap region currently being bump-allocated into by
	// whatever fiber this processor is running.
	Region *heap.Region
}

// New constructs a processor with a steal-victim PRNG seeded from seed.
func New(id int, seed uint64) *Processor {
	return &Processor{ID: id, rng: rand.New(rand.NewSource(seed))}
}

// Put enqueues f on the local run queue. If next is true, f is
// installed as the LIFO runnext slot, displacing whatever was there
// into the regular array part of the queue. ok is false if the
// queue (and runnext) are both full and the caller must push f to the
// scheduler's global run queue instead.
func (p *Processor) Put(f *fiber.Fiber, next bool) (ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if next {
		old := p.runnext
		p.runnext = f
		if old == nil {
			return true
		}
		f = old // push the displaced fiber into the array below
	}

	if p.count == RunqCap {
		return false
	}
	p.runq[p.tail] = f
	p.tail = (p.tail + 1) % RunqCap
	p.count++
	return true
}

// Get pops the next fiber the owner should run: the runnext slot if
// set, else the most recently queued fiber (LIFO) — a stealer takes
// from the opposite end (Steal, FIFO from the head), the classic
// work-stealing deque split this package's doc comment promises.
func (p *Processor) Get() *fiber.Fiber {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runnext != nil {
		f := p.runnext
		p.runnext = nil
		return f
	}
	if p.count == 0 {
		return nil
	}
	p.tail = (p.tail - 1 + RunqCap) % RunqCap
	f := p.runq[p.tail]
	p.runq[p.tail] = nil
	p.count--
	return f
}

// Steal removes and returns roughly half of victim's queued fibers
// (not including its runnext slot, which only its owner may take),
// for the caller to run. It returns nil if victim has nothing stealable.
func (p *Processor) Steal(victim *Processor) []*fiber.Fiber {
	victim.mu.Lock()
	defer victim.mu.Unlock()

	n := victim.count / 2
	if n == 0 {
		return nil
	}
	stolen := make([]*fiber.Fiber, 0, n)
	for i := 0; i < n; i++ {
		stolen = append(stolen, victim.runq[victim.head])
		victim.runq[victim.head] = nil
		victim.head = (victim.head + 1) % RunqCap
		victim.count--
	}
	return stolen
}

// Len reports how many fibers are queued locally, runnext included.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.count
	if p.runnext != nil {
		n++
	}
	return n
}

// NextVictim returns a pseudo-random index in [0, n), for selecting a
// steal target among n processors.
func (p *Processor) NextVictim(n int) int {
	if n <= 0 {
		return 0
	}
	return int(p.rng.Uint32()) % n
}
