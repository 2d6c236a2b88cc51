// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched implements the fiber scheduler of spec.md §4.9: a fixed
// pool of OS-thread Workers, each binding a proc.Processor to run
// fiber.Fibers, work-stealing between processors, a global run queue as
// the starvation-proof fallback, and the stop-the-world barrier the
// collector drives GC phases through.
//
// Grounded on the teacher's runtime/proc.go scheduling loop (schedule,
// findRunnable, stopTheWorld/startTheWorld) translated into goroutine
// terms: a Worker here is a goroutine parked on channels instead of an
// OS thread parked on a futex, but the state machine and work-stealing
// shape are the same.
package sched

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nyxlang/nyx/alloc"
	"github.com/nyxlang/nyx/fiber"
	"github.com/nyxlang/nyx/fiberstack"
	"github.com/nyxlang/nyx/internal/debugflag"
	"github.com/nyxlang/nyx/internal/parking"
	"github.com/nyxlang/nyx/module"
	"github.com/nyxlang/nyx/proc"
	"github.com/nyxlang/nyx/thread"
	"github.com/nyxlang/nyx/value"
	"github.com/nyxlang/nyx/worker"
)

// Entry is supplied by the caller that owns bytecode execution (package
// vm, via the top-level wiring in nyx.go) — sched has no idea what a
// bytecode loop is, only how to run a fiber to completion. It is called
// on the fiber's own goroutine once per spawn.
type Entry func(f *fiber.Fiber, th *thread.Thread, fn *module.Function, self value.Value, args []value.Value)

// record is the scheduler's bookkeeping for one live (or recently
// exited) fiber: its thread control block, its stack, and whoever is
// waiting to Join it.
type record struct {
	fiber   *fiber.Fiber
	thread  *thread.Thread
	stack   *fiberstack.Stack
	waiters []chan struct{}
}

// Scheduler owns the worker/processor pool, the global run queue, the
// free-thread/free-stack recycling pools, and the STW barrier.
type Scheduler struct {
	procs   []*proc.Processor
	workers []*worker.Worker
	global  *globalQueue
	alloc   *alloc.Allocator

	stopFlag int32 // atomic: shared by every thread.Thread.SafepointFlag
	stopAll  int32 // atomic: set by Stop, checked by workerLoop when idle

	mu          sync.Mutex
	idleProcs   []int // LIFO stack of processor indices with no bound worker
	live        map[uint64]*record
	freeThreads []*thread.Thread
	freeStacks  []*fiberstack.Stack
	nextFiberID uint64
	running     int // count of workers not yet Exited

	stwMu      sync.Mutex
	stwActive  bool
	stwStopped int
	stwResume  chan struct{}

	entry Entry
}

// New constructs a Scheduler with n processors/workers (n <= 0 defaults
// to a single processor) over a, whose active regions a worker releases
// via alloc.ReleaseActive on going idle (spec.md §4.7's "released to the
// allocator if the processor becomes idle"). entry is run on every
// spawned fiber's own goroutine.
func New(n int, a *alloc.Allocator, entry Entry) *Scheduler {
	if n <= 0 {
		n = 1
	}
	s := &Scheduler{
		global: newGlobalQueue(),
		alloc:  a,
		live:   make(map[uint64]*record),
		entry:  entry,
	}
	for i := 0; i < n; i++ {
		s.procs = append(s.procs, proc.New(i, uint64(i)+1))
		s.idleProcs = append(s.idleProcs, i)
	}
	return s
}

// Start launches one worker per processor, each on its own goroutine,
// and returns without waiting for them to begin scheduling. Workers run
// until Stop is called.
func (s *Scheduler) Start() {
	lot := parking.New()
	for i := 0; i < len(s.procs); i++ {
		w := worker.New(i, lot)
		s.mu.Lock()
		s.workers = append(s.workers, w)
		s.running++
		s.mu.Unlock()
		go s.workerLoop(w)
	}
}

// Stop requests every worker exit at its next idle check, then wakes
// any already-parked workers so they observe it promptly; it does not
// forcibly kill a worker mid-fiber. Callers (nyx.Shutdown) should Join
// every outstanding fiber first.
func (s *Scheduler) Stop() {
	atomic.StoreInt32(&s.stopAll, 1)
	for _, w := range s.workers {
		w.Wake()
	}
}

// Spawn allocates (or recycles) a thread and stack, builds the root
// frame via s.entry, and schedules the new fiber onto a processor's
// local queue (the global queue if none is available), waking one idle
// worker. It returns the new fiber's id, the handle Join takes.
func (s *Scheduler) Spawn(fn *module.Function, self value.Value, args []value.Value) uint64 {
	th := s.takeThread()
	st := s.takeStack()

	s.mu.Lock()
	id := s.nextFiberID
	s.nextFiberID++
	s.mu.Unlock()

	f := fiber.New(id, st, func(fb *fiber.Fiber) {
		s.entry(fb, th, fn, self, args)
	})

	s.mu.Lock()
	s.live[id] = &record{fiber: f, thread: th, stack: st}
	s.mu.Unlock()

	s.enqueue(f)
	s.wakeOne()
	return id
}

// takeThread pops a recycled thread.Thread off the free pool, wiring
// its SafepointFlag to this scheduler, or builds a fresh one.
func (s *Scheduler) takeThread() *thread.Thread {
	s.mu.Lock()
	n := len(s.freeThreads)
	var th *thread.Thread
	if n > 0 {
		th = s.freeThreads[n-1]
		s.freeThreads = s.freeThreads[:n-1]
	}
	s.mu.Unlock()
	if th == nil {
		th = thread.New()
	} else {
		*th = *thread.New()
	}
	th.SafepointFlag = &s.stopFlag
	return th
}

func (s *Scheduler) takeStack() *fiberstack.Stack {
	s.mu.Lock()
	n := len(s.freeStacks)
	var st *fiberstack.Stack
	if n > 0 {
		st = s.freeStacks[n-1]
		s.freeStacks = s.freeStacks[:n-1]
	}
	s.mu.Unlock()
	if st != nil {
		return st
	}
	st, err := fiberstack.New(fiberstack.DefaultSize)
	if err != nil {
		// Stack allocation failures are unrecoverable: a fiber cannot
		// run without one, and returning an error here would leave
		// Spawn's exported API lying about its own contract (spec.md
		// §4.9 doesn't model spawn as fallible on resource exhaustion).
		panic(err)
	}
	return st
}

// enqueue places f on a processor's local queue (the first one not
// currently idle-parked, so a newly spawned fiber has a chance of
// running before a steal is needed), falling back to the global queue
// if none is available or the chosen one is full.
func (s *Scheduler) enqueue(f *fiber.Fiber) {
	s.mu.Lock()
	var target *proc.Processor
	for _, p := range s.procs {
		if !s.isIdleLocked(p.ID) {
			target = p
			break
		}
	}
	s.mu.Unlock()
	if target == nil || !target.Put(f, false) {
		s.global.PushBack(f)
	}
}

func (s *Scheduler) isIdleLocked(id int) bool {
	for _, idle := range s.idleProcs {
		if idle == id {
			return true
		}
	}
	return false
}

func (s *Scheduler) wakeOne() {
	for _, w := range s.workers {
		if w.State() == worker.Idle {
			w.Wake()
			return
		}
	}
}

// Yield suspends the current fiber at the calling point, handing
// control back to whichever worker is driving it. workerLoop is
// responsible for requeuing a fiber that yields and is still alive
// (spec.md §4.8 step 4: "on return from the fiber, handle exit /
// requeue the thread ... then loop") — Yield itself only performs the
// fiber-level suspend, so every caller (the bytecode `yield` opcode,
// and the safepoint check) gets the same requeue treatment uniformly
// rather than some paths double-enqueuing.
func (s *Scheduler) Yield(f *fiber.Fiber) {
	f.Yield()
}

// Exit marks id's fiber record Exited, recycles its thread and stack,
// and wakes any Join waiters. Called once, from workerLoop's
// finishExited, when Resume reports the fiber is no longer alive.
func (s *Scheduler) Exit(id uint64) {
	s.mu.Lock()
	rec, ok := s.live[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.live, id)
	waiters := rec.waiters
	s.freeThreads = append(s.freeThreads, rec.thread)
	s.freeStacks = append(s.freeStacks, rec.stack)
	s.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// Join blocks the calling goroutine until id's fiber reaches Exited.
// Safe to call from outside any worker (e.g. the host program waiting
// on its root fiber) since it parks on a plain channel rather than a
// fiber rendezvous.
func (s *Scheduler) Join(id uint64) {
	s.mu.Lock()
	rec, ok := s.live[id]
	if !ok {
		s.mu.Unlock()
		return // already exited
	}
	done := make(chan struct{})
	rec.waiters = append(rec.waiters, done)
	s.mu.Unlock()
	<-done
}

// LiveThreads implements gc.RootProvider: every still-running fiber's
// thread control block is a GC root (spec.md §4.4.1's "all fiber thread
// stacks, call frames, operand stacks, pending exceptions").
//
// s.live is a map, so its natural iteration order is unspecified and
// varies run to run; sorting by fiber id before returning makes a
// given program's GC root enumeration order reproducible. The
// NYXDEBUG=schedtrace output does not go through LiveThreads.
func (s *Scheduler) LiveThreads() []*thread.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*thread.Thread, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.live[id].thread)
	}
	return out
}

// StopTheWorld implements gc.RootProvider: it raises the shared stop
// flag every thread.Thread.ShouldStop polls, wakes parked workers so
// they observe it promptly, and blocks until every running worker has
// reported into WorldStopped.
func (s *Scheduler) StopTheWorld() {
	s.mu.Lock()
	target := s.running
	s.mu.Unlock()

	s.stwMu.Lock()
	s.stwActive = true
	s.stwStopped = 0
	s.stwResume = make(chan struct{})
	s.stwMu.Unlock()

	atomic.StoreInt32(&s.stopFlag, 1)
	for _, w := range s.workers {
		w.Wake()
	}

	for {
		s.stwMu.Lock()
		n := s.stwStopped
		s.stwMu.Unlock()
		if n >= target {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// StartTheWorld implements gc.RootProvider: it clears the stop flag and
// releases every worker parked in checkStop.
func (s *Scheduler) StartTheWorld() {
	atomic.StoreInt32(&s.stopFlag, 0)
	s.stwMu.Lock()
	resume := s.stwResume
	s.stwActive = false
	s.stwMu.Unlock()
	if resume != nil {
		close(resume)
	}
}

// checkStop is the worker-side half of the safepoint protocol: if a
// stop is in flight, transition to WorldStopped, report in, and block
// until StartTheWorld releases the barrier.
func (s *Scheduler) checkStop(w *worker.Worker) {
	if atomic.LoadInt32(&s.stopFlag) == 0 {
		return
	}
	if !w.Transition(worker.WorldStopped) {
		return // already mid-transition elsewhere; the retry loop above will catch it
	}
	s.stwMu.Lock()
	s.stwStopped++
	resume := s.stwResume
	s.stwMu.Unlock()
	<-resume
	w.Transition(worker.Scheduling)
}

// workerLoop is one Worker's scheduling loop: acquire the bound
// processor, then repeatedly pick the next runnable fiber (local queue,
// global-queue bias, global queue, steal, else park idle), run it to
// completion or its next yield, and loop. It mirrors spec.md §4.8's
// scheduler loop and worker.State machine exactly.
func (s *Scheduler) workerLoop(w *worker.Worker) {
	w.Transition(worker.AcquiringProc)
	p := s.acquireProcessor()
	w.Proc = p
	w.Transition(worker.Scheduling)

	for {
		s.checkStop(w)
		if w.State() == worker.Exited {
			return
		}

		f := s.findRunnable(p)
		if f == nil {
			if atomic.LoadInt32(&s.stopAll) != 0 {
				if s.alloc != nil {
					s.alloc.ReleaseActive(p)
				}
				w.Transition(worker.Idle)
				w.Transition(worker.Exited)
				s.mu.Lock()
				s.running--
				s.mu.Unlock()
				return
			}

			if s.alloc != nil {
				s.alloc.ReleaseActive(p)
			}
			if !w.Transition(worker.Idle) {
				continue
			}
			w.Proc = nil
			s.releaseProcessor(p)
			w.ParkIdle()

			if !w.Transition(worker.AcquiringProc) {
				return
			}
			p = s.acquireProcessor()
			w.Proc = p
			if !w.Transition(worker.Scheduling) {
				return
			}
			continue
		}

		w.Transition(worker.Running)
		w.RunStart = time.Now()
		stillAlive := f.Resume()
		w.Transition(worker.Scheduling)

		if stillAlive {
			// spec.md §4.8 step 4: "requeue the thread" regardless of
			// why it yielded — an explicit yield or a safepoint-detected
			// stop request both land here the same way. Nothing here
			// consults worker.Overrun, so a fiber that runs past
			// worker.Timeslice is not preempted.
			if !p.Put(f, false) {
				s.global.PushBack(f)
			}
		} else {
			s.finishExited(f)
		}

		if debugflag.Get().SchedTraceMS > 0 {
			log.Printf("sched: worker %d ran fiber %d, alive=%v", w.ID, f.ID, stillAlive)
		}
	}
}

// acquireProcessor pops the next available processor off the idle
// stack. Since Start launches exactly len(s.procs) workers and every
// worker releases its processor before parking, the stack always has
// one available by the time a worker asks — this blocks only in the
// (never-exercised-by-this-module) case of more workers than
// processors.
func (s *Scheduler) acquireProcessor() *proc.Processor {
	for {
		s.mu.Lock()
		n := len(s.idleProcs)
		if n > 0 {
			id := s.idleProcs[n-1]
			s.idleProcs = s.idleProcs[:n-1]
			s.mu.Unlock()
			return s.procs[id]
		}
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (s *Scheduler) releaseProcessor(p *proc.Processor) {
	s.mu.Lock()
	s.idleProcs = append(s.idleProcs, p.ID)
	s.mu.Unlock()
}

// findRunnable implements spec.md §4.7/§4.9's dispatch order: local
// queue, 1-in-32 global bias, global queue when local is empty, a
// bounded number of steal attempts, nil if nothing is found anywhere.
func (s *Scheduler) findRunnable(p *proc.Processor) *fiber.Fiber {
	if p.NextVictim(proc.GlobalQueueBias) == 0 {
		if f := s.global.PopFront(); f != nil {
			return f
		}
	}
	if f := p.Get(); f != nil {
		return f
	}
	if f := s.global.PopFront(); f != nil {
		return f
	}
	return s.steal(p)
}

// steal tries up to len(procs) random victims before giving up.
func (s *Scheduler) steal(p *proc.Processor) *fiber.Fiber {
	n := len(s.procs)
	if n <= 1 {
		return nil
	}
	for attempt := 0; attempt < n; attempt++ {
		victim := s.procs[p.NextVictim(n)]
		if victim == p {
			continue
		}
		stolen := p.Steal(victim)
		if len(stolen) == 0 {
			continue
		}
		for _, f := range stolen[1:] {
			p.Put(f, false)
		}
		return stolen[0]
	}
	return nil
}

// finishExited records a fiber's terminal state (surfacing a panic
// caught by fiber.Fiber.run as a log line, per spec.md §7's "an
// uncaught exception terminates only the originating fiber") and runs
// the scheduler-side teardown.
func (s *Scheduler) finishExited(f *fiber.Fiber) {
	if f.Err != nil {
		log.Printf("sched: fiber %d terminated: %v", f.ID, f.Err)
	}
	s.Exit(f.ID)
}
