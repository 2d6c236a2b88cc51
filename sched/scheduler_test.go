// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nyxlang/nyx/alloc"
	"github.com/nyxlang/nyx/fiber"
	"github.com/nyxlang/nyx/module"
	"github.com/nyxlang/nyx/thread"
	"github.com/nyxlang/nyx/value"
)

// testTask is a fiber body standing in for vm.Call without depending
// on package vm: it gets the live *fiber.Fiber (so it can call Yield
// itself) plus the self/args Spawn was called with.
type testTask func(f *fiber.Fiber, self value.Value, args []value.Value)

// testTasks lets Entry dispatch by fn.Name to a Go closure a test
// registered, the same role a real compiled Function's bytecode plays
// against vm.Call.
type testTasks struct {
	mu sync.Mutex
	m  map[string]testTask
}

func newTestTasks() *testTasks { return &testTasks{m: make(map[string]testTask)} }

func (t *testTasks) register(name string, fn testTask) *module.Function {
	t.mu.Lock()
	t.m[name] = fn
	t.mu.Unlock()
	return &module.Function{Name: name}
}

func (t *testTasks) entry() Entry {
	return func(f *fiber.Fiber, th *thread.Thread, fn *module.Function, self value.Value, args []value.Value) {
		t.mu.Lock()
		task := t.m[fn.Name]
		t.mu.Unlock()
		task(f, self, args)
	}
}

func newTestScheduler(t *testing.T, workers int, tasks *testTasks) *Scheduler {
	t.Helper()
	s := New(workers, alloc.New(64), tasks.entry())
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func TestSpawnJoinSingleFiber(t *testing.T) {
	tasks := newTestTasks()
	var ran int32
	fn := tasks.register("one", func(f *fiber.Fiber, self value.Value, args []value.Value) {
		atomic.StoreInt32(&ran, 1)
	})

	s := newTestScheduler(t, 2, tasks)
	id := s.Spawn(fn, value.Null, nil)
	s.Join(id)

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("fiber body never ran")
	}
}

func TestSpawnManyFibersAllComplete(t *testing.T) {
	const n = 500
	tasks := newTestTasks()
	var count int32
	fn := tasks.register("unit", func(f *fiber.Fiber, self value.Value, args []value.Value) {
		// Yield once to give the scheduler a chance to interleave and
		// steal, rather than every fiber running start-to-finish on
		// whichever worker first dequeues it.
		f.Yield()
		atomic.AddInt32(&count, 1)
	})

	s := newTestScheduler(t, 4, tasks)
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = s.Spawn(fn, value.Null, nil)
	}
	for _, id := range ids {
		s.Join(id)
	}

	if got := atomic.LoadInt32(&count); got != n {
		t.Fatalf("completed = %d, want %d", got, n)
	}
}

func TestSpawnPassesSelfAndArgsThrough(t *testing.T) {
	tasks := newTestTasks()
	selfCh := make(chan value.Value, 1)
	argsCh := make(chan []value.Value, 1)
	fn := tasks.register("echo", func(f *fiber.Fiber, self value.Value, args []value.Value) {
		selfCh <- self
		argsCh <- args
	})

	s := newTestScheduler(t, 1, tasks)
	self, _ := value.NewInt(7)
	a0, _ := value.NewInt(1)
	a1, _ := value.NewInt(2)
	id := s.Spawn(fn, self, []value.Value{a0, a1})
	s.Join(id)

	gotSelf := <-selfCh
	gotArgs := <-argsCh
	if gotSelf.Int() != 7 {
		t.Fatalf("self = %v, want Int(7)", gotSelf)
	}
	if len(gotArgs) != 2 || gotArgs[0].Int() != 1 || gotArgs[1].Int() != 2 {
		t.Fatalf("args = %v, want [1 2]", gotArgs)
	}
}

func TestYieldRequeuesFiberUntilExplicitlyDone(t *testing.T) {
	tasks := newTestTasks()
	var yields int32
	fn := tasks.register("multiyield", func(f *fiber.Fiber, self value.Value, args []value.Value) {
		for i := 0; i < 5; i++ {
			atomic.AddInt32(&yields, 1)
			f.Yield()
		}
	})

	s := newTestScheduler(t, 2, tasks)
	id := s.Spawn(fn, value.Null, nil)
	s.Join(id)

	if got := atomic.LoadInt32(&yields); got != 5 {
		t.Fatalf("yields = %d, want 5", got)
	}
}

func TestStopTheWorldBlocksUntilEveryWorkerReports(t *testing.T) {
	tasks := newTestTasks()
	var running int32
	done := make(chan struct{})
	fn := tasks.register("spin", func(f *fiber.Fiber, self value.Value, args []value.Value) {
		atomic.AddInt32(&running, 1)
		for {
			f.Yield()
			select {
			case <-done:
				return
			default:
			}
		}
	})

	s := newTestScheduler(t, 3, tasks)
	ids := make([]uint64, 3)
	for i := range ids {
		ids[i] = s.Spawn(fn, value.Null, nil)
	}

	// Give every worker a chance to pick up a fiber before requesting STW.
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&running) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		s.StopTheWorld()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("StopTheWorld never returned")
	}

	live := s.LiveThreads()
	if len(live) != 3 {
		t.Fatalf("LiveThreads = %d, want 3", len(live))
	}

	s.StartTheWorld()
	close(done)
	for _, id := range ids {
		s.Join(id)
	}
}

func TestLiveThreadsEmptyAfterAllJoin(t *testing.T) {
	tasks := newTestTasks()
	fn := tasks.register("noop", func(f *fiber.Fiber, self value.Value, args []value.Value) {})

	s := newTestScheduler(t, 2, tasks)
	id := s.Spawn(fn, value.Null, nil)
	s.Join(id)

	if live := s.LiveThreads(); len(live) != 0 {
		t.Fatalf("LiveThreads = %d, want 0", len(live))
	}
}
