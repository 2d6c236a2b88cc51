// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vm implements the bytecode interpreter: the call/return and
// exception-propagation contract (spec.md §4.4/§4.6), the fetch/decode
// loop for the small set of opcodes that double as GC and scheduler
// integration points (allocation, safepoints, yields), and a pluggable
// OpHandler table for everything else. Opcode semantics beyond control
// flow, allocation and safepoint recognition are intentionally out of
// scope — SPEC_FULL.md §4.12 hands those to the OpTable a host program
// installs, the same way the data model leaves value-level operators
// (arithmetic, comparisons, indexing) to the compiler's choice of
// encoding rather than baking them into this module.
package vm

import (
	"context"

	"github.com/nyxlang/nyx/alloc"
	"github.com/nyxlang/nyx/fiber"
	"github.com/nyxlang/nyx/proc"
	"github.com/nyxlang/nyx/thread"
)

// Runtime bundles the handles a running fiber's interpreter loop needs:
// the allocator (for OpAllocInstance/OpAllocData and for materializing
// exception payloads), the owning worker's processor (the allocation
// fast path), the fiber itself (so OpYield and safepoint checks can
// call back into it), and the dispatch table for non-builtin opcodes.
//
// Handle is an opaque value the host program can stash here and
// recover inside an OpHandler or a module.NativeFunc — typically a
// *sched.Scheduler, so native library functions can spawn or join
// fibers without package vm ever importing package sched and creating
// an import cycle.
type Runtime struct {
	Alloc *alloc.Allocator
	Proc  *proc.Processor
	Fiber *fiber.Fiber
	Ops   *OpTable
	Handle interface{}

	// Ctx governs allocation requests this Runtime issues; nil means
	// context.Background(). A host program tears fibers down by
	// cancelling this context, which unblocks any allocation parked
	// behind the allocator's region-cap semaphore.
	Ctx context.Context
}

// OpHandler executes one non-builtin instruction against the current
// frame. Returning a *NativeException raises its Value as a nyx-level
// exception, unwound from the current frame the same way OpThrow
// does; any other error stops the interpreter loop and is returned
// from Call unchanged.
type OpHandler func(rt *Runtime, th *thread.Thread, fr *thread.Frame, i Instruction) error

// OpTable maps opcodes at or above the builtin boundary to their
// handler. A lookup miss is a loader/compiler bug, not a runtime
// condition, so it reaches fatal.Throw rather than being surfaced as
// a nyx-level exception.
type OpTable struct {
	handlers map[Opcode]OpHandler
}

// NewOpTable constructs an empty dispatch table.
func NewOpTable() *OpTable {
	return &OpTable{handlers: make(map[Opcode]OpHandler)}
}

// Register installs h as the handler for op. op must be at or above
// the builtin boundary; registering a builtin opcode panics, since it
// would silently shadow control flow the interpreter itself depends on.
func (t *OpTable) Register(op Opcode, h OpHandler) {
	if op < opBuiltinCount {
		panic("vm: cannot override a builtin opcode")
	}
	t.handlers[op] = h
}

func (t *OpTable) lookup(op Opcode) (OpHandler, bool) {
	if t == nil {
		return nil, false
	}
	h, ok := t.handlers[op]
	return h, ok
}

// checkSafepoint yields the current fiber if the scheduler has
// requested a stop-the-world pause, per spec.md §4.4.2's safepoint
// contract: function entry, loop back-edges, allocation and
// native-call boundaries, and explicit yields all poll here.
func checkSafepoint(rt *Runtime, th *thread.Thread) {
	if rt.Fiber == nil || !th.ShouldStop() {
		return
	}
	rt.Fiber.Yield()
}
