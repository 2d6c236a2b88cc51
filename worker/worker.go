// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package worker implements the Worker state machine: the OS-thread
// side of the scheduler, which must acquire a proc.Processor before it
// can run fibers. Package sched owns the scheduling decisions (which
// fiber to run next, when to steal); Worker only enforces which state
// transitions are legal and provides the idle-parking primitive.
package worker

import (
	"sync/atomic"
	"time"

	"github.com/nyxlang/nyx/internal/parking"
	"github.com/nyxlang/nyx/proc"
)

// State is a Worker's position in its OS-thread lifecycle.
type State int32

const (
	Created State = iota
	AcquiringProc
	Scheduling
	Running
	Idle
	Native
	WorldStopped
	Exited
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case AcquiringProc:
		return "acquiring-proc"
	case Scheduling:
		return "scheduling"
	case Running:
		return "running"
	case Idle:
		return "idle"
	case Native:
		return "native"
	case WorldStopped:
		return "world-stopped"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// legalTransitions enumerates every (from, to) pair a Worker may move
// through, mirroring the real scheduler's guarded M state transitions.
var legalTransitions = map[State]map[State]bool{
	Created:       {AcquiringProc: true, Exited: true},
	AcquiringProc: {Scheduling: true, Idle: true, Exited: true},
	Scheduling:    {Running: true, Idle: true, Native: true, WorldStopped: true, Exited: true},
	Running:       {Scheduling: true, Native: true, WorldStopped: true},
	Idle:          {Scheduling: true, AcquiringProc: true, Exited: true},
	Native:        {Scheduling: true, WorldStopped: true},
	WorldStopped:  {Scheduling: true},
}

// MaxIdleSleep bounds how long an idle worker parks before waking to
// re-check for work, even with no explicit wake.
const MaxIdleSleep = 1000 * time.Millisecond

// Timeslice is the budget Overrun measures a worker's current run
// against. Neither the scheduler nor the interpreter calls Overrun, so
// a fiber that runs longer than this keeps its worker until it yields
// or stops at a safepoint; asyncpreemptoff in internal/debugflag is
// parsed but nothing reads it.
const Timeslice = 10 * time.Millisecond

// Worker is one OS thread's scheduling state.
type Worker struct {
	ID    int
	state int32 // State, accessed atomically

	Proc *proc.Processor

	lot       *parking.Lot
	idleAddr  uintptr
	RunStart  time.Time
}

// New constructs a worker in the Created state.
func New(id int, lot *parking.Lot) *Worker {
	w := &Worker{ID: id, state: int32(Created), lot: lot}
	w.idleAddr = uintptr(id) + 1 // a stable, nonzero per-worker park key
	return w
}

// State returns the worker's current state.
func (w *Worker) State() State { return State(atomic.LoadInt32(&w.state)) }

// Transition moves the worker from its current state to to, returning
// false (and leaving the state unchanged) if the transition isn't
// legal from wherever the worker currently is.
func (w *Worker) Transition(to State) bool {
	for {
		from := State(atomic.LoadInt32(&w.state))
		if !legalTransitions[from][to] {
			return false
		}
		if atomic.CompareAndSwapInt32(&w.state, int32(from), int32(to)) {
			return true
		}
	}
}

// ParkIdle blocks the worker until woken or MaxIdleSleep elapses,
// whichever comes first. The caller must already have transitioned to
// Idle, and must re-check for available work immediately before
// calling ParkIdle and again after it returns: a Wake racing the
// window between that check and registering the park is possible, and
// the bounded sleep is exactly what bounds how long such a race can
// cost.
func (w *Worker) ParkIdle() {
	done := make(chan struct{})
	go func() {
		w.lot.Park(w.idleAddr)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(MaxIdleSleep):
		w.lot.Wake(w.idleAddr)
		<-done
	}
}

// Wake releases a worker parked in ParkIdle.
func (w *Worker) Wake() { w.lot.Wake(w.idleAddr) }

// Overrun reports whether the worker has been Running longer than
// Timeslice.
func (w *Worker) Overrun() bool {
	return w.State() == Running && time.Since(w.RunStart) > Timeslice
}
