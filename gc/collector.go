// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gc implements the concurrent, tri-color, mark-evacuate-
// update-reference collector described by spec.md §4.4: a dedicated
// collector goroutine drives the cycle through Idle -> MarkInit (STW)
// -> Mark (concurrent) -> MarkFinish (STW) -> Evacuate (concurrent) ->
// EvacuateFinish (STW) -> UpdateRef (concurrent) -> UpdateRefFinish
// (STW) -> Idle, coordinating with package sched's stop-the-world
// barrier at each STW boundary.
//
// The mark/evacuate/updateref split and the producer/consumer grey
// worklist shape are grounded on the teacher's annotated
// runtime/mgcmark.go and runtime/mgcwork.go: this module has no
// write-barrier-free allocation or goroutine-stack scanning to build
// on, so the worklist here is a single mutex-guarded min-heap of
// object addresses (greyList, in worklist.go) rather than per-P
// lock-free work buffers.
package gc

import (
	"context"
	"log"
	"sync/atomic"
	"unsafe"

	"github.com/nyxlang/nyx/alloc"
	"github.com/nyxlang/nyx/heap"
	"github.com/nyxlang/nyx/internal/debugflag"
	"github.com/nyxlang/nyx/internal/parking"
	"github.com/nyxlang/nyx/thread"
	"github.com/nyxlang/nyx/value"
)

// Phase is the collector's current position in a cycle.
type Phase int32

const (
	Idle Phase = iota
	MarkInit
	Mark
	MarkFinish
	Evacuate
	EvacuateFinish
	UpdateRef
	UpdateRefFinish
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case MarkInit:
		return "mark-init"
	case Mark:
		return "mark"
	case MarkFinish:
		return "mark-finish"
	case Evacuate:
		return "evacuate"
	case EvacuateFinish:
		return "evacuate-finish"
	case UpdateRef:
		return "update-ref"
	case UpdateRefFinish:
		return "update-ref-finish"
	default:
		return "unknown"
	}
}

// RootProvider is implemented by package sched. It gives the collector
// the STW barrier and the set of GC roots: every live fiber's thread
// control block, whose frames/operand stack/pending-exception slot
// spec.md §4.4.1 names as the root set.
type RootProvider interface {
	StopTheWorld()
	StartTheWorld()
	LiveThreads() []*thread.Thread
}

// evacuateFraction is the occupancy ceiling (of RegionSize) a region
// must be at or under to be chosen as "from-space" during Evacuate:
// spec.md §4.4.1 step 5 calls these "sparsely occupied regions".
const evacuateFraction = 0.5

// Collector drives one GC cycle at a time against an alloc.Allocator
// and a RootProvider. There is exactly one Collector per process,
// running on its own dedicated goroutine (the "GC worker" of spec.md
// §2's data-flow description).
type Collector struct {
	alloc *alloc.Allocator
	roots RootProvider
	lot   *parking.Lot

	phase int32 // Phase, accessed atomically

	// requestCh is a 1-buffered wakeup signal: the allocator's
	// watermark callback (or an explicit RequestCycle caller) sends
	// without blocking, and Run's loop receives it to start a cycle.
	// A pending, un-received request coalesces further sends, which
	// is exactly right — there is never a need to run more than one
	// cycle back to back just because two allocations both crossed
	// the watermark before the collector woke up.
	requestCh chan struct{}

	grey   greyList
	cycles int64

	// evacRegion is the collector's own destination region for
	// relocated objects, deliberately kept separate from
	// alloc.Allocator's shared global region: evacuate's from-space
	// set is a snapshot of regions captured before any relocation
	// runs, but the *global* region pointer can be repointed by any
	// concurrent non-worker allocation, including the very from-space
	// region currently being evacuated. A private region sidesteps
	// that — relocated copies can never land back in the region
	// they're being copied out of.
	evacRegion *heap.Region
}

// New constructs a Collector over a, reporting roots/STW through
// roots. It wires a.BlackOnAlloc and a.NotifyWatermark so the
// allocator's fast path and the collector's cycle trigger talk to each
// other without either package importing the other directly.
func New(a *alloc.Allocator, roots RootProvider) *Collector {
	c := &Collector{alloc: a, roots: roots, lot: parking.New(), requestCh: make(chan struct{}, 1)}
	a.BlackOnAlloc = func() bool { return c.Phase() >= MarkInit && c.Phase() <= MarkFinish }
	a.NotifyWatermark = func(occupancy float64) {
		if occupancy >= alloc.MarkWatermark {
			c.RequestCycle()
		}
	}
	return c
}

// Phase returns the collector's current phase.
func (c *Collector) Phase() Phase { return Phase(atomic.LoadInt32(&c.phase)) }

func (c *Collector) setPhase(p Phase) {
	atomic.StoreInt32(&c.phase, int32(p))
	if debugflag.Get().GCTrace {
		log.Printf("gc: phase -> %s", p)
	}
}

// RequestCycle asks the collector to run a cycle the next time it is
// Idle. Safe to call from any goroutine (the allocator's watermark
// callback, an explicit user request, a test).
func (c *Collector) RequestCycle() {
	select {
	case c.requestCh <- struct{}{}:
	default: // a request is already pending; one cycle will serve both
	}
}

// Run is the collector goroutine's body: it waits for a request, runs
// one full cycle, and repeats until stop is closed. Callers
// (nyx.Init) start this on its own goroutine.
func (c *Collector) Run(stop <-chan struct{}) {
	for {
		select {
		case <-c.requestCh:
		case <-stop:
			return
		}

		c.cycle()

		select {
		case <-stop:
			return
		default:
		}
	}
}

// cycle runs exactly one mark/evacuate/updateref pass.
func (c *Collector) cycle() {
	c.cycles++
	c.markInit()
	c.mark()
	c.markFinish()
	fromSpace := c.evacuate()
	c.evacuateFinish()
	c.updateRef(fromSpace)
	c.updateRefFinish()
}

// markInit is the first STW pause: it snapshots every live thread's
// roots, greys them, and resumes the world into the concurrent Mark
// phase.
func (c *Collector) markInit() {
	c.setPhase(MarkInit)
	c.roots.StopTheWorld()
	defer c.roots.StartTheWorld()

	for _, t := range c.roots.LiveThreads() {
		for _, f := range t.Frames {
			c.greyAll(f.Locals)
			c.greyAll(f.HeapVars)
		}
		c.greyAll(t.Operands)
		c.greyOne(t.PendingException)
	}
	c.setPhase(Mark)
}

func (c *Collector) greyAll(vs []value.Value) {
	for _, v := range vs {
		c.greyOne(v)
	}
}

// greyOne shades v grey and enqueues it if it is an unvisited heap
// reference; immediates need no tracing.
func (c *Collector) greyOne(v value.Value) {
	if !v.IsObject() {
		return
	}
	addr := heap.HeaderAt(v.HeapAddr()).Forward()
	h := heap.HeaderAt(addr)
	if h.TryMarkGrey() {
		c.grey.push(addr)
	}
}

// mark concurrently drains the grey worklist: pop an object, scan its
// fields through the load barrier (resolving each field's own forward
// pointer before testing it), grey any newly discovered white
// children, then blacken the popped object. There is no companion
// write barrier in this module: package vm has no store-field opcode,
// and nothing re-greys a black object when a field of it is stored to.
func (c *Collector) mark() {
	for {
		addr, ok := c.grey.pop()
		if !ok {
			return
		}
		c.scan(addr)
	}
}

// scan traces one object's fields (a no-op for a Data-shaped object,
// which carries no pointer fields) and blackens it.
func (c *Collector) scan(addr uintptr) {
	h := heap.HeaderAt(addr)
	if h.Shape.IsInstance() {
		for _, v := range heap.Fields(addr, int(h.Length)) {
			c.greyOne(v)
		}
	}
	h.SetColor(heap.Black)
}

// markFinish is the second STW pause: it re-drains any grey work a
// racing allocation or write barrier produced right at the STW
// boundary, verifies the worklist is empty, and transitions to
// Evacuate.
func (c *Collector) markFinish() {
	c.setPhase(MarkFinish)
	c.roots.StopTheWorld()
	defer c.roots.StartTheWorld()
	c.mark() // drain anything left; under STW nothing can add more
	c.setPhase(Evacuate)
}

// evacuate concurrently relocates every live object out of sparsely
// occupied ("from-space") regions into freshly acquired ones,
// installing each moved object's new address as its header's forward
// pointer under the header's small lock, after the copy is written. It
// returns the from-space regions whose live objects all moved, which
// UpdateRef will later reset once every outgoing reference pointing
// into them has been rewritten; a region holding an object that could
// not be relocated is left out and keeps its contents.
func (c *Collector) evacuate() []*heap.Region {
	c.setPhase(Evacuate)
	var fromSpace []*heap.Region
	for _, r := range c.alloc.AllRegions() {
		if float64(r.Used())/float64(heap.RegionSize) <= evacuateFraction {
			fromSpace = append(fromSpace, r)
		}
	}

	// If the collector's own destination region from a previous cycle
	// is itself sparse enough to be from-space this time, forget it
	// before relocating anything: evacAlloc must never hand out space
	// inside a region this same pass is about to evacuate and reset.
	// r gets collected normally, like any other from-space region —
	// evacAlloc just lazily acquires a new one on its first use below.
	for _, r := range fromSpace {
		if r == c.evacRegion {
			c.evacRegion = nil
			break
		}
	}

	// The allocator's own active global region is likewise still being
	// bump-allocated into regardless of how sparse it looks right now
	// (every nil-proc allocation — currently every vm-driven one, per
	// DESIGN.md's open question on vm.Runtime.Proc — goes through it):
	// evacuating and resetting it out from under a concurrent
	// allocateRaw would let AcquireRegion hand the same slab out again
	// while allocateRaw is still bump-allocating into it. Drop it from
	// fromSpace entirely rather than relocating it; it simply sits out
	// this cycle and is reconsidered next time.
	if g := c.alloc.GlobalRegion(); g != nil {
		kept := fromSpace[:0]
		for _, r := range fromSpace {
			if r != g {
				kept = append(kept, r)
			}
		}
		fromSpace = kept
	}

	reclaim := fromSpace[:0]
	for _, r := range fromSpace {
		pinned := false
		heap.Walk(r, func(addr uintptr, h *heap.Header) bool {
			if h.Color() == heap.White {
				return true // unreachable; left for the region to be dropped
			}
			c.relocate(addr, h)
			if h.Forward() == addr {
				pinned = true // relocation failed; the region keeps it
			}
			return true
		})
		if !pinned {
			reclaim = append(reclaim, r)
		}
	}
	return reclaim
}

// relocate copies one live object to a fresh region and installs the
// forward pointer while holding the header's small lock; the forward
// pointer is stored only after the copy is complete.
func (c *Collector) relocate(addr uintptr, h *heap.Header) {
	body := heap.BodySize(h)
	total := h.Size

	newAddr, err := c.evacAlloc(total)
	if err != nil {
		// spec.md §4.4.4: a heap-growth failure during evacuation
		// cannot abort the cycle. Leave this object unmoved (its
		// forward pointer stays self-referential) and accept the
		// fragmentation; the region simply won't be reclaimed.
		return
	}

	h.Lock(func(lockAddr *int32, expect int32) { c.lot.Park(h.ParkKey()) })
	defer func() {
		if wake := h.Unlock(); wake {
			c.lot.Wake(h.ParkKey())
		}
	}()

	newHdr := heap.HeaderAt(newAddr)
	newHdr.Init(newAddr, h.Shape, total, h.Length, true)
	if h.Shape.IsInstance() {
		heap.PutFields(newAddr, heap.Fields(addr, int(h.Length)))
	} else {
		heap.PutBytes(newAddr, heap.Bytes(addr, int(body)))
	}
	h.SetForward(newAddr)
}

// evacAlloc bump-allocates total bytes from the collector's private
// destination region, acquiring a fresh one from the allocator's free
// list whenever the current one fills up.
func (c *Collector) evacAlloc(total uint32) (uintptr, error) {
	if c.evacRegion == nil || !c.evacRegion.Fits(total) {
		next, err := c.alloc.AcquireRegion(context.Background())
		if err != nil {
			return 0, err
		}
		c.evacRegion = next
	}
	buf, ok := c.evacRegion.Allocate(total)
	if !ok {
		return 0, alloc.ErrOutOfMemory
	}
	return uintptr(unsafe.Pointer(&buf[0])), nil
}

// evacuateFinish is the third STW pause: it transitions the phase to
// UpdateRef. Nothing else needs re-synchronizing here since evacuate's
// per-header locking already makes every relocation visible.
func (c *Collector) evacuateFinish() {
	c.setPhase(EvacuateFinish)
	c.roots.StopTheWorld()
	c.roots.StartTheWorld()
	c.setPhase(UpdateRef)
}

// updateRef concurrently sweeps every live object — across all regions,
// not just from-space, since a black object anywhere may still hold a
// stale reference into an evacuated region — and rewrites each
// outgoing field through the forward pointer of whatever it points to.
// Once a from-space region's own contents have all been superseded,
// it is reset to Available.
func (c *Collector) updateRef(fromSpace []*heap.Region) {
	for _, r := range c.alloc.AllRegions() {
		heap.Walk(r, func(addr uintptr, h *heap.Header) bool {
			if !h.Shape.IsInstance() || h.Color() == heap.White {
				return true
			}
			fields := heap.Fields(addr, int(h.Length))
			for i, v := range fields {
				if !v.IsObject() {
					continue
				}
				resolved := heap.HeaderAt(v.HeapAddr()).Forward()
				if resolved != v.HeapAddr() {
					fields[i] = value.NewHeapRef(resolved)
				}
			}
			return true
		})
	}

	for _, r := range fromSpace {
		c.alloc.ReleaseRegion(r, false)
	}
}

// updateRefFinish is the final STW pause: every thread's own roots are
// rewritten the same way live objects' fields were (a pending exception
// or a local variable can itself be a stale pointer into from-space),
// marks are reset for the next cycle, and the collector returns to
// Idle.
func (c *Collector) updateRefFinish() {
	c.setPhase(UpdateRefFinish)
	c.roots.StopTheWorld()
	defer c.roots.StartTheWorld()

	for _, t := range c.roots.LiveThreads() {
		for _, f := range t.Frames {
			resolveAll(f.Locals)
			resolveAll(f.HeapVars)
		}
		resolveAll(t.Operands)
		t.PendingException = resolveOne(t.PendingException)
	}

	for _, r := range c.alloc.AllRegions() {
		heap.Walk(r, func(addr uintptr, h *heap.Header) bool {
			if h.Color() != heap.White {
				h.SetColor(heap.White) // ready for the next cycle's mark
			}
			return true
		})
	}
	c.setPhase(Idle)
}

func resolveAll(vs []value.Value) {
	for i, v := range vs {
		vs[i] = resolveOne(v)
	}
}

func resolveOne(v value.Value) value.Value {
	if !v.IsObject() {
		return v
	}
	resolved := heap.HeaderAt(v.HeapAddr()).Forward()
	if resolved == v.HeapAddr() {
		return v
	}
	return value.NewHeapRef(resolved)
}

