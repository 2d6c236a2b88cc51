// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alloc implements the region allocator: the component that
// hands processors fresh heap.Region slabs, tracks how many regions
// exist against a hard cap, and signals the collector when occupancy
// crosses a watermark.
package alloc

import (
	"context"
	"errors"
	"sync"
	"unsafe"

	"golang.org/x/sync/semaphore"

	"github.com/nyxlang/nyx/heap"
	"github.com/nyxlang/nyx/proc"
	"github.com/nyxlang/nyx/value"
)

// DefaultMaxRegions is the hard cap on live regions absent an explicit
// override; at 16KB per region this bounds the heap at 16MB.
const DefaultMaxRegions = 1024

// MarkWatermark and GrowWatermark are occupancy fractions, in the
// units Occupancy reports (regions not on the free list, over the
// allocator's maxRegions). gc.New compares NotifyWatermark's value
// against MarkWatermark to request a cycle; nothing in this module
// reads GrowWatermark, so crossing it has no effect.
const (
	MarkWatermark = 0.50
	GrowWatermark = 0.90
)

// ErrOutOfMemory is returned when the hard cap is reached and a
// collection still doesn't free enough regions.
var ErrOutOfMemory = errors.New("alloc: out of memory")

// Allocator owns the region registry and the hard-cap backpressure.
type Allocator struct {
	maxRegions int
	sem        *semaphore.Weighted

	mu       sync.Mutex
	nextID   heap.ID
	regions  map[heap.ID]*heap.Region
	freelist []*heap.Region

	// NotifyWatermark, if set, is called with the current occupancy
	// fraction every time a region transitions to Used. The collector
	// wires this to its own "consider starting a cycle" trigger.
	NotifyWatermark func(occupancy float64)

	// BlackOnAlloc, if set, reports whether a freshly allocated object
	// should start Black instead of White — true while the collector's
	// mark phase is concurrently running, so mutator allocations never
	// need to be (re)discovered by the marker. Left nil (always White)
	// outside of gc, which installs it once it exists; alloc can't
	// import gc itself without a cycle.
	BlackOnAlloc func() bool

	globalMu sync.Mutex
	global   *heap.Region
}

// New constructs an allocator with the given hard cap on live regions.
func New(maxRegions int) *Allocator {
	if maxRegions <= 0 {
		maxRegions = DefaultMaxRegions
	}
	return &Allocator{
		maxRegions: maxRegions,
		sem:        semaphore.NewWeighted(int64(maxRegions)),
		regions:    make(map[heap.ID]*heap.Region),
	}
}

// AcquireRegion hands out a fresh or recycled region in Used state.
// ctx governs how long the caller is willing to block behind the
// semaphore if the hard cap has been reached; callers on a GC-eligible
// path should pass a context the collector can cancel once it frees
// space, per spec.md's "signal GC and park" backpressure contract.
func (a *Allocator) AcquireRegion(ctx context.Context) (*heap.Region, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, ErrOutOfMemory
	}
	a.mu.Lock()
	if n := len(a.freelist); n > 0 {
		r := a.freelist[n-1]
		a.freelist = a.freelist[:n-1]
		r.SetState(heap.Used)
		a.mu.Unlock()
		a.reportOccupancy()
		return r, nil
	}
	id := a.nextID
	a.nextID++
	a.mu.Unlock()

	r, err := heap.New(id)
	if err != nil {
		a.sem.Release(1)
		return nil, err
	}
	r.SetState(heap.Used)

	a.mu.Lock()
	a.regions[id] = r
	a.mu.Unlock()

	a.reportOccupancy()
	return r, nil
}

// ReleaseRegion resets a region and returns it to the free list, or
// (with unmap) unmaps it entirely, freeing its semaphore slot either way.
// If r is still the allocator's active global region, that pointer is
// cleared first so a later nil-proc allocation can't bump-allocate
// into a slab AcquireRegion may simultaneously be handing back out.
func (a *Allocator) ReleaseRegion(r *heap.Region, unmap bool) error {
	defer a.sem.Release(1)
	a.globalMu.Lock()
	if a.global == r {
		a.global = nil
	}
	a.globalMu.Unlock()
	if unmap {
		a.mu.Lock()
		delete(a.regions, r.ID)
		a.mu.Unlock()
		return r.Release()
	}
	r.Reset()
	r.SetState(heap.Available)
	a.mu.Lock()
	a.freelist = append(a.freelist, r)
	a.mu.Unlock()
	return nil
}

// GlobalRegion returns the region currently being bump-allocated into
// by the nil-proc path, or nil if none has been acquired yet. The
// collector consults this before picking from-space candidates: that
// region is still being written to concurrently regardless of its
// reported occupancy, the same reason evacuate() excludes its own
// evacRegion.
func (a *Allocator) GlobalRegion() *heap.Region {
	a.globalMu.Lock()
	defer a.globalMu.Unlock()
	return a.global
}

// Occupancy returns the fraction of the hard cap currently in use.
func (a *Allocator) Occupancy() float64 {
	a.mu.Lock()
	used := len(a.regions) - len(a.freelist)
	a.mu.Unlock()
	return float64(used) / float64(a.maxRegions)
}

func (a *Allocator) reportOccupancy() {
	if a.NotifyWatermark != nil {
		a.NotifyWatermark(a.Occupancy())
	}
}

// RegionByID looks up a live region, for the collector's root scan and
// for resolving a forward pointer's owning region during evacuation.
func (a *Allocator) RegionByID(id heap.ID) (*heap.Region, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.regions[id]
	return r, ok
}

// AllRegions returns a snapshot of every region the collector must
// sweep during a cycle: both Used (a processor or the global region
// is still bump-allocating into it) and Released (retired as active
// but still holding live data from before the swap — per spec.md
// §9's "global heap region... does not explicitly handle its
// lifetime" open question, this module always gives a Released region
// the same cycle treatment as a Used one). Available (freelisted)
// regions hold nothing live and are skipped.
func (a *Allocator) AllRegions() []*heap.Region {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*heap.Region, 0, len(a.regions))
	for _, r := range a.regions {
		if s := r.State(); s == heap.Used || s == heap.Released {
			out = append(out, r)
		}
	}
	return out
}

// blackOnAlloc reports whether a newly allocated object should start
// Black, per BlackOnAlloc.
func (a *Allocator) blackOnAlloc() bool {
	if a.BlackOnAlloc == nil {
		return false
	}
	return a.BlackOnAlloc()
}

// allocateRaw bump-allocates total bytes (header included) for the
// given owner: p's active region if p is non-nil (the worker fast
// path), or the shared global region guarded by globalMu otherwise
// (spec.md §4.3's "used only during bootstrap and by non-worker
// threads such as the GC worker"). It refills from AcquireRegion on
// overflow, demoting the outgoing region to Released rather than
// reclaiming it immediately: per spec.md §9, a region a processor has
// moved on from may still hold live data, so only the collector's
// UpdateRef phase gets to call ReleaseRegion on it.
func (a *Allocator) allocateRaw(ctx context.Context, p *proc.Processor, total uint32) (uintptr, error) {
	refill := func(cur *heap.Region) (*heap.Region, error) {
		next, err := a.AcquireRegion(ctx)
		if err != nil {
			return nil, err
		}
		if cur != nil {
			cur.SetState(heap.Released)
		}
		return next, nil
	}

	if p != nil {
		region := p.Region
		if region == nil || !region.Fits(total) {
			next, err := refill(region)
			if err != nil {
				return 0, err
			}
			region = next
			p.Region = region
		}
		buf, ok := region.Allocate(total)
		if !ok {
			return 0, ErrOutOfMemory
		}
		return uintptr(unsafe.Pointer(&buf[0])), nil
	}

	a.globalMu.Lock()
	defer a.globalMu.Unlock()
	if a.global == nil || !a.global.Fits(total) {
		next, err := refill(a.global)
		if err != nil {
			return 0, err
		}
		a.global = next
	}
	buf, ok := a.global.Allocate(total)
	if !ok {
		return 0, ErrOutOfMemory
	}
	return uintptr(unsafe.Pointer(&buf[0])), nil
}

// AllocateRaw bump-allocates total bytes (header included) from the
// shared global region, for callers with no processor of their own.
// The collector's evacuation step does not use it: it bump-allocates
// from its own region acquired through AcquireRegion. The caller is responsible
// for writing the header and body themselves via the heap package's
// HeaderAt/PutFields/PutBytes helpers.
func (a *Allocator) AllocateRaw(ctx context.Context, total uint32) (uintptr, error) {
	return a.allocateRaw(ctx, nil, total)
}

// AllocateInstance allocates and initializes a traced, field-bearing
// object: the Function/Exception/Tuple/List/Dict/Class/Shape/Fiber/
// FrameContext family from spec.md §3.7/value.ShapeID. p is the
// calling worker's processor, or nil for an allocation made outside
// any worker (bootstrap, the GC's own bookkeeping objects).
func (a *Allocator) AllocateInstance(ctx context.Context, p *proc.Processor, shape value.ShapeID, fields []value.Value) (value.Value, error) {
	total := heap.HeaderSize + uint32(len(fields))*8
	addr, err := a.allocateRaw(ctx, p, total)
	if err != nil {
		return value.Null, err
	}
	heap.HeaderAt(addr).Init(addr, shape, total, uint32(len(fields)), a.blackOnAlloc())
	heap.PutFields(addr, fields)
	return value.NewHeapRef(addr), nil
}

// AllocateData allocates and initializes an opaque, untraced byte-blob
// object: a large string or large bytes value whose content didn't
// fit value.Value's 7-byte inline small-string/small-bytes shapes.
func (a *Allocator) AllocateData(ctx context.Context, p *proc.Processor, shape value.ShapeID, data []byte) (value.Value, error) {
	total := heap.HeaderSize + uint32(len(data))
	addr, err := a.allocateRaw(ctx, p, total)
	if err != nil {
		return value.Null, err
	}
	heap.HeaderAt(addr).Init(addr, shape, total, uint32(len(data)), a.blackOnAlloc())
	heap.PutBytes(addr, data)
	return value.NewHeapRef(addr), nil
}

// ReleaseActive demotes p's active region (if any) to Released and
// clears p.Region, for a worker that is giving up its processor (e.g.
// going idle) without having filled the region: the region may still
// hold live objects, so — same reasoning as allocateRaw's refill —
// only the collector may later reclaim it.
func (a *Allocator) ReleaseActive(p *proc.Processor) {
	if p.Region == nil {
		return
	}
	p.Region.SetState(heap.Released)
	p.Region = nil
}
