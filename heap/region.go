// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heap implements the bump-allocated region and the per-object
// header the collector traces. A Region is a fixed-size slab handed
// out by an allocator (package alloc) and bump-allocated within by a
// single owning processor at a time; the collector sweeps and
// evacuates whole regions rather than individual objects.
package heap

import (
	"sync"
	"sync/atomic"

	"github.com/nyxlang/nyx/internal/nmmap"
)

// RegionSize is the fixed size of every heap region.
const RegionSize = 16 * 1024

// Alignment every heap allocation is rounded up to, matching the three
// tag bits value.Value reserves for a heap pointer's low bits.
const Alignment = 8

// State is a Region's lifecycle state.
type State int32

const (
	Available State = iota // on the allocator's free list, empty
	Used                   // bump-allocating or fully occupied
	Released               // retired by the allocator (still mapped, may hold live data), or unmapped by Release
)

// ID uniquely identifies a region for the lifetime of the process; the
// allocator's region registry is keyed by it. Forward pointers are raw
// addresses (see Header), not region IDs.
type ID uint32

// Region is a single 16KB bump-allocated slab.
type Region struct {
	ID    ID
	state int32 // State, accessed atomically

	mapping *nmmap.Mapping
	base    []byte
	offset  uint32 // next free byte, bump pointer

	mu sync.Mutex
}

// New mmaps a fresh region backed by anonymous memory.
func New(id ID) (*Region, error) {
	m, err := nmmap.New(RegionSize, false, false)
	if err != nil {
		return nil, err
	}
	return &Region{ID: id, state: int32(Available), mapping: m, base: m.Bytes()}, nil
}

// State returns the region's current lifecycle state.
func (r *Region) State() State { return State(atomic.LoadInt32(&r.state)) }

// SetState transitions the region to s.
func (r *Region) SetState(s State) { atomic.StoreInt32(&r.state, int32(s)) }

// Fits reports whether n bytes (already rounded to Alignment) can be
// bump-allocated without exceeding the slab.
func (r *Region) Fits(n uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset+n <= RegionSize
}

// Allocate bump-allocates n bytes, rounded up to Alignment, and returns
// a pointer to the start of the allocation. ok is false if the region
// doesn't have room; the caller must then switch to a fresh region.
func (r *Region) Allocate(n uint32) (ptr []byte, ok bool) {
	n = alignUp(n)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offset+n > RegionSize {
		return nil, false
	}
	start := r.offset
	r.offset += n
	return r.base[start : start+n : start+n], true
}

// Used reports the number of bytes already bump-allocated.
func (r *Region) Used() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

// Reset rewinds the bump pointer, reclaiming the whole region. Callers
// (the allocator, after a region is fully evacuated and its contents
// copied elsewhere) must ensure nothing still references objects in
// this region before calling Reset.
func (r *Region) Reset() {
	r.mu.Lock()
	r.offset = 0
	r.mu.Unlock()
}

// Release unmaps the region's backing memory. The region must not be
// reused after this call. The allocator never hands its ID out again.
func (r *Region) Release() error {
	r.SetState(Released)
	return r.mapping.Unmap()
}

func alignUp(n uint32) uint32 {
	const mask = Alignment - 1
	return (n + mask) &^ mask
}
