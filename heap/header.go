// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"sync/atomic"
	"unsafe"

	"github.com/nyxlang/nyx/value"
)

// Color is a tri-color mark state.
type Color uint8

const (
	White Color = iota // not yet visited this cycle
	Grey               // queued, children not yet scanned
	Black              // scanned; new objects during a cycle start Black
)

// LockState is a heap object's small lock, which the collector holds
// while it forwards the object during evacuation. Readers do not take
// it: Forward is a plain atomic load, and SetForward's atomic store
// comes after the copy is written.
type LockState uint8

const (
	Free     LockState = iota // uncontended
	Locked                    // a forwarder holds the lock
	HasParked                 // a forwarder holds the lock and another Lock caller is parked on it
)

// Header is the fixed-size prefix of every heap object. It is always
// the first Alignment-aligned word at an object's address, so a
// value.Value heap pointer is also a *Header pointer.
type Header struct {
	// forward is the object's own address until evacuation relocates
	// it, at which point it becomes the new address. Readers resolve
	// a stale value.Value by reading forward once (the load barrier);
	// a relocated copy is initialised to forward to itself.
	forward uintptr

	Shape value.ShapeID

	color int32 // Color, accessed atomically
	lock  int32 // LockState, accessed atomically

	// Size is the total allocation size in bytes, header included,
	// rounded up to Alignment. The tracer uses it to step across an
	// object — of either family — without knowing its field layout,
	// e.g. to walk a region header-by-header during UpdateRef.
	Size uint32

	// Length is the object's body length in shape-specific units:
	// field count for an instance shape (what the tracer iterates),
	// exact content byte count for a data shape (Size, by contrast,
	// is alignment-rounded and may overshoot the real string/bytes
	// length).
	Length uint32
}

// Init sets up a freshly bump-allocated header. New objects allocated
// during a collection cycle start Black so the collector never revisits
// them even though they were never Grey.
func (h *Header) Init(addr uintptr, shape value.ShapeID, size, length uint32, blackOnAlloc bool) {
	h.forward = addr
	h.Shape = shape
	h.Size = alignUp(size)
	h.Length = length
	c := White
	if blackOnAlloc {
		c = Black
	}
	atomic.StoreInt32(&h.color, int32(c))
	atomic.StoreInt32(&h.lock, int32(Free))
}

// Forward returns the stored forward pointer: the object's own address,
// or the address of its relocated copy. It does not follow further
// hops; a relocated copy is initialised to forward to itself, so one
// load is enough.
func (h *Header) Forward() uintptr {
	return atomic.LoadUintptr((*uintptr)(ptrToForward(h)))
}

func ptrToForward(h *Header) *uintptr { return &h.forward }

// SetForward installs addr as the object's new location. Callers must
// hold the header's small lock (Lock) first.
func (h *Header) SetForward(addr uintptr) {
	atomic.StoreUintptr(&h.forward, addr)
}

// Color returns the header's current mark color.
func (h *Header) Color() Color { return Color(atomic.LoadInt32(&h.color)) }

// SetColor stores c unconditionally.
func (h *Header) SetColor(c Color) { atomic.StoreInt32(&h.color, int32(c)) }

// TryMarkGrey atomically transitions the header from White to Grey,
// reporting whether this call won the race (i.e. should enqueue the
// object on a mark worklist). Concurrent markers racing on the same
// object only ever see one winner.
func (h *Header) TryMarkGrey() bool {
	return atomic.CompareAndSwapInt32(&h.color, int32(White), int32(Grey))
}

// Lock acquires the header's small lock, parking the caller via park
// if another goroutine holds it. park is supplied by the collector
// (package gc) to avoid an import cycle back into the parking-lot
// facility, which itself doesn't need to know about headers.
func (h *Header) Lock(park func(addr *int32, expect int32)) {
	for {
		if atomic.CompareAndSwapInt32(&h.lock, int32(Free), int32(Locked)) {
			return
		}
		if atomic.CompareAndSwapInt32(&h.lock, int32(Locked), int32(HasParked)) {
			park(&h.lock, int32(HasParked))
			continue
		}
		// Already HasParked; another waiter beat us to the CAS above.
		park(&h.lock, int32(HasParked))
	}
}

// Unlock releases the small lock, returning whether a parked waiter
// must be woken by the caller (via the same parking-lot facility).
func (h *Header) Unlock() (wake bool) {
	old := atomic.SwapInt32(&h.lock, int32(Free))
	return LockState(old) == HasParked
}

// ParkKey returns a stable address-keyed identity for this header's
// small lock, for a caller (package gc) that parks/wakes waiters
// through an external parking-lot facility keyed by uintptr rather
// than by the *int32 Lock's callback receives.
func (h *Header) ParkKey() uintptr {
	return uintptr(unsafe.Pointer(&h.lock))
}
