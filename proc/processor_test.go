// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proc

import (
	"testing"

	"github.com/nyxlang/nyx/fiber"
)

func mkFiber(id uint64) *fiber.Fiber {
	return fiber.New(id, nil, func(*fiber.Fiber) {})
}

func TestPutGetLIFO(t *testing.T) {
	p := New(0, 1)
	a, b, c := mkFiber(1), mkFiber(2), mkFiber(3)
	p.Put(a, false)
	p.Put(b, false)
	p.Put(c, false)

	if got := p.Get(); got != c {
		t.Errorf("Get() = %v want c (most recently put)", got)
	}
	if got := p.Get(); got != b {
		t.Errorf("Get() = %v want b", got)
	}
	if got := p.Get(); got != a {
		t.Errorf("Get() = %v want a", got)
	}
	if got := p.Get(); got != nil {
		t.Errorf("Get() on empty queue = %v want nil", got)
	}
}

func TestRunnextTakesPriority(t *testing.T) {
	p := New(0, 1)
	a, b := mkFiber(1), mkFiber(2)
	p.Put(a, false)
	p.Put(b, true) // runnext

	if got := p.Get(); got != b {
		t.Errorf("Get() should return runnext first, got %v", got)
	}
	if got := p.Get(); got != a {
		t.Errorf("Get() after runnext = %v want a", got)
	}
}

func TestRunnextDisplacement(t *testing.T) {
	p := New(0, 1)
	a, b, c := mkFiber(1), mkFiber(2), mkFiber(3)
	p.Put(a, true) // runnext = a
	p.Put(b, true) // runnext = b, a pushed into the array
	p.Put(c, false)

	if got := p.Get(); got != b {
		t.Fatalf("Get() = %v want b (runnext)", got)
	}
	if got := p.Get(); got != c {
		t.Fatalf("Get() = %v want c (owner pops LIFO, c was put last)", got)
	}
	if got := p.Get(); got != a {
		t.Fatalf("Get() = %v want a (displaced into queue first, popped last)", got)
	}
}

// TestStealIsFIFO checks that a stealer takes from the opposite end of
// the deque the owner pops from, so a stealer and the owner never race
// for the same fiber: the owner's Get() takes the newest (LIFO), Steal
// takes the oldest half (FIFO).
func TestStealIsFIFO(t *testing.T) {
	victim := New(0, 1)
	fibers := make([]*fiber.Fiber, 10)
	for i := range fibers {
		fibers[i] = mkFiber(uint64(i))
		victim.Put(fibers[i], false)
	}
	thief := New(1, 2)
	stolen := thief.Steal(victim)
	if len(stolen) != 5 {
		t.Fatalf("Steal() took %d fibers want 5", len(stolen))
	}
	for i, f := range stolen {
		if f != fibers[i] {
			t.Errorf("stolen[%d] = %v want %v (oldest-first)", i, f, fibers[i])
		}
	}
	if victim.Len() != 5 {
		t.Errorf("victim.Len() = %d want 5", victim.Len())
	}
	// The owner's own Get() must still return its newest remaining
	// fiber, untouched by the steal.
	if got := victim.Get(); got != fibers[9] {
		t.Errorf("victim.Get() after steal = %v want %v (newest remaining)", got, fibers[9])
	}
}

func TestStealNothing(t *testing.T) {
	victim := New(0, 1)
	thief := New(1, 2)
	if stolen := thief.Steal(victim); stolen != nil {
		t.Errorf("Steal() from empty victim = %v want nil", stolen)
	}
}

func TestQueueOverflow(t *testing.T) {
	p := New(0, 1)
	for i := 0; i < RunqCap; i++ {
		if ok := p.Put(mkFiber(uint64(i)), false); !ok {
			t.Fatalf("Put failed early at %d", i)
		}
	}
	if ok := p.Put(mkFiber(999), false); ok {
		t.Error("Put should fail once the local queue is full")
	}
}
