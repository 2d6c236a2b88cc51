// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nyxlang/nyx/value"
)

func TestHeaderInitBlackOnAlloc(t *testing.T) {
	var h Header
	h.Init(0x1000, value.ShapeList, 32, 4, true)
	if h.Color() != Black {
		t.Errorf("blackOnAlloc=true should start Black, got %v", h.Color())
	}
	if h.Forward() != 0x1000 {
		t.Errorf("fresh header should forward to its own address")
	}

	var h2 Header
	h2.Init(0x2000, value.ShapeList, 32, 4, false)
	if h2.Color() != White {
		t.Errorf("blackOnAlloc=false should start White, got %v", h2.Color())
	}
}

func TestHeaderTryMarkGreyOnce(t *testing.T) {
	var h Header
	h.Init(0x1000, value.ShapeTuple, 16, 2, false)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.TryMarkGrey() {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("exactly one goroutine should win TryMarkGrey, got %d", wins)
	}
	if h.Color() != Grey {
		t.Errorf("color after TryMarkGrey = %v want Grey", h.Color())
	}
}

func TestHeaderForwarding(t *testing.T) {
	var h Header
	h.Init(0x1000, value.ShapeList, 16, 2, false)

	done := make(chan struct{})
	h.Lock(func(addr *int32, expect int32) { <-done })
	h.SetForward(0x2000)
	if wake := h.Unlock(); wake {
		t.Error("no waiter parked, Unlock should not report a wake")
	}
	if h.Forward() != 0x2000 {
		t.Errorf("Forward() after SetForward = %x want 0x2000", h.Forward())
	}
	close(done)
}
