// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alloc

import (
	"context"
	"testing"

	"github.com/nyxlang/nyx/heap"
)

func TestAcquireAndReleaseRegion(t *testing.T) {
	a := New(4)
	r, err := a.AcquireRegion(context.Background())
	if err != nil {
		t.Fatalf("AcquireRegion: %v", err)
	}
	if r.State() != heap.Used {
		t.Errorf("state = %v want Used", r.State())
	}
	if err := a.ReleaseRegion(r, false); err != nil {
		t.Fatalf("ReleaseRegion: %v", err)
	}
	if r.State() != heap.Available {
		t.Errorf("state after release = %v want Available", r.State())
	}
}

func TestHardCapBlocks(t *testing.T) {
	a := New(1)
	r, err := a.AcquireRegion(context.Background())
	if err != nil {
		t.Fatalf("AcquireRegion: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.AcquireRegion(ctx); err == nil {
		t.Fatal("expected the hard cap to block a second acquire")
	}

	if err := a.ReleaseRegion(r, false); err != nil {
		t.Fatalf("ReleaseRegion: %v", err)
	}
	if _, err := a.AcquireRegion(context.Background()); err != nil {
		t.Fatalf("AcquireRegion after release: %v", err)
	}
}

func TestFreelistReuse(t *testing.T) {
	a := New(2)
	r1, _ := a.AcquireRegion(context.Background())
	id1 := r1.ID
	if err := a.ReleaseRegion(r1, false); err != nil {
		t.Fatal(err)
	}
	r2, err := a.AcquireRegion(context.Background())
	if err != nil {
		t.Fatalf("AcquireRegion: %v", err)
	}
	if r2.ID != id1 {
		t.Errorf("expected the freelisted region to be reused, got a new id %d", r2.ID)
	}
}

func TestReleaseRegionClearsActiveGlobal(t *testing.T) {
	a := New(4)
	// Force an allocation through the nil-proc path so it becomes a.global.
	if _, err := a.allocateRaw(context.Background(), nil, 8); err != nil {
		t.Fatalf("allocateRaw: %v", err)
	}
	g := a.GlobalRegion()
	if g == nil {
		t.Fatal("GlobalRegion() = nil after a nil-proc allocation")
	}
	if err := a.ReleaseRegion(g, false); err != nil {
		t.Fatalf("ReleaseRegion: %v", err)
	}
	if got := a.GlobalRegion(); got != nil {
		t.Errorf("GlobalRegion() = %v after releasing it, want nil", got)
	}
}

func TestWatermarkNotification(t *testing.T) {
	a := New(2)
	var last float64
	a.NotifyWatermark = func(occupancy float64) { last = occupancy }
	if _, err := a.AcquireRegion(context.Background()); err != nil {
		t.Fatal(err)
	}
	if last != 0.5 {
		t.Errorf("occupancy after 1/2 acquired = %v want 0.5", last)
	}
}
