// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fiber

import "testing"

func TestResumeRunsToCompletion(t *testing.T) {
	ran := false
	f := New(1, nil, func(f *Fiber) { ran = true })
	if alive := f.Resume(); alive {
		t.Error("a fiber with no yields should not be alive after Resume")
	}
	if !ran {
		t.Error("entry should have run")
	}
	if f.State() != Exited {
		t.Errorf("state = %v want Exited", f.State())
	}
}

func TestYieldAndResume(t *testing.T) {
	steps := 0
	f := New(2, nil, func(f *Fiber) {
		steps++
		f.Yield()
		steps++
		f.Yield()
		steps++
	})

	if alive := f.Resume(); !alive {
		t.Fatal("fiber should still be alive after its first yield")
	}
	if steps != 1 {
		t.Errorf("steps = %d want 1", steps)
	}
	if f.State() != Paused {
		t.Errorf("state = %v want Paused", f.State())
	}

	if alive := f.Resume(); !alive {
		t.Fatal("fiber should still be alive after its second yield")
	}
	if steps != 2 {
		t.Errorf("steps = %d want 2", steps)
	}

	if alive := f.Resume(); alive {
		t.Error("fiber should have exited")
	}
	if steps != 3 {
		t.Errorf("steps = %d want 3", steps)
	}
	if f.State() != Exited {
		t.Errorf("state = %v want Exited", f.State())
	}
}

func TestResumeAfterExitPanics(t *testing.T) {
	f := New(3, nil, func(f *Fiber) {})
	f.Resume()

	defer func() {
		if recover() == nil {
			t.Error("Resume on an exited fiber should panic")
		}
	}()
	f.Resume()
}

func TestPanicInEntryIsCaptured(t *testing.T) {
	f := New(4, nil, func(f *Fiber) { panic("boom") })
	if alive := f.Resume(); alive {
		t.Error("a panicking fiber should report exited")
	}
	if f.Err == nil {
		t.Error("expected Err to be set after a panic in the entry")
	}
}
