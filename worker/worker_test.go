// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"testing"
	"time"

	"github.com/nyxlang/nyx/internal/parking"
)

func TestLegalTransitionSequence(t *testing.T) {
	w := New(0, parking.New())
	seq := []State{AcquiringProc, Scheduling, Running, Scheduling, Idle, AcquiringProc, Exited}
	for _, to := range seq {
		if !w.Transition(to) {
			t.Fatalf("transition to %v should be legal from %v", to, w.State())
		}
	}
}

func TestIllegalTransition(t *testing.T) {
	w := New(0, parking.New())
	if w.Transition(Running) {
		t.Error("Created -> Running should not be a legal transition")
	}
	if w.State() != Created {
		t.Errorf("state should be unchanged after an illegal transition, got %v", w.State())
	}
}

func TestWakeReleasesParkedWorker(t *testing.T) {
	w := New(1, parking.New())
	w.Transition(AcquiringProc)
	w.Transition(Scheduling)
	w.Transition(Idle)

	done := make(chan struct{})
	go func() {
		w.ParkIdle()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	w.Wake()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ParkIdle did not return after Wake")
	}
}

func TestOverrun(t *testing.T) {
	w := New(0, parking.New())
	w.Transition(AcquiringProc)
	w.Transition(Scheduling)
	w.Transition(Running)
	w.RunStart = time.Now().Add(-2 * Timeslice)
	if !w.Overrun() {
		t.Error("expected Overrun to be true past the timeslice")
	}
}
