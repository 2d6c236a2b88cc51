// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"testing"

	"github.com/nyxlang/nyx/module"
	"github.com/nyxlang/nyx/value"
)

func fn(locals, handlers int) *module.Function {
	f := &module.Function{Info: module.FunctionInfo{LocalCount: locals}}
	for i := 0; i < handlers; i++ {
		f.Handlers = append(f.Handlers, module.ExceptionHandler{
			IPBegin: i * 10, IPEnd: i*10 + 10, HandlerIP: i*10 + 100, OperandDepth: 0,
		})
	}
	return f
}

func TestPushPopFrame(t *testing.T) {
	th := New()
	f, ok := th.PushFrame(fn(2, 0))
	if !ok {
		t.Fatal("PushFrame failed")
	}
	if len(th.Frames) != 1 || th.Top() != f {
		t.Fatal("frame not pushed correctly")
	}
	th.Push(value.NewBool(true))
	th.Push(value.NewBool(false))
	if th.OperandDepth() != 2 {
		t.Errorf("OperandDepth = %d want 2", th.OperandDepth())
	}
	th.PopFrame()
	if len(th.Frames) != 0 || len(th.Operands) != 0 {
		t.Error("PopFrame should clear the frame and its operands")
	}
}

func TestStackOverflow(t *testing.T) {
	th := New()
	f := fn(0, 0)
	for i := 0; i < MaxFrames; i++ {
		if _, ok := th.PushFrame(f); !ok {
			t.Fatalf("PushFrame failed early at depth %d", i)
		}
	}
	if _, ok := th.PushFrame(f); ok {
		t.Error("PushFrame should fail once MaxFrames is reached")
	}
}

func TestUnwindFindsHandler(t *testing.T) {
	th := New()
	f, _ := th.PushFrame(fn(0, 2))
	f.IP = 5 // inside handler 0's range [0,10)
	th.Push(value.NewBool(true))
	th.Push(value.NewBool(true))

	ok := th.Unwind(value.ExceptionPending)
	if !ok {
		t.Fatal("expected a handler to be found")
	}
	if f.IP != 100 {
		t.Errorf("IP after unwind = %d want 100", f.IP)
	}
	if th.OperandDepth() != 0 {
		t.Errorf("OperandDepth after unwind = %d want 0", th.OperandDepth())
	}
	if th.PendingException != value.Null {
		t.Error("PendingException should clear once a handler is entered")
	}
}

func TestUnwindTerminatesFiberOnMiss(t *testing.T) {
	th := New()
	th.PushFrame(fn(0, 0)) // no handlers at all
	th.PushFrame(fn(0, 0))

	ok := th.Unwind(value.ExceptionPending)
	if ok {
		t.Fatal("expected no handler to be found")
	}
	if len(th.Frames) != 0 {
		t.Error("Unwind should pop every frame on a full miss")
	}
	if th.PendingException != value.ExceptionPending {
		t.Error("PendingException should remain set after a full miss")
	}
}

func TestUnwindKeepsCallerWhenInnerFrameHandles(t *testing.T) {
	th := New()
	th.PushFrame(fn(0, 0)) // caller: no handler
	inner, _ := th.PushFrame(fn(0, 1))
	inner.IP = 3

	ok := th.Unwind(value.ExceptionPending)
	if !ok {
		t.Fatal("expected the inner frame's handler to be found")
	}
	if len(th.Frames) != 2 {
		t.Errorf("both frames should remain after finding a handler in the inner one, got %d", len(th.Frames))
	}
}
