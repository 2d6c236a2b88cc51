// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"strconv"

	"github.com/nyxlang/nyx/internal/fatal"
	"github.com/nyxlang/nyx/module"
	"github.com/nyxlang/nyx/thread"
	"github.com/nyxlang/nyx/value"
)

// Call pushes a frame for fn, runs it to completion (recursing into
// Call again for every nested OpCall it executes), and returns its
// result.
//
// self is the receiver bound into Locals[0]; arrow functions (which
// never bind their own this) leave it unread and start their
// arguments at Locals[0] instead.
//
// A non-nil error is either errUnwinding (an exception was thrown
// somewhere in this call's subtree and was caught in a frame further
// down the Go call stack than the one Call pushed — the caller must
// propagate it unchanged) or any other error, which is a genuine
// uncaught-exception/native-error result: th.PendingException (for
// errUnwound) or a plain Go error from a native function carry the
// detail.
func Call(rt *Runtime, th *thread.Thread, fn *module.Function, self value.Value, args []value.Value) (value.Value, error) {
	checkSafepoint(rt, th)

	if fn.Native != nil {
		v, err := CallNative(rt, fn, args)
		if ne, ok := err.(*NativeException); ok {
			return throwHere(th, ne.Value)
		}
		return v, err
	}

	if exc, err := checkArity(rt, fn, len(args)); err != nil {
		return value.Null, err
	} else if exc != value.Null {
		return throwHere(th, exc)
	}

	if len(th.Frames) >= thread.MaxFrames {
		fatal.Throw("vm: stack overflow at depth %d calling %s", len(th.Frames), fn.Name)
	}

	fr, ok := th.PushFrame(fn)
	if !ok {
		fatal.Throw("vm: PushFrame refused below MaxFrames for %s", fn.Name)
	}

	argBase := 0
	if !fn.Info.Arrow {
		fr.Locals[0] = self
		argBase = 1
	}
	copy(fr.Locals[argBase:], args)

	// A class constructor's self is the instance under construction
	// (already allocated by the OpAllocInstance the compiler emits
	// ahead of the call); it lands in Locals[0] like any other receiver
	// (the copy above), and run's OpRet returns it from there when the
	// constructor returns without a value.
	fr.IP = 0
	if argc := len(args); argc < fn.Info.Argc {
		if entry, ok := fn.Info.DefaultEntry[argc]; ok {
			fr.IP = entry
		}
	}

	result, err := run(rt, th, fr)
	if err == nil {
		th.PopFrame()
		return result, nil
	}
	if err == errUnwinding {
		// A handler was found, but not within fr: some enclosing Call
		// already reclaimed its place as th.Top() while unwinding.
		// fr itself has already been popped by thread.Unwind, so there
		// is nothing left to tear down here — just keep propagating.
		return value.Null, errUnwinding
	}
	// errUnwound, or a native/allocation error: fr (and everything
	// above it) is already gone from th.Frames courtesy of Unwind, or
	// was never fully set up. Nothing to pop.
	return value.Null, err
}

// throwHere raises exc as if OpThrow had just executed in the frame
// Call is about to push — used for arity errors, which are detected
// before a frame exists for the callee. It unwinds starting at the
// caller's current frame (th.Top(), which may be nil for the
// outermost call).
func throwHere(th *thread.Thread, exc value.Value) (value.Value, error) {
	if ok := th.Unwind(exc); ok {
		return value.Null, errUnwinding
	}
	return value.Null, errUnwound
}

// checkArity validates argc against fn's calling convention, returning
// either a constructed ArityError exception (for the caller to throw)
// or a Go error if exception construction itself failed (allocator
// pressure).
func checkArity(rt *Runtime, fn *module.Function, argc int) (value.Value, error) {
	min, max := fn.Info.MinArgc, fn.Info.Argc
	if argc >= min && (fn.Info.Spread || argc <= max) {
		return value.Null, nil
	}
	exc, err := newException(rt, KindArityError, arityMessage(fn.Name, min, max, fn.Info.Spread, argc))
	if err != nil {
		return value.Null, err
	}
	return exc, nil
}

func arityMessage(name string, min, max int, spread bool, got int) string {
	g := strconv.Itoa(got)
	if spread {
		return name + ": expected at least " + strconv.Itoa(min) + " arguments, got " + g
	}
	if min == max {
		return name + ": expected " + strconv.Itoa(min) + " arguments, got " + g
	}
	if got < min {
		return name + ": expected at least " + strconv.Itoa(min) + " arguments, got " + g
	}
	return name + ": expected at most " + strconv.Itoa(max) + " arguments, got " + g
}

// CallNative dispatches to fn's Go-backed implementation, enforcing
// the native-call ABI's argument cap (module.MaxNativeArgs) before
// marshaling through to it.
func CallNative(rt *Runtime, fn *module.Function, args []value.Value) (value.Value, error) {
	if len(args) > module.MaxNativeArgs {
		exc, err := newException(rt, KindTooManyArguments, fn.Name+": too many arguments for native function")
		if err != nil {
			return value.Null, err
		}
		return value.Null, &NativeException{Value: exc}
	}
	v, err := fn.Native(rt.Handle, args)
	if err != nil {
		return value.Null, err
	}
	return v, nil
}

// NativeException wraps an exception value a native function (or
// CallNative itself) wants to raise, so the bytecode loop's OpCall
// handling can route it through the same th.Unwind path as a
// bytecode-level OpThrow rather than treating it as a fatal Go error.
type NativeException struct {
	Value value.Value
}

func (e *NativeException) Error() string { return "vm: native exception" }
