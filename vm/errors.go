// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"context"
	"errors"

	"github.com/nyxlang/nyx/value"
)

// errUnwinding and errUnwound are the two sentinels Call uses to thread
// an exception back up a Go call stack of nested Call invocations that
// all share one flat thread.Thread.Frames slice.
//
// errUnwinding means thread.Unwind found a handler, but not in the
// frame this particular Call/run pair owns — it landed in an enclosing
// frame further down the Go call stack, which already popped its own
// way back there. The caller must return errUnwinding in turn (without
// touching th.Frames itself) until the Call whose own frame is now
// th.Top() takes over and resumes running at the handler's IP.
//
// errUnwound means Unwind ran off the bottom of th.Frames with no
// handler anywhere: the exception is terminal for this fiber. Only the
// outermost Call (the one the scheduler's Entry invoked directly) is
// meant to observe this; it surfaces as the fiber's exit error.
var (
	errUnwinding = errors.New("vm: exception caught in an enclosing frame")
	errUnwound   = errors.New("vm: exception propagated past the outermost frame")
)

// Exception kind tags, stored as the first field of a ShapeException
// instance. These name the handful of conditions package vm itself can
// raise; library-defined exception kinds are just other small-string
// values a native function or OpThrow supplies directly. Kept within
// value.MaxSmallStringBytes so the tag itself never needs a heap
// allocation — only the accompanying message might.
const (
	KindArityError       = "Arity"
	KindTooManyArguments = "TooMany"
	KindNotCallable      = "NotCall"
	KindOutOfMemory      = "OOM"
)

// exceptionFields is the fixed layout of a ShapeException instance:
// field 0 is the kind tag (a small string), field 1 the human-readable
// message.
const (
	excFieldKind = iota
	excFieldMessage
	excFieldCount
)

func newException(rt *Runtime, kind, message string) (value.Value, error) {
	kindV, ok := value.NewSmallString(kind)
	if !ok {
		kindV, _ = value.NewSmallString(kind[:value.MaxSmallStringBytes])
	}
	var msgV value.Value
	if v, ok := value.NewSmallString(message); ok {
		msgV = v
	} else {
		v, err := rt.allocString(message)
		if err != nil {
			return value.Null, err
		}
		msgV = v
	}
	fields := make([]value.Value, excFieldCount)
	fields[excFieldKind] = kindV
	fields[excFieldMessage] = msgV
	return rt.Alloc.AllocateInstance(rt.ctx(), rt.Proc, value.ShapeException, fields)
}

// allocString materializes s as a large-string object when it doesn't
// fit a small string's 7-byte inline budget.
func (rt *Runtime) allocString(s string) (value.Value, error) {
	return rt.Alloc.AllocateData(rt.ctx(), rt.Proc, value.ShapeLargeString, []byte(s))
}

func (rt *Runtime) ctx() context.Context {
	if rt.Ctx != nil {
		return rt.Ctx
	}
	return context.Background()
}
