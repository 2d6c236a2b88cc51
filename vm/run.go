// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"github.com/nyxlang/nyx/internal/fatal"
	"github.com/nyxlang/nyx/thread"
	"github.com/nyxlang/nyx/value"
)

// run executes fr's bytecode until it returns or throws past its own
// frame; a yield or safepoint stop blocks inside run and then carries
// on. It is the only place that fetches
// and decodes instructions; everything it doesn't recognize by opcode
// number is handed to rt.Ops.
//
// Calling convention for the builtin opcodes (all operate on the
// current frame's slice of th.Operands, per thread.Thread's shared
// operand stack):
//
//	jmp/jmpf/jmpt  aaa          unconditional / pop-and-branch-on-false / -true
//	call           a=argc bb=child index into fr.Function.Children;
//	                            operands: ..., self, arg0, ..., argN-1
//	ret            a=1 pop and return it, a=0 return null (self, for a class constructor)
//	throwex        pop exception, unwind from the current frame
//	panic          pop a small-string message, fatal.Throw it
//	allocinstance  a=shape bb=field count; pops bb operands as fields
//	allocdata      a=shape; pops one small-string/small-bytes operand
//	yield          no operands; cooperative yield point
func run(rt *Runtime, th *thread.Thread, fr *thread.Frame) (value.Value, error) {
	for {
		checkSafepoint(rt, th)

		instr := fetchAt(fr.Function.Bytecode, fr.IP)
		switch op := instr.Opcode(); op {

		case OpNop:
			fr.IP++

		case OpJmp:
			fr.IP += int(instr.AAA()) + 1

		case OpJmpFalse:
			if !th.Pop().Truthy() {
				fr.IP += int(instr.AAA()) + 1
			} else {
				fr.IP++
			}

		case OpJmpTrue:
			if th.Pop().Truthy() {
				fr.IP += int(instr.AAA()) + 1
			} else {
				fr.IP++
			}

		case OpCall:
			a, bb := instr.ABB()
			argc, childIdx := int(a), int(bb)
			if childIdx >= len(fr.Function.Children) {
				fatal.Throw("vm: call child index %d out of range in %s", childIdx, fr.Function.Name)
			}
			callee := fr.Function.Children[childIdx]
			args := make([]value.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = th.Pop()
			}
			self := th.Pop()

			result, err := Call(rt, th, callee, self, args)
			if err != nil {
				if err == errUnwinding && th.Top() == fr {
					// The callee's exception was caught by a handler
					// registered in this very frame (covering the
					// call-site instruction), not inside the callee:
					// thread.Unwind already set fr.IP to the handler
					// and truncated our operand stack, so resume here.
					continue
				}
				return value.Null, err
			}
			th.Push(result)
			fr.IP++

		case OpRet:
			a, _, _ := instr.ABC()
			if a != 0 {
				return th.Pop(), nil
			}
			if info := fr.Function.Info; info.ClassConstructor && !info.Arrow {
				return fr.Locals[0], nil
			}
			return value.Null, nil

		case OpThrow:
			exc := th.Pop()
			cont, err := raise(th, fr, exc)
			if err != nil {
				return value.Null, err
			}
			if cont {
				continue
			}

		case OpPanic:
			msg := th.Pop()
			fatal.Throw("panic: %s", msg.String())

		case OpAllocInstance:
			a, bb := instr.ABB()
			shape, n := value.ShapeID(a), int(bb)
			fields := make([]value.Value, n)
			for i := n - 1; i >= 0; i-- {
				fields[i] = th.Pop()
			}
			checkSafepoint(rt, th)
			v, err := rt.Alloc.AllocateInstance(rt.ctx(), rt.Proc, shape, fields)
			if err != nil {
				cont, rerr := raiseAllocFailure(rt, th, fr, err)
				if rerr != nil {
					return value.Null, rerr
				}
				if cont {
					continue
				}
				break
			}
			th.Push(v)
			fr.IP++

		case OpAllocData:
			a, _ := instr.ABB()
			shape := value.ShapeID(a)
			src := th.Pop()
			checkSafepoint(rt, th)
			v, err := rt.Alloc.AllocateData(rt.ctx(), rt.Proc, shape, src.SmallStringBytes())
			if err != nil {
				cont, rerr := raiseAllocFailure(rt, th, fr, err)
				if rerr != nil {
					return value.Null, rerr
				}
				if cont {
					continue
				}
				break
			}
			th.Push(v)
			fr.IP++

		case OpYield:
			if rt.Fiber != nil {
				rt.Fiber.Yield()
			}
			fr.IP++

		default:
			h, ok := rt.Ops.lookup(op)
			if !ok {
				fatal.Throw("vm: no OpHandler registered for opcode %d in %s", op, fr.Function.Name)
			}
			if err := h(rt, th, fr, instr); err != nil {
				if ne, ok := err.(*NativeException); ok {
					cont, rerr := raise(th, fr, ne.Value)
					if rerr != nil {
						return value.Null, rerr
					}
					if cont {
						continue
					}
					break
				}
				return value.Null, err
			}
			fr.IP++
		}
	}
}

// raise unwinds exc starting at th.Top() (normally fr itself) and
// reports whether the caller should keep running fr at the handler IP
// thread.Unwind just installed (cont==true), or stop and propagate
// errUnwinding/errUnwound up the Go call stack instead.
func raise(th *thread.Thread, fr *thread.Frame, exc value.Value) (cont bool, err error) {
	if ok := th.Unwind(exc); ok {
		if th.Top() == fr {
			return true, nil
		}
		return false, errUnwinding
	}
	return false, errUnwound
}

// raiseAllocFailure turns an allocator error (region-cap exhaustion,
// context cancellation) into a nyx-level exception and unwinds it,
// mirroring raise's cont/err contract. A failure to even construct the
// exception object (the allocator is still out of room) escalates to
// fatal.Throw — there is no lower-memory fallback left to try.
func raiseAllocFailure(rt *Runtime, th *thread.Thread, fr *thread.Frame, cause error) (cont bool, err error) {
	exc, eerr := newException(rt, KindOutOfMemory, cause.Error())
	if eerr != nil {
		fatal.Throw("vm: out of memory constructing the OutOfMemory exception: %v", eerr)
	}
	return raise(th, fr, exc)
}
