// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package module defines the compiled module/function representation
// the scheduler and vm packages consume. Lexing, parsing and codegen
// are out of scope here: a Module is assumed to arrive fully built,
// the same way the Go runtime consumes a compiled binary's function
// table without caring how the compiler produced it.
package module

import "github.com/nyxlang/nyx/value"

// Module is a unit of compiled bytecode: a function table plus the
// string and symbol pools its bytecode indexes into.
type Module struct {
	Name      string
	Functions []*Function
	Strings   []string
	Symbols   []uint32
}

// Function is one compiled function: its bytecode, exception handler
// table, calling-convention metadata, and any nested function
// literals it closes over.
type Function struct {
	Name     string
	Bytecode []byte
	Handlers []ExceptionHandler
	Info     FunctionInfo
	Children []*Function

	// Native is non-nil when this Function is backed by a Go function
	// instead of bytecode (a built-in); vm.Call dispatches to it
	// directly instead of running the bytecode loop.
	Native NativeFunc
}

// FunctionInfo carries the calling-convention and frame-sizing
// metadata vm.Call needs before it can push a frame.
type FunctionInfo struct {
	Argc             int
	MinArgc          int
	StackSize        int
	LocalCount       int
	HeapVarCount     int
	Spread           bool
	Arrow            bool
	ClassConstructor bool

	// DefaultEntry[n], for MinArgc <= n < Argc, is the bytecode offset
	// vm.Call jumps to instead of 0 when exactly n arguments were
	// supplied: the default-argument jump table of spec.md §4.6,
	// evaluating each missing argument's declared default expression
	// before falling through into the function body proper. A missing
	// or zero entry means "no defaulting needed for this arity".
	DefaultEntry map[int]int
}

// ExceptionHandler is one entry of a function's catch-table: the
// bytecode range it protects, the handler to jump to, and the operand
// stack depth to truncate back to before entering it.
type ExceptionHandler struct {
	IPBegin      int
	IPEnd        int
	HandlerIP    int
	OperandDepth int
}

// Covers reports whether ip falls within the handler's protected range.
func (h ExceptionHandler) Covers(ip int) bool {
	return ip >= h.IPBegin && ip < h.IPEnd
}

// NativeFunc is the native-function ABI: a Go function taking the
// calling vm handle (opaque here to avoid an import cycle back into
// package vm) and marshaled arguments, returning either a result value
// or an error.
//
// MaxNativeArgs bounds how many arguments can be marshaled this way;
// beyond it vm.CallNative returns TooManyArgumentsForCFunction.
type NativeFunc func(vmHandle interface{}, args []value.Value) (value.Value, error)

// MaxNativeArgs is the native-call ABI's argument cap.
const MaxNativeArgs = 15
