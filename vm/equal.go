// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"github.com/nyxlang/nyx/heap"
	"github.com/nyxlang/nyx/value"
)

// ValuesEqual implements spec.md's equality rule in full: structural
// for immediates (value.Equal already covers integer/float/bool/
// null/symbol/small-string), reference equality for heap objects,
// except a shape known immutable — a large string or large bytes
// value — compares by contents instead. This is the comparison path
// an OpHandler or module.NativeFunc backing the language's `==`
// operator calls, since vm's builtin opcode set is deliberately
// limited to control flow, allocation and safepoints (SPEC_FULL.md
// §4.12) and doesn't decode comparisons itself.
func ValuesEqual(a, b value.Value) bool {
	if !a.IsObject() || !b.IsObject() {
		return value.Equal(a, b)
	}
	if a.HeapAddr() == b.HeapAddr() {
		return true
	}
	ha, hb := heap.HeaderAt(a.HeapAddr()), heap.HeaderAt(b.HeapAddr())
	if !ha.Shape.IsData() || !hb.Shape.IsData() {
		return false
	}
	return heap.DataEqual(a.HeapAddr(), ha, b.HeapAddr(), hb)
}
