// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package value

// ShapeID classifies the memory layout of a value, whether immediate
// (encoded entirely in the word) or heap-allocated (traced via a Header).
//
// Shape ids partition into three families:
//   - immediate: fully encoded in the Value word, no heap header.
//   - data: heap-allocated raw bytes, traced as opaque (strings, byte buffers).
//   - instance: heap-allocated structured objects, traced field-by-field.
type ShapeID uint8

const (
	ShapeDead ShapeID = iota // never assigned to a reachable value

	// immediate shapes
	ShapeInt
	ShapeFloat
	ShapeBool
	ShapeNull
	ShapeSymbol
	ShapeSmallString
	ShapeSmallBytes
	shapeImmediateEnd

	// data shapes (heap, opaque to the tracer)
	ShapeLargeString
	ShapeLargeBytes
	shapeDataEnd

	// instance shapes (heap, traced field-by-field)
	ShapeLargeInt
	ShapeFunction
	ShapeException
	ShapeTuple
	ShapeList
	ShapeDict
	ShapeClass
	ShapeShape
	ShapeFiber
	ShapeFrameContext
	shapeInstanceEnd
)

// IsImmediate reports whether id is fully encoded within a Value word.
func (id ShapeID) IsImmediate() bool { return id > ShapeDead && id < shapeImmediateEnd }

// IsData reports whether id is a heap-allocated opaque byte blob.
func (id ShapeID) IsData() bool { return id > shapeImmediateEnd && id < shapeDataEnd }

// IsInstance reports whether id is a heap-allocated structured object.
func (id ShapeID) IsInstance() bool { return id > shapeDataEnd && id < shapeInstanceEnd }

func (id ShapeID) String() string {
	switch id {
	case ShapeDead:
		return "dead"
	case ShapeInt:
		return "int"
	case ShapeFloat:
		return "float"
	case ShapeBool:
		return "bool"
	case ShapeNull:
		return "null"
	case ShapeSymbol:
		return "symbol"
	case ShapeSmallString:
		return "small-string"
	case ShapeSmallBytes:
		return "small-bytes"
	case ShapeLargeString:
		return "large-string"
	case ShapeLargeBytes:
		return "large-bytes"
	case ShapeLargeInt:
		return "large-int"
	case ShapeFunction:
		return "function"
	case ShapeException:
		return "exception"
	case ShapeTuple:
		return "tuple"
	case ShapeList:
		return "list"
	case ShapeDict:
		return "dict"
	case ShapeClass:
		return "class"
	case ShapeShape:
		return "shape"
	case ShapeFiber:
		return "fiber"
	case ShapeFrameContext:
		return "frame-context"
	default:
		return "unknown"
	}
}
