// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fiberstack implements the native, guard-paged memory slab the
// scheduler allocates and recycles for each fiber. The interpreter does
// not keep a fiber's operand stack or call frames in it: those live in
// thread.Thread's Go slices, and the depth limit is thread.MaxFrames.
// The guard pages make an access just past either end of the slab
// fault immediately instead of silently corrupting adjacent memory.
package fiberstack

import "github.com/nyxlang/nyx/internal/nmmap"

// DefaultSize is the default native stack size for a fiber.
const DefaultSize = 256 * 1024

// Stack is one fiber's native memory: a read-write slab with
// PROT_NONE guard pages immediately below and above it.
type Stack struct {
	mapping *nmmap.Mapping
}

// New maps a fresh guard-paged stack of the given size.
func New(size int) (*Stack, error) {
	if size <= 0 {
		size = DefaultSize
	}
	m, err := nmmap.New(size, true, true)
	if err != nil {
		return nil, err
	}
	return &Stack{mapping: m}, nil
}

// Bytes returns the usable stack memory, guard pages excluded.
func (s *Stack) Bytes() []byte { return s.mapping.Bytes() }

// Release unmaps the stack and its guard pages. The Stack must not be
// used afterward; the scheduler's free-stack pool recycles Stack
// values by keeping them around, not by reusing a released mapping.
func (s *Stack) Release() error { return s.mapping.Unmap() }
