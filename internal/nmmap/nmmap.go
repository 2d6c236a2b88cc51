// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nmmap wraps anonymous, page-aligned mappings for the two
// things this runtime hands out raw memory for: heap regions and fiber
// stacks. Both want the same shape — a fixed-size slab the caller bump
// allocates within, optionally flanked by PROT_NONE guard pages so a
// stack overflow faults instead of corrupting an adjacent mapping.
package nmmap

import "golang.org/x/sys/unix"

// Mapping is a single anonymous mmap, plus the guard pages (if any)
// that were mapped alongside it.
type Mapping struct {
	full []byte // the whole mmap, including guard pages
	data []byte // the read-write slab within full
}

// New maps size bytes (rounded up to a whole number of pages) of
// read-write anonymous memory. If guardBelow or guardAbove is set, an
// extra page is mapped immediately below/above the slab with
// PROT_NONE so any access to it faults.
func New(size int, guardBelow, guardAbove bool) (*Mapping, error) {
	pageSize := unix.Getpagesize()
	size = roundUp(size, pageSize)

	total := size
	if guardBelow {
		total += pageSize
	}
	if guardAbove {
		total += pageSize
	}

	full, err := unix.Mmap(-1, 0, total, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}

	start := 0
	if guardBelow {
		start = pageSize
	}
	slab := full[start : start+size : start+size]
	if err := unix.Mprotect(slab, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		unix.Munmap(full)
		return nil, err
	}

	return &Mapping{full: full, data: slab}, nil
}

// Bytes returns the read-write slab, excluding guard pages.
func (m *Mapping) Bytes() []byte { return m.data }

// Unmap releases the mapping, including any guard pages.
func (m *Mapping) Unmap() error {
	return unix.Munmap(m.full)
}

func roundUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return (n/align + 1) * align
}
