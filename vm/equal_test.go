// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"context"
	"testing"

	"github.com/nyxlang/nyx/value"
)

func TestValuesEqualImmediates(t *testing.T) {
	a, _ := value.NewInt(7)
	b, _ := value.NewInt(7)
	c, _ := value.NewInt(8)
	if !ValuesEqual(a, b) {
		t.Error("equal ints compared unequal")
	}
	if ValuesEqual(a, c) {
		t.Error("distinct ints compared equal")
	}
}

func TestValuesEqualLargeStringByContent(t *testing.T) {
	rt := testRuntime()
	long := "this string is deliberately longer than seven bytes"

	s1, err := rt.Alloc.AllocateData(context.Background(), nil, value.ShapeLargeString, []byte(long))
	if err != nil {
		t.Fatalf("AllocateData s1: %v", err)
	}
	s2, err := rt.Alloc.AllocateData(context.Background(), nil, value.ShapeLargeString, []byte(long))
	if err != nil {
		t.Fatalf("AllocateData s2: %v", err)
	}
	if s1.HeapAddr() == s2.HeapAddr() {
		t.Fatal("two distinct allocations landed at the same address")
	}
	if !ValuesEqual(s1, s2) {
		t.Error("two large strings with identical content compared unequal")
	}

	s3, err := rt.Alloc.AllocateData(context.Background(), nil, value.ShapeLargeString, []byte(long+"!"))
	if err != nil {
		t.Fatalf("AllocateData s3: %v", err)
	}
	if ValuesEqual(s1, s3) {
		t.Error("large strings with different content compared equal")
	}
}

func TestValuesEqualInstancesAreReferenceEqual(t *testing.T) {
	rt := testRuntime()
	seven, _ := value.NewInt(7)

	i1, err := rt.Alloc.AllocateInstance(context.Background(), nil, value.ShapeTuple, []value.Value{seven})
	if err != nil {
		t.Fatalf("AllocateInstance i1: %v", err)
	}
	i2, err := rt.Alloc.AllocateInstance(context.Background(), nil, value.ShapeTuple, []value.Value{seven})
	if err != nil {
		t.Fatalf("AllocateInstance i2: %v", err)
	}
	if ValuesEqual(i1, i2) {
		t.Error("two distinct instances with identical fields compared equal; instances use reference equality")
	}
	if !ValuesEqual(i1, i1) {
		t.Error("an instance should compare equal to itself")
	}
}
