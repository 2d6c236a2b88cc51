// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command nyxrun boots the runtime (symbol interner, allocator,
// collector and scheduler), spawns a root fiber and joins it, then
// tears the runtime down. There is no source-level compiler in this
// module (SPEC_FULL.md scopes lexing/parsing/codegen out entirely, the
// same way package module's doc comment describes a Module as
// "assumed to arrive fully built"), so the root function nyxrun spawns
// is a small native-backed fan-out that exercises Spawn/Join and
// work-stealing across however many workers -workers requests, a
// smoke test for the wiring rather than a script interpreter.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nyxlang/nyx"
	"github.com/nyxlang/nyx/internal/debugflag"
	"github.com/nyxlang/nyx/module"
	"github.com/nyxlang/nyx/sched"
	"github.com/nyxlang/nyx/value"
)

func main() {
	workers := flag.Int("workers", 4, "number of scheduler workers/processors")
	fanout := flag.Int("fanout", 64, "number of child fibers the smoke-test root function spawns")
	regions := flag.Int("maxregions", 0, "allocator hard cap on live regions (0 = default)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if debugflag.Get().SchedTraceMS > 0 {
		log.SetFlags(0)
	}

	nyx.Init(nyx.Config{Workers: *workers, MaxRegions: *regions})
	defer nyx.Shutdown()

	root := &module.Function{
		Name:   "root",
		Native: fanOutNative(*fanout),
	}

	start := time.Now()
	id := nyx.Spawn(root, value.Null, nil)
	nyx.Join(id)
	log.Printf("nyxrun: %d fibers completed in %s", *fanout, time.Since(start))
}

// fanOutNative returns a native root function that spawns n trivial
// child fibers through the scheduler handle vm.Runtime.Handle carries
// (a *sched.Scheduler, set by nyx.Init's entry closure) and joins every
// one of them before returning.
func fanOutNative(n int) module.NativeFunc {
	unit := &module.Function{
		Name: "unit",
		Native: func(handle interface{}, args []value.Value) (value.Value, error) {
			return value.Null, nil
		},
	}
	return func(handle interface{}, args []value.Value) (value.Value, error) {
		s, ok := handle.(*sched.Scheduler)
		if !ok || s == nil {
			return value.Null, fmt.Errorf("nyxrun: native root function has no scheduler handle")
		}
		ids := make([]uint64, n)
		for i := range ids {
			ids[i] = s.Spawn(unit, value.Null, nil)
		}
		for _, id := range ids {
			s.Join(id)
		}
		return value.Null, nil
	}
}
