// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugflag parses NYXDEBUG, a comma-separated name=val list
// controlling runtime debugging/tracing output, the same shape and
// spirit as the Go runtime's own GODEBUG variable.
//
// Recognized keys:
//
//	gctrace=1          print one line per GC phase transition
//	schedtrace=N        any N > 0 logs one line per fiber dispatch (N is not an interval)
//	asyncpreemptoff=1   sets Flags.AsyncPreemptOff; no runtime component reads it
package debugflag

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// Flags holds the parsed value of NYXDEBUG.
type Flags struct {
	GCTrace         bool
	SchedTraceMS    int
	AsyncPreemptOff bool
}

var (
	once    sync.Once
	current Flags
)

// Get returns the process-wide parsed flags, parsing NYXDEBUG from the
// environment on first call.
func Get() Flags {
	once.Do(func() {
		current = Parse(os.Getenv("NYXDEBUG"))
	})
	return current
}

// Parse parses a NYXDEBUG-formatted string directly, for tests.
func Parse(s string) Flags {
	var f Flags
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, val, _ := strings.Cut(pair, "=")
		switch name {
		case "gctrace":
			f.GCTrace = val == "1"
		case "schedtrace":
			if n, err := strconv.Atoi(val); err == nil {
				f.SchedTraceMS = n
			}
		case "asyncpreemptoff":
			f.AsyncPreemptOff = val == "1"
		}
	}
	return f
}
