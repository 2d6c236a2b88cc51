// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fatal implements the runtime's unrecoverable error path:
// conditions that leave the heap or scheduler in a state no further
// progress can be trusted from (stack overflow, running out of memory
// while constructing the OutOfMemory exception itself, a call to a
// missing child function or an opcode with no handler, the panic
// opcode). An uncaught exception is not one of them: it ends only its
// own fiber. These are never panic/recover'd; they
// print a diagnostic and terminate the process, mirroring the
// runtime's own throw()/fatalthrow().
package fatal

import (
	"fmt"
	"log"
	"os"
)

// Exit is called by Throw to terminate the process; tests replace it
// to observe a fatal call without actually exiting.
var Exit = os.Exit

// Throw logs a formatted diagnostic and terminates the process with
// exit code 2. It never returns.
func Throw(format string, args ...interface{}) {
	log.Output(2, "fatal: "+fmt.Sprintf(format, args...))
	Exit(2)
}
