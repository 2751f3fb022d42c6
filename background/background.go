// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package background - run a set of goroutines with a common shutdown
package background

// T - handle for the running set
type T struct {
	finished chan struct{}
	shutdown chan struct{}
}

// Process - the signature of a background process
//
// Run must return promptly once shutdown is closed
type Process interface {
	Run(args interface{}, shutdown <-chan struct{})
}

// Processes - list of processes to start
type Processes []Process

// Start - start up the background processes
//
// all processes are started with the same args value
func Start(processes Processes, args interface{}) *T {

	register := &T{
		finished: make(chan struct{}),
		shutdown: make(chan struct{}),
	}

	doneq := make(chan struct{})

	// start each background
	for _, p := range processes {
		go func(p Process) {
			p.Run(args, register.shutdown)
			doneq <- struct{}{}
		}(p)
	}

	// wait for them all to finish
	go func(count int) {
		for i := 0; i < count; i += 1 {
			<-doneq
		}
		close(register.finished)
	}(len(processes))

	return register
}

// Stop - stop the background processes and wait for them to finish
func (t *T) Stop() {
	if nil == t {
		return
	}
	close(t.shutdown)
	<-t.finished
}
