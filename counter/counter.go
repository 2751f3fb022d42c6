// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package counter - lock free counters and flags
package counter

import (
	"sync/atomic"
)

// Counter - a 64 bit unsigned counter that can be atomically
// incremented or decremented
type Counter uint64

// Increment - add 1 to a counter, returns new value
func (ic *Counter) Increment() uint64 {
	return atomic.AddUint64((*uint64)(ic), 1)
}

// Decrement - subtract 1 from a counter, returns new value
func (ic *Counter) Decrement() uint64 {
	return atomic.AddUint64((*uint64)(ic), ^uint64(0))
}

// Uint64 - returns current value
func (ic *Counter) Uint64() uint64 {
	return atomic.LoadUint64((*uint64)(ic))
}

// IsZero - check if zero
func (ic *Counter) IsZero() bool {
	return 0 == atomic.LoadUint64((*uint64)(ic))
}

// Flag - a single-flight marker
//
// used as the dispatch reentrancy guard: Set succeeds for exactly one
// caller until Clear is called
type Flag int32

// Set - attempt to take the flag, false if already taken
func (f *Flag) Set() bool {
	return atomic.CompareAndSwapInt32((*int32)(f), 0, 1)
}

// Clear - release the flag
func (f *Flag) Clear() {
	atomic.StoreInt32((*int32)(f), 0)
}

// IsSet - check the flag without changing it
func (f *Flag) IsSet() bool {
	return 1 == atomic.LoadInt32((*int32)(f))
}
