// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package counter_test

import (
	"sync"
	"testing"

	"github.com/facetroute/facetd/counter"
)

func TestCounter(t *testing.T) {
	var c counter.Counter

	if !c.IsZero() {
		t.Errorf("new counter is not zero")
	}

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i += 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j += 1 {
				c.Increment()
			}
		}()
	}
	wg.Wait()

	if 1000 != c.Uint64() {
		t.Errorf("count: actual: %d  expected: %d", c.Uint64(), 1000)
	}

	c.Decrement()
	if 999 != c.Uint64() {
		t.Errorf("count: actual: %d  expected: %d", c.Uint64(), 999)
	}
}

func TestFlag(t *testing.T) {
	var f counter.Flag

	if f.IsSet() {
		t.Errorf("new flag is set")
	}
	if !f.Set() {
		t.Errorf("first set failed")
	}
	if f.Set() {
		t.Errorf("second set succeeded")
	}
	if !f.IsSet() {
		t.Errorf("flag not set after Set")
	}
	f.Clear()
	if f.IsSet() {
		t.Errorf("flag set after Clear")
	}
	if !f.Set() {
		t.Errorf("set after clear failed")
	}
}
