// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package registry_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/counter"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/governance"
	"github.com/facetroute/facetd/merkle"
	"github.com/facetroute/facetd/registry"
	"github.com/facetroute/facetd/routerecord"
	"github.com/facetroute/facetd/storage"
)

var (
	testGovernor = address.Address{0x01}
	testGuardian = address.Address{0x02}
	testOutsider = address.Address{0x03}
)

var testGuard counter.Flag

// remove all files created by test
func removeFiles() {
	os.RemoveAll("test.log")
}

// configure for testing
func setup(t *testing.T) {
	removeFiles()

	_ = logger.Initialise(logger.Configuration{
		Directory: ".",
		File:      "test.log",
		Size:      50000,
		Count:     10,
	})

	err := storage.Initialise("") // in-memory
	if nil != err {
		t.Fatalf("storage initialise error: %s", err)
	}

	err = governance.Initialise(testGovernor, testGuardian, time.Hour, storage.Pool.Governance, &testGuard)
	if nil != err {
		t.Fatalf("governance initialise error: %s", err)
	}

	testGuard.Clear()
	err = registry.Initialise(storage.Pool.Routes, storage.Pool.Facets, &testGuard)
	if nil != err {
		t.Fatalf("registry initialise error: %s", err)
	}
}

// post test cleanup
func teardown(t *testing.T) {
	_ = registry.Finalise()
	_ = governance.Finalise()
	storage.Finalise()
	logger.Finalise()
	removeFiles()
}

// build a proved batch and its root for n distinct routes
func makeBatch(t *testing.T, n int) ([]routerecord.ProvedRoute, digest.Digest) {
	batch := make([]routerecord.ProvedRoute, n)
	leaves := make([]digest.Digest, n)

	for i := 0; i < n; i += 1 {
		route := routerecord.Route{
			Selector:      routerecord.Selector{0x10, 0x20, 0x30, byte(i + 1)},
			ModuleAddress: address.Address{0xf0, byte(i % 3)}, // a few shared modules
			CodeIdentity:  digest.New([]byte(fmt.Sprintf("code-%d", i%3))),
		}
		batch[i].Route = route
		leaves[i] = merkle.RouteLeaf(route.Selector, route.ModuleAddress, route.CodeIdentity)
	}

	tree := merkle.NewTree(leaves)
	for i := 0; i < n; i += 1 {
		siblings, positions, err := tree.Proof(i)
		if nil != err {
			t.Fatalf("proof error: %s", err)
		}
		batch[i].Siblings = siblings
		batch[i].Positions = routerecord.Positions(positions)
	}
	return batch, tree.Root()
}

func TestApplyAndResolve(t *testing.T) {
	setup(t)
	defer teardown(t)

	batch, root := makeBatch(t, 4)

	err := registry.Apply(testGovernor, batch, root, 2)
	if nil != err {
		t.Fatalf("apply error: %s", err)
	}

	if 4 != registry.RouteCount() {
		t.Errorf("route count: actual: %d  expected: %d", registry.RouteCount(), 4)
	}
	if 3 != registry.FacetCount() {
		t.Errorf("facet count: actual: %d  expected: %d", registry.FacetCount(), 3)
	}

	for i := range batch {
		entry, err := registry.Resolve(batch[i].Selector)
		if nil != err {
			t.Fatalf("resolve error: %s", err)
		}
		if batch[i].ModuleAddress != entry.ModuleAddress {
			t.Errorf("module: actual: %s  expected: %s", entry.ModuleAddress, batch[i].ModuleAddress)
		}
		if uint64(2) != entry.RegisteredEpoch {
			t.Errorf("epoch: actual: %d  expected: %d", entry.RegisteredEpoch, 2)
		}
	}

	// a selector outside the set must not resolve
	_, err = registry.Resolve(routerecord.Selector{0xff, 0xff, 0xff, 0xff})
	if fault.NoRoute != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.NoRoute)
	}
}

// one bad proof must leave the registry completely unchanged
func TestBatchAtomicity(t *testing.T) {
	setup(t)
	defer teardown(t)

	batch, root := makeBatch(t, 5)

	// damage one proof in the middle
	batch[2].Siblings[0][0] ^= 0x01

	err := registry.Apply(testGovernor, batch, root, 2)
	if fault.InvalidProof != err {
		t.Fatalf("error: actual: %v  expected: %v", err, fault.InvalidProof)
	}

	if 0 != registry.RouteCount() {
		t.Errorf("route count after failed apply: actual: %d  expected: 0", registry.RouteCount())
	}
	for i := range batch {
		_, err := registry.Resolve(batch[i].Selector)
		if fault.NoRoute != err {
			t.Errorf("selector %d: error: actual: %v  expected: %v", i, err, fault.NoRoute)
		}
	}
}

func TestDuplicateSelector(t *testing.T) {
	setup(t)
	defer teardown(t)

	batch, root := makeBatch(t, 3)
	batch[2].Route = batch[0].Route
	batch[2].Siblings = batch[0].Siblings
	batch[2].Positions = batch[0].Positions

	err := registry.Apply(testGovernor, batch, root, 2)
	if fault.DuplicateSelector != err {
		t.Fatalf("error: actual: %v  expected: %v", err, fault.DuplicateSelector)
	}
	if 0 != registry.RouteCount() {
		t.Errorf("registry mutated by rejected batch")
	}
}

func TestBatchTooLarge(t *testing.T) {
	setup(t)
	defer teardown(t)

	batch := make([]routerecord.ProvedRoute, registry.MaximumBatchSize+1)
	for i := range batch {
		batch[i].Selector = routerecord.Selector{byte(i >> 8), byte(i), 0x01, 0x02}
		batch[i].ModuleAddress = address.Address{0x01}
	}

	err := registry.Apply(testGovernor, batch, digest.New([]byte("root")), 2)
	if fault.BatchTooLarge != err {
		t.Fatalf("error: actual: %v  expected: %v", err, fault.BatchTooLarge)
	}
}

func TestApplyAuthorisation(t *testing.T) {
	setup(t)
	defer teardown(t)

	batch, root := makeBatch(t, 2)
	err := registry.Apply(testOutsider, batch, root, 2)
	if fault.NotGovernor != err {
		t.Fatalf("error: actual: %v  expected: %v", err, fault.NotGovernor)
	}
}

// a batch arriving while a dispatch is in flight must be rejected
func TestReentrancyGuard(t *testing.T) {
	setup(t)
	defer teardown(t)

	batch, root := makeBatch(t, 2)

	testGuard.Set()
	err := registry.Apply(testGovernor, batch, root, 2)
	testGuard.Clear()
	if fault.ReentrantCall != err {
		t.Fatalf("error: actual: %v  expected: %v", err, fault.ReentrantCall)
	}
}

func TestRemove(t *testing.T) {
	setup(t)
	defer teardown(t)

	batch, root := makeBatch(t, 4)
	err := registry.Apply(testGovernor, batch, root, 2)
	if nil != err {
		t.Fatalf("apply error: %s", err)
	}

	// removal including an unknown selector is rejected whole
	err = registry.Remove(testGovernor, []routerecord.Selector{
		batch[0].Selector,
		{0xff, 0xff, 0xff, 0xff},
	})
	if fault.NoRoute != err {
		t.Fatalf("error: actual: %v  expected: %v", err, fault.NoRoute)
	}
	if 4 != registry.RouteCount() {
		t.Errorf("registry mutated by rejected removal")
	}

	err = registry.Remove(testGovernor, []routerecord.Selector{batch[0].Selector})
	if nil != err {
		t.Fatalf("remove error: %s", err)
	}
	if 3 != registry.RouteCount() {
		t.Errorf("route count: actual: %d  expected: %d", registry.RouteCount(), 3)
	}
	_, err = registry.Resolve(batch[0].Selector)
	if fault.NoRoute != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.NoRoute)
	}
}

func TestFacetInfo(t *testing.T) {
	setup(t)
	defer teardown(t)

	batch, root := makeBatch(t, 4)
	err := registry.Apply(testGovernor, batch, root, 2)
	if nil != err {
		t.Fatalf("apply error: %s", err)
	}

	// module 0xf0,0x00 carries selectors 0 and 3 (i%3 pattern)
	info, err := registry.Facet(address.Address{0xf0, 0x00})
	if nil != err {
		t.Fatalf("facet error: %s", err)
	}
	if 2 != len(info.Selectors) {
		t.Errorf("selectors: actual: %d  expected: %d", len(info.Selectors), 2)
	}
	if !info.Active {
		t.Errorf("facet not active")
	}

	_, err = registry.Facet(address.Address{0xee})
	if fault.NoRoute != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.NoRoute)
	}
}

func TestListFacets(t *testing.T) {
	setup(t)
	defer teardown(t)

	batch, root := makeBatch(t, 6)
	err := registry.Apply(testGovernor, batch, root, 2)
	if nil != err {
		t.Fatalf("apply error: %s", err)
	}

	// page through two at a time
	all := []address.Address{}
	start := address.Zero
	for {
		page, err := registry.ListFacets(start, 2)
		if nil != err {
			t.Fatalf("list error: %s", err)
		}
		if 0 == len(page) {
			break
		}
		all = append(all, page...)
		start = page[len(page)-1]
	}

	if registry.FacetCount() != len(all) {
		t.Errorf("listed: actual: %d  expected: %d", len(all), registry.FacetCount())
	}

	_, err = registry.ListFacets(address.Zero, 0)
	if fault.InvalidCount != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.InvalidCount)
	}
}

// registry must reload from storage after a restart
func TestReload(t *testing.T) {
	setup(t)

	batch, root := makeBatch(t, 3)
	err := registry.Apply(testGovernor, batch, root, 5)
	if nil != err {
		t.Fatalf("apply error: %s", err)
	}

	_ = registry.Finalise()
	err = registry.Initialise(storage.Pool.Routes, storage.Pool.Facets, &testGuard)
	if nil != err {
		t.Fatalf("re-initialise error: %s", err)
	}

	if 3 != registry.RouteCount() {
		t.Errorf("route count after reload: actual: %d  expected: %d", registry.RouteCount(), 3)
	}
	entry, err := registry.Resolve(batch[1].Selector)
	if nil != err {
		t.Fatalf("resolve error: %s", err)
	}
	if uint64(5) != entry.RegisteredEpoch {
		t.Errorf("epoch: actual: %d  expected: %d", entry.RegisteredEpoch, 5)
	}

	teardown(t)
}
