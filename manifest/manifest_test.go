// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package manifest_test

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/manifest"
	"github.com/facetroute/facetd/routerecord"
)

var testDeployer = address.Address{0x0d}

const testChainID = 99

// plain route list for building
func makeRoutes(n int) []routerecord.Route {
	routes := make([]routerecord.Route, n)
	for i := 0; i < n; i += 1 {
		routes[i] = routerecord.Route{
			Selector:      routerecord.Selector{0x01, 0x02, 0x03, byte(i + 1)},
			ModuleAddress: address.Address{0xf0, byte(i)},
			CodeIdentity:  digest.New([]byte(fmt.Sprintf("code-%d", i))),
		}
	}
	return routes
}

func TestBuildAndSelfCheck(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 7, 16} {
		m, err := manifest.Build(makeRoutes(n), 1, 1700000000, testDeployer, testChainID, digest.Zero)
		if nil != err {
			t.Fatalf("%d routes: build error: %s", n, err)
		}
		if n != len(m.Routes) {
			t.Fatalf("%d routes: actual: %d", n, len(m.Routes))
		}
		if err := m.SelfCheck(); nil != err {
			t.Errorf("%d routes: self-check error: %s", n, err)
		}
	}
}

func TestBuildRejectsDuplicates(t *testing.T) {
	routes := makeRoutes(3)
	routes[2].Selector = routes[0].Selector

	_, err := manifest.Build(routes, 1, 1700000000, testDeployer, testChainID, digest.Zero)
	if fault.DuplicateSelector != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.DuplicateSelector)
	}
}

func TestSelfCheckDetectsTampering(t *testing.T) {
	build := func(t *testing.T) *manifest.Manifest {
		m, err := manifest.Build(makeRoutes(4), 1, 1700000000, testDeployer, testChainID, digest.Zero)
		if nil != err {
			t.Fatalf("build error: %s", err)
		}
		return m
	}

	// repointed module address no longer matches its proof
	m := build(t)
	m.Routes[1].ModuleAddress = address.Address{0xee}
	if err := m.SelfCheck(); fault.InvalidProof != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.InvalidProof)
	}

	// flipped proof byte
	m = build(t)
	m.Routes[2].Siblings[0][7] ^= 0x01
	if err := m.SelfCheck(); fault.InvalidProof != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.InvalidProof)
	}

	// altered root invalidates every proof
	m = build(t)
	m.Root[0] ^= 0x01
	if err := m.SelfCheck(); fault.InvalidProof != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.InvalidProof)
	}

	// altered header breaks the manifest hash
	m = build(t)
	m.Header.Timestamp += 1
	if err := m.SelfCheck(); fault.ManifestHashMismatch != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.ManifestHashMismatch)
	}

	// zero root
	m = build(t)
	m.Root = digest.Zero
	if err := m.SelfCheck(); fault.RootZero != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.RootZero)
	}
}

// the manifest hash must be reproducible from header and root alone
func TestManifestHashReproducibility(t *testing.T) {
	m, err := manifest.Build(makeRoutes(5), 7, 1700000123, testDeployer, testChainID, digest.New([]byte("previous")))
	if nil != err {
		t.Fatalf("build error: %s", err)
	}

	recomputed := routerecord.ManifestHash(&m.Header.ManifestHeader, m.Root)
	if m.Header.VersionHash != recomputed {
		t.Errorf("hash: actual: %s  expected: %s", recomputed, m.Header.VersionHash)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "manifest-test-")
	if nil != err {
		t.Fatalf("temp dir error: %s", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "manifest.json")

	m, err := manifest.Build(makeRoutes(4), 3, 1700000000, testDeployer, testChainID, digest.Zero)
	if nil != err {
		t.Fatalf("build error: %s", err)
	}
	if err := m.Save(path); nil != err {
		t.Fatalf("save error: %s", err)
	}

	loaded, err := manifest.Load(path)
	if nil != err {
		t.Fatalf("load error: %s", err)
	}
	if err := loaded.SelfCheck(); nil != err {
		t.Errorf("self-check after load: %s", err)
	}
	if m.Root != loaded.Root {
		t.Errorf("root: actual: %s  expected: %s", loaded.Root, m.Root)
	}
	if m.Header.VersionHash != loaded.Header.VersionHash {
		t.Errorf("version hash: actual: %s  expected: %s", loaded.Header.VersionHash, m.Header.VersionHash)
	}
	for i := range m.Routes {
		if m.Routes[i].Positions != loaded.Routes[i].Positions {
			t.Errorf("route %d: positions: actual: %x  expected: %x",
				i, loaded.Routes[i].Positions, m.Routes[i].Positions)
		}
	}
}

func TestCheckLiveCode(t *testing.T) {
	m, err := manifest.Build(makeRoutes(3), 1, 1700000000, testDeployer, testChainID, digest.Zero)
	if nil != err {
		t.Fatalf("build error: %s", err)
	}

	live := make(map[address.Address]digest.Digest)
	for i := range m.Routes {
		live[m.Routes[i].ModuleAddress] = m.Routes[i].CodeIdentity
	}
	fetch := func(a address.Address) (digest.Digest, error) {
		d, ok := live[a]
		if !ok {
			return digest.Zero, fault.ZeroCode
		}
		return d, nil
	}

	if err := m.CheckLiveCode(fetch); nil != err {
		t.Errorf("live check error: %s", err)
	}

	live[m.Routes[1].ModuleAddress] = digest.New([]byte("swapped"))
	if err := m.CheckLiveCode(fetch); fault.CodehashMismatch != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.CodehashMismatch)
	}

	delete(live, m.Routes[0].ModuleAddress)
	if err := m.CheckLiveCode(fetch); fault.ZeroCode != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.ZeroCode)
	}
}
