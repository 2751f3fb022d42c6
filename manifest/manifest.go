// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package manifest - the off-chain manifest JSON artifact
//
// a manifest carries a header, the merkle root over its route set and
// one proof per route, so any holder of the artifact can verify every
// route offline and reproduce the manifest hash without access to a
// running node
package manifest

import (
	"encoding/json"
	"io/ioutil"
	"os"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/merkle"
	"github.com/facetroute/facetd/routerecord"
)

// Header - artifact header: the packed manifest header fields plus
// the resulting manifest hash for quick reference
//
// VersionHash duplicates data recomputable from the rest of the
// artifact; SelfCheck treats a mismatch as corruption
type Header struct {
	routerecord.ManifestHeader
	VersionHash digest.Digest `json:"versionHash"`
}

// Manifest - the complete artifact
type Manifest struct {
	Header Header                    `json:"header"`
	Root   digest.Digest             `json:"root"`
	Routes []routerecord.ProvedRoute `json:"routes"`
}

// Build - construct a manifest from a plain route list
//
// builds the tree, derives every proof and fills in the header hash
func Build(routes []routerecord.Route, versionID uint64, timestamp uint64, deployerAddress address.Address, chainID uint64, previousHash digest.Digest) (*Manifest, error) {
	if 0 == len(routes) {
		return nil, fault.MissingParameters
	}

	seen := make(map[routerecord.Selector]struct{})
	leaves := make([]digest.Digest, len(routes))
	for i, route := range routes {
		if _, ok := seen[route.Selector]; ok {
			return nil, fault.DuplicateSelector
		}
		seen[route.Selector] = struct{}{}
		leaves[i] = merkle.RouteLeaf(route.Selector, route.ModuleAddress, route.CodeIdentity)
	}

	tree := merkle.NewTree(leaves)
	root := tree.Root()

	proved := make([]routerecord.ProvedRoute, len(routes))
	for i := range routes {
		siblings, positions, err := tree.Proof(i)
		if nil != err {
			return nil, err
		}
		proved[i] = routerecord.ProvedRoute{
			Route:     routes[i],
			Siblings:  siblings,
			Positions: routerecord.Positions(positions),
		}
	}

	header := routerecord.ManifestHeader{
		VersionID:       versionID,
		Timestamp:       timestamp,
		DeployerAddress: deployerAddress,
		ChainID:         chainID,
		PreviousHash:    previousHash,
	}

	return &Manifest{
		Header: Header{
			ManifestHeader: header,
			VersionHash:    routerecord.ManifestHash(&header, root),
		},
		Root:   root,
		Routes: proved,
	}, nil
}

// SelfCheck - verify an artifact without any external state
//
// re-verifies every route proof against the declared root, rejects
// duplicate selectors and recomputes the manifest hash
func (m *Manifest) SelfCheck() error {
	if m.Root.IsZero() {
		return fault.RootZero
	}
	if 0 == len(m.Routes) {
		return fault.MissingParameters
	}

	seen := make(map[routerecord.Selector]struct{})
	for i := range m.Routes {
		route := &m.Routes[i]
		if _, ok := seen[route.Selector]; ok {
			return fault.DuplicateSelector
		}
		seen[route.Selector] = struct{}{}

		ok, err := merkle.VerifyRoute(route.Selector, route.ModuleAddress, route.CodeIdentity,
			route.Siblings, uint64(route.Positions), m.Root)
		if nil != err {
			return err
		}
		if !ok {
			return fault.InvalidProof
		}
	}

	if routerecord.ManifestHash(&m.Header.ManifestHeader, m.Root) != m.Header.VersionHash {
		return fault.ManifestHashMismatch
	}
	return nil
}

// CheckLiveCode - compare declared code identities against a live store
//
// fetch recomputes the code identity at a module address, normally
// backed by the chunk store; the first mismatch or fetch failure is
// returned
func (m *Manifest) CheckLiveCode(fetch func(address.Address) (digest.Digest, error)) error {
	for i := range m.Routes {
		route := &m.Routes[i]
		live, err := fetch(route.ModuleAddress)
		if nil != err {
			return err
		}
		if live != route.CodeIdentity {
			return fault.CodehashMismatch
		}
	}
	return nil
}

// Load - read and decode an artifact file
func Load(path string) (*Manifest, error) {
	buffer, err := ioutil.ReadFile(path)
	if nil != err {
		return nil, err
	}
	m := &Manifest{}
	if err := json.Unmarshal(buffer, m); nil != err {
		return nil, err
	}
	return m, nil
}

// Save - encode and write an artifact file
func (m *Manifest) Save(path string) error {
	buffer, err := json.MarshalIndent(m, "", "  ")
	if nil != err {
		return err
	}
	return ioutil.WriteFile(path, append(buffer, '\n'), os.FileMode(0600))
}
