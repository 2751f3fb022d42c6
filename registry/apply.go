// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package registry

import (
	"encoding/binary"
	"sort"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/governance"
	"github.com/facetroute/facetd/merkle"
	"github.com/facetroute/facetd/routerecord"
)

// Apply - add a proved batch of routes against the given root
//
// all or nothing: any failing entry leaves the registry untouched
func Apply(caller address.Address, batch []routerecord.ProvedRoute, root digest.Digest, epoch uint64) error {
	if err := governance.RequireGovernor(caller); nil != err {
		return err
	}
	if err := governance.CheckOperational(); nil != err {
		return err
	}

	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	if err := validate(batch, root); nil != err {
		return err
	}

	for i := range batch {
		store(&batch[i].Route, epoch)
	}

	globalData.log.Infof("applied %d routes at epoch %d", len(batch), epoch)
	return nil
}

// Remove - withdraw a batch of selectors
//
// all or nothing: every selector must currently be routed
func Remove(caller address.Address, selectors []routerecord.Selector) error {
	if err := governance.RequireGovernor(caller); nil != err {
		return err
	}
	if err := governance.CheckOperational(); nil != err {
		return err
	}

	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	if 0 == len(selectors) {
		return fault.MissingParameters
	}
	if len(selectors) > MaximumBatchSize {
		return fault.BatchTooLarge
	}

	seen := make(map[routerecord.Selector]struct{}, len(selectors))
	for _, selector := range selectors {
		if _, ok := seen[selector]; ok {
			return fault.DuplicateSelector
		}
		seen[selector] = struct{}{}
		if _, ok := globalData.routes[selector]; !ok {
			return fault.NoRoute
		}
	}

	for _, selector := range selectors {
		remove(selector)
	}

	globalData.log.Infof("removed %d routes", len(selectors))
	return nil
}

// Rebuild - replace the whole registry from the route set of a newly
// activated root
//
// called only by the epoch package during activation; the epoch guard
// has already authorised the caller and checked operational state
func Rebuild(batch []routerecord.ProvedRoute, root digest.Digest, epoch uint64) error {
	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	if err := validate(batch, root); nil != err {
		return err
	}

	// wipe the derived data, then store the proved set
	for selector := range globalData.routes {
		globalData.routePool.Delete(selector[:])
	}
	for moduleAddress := range globalData.facets {
		globalData.facetPool.Delete(moduleAddress[:])
	}
	globalData.routes = make(map[routerecord.Selector]*Entry)
	globalData.facets = make(map[address.Address]*FacetInfo)

	for i := range batch {
		store(&batch[i].Route, epoch)
	}

	globalData.log.Infof("rebuilt: %d routes at epoch %d", len(batch), epoch)
	return nil
}

// internal: full batch validation, read-only; must hold lock
func validate(batch []routerecord.ProvedRoute, root digest.Digest) error {

	if 0 == len(batch) {
		return fault.MissingParameters
	}
	if len(batch) > MaximumBatchSize {
		return fault.BatchTooLarge
	}

	seen := make(map[routerecord.Selector]struct{}, len(batch))
	for i := range batch {
		route := &batch[i].Route

		if route.Selector.IsZero() {
			return fault.ZeroSelector
		}
		if route.ModuleAddress.IsZero() {
			return fault.ZeroAddress
		}
		if _, ok := seen[route.Selector]; ok {
			return fault.DuplicateSelector
		}
		seen[route.Selector] = struct{}{}

		ok, err := merkle.VerifyRoute(
			route.Selector,
			route.ModuleAddress,
			route.CodeIdentity,
			batch[i].Siblings,
			uint64(batch[i].Positions),
			root,
		)
		if nil != err {
			return err
		}
		if !ok {
			return fault.InvalidProof
		}
	}
	return nil
}

// internal: store one route and maintain its facet; must hold lock
func store(route *routerecord.Route, epoch uint64) {

	// an apply against an existing selector repoints it; detach the
	// selector from its previous facet first
	if previous, ok := globalData.routes[route.Selector]; ok {
		detach(previous.ModuleAddress, route.Selector)
	}

	entry := &Entry{
		Selector:        route.Selector,
		ModuleAddress:   route.ModuleAddress,
		CodeIdentity:    route.CodeIdentity,
		RegisteredEpoch: epoch,
	}
	globalData.routes[route.Selector] = entry
	globalData.routePool.Put(route.Selector[:], packEntry(entry))

	info, ok := globalData.facets[route.ModuleAddress]
	if !ok {
		info = &FacetInfo{
			ModuleAddress:   route.ModuleAddress,
			Active:          true,
			RegisteredEpoch: epoch,
		}
		globalData.facets[route.ModuleAddress] = info
	}
	info.Selectors = append(info.Selectors, route.Selector)
	sortSelectors(info.Selectors)
	globalData.facetPool.Put(route.ModuleAddress[:], packFacet(info))
}

// internal: remove one route; must hold lock
func remove(selector routerecord.Selector) {
	entry, ok := globalData.routes[selector]
	if !ok {
		return
	}
	delete(globalData.routes, selector)
	globalData.routePool.Delete(selector[:])
	detach(entry.ModuleAddress, selector)
}

// internal: drop a selector from a facet, deleting an emptied facet;
// must hold lock
func detach(moduleAddress address.Address, selector routerecord.Selector) {
	info, ok := globalData.facets[moduleAddress]
	if !ok {
		return
	}
	selectors := info.Selectors[:0]
	for _, s := range info.Selectors {
		if s != selector {
			selectors = append(selectors, s)
		}
	}
	info.Selectors = selectors

	if 0 == len(info.Selectors) {
		delete(globalData.facets, moduleAddress)
		globalData.facetPool.Delete(moduleAddress[:])
	} else {
		globalData.facetPool.Put(moduleAddress[:], packFacet(info))
	}
}

// internal: reload the in-memory maps from the pools; must hold lock
func reload() {
	globalData.routePool.Range(func(key []byte, value []byte) bool {
		var selector routerecord.Selector
		if routerecord.SelectorLength != len(key) {
			return true
		}
		copy(selector[:], key)
		entry := unpackEntry(selector, value)
		if nil != entry {
			globalData.routes[selector] = entry
		}
		return true
	})

	globalData.facetPool.Range(func(key []byte, value []byte) bool {
		var moduleAddress address.Address
		if nil != address.FromBytes(&moduleAddress, key) {
			return true
		}
		info := unpackFacet(moduleAddress, value)
		if nil != info {
			globalData.facets[moduleAddress] = info
		}
		return true
	})
}

// entry record: address + code identity + epoch
const entryPackedLength = address.Length + digest.Length + 8

func packEntry(entry *Entry) []byte {
	buffer := make([]byte, 0, entryPackedLength)
	buffer = append(buffer, entry.ModuleAddress[:]...)
	buffer = append(buffer, entry.CodeIdentity[:]...)
	epochBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(epochBytes, entry.RegisteredEpoch)
	return append(buffer, epochBytes...)
}

func unpackEntry(selector routerecord.Selector, buffer []byte) *Entry {
	if entryPackedLength != len(buffer) {
		return nil
	}
	entry := &Entry{Selector: selector}
	copy(entry.ModuleAddress[:], buffer[0:])
	copy(entry.CodeIdentity[:], buffer[address.Length:])
	entry.RegisteredEpoch = binary.BigEndian.Uint64(buffer[address.Length+digest.Length:])
	return entry
}

// facet record: epoch + active flag + selector list
func packFacet(info *FacetInfo) []byte {
	buffer := make([]byte, 0, 9+routerecord.SelectorLength*len(info.Selectors))
	epochBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(epochBytes, info.RegisteredEpoch)
	buffer = append(buffer, epochBytes...)
	active := byte(0)
	if info.Active {
		active = 1
	}
	buffer = append(buffer, active)
	for _, selector := range info.Selectors {
		buffer = append(buffer, selector[:]...)
	}
	return buffer
}

func unpackFacet(moduleAddress address.Address, buffer []byte) *FacetInfo {
	if len(buffer) < 9 || 0 != (len(buffer)-9)%routerecord.SelectorLength {
		return nil
	}
	info := &FacetInfo{
		ModuleAddress:   moduleAddress,
		RegisteredEpoch: binary.BigEndian.Uint64(buffer[:8]),
		Active:          0 != buffer[8],
	}
	for i := 9; i < len(buffer); i += routerecord.SelectorLength {
		var selector routerecord.Selector
		copy(selector[:], buffer[i:])
		info.Selectors = append(info.Selectors, selector)
	}
	return info
}

func sortSelectors(selectors []routerecord.Selector) {
	sort.Slice(selectors, func(i int, j int) bool {
		return string(selectors[i][:]) < string(selectors[j][:])
	})
}
