// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package registry - the selector → route lookup table
//
// entries are derived data: they only ever change as one atomic batch
// that has been proved against a manifest root, either incrementally
// (Apply/Remove against the active root) or wholesale on activation
// (Rebuild, called only by the epoch package)
//
// every mutation is all or nothing: validation of the complete batch
// happens before the first entry is touched
package registry

import (
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/counter"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/routerecord"
	"github.com/facetroute/facetd/storage"
)

// MaximumBatchSize - limit on one Apply or Remove call
const MaximumBatchSize = 100

// Entry - one resolved route
type Entry struct {
	Selector        routerecord.Selector `json:"selector"`
	ModuleAddress   address.Address      `json:"moduleAddress"`
	CodeIdentity    digest.Digest        `json:"codeIdentity"`
	RegisteredEpoch uint64               `json:"registeredEpoch"`
}

// FacetInfo - descriptor for one routed module
type FacetInfo struct {
	ModuleAddress   address.Address        `json:"moduleAddress"`
	Selectors       []routerecord.Selector `json:"selectors"`
	Active          bool                   `json:"active"`
	RegisteredEpoch uint64                 `json:"registeredEpoch"`
}

// globals for the registry
type registryData struct {
	sync.RWMutex

	log *logger.L

	routes map[routerecord.Selector]*Entry
	facets map[address.Address]*FacetInfo

	routePool storage.Handle
	facetPool storage.Handle

	// the dispatch in-flight guard, shared with the dispatcher
	guard *counter.Flag

	// set once during initialise
	initialised bool
}

// global data
var globalData registryData

// Initialise - load the registry from its pools
func Initialise(routePool storage.Handle, facetPool storage.Handle, guard *counter.Flag) error {
	globalData.Lock()
	defer globalData.Unlock()

	// no need to start if already started
	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	globalData.log = logger.New("registry")
	globalData.log.Info("starting…")

	globalData.routePool = routePool
	globalData.facetPool = facetPool
	globalData.guard = guard
	globalData.routes = make(map[routerecord.Selector]*Entry)
	globalData.facets = make(map[address.Address]*FacetInfo)

	reload()

	globalData.log.Infof("routes: %d  facets: %d", len(globalData.routes), len(globalData.facets))

	// all data initialised
	globalData.initialised = true

	return nil
}

// Finalise - shut down the registry
func Finalise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}

	globalData.log.Info("shutting down…")
	globalData.log.Flush()

	globalData.routes = nil
	globalData.facets = nil

	// finally...
	globalData.initialised = false

	return nil
}

// Resolve - look up the route for a selector
func Resolve(selector routerecord.Selector) (Entry, error) {
	globalData.RLock()
	defer globalData.RUnlock()

	entry, ok := globalData.routes[selector]
	if !ok {
		return Entry{}, fault.NoRoute
	}
	return *entry, nil
}

// RouteCount - number of active routes
func RouteCount() int {
	globalData.RLock()
	defer globalData.RUnlock()
	return len(globalData.routes)
}

// FacetCount - number of modules with at least one route
func FacetCount() int {
	globalData.RLock()
	defer globalData.RUnlock()
	return len(globalData.facets)
}

// Facet - descriptor for one module address
func Facet(moduleAddress address.Address) (FacetInfo, error) {
	globalData.RLock()
	defer globalData.RUnlock()

	info, ok := globalData.facets[moduleAddress]
	if !ok {
		return FacetInfo{}, fault.NoRoute
	}

	// copy the selector list, callers must not alias internal state
	result := *info
	result.Selectors = append([]routerecord.Selector{}, info.Selectors...)
	return result, nil
}

// ListFacets - paginated facet address listing in storage key order
//
// start is exclusive; a zero start begins the listing
func ListFacets(start address.Address, count int) ([]address.Address, error) {
	if count <= 0 || count > MaximumBatchSize {
		return nil, fault.InvalidCount
	}

	globalData.RLock()
	pool := globalData.facetPool
	globalData.RUnlock()

	if nil == pool {
		return nil, fault.NotInitialised
	}

	result := make([]address.Address, 0, count)
	pool.Range(func(key []byte, _ []byte) bool {
		var a address.Address
		if nil != address.FromBytes(&a, key) {
			return true // skip malformed keys
		}
		if !start.IsZero() && string(key) <= string(start[:]) {
			return true
		}
		result = append(result, a)
		return len(result) < count
	})
	return result, nil
}
