// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package dispatcher - routed call forwarding with code identity checks
//
// every incoming call is keyed by a four byte selector.  the selector
// resolves through the route registry to a module whose live code
// identity is recomputed from the chunk store and compared against the
// identity committed in the active manifest, so a module altered after
// commitment can never receive a call.  handlers share one persistent
// state namespace, passed in on every call, and a single in-flight
// flag stops a handler from re-entering the dispatcher or any
// governance entry point mid-call
package dispatcher

import (
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/chunk"
	"github.com/facetroute/facetd/counter"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/governance"
	"github.com/facetroute/facetd/registry"
	"github.com/facetroute/facetd/routerecord"
	"github.com/facetroute/facetd/storage"
)

// DefaultMaximumReturnSize - return data cap when none is configured
const DefaultMaximumReturnSize = 65536

// Handler - the executable side of a routed module
//
// state is the shared persistent namespace common to the dispatcher
// and every routed module, so handlers observe each other's writes
type Handler interface {
	Call(state storage.Handle, selector routerecord.Selector, caller address.Address, payload []byte) ([]byte, error)
}

// HandlerFunc - adapter to use a plain function as a Handler
type HandlerFunc func(state storage.Handle, selector routerecord.Selector, caller address.Address, payload []byte) ([]byte, error)

// Call - implement the Handler interface
func (f HandlerFunc) Call(state storage.Handle, selector routerecord.Selector, caller address.Address, payload []byte) ([]byte, error) {
	return f(state, selector, caller, payload)
}

// globals for this module
type dispatcherData struct {
	sync.RWMutex // to allow locking

	log *logger.L

	handlers          map[address.Address]Handler
	statePool         storage.Handle
	guard             *counter.Flag
	maximumReturnSize int

	dispatchCount counter.Counter

	// set once bootstrap is complete
	initialised bool
}

// global data
var globalData dispatcherData

// Initialise - setup the dispatcher
//
// a maximumReturnSize of zero or below selects the default cap
func Initialise(statePool storage.Handle, guard *counter.Flag, maximumReturnSize int) error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}
	if nil == statePool || nil == guard {
		return fault.MissingParameters
	}

	globalData.log = logger.New("dispatcher")
	globalData.log.Info("starting…")

	if maximumReturnSize <= 0 {
		maximumReturnSize = DefaultMaximumReturnSize
	}
	globalData.handlers = make(map[address.Address]Handler)
	globalData.statePool = statePool
	globalData.guard = guard
	globalData.maximumReturnSize = maximumReturnSize

	globalData.initialised = true
	return nil
}

// Finalise - shut down the dispatcher
func Finalise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}

	globalData.log.Info("shutting down…")
	globalData.log.Flush()

	globalData.handlers = nil
	globalData.statePool = nil
	globalData.guard = nil
	globalData.initialised = false
	return nil
}

// RegisterHandler - attach the executable for a module address
//
// routes point at module addresses; a resolved call can only proceed
// if the module's handler has been registered here
func RegisterHandler(moduleAddress address.Address, handler Handler) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}
	if moduleAddress.IsZero() {
		return fault.ZeroAddress
	}
	if nil == handler {
		return fault.MissingParameters
	}

	globalData.handlers[moduleAddress] = handler
	return nil
}

// Dispatch - route one call to its module
//
// resolve the selector, recompute and check the module's live code
// identity, then forward.  return data larger than the configured cap
// is rejected outright, never truncated
func Dispatch(caller address.Address, selector routerecord.Selector, payload []byte) ([]byte, error) {
	globalData.RLock()

	if !globalData.initialised {
		globalData.RUnlock()
		return nil, fault.NotInitialised
	}

	statePool := globalData.statePool
	guard := globalData.guard
	maximumReturnSize := globalData.maximumReturnSize
	log := globalData.log

	if governance.IsPaused() {
		globalData.RUnlock()
		return nil, fault.Paused
	}

	entry, err := registry.Resolve(selector)
	if nil != err {
		globalData.RUnlock()
		return nil, err
	}

	live, err := chunk.CodeDigest(entry.ModuleAddress)
	if nil != err {
		globalData.RUnlock()
		return nil, err
	}
	if live != entry.CodeIdentity {
		log.Errorf("code identity mismatch: module: %s  live: %s  committed: %s",
			entry.ModuleAddress, live, entry.CodeIdentity)
		globalData.RUnlock()
		return nil, fault.CodehashMismatch
	}

	handler, ok := globalData.handlers[entry.ModuleAddress]
	globalData.RUnlock()
	if !ok {
		return nil, fault.NoHandler
	}

	// single in-flight call; handlers cannot re-enter
	if !guard.Set() {
		return nil, fault.ReentrantCall
	}
	defer guard.Clear()

	// buffer handler writes so a failed call leaves no partial state
	state := newStagedState(statePool)

	result, err := handler.Call(state, selector, caller, payload)
	if nil != err {
		return nil, err
	}
	if len(result) > maximumReturnSize {
		return nil, fault.ReturnDataTooLarge
	}

	state.commit()

	globalData.dispatchCount.Increment()
	return result, nil
}

// DispatchCount - total successful dispatches since startup
func DispatchCount() uint64 {
	return globalData.dispatchCount.Uint64()
}
