// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package epoch - manifest root lifecycle state machine
//
// a new manifest root passes through a mandatory pending window before
// it becomes active: commit records the root, activation after the
// delay rebuilds the route registry from the proved route set.  the
// window gives downstream observers a guaranteed interval to react to
// a pending change before it takes effect, so no code path may bypass
// it.  a pending commit cannot be cancelled or superseded; the only
// resolution is activation.
package epoch

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/counter"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/governance"
	"github.com/facetroute/facetd/registry"
	"github.com/facetroute/facetd/routerecord"
	"github.com/facetroute/facetd/storage"
)

// MaximumActivationDelay - upper bound for SetActivationDelay
const MaximumActivationDelay = 30 * 24 * time.Hour

// key for the packed state record
var stateKey = []byte("STATE")

// active root + epoch, pending root + epoch + since + delay, last manifest hash
const statePackedLength = digest.Length + 8 + digest.Length + 8 + 8 + 8 + digest.Length

// globals for this module
type epochData struct {
	sync.RWMutex // to allow locking

	log *logger.L

	activeRoot  digest.Digest
	activeEpoch uint64

	pendingRoot  digest.Digest
	pendingEpoch uint64
	pendingSince uint64 // unix seconds
	pendingDelay uint64 // seconds, snapshot of activationDelay at commit

	activationDelay  time.Duration
	lastManifestHash digest.Digest

	chainID         uint64
	deployerAddress address.Address

	pool       storage.Handle
	headerPool storage.Handle
	guard      *counter.Flag

	// set once bootstrap is complete
	initialised bool
}

// global data
var globalData epochData

// indirect clock access to allow testing
var nowFunc = time.Now

// Initialise - setup the epoch state machine
//
// restores persisted state when present, otherwise starts at epoch
// zero with no active root
func Initialise(chainID uint64, deployerAddress address.Address, activationDelay time.Duration, pool storage.Handle, headerPool storage.Handle, guard *counter.Flag) error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	if activationDelay < 0 || activationDelay > MaximumActivationDelay {
		return fault.InvalidDelay
	}
	if nil == pool || nil == headerPool {
		return fault.MissingParameters
	}

	globalData.log = logger.New("epoch")
	globalData.log.Info("starting…")

	globalData.chainID = chainID
	globalData.deployerAddress = deployerAddress
	globalData.activationDelay = activationDelay
	globalData.pool = pool
	globalData.headerPool = headerPool
	globalData.guard = guard

	if !restore() {
		globalData.activeRoot = digest.Zero
		globalData.activeEpoch = 0
		globalData.pendingRoot = digest.Zero
		globalData.lastManifestHash = digest.Zero
		persist()
	}

	globalData.initialised = true
	return nil
}

// Finalise - shut down the epoch state machine
func Finalise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}

	globalData.log.Info("shutting down…")
	globalData.log.Flush()

	globalData.pool = nil
	globalData.headerPool = nil
	globalData.guard = nil
	globalData.initialised = false
	return nil
}

// CommitRoot - record a new manifest root as pending
//
// epochNumber must strictly exceed the active epoch; at most one root
// may be pending at a time and a second commit is rejected, never
// queued or overwritten
func CommitRoot(caller address.Address, root digest.Digest, epochNumber uint64) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}
	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}
	if err := governance.RequireGovernor(caller); nil != err {
		return err
	}
	if err := governance.CheckOperational(); nil != err {
		return err
	}

	if !globalData.pendingRoot.IsZero() {
		return fault.AlreadyPending
	}
	if root.IsZero() {
		return fault.RootZero
	}
	if epochNumber <= globalData.activeEpoch {
		return fault.BadEpoch
	}

	globalData.pendingRoot = root
	globalData.pendingEpoch = epochNumber
	globalData.pendingSince = uint64(nowFunc().Unix())
	globalData.pendingDelay = uint64(globalData.activationDelay / time.Second)
	persist()

	globalData.log.Infof("committed root: %s  epoch: %d  ready at: %d",
		root, epochNumber, globalData.pendingSince+globalData.pendingDelay)
	return nil
}

// ActivateCommittedRoot - promote the pending root once its delay has elapsed
//
// the registry is rebuilt from the proved route set accompanying the
// new root; any proof failure aborts the whole activation with no
// state change.  the manifest header for the new epoch is appended to
// the header chain.  callable by anyone: the delay, not the caller,
// is the safety property
func ActivateCommittedRoot(batch []routerecord.ProvedRoute) (digest.Digest, error) {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return digest.Zero, fault.NotInitialised
	}
	if nil != globalData.guard && globalData.guard.IsSet() {
		return digest.Zero, fault.ReentrantCall
	}
	if err := governance.CheckOperational(); nil != err {
		return digest.Zero, err
	}

	if globalData.pendingRoot.IsZero() {
		return digest.Zero, fault.NoPendingRoot
	}

	now := uint64(nowFunc().Unix())
	readyAt := globalData.pendingSince + globalData.pendingDelay
	if now < readyAt {
		globalData.log.Warnf("activation not ready: ready at: %d  now: %d", readyAt, now)
		return digest.Zero, fault.ActivationNotReady
	}

	err := registry.Rebuild(batch, globalData.pendingRoot, globalData.pendingEpoch)
	if nil != err {
		return digest.Zero, err
	}

	header := routerecord.ManifestHeader{
		VersionID:       globalData.pendingEpoch,
		Timestamp:       now,
		DeployerAddress: globalData.deployerAddress,
		ChainID:         globalData.chainID,
		PreviousHash:    globalData.lastManifestHash,
	}
	manifestHash := routerecord.ManifestHash(&header, globalData.pendingRoot)

	record := header.Pack()
	record = append(record, globalData.pendingRoot[:]...)
	globalData.headerPool.Put(manifestHash[:], record)

	globalData.activeRoot = globalData.pendingRoot
	globalData.activeEpoch = globalData.pendingEpoch
	globalData.pendingRoot = digest.Zero
	globalData.pendingEpoch = 0
	globalData.pendingSince = 0
	globalData.pendingDelay = 0
	globalData.lastManifestHash = manifestHash
	persist()

	globalData.log.Infof("activated root: %s  epoch: %d  manifest: %s",
		globalData.activeRoot, globalData.activeEpoch, manifestHash)
	return manifestHash, nil
}

// SetActivationDelay - change the pending window for future commits
//
// an already pending commit keeps the delay it was committed with
func SetActivationDelay(caller address.Address, newDelay time.Duration) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}
	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}
	if err := governance.RequireGovernor(caller); nil != err {
		return err
	}
	if err := governance.CheckOperational(); nil != err {
		return err
	}

	if newDelay < 0 || newDelay > MaximumActivationDelay {
		return fault.InvalidDelay
	}

	globalData.activationDelay = newDelay
	persist()

	globalData.log.Infof("activation delay set: %s", newDelay)
	return nil
}

// ActiveRoot - the currently active manifest root
func ActiveRoot() digest.Digest {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.activeRoot
}

// ActiveEpoch - the currently active epoch number
func ActiveEpoch() uint64 {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.activeEpoch
}

// LastManifestHash - head of the manifest header chain
func LastManifestHash() digest.Digest {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.lastManifestHash
}

// Status - point in time view of the state machine
type Status struct {
	ActiveRoot       digest.Digest `json:"activeRoot"`
	ActiveEpoch      uint64        `json:"activeEpoch"`
	PendingRoot      digest.Digest `json:"pendingRoot"`
	PendingEpoch     uint64        `json:"pendingEpoch"`
	PendingSince     uint64        `json:"pendingSince"`
	PendingReadyAt   uint64        `json:"pendingReadyAt"`
	ActivationDelay  uint64        `json:"activationDelay"`
	LastManifestHash digest.Digest `json:"lastManifestHash"`
	Frozen           bool          `json:"frozen"`
	Paused           bool          `json:"paused"`
}

// GetStatus - snapshot the current state
func GetStatus() Status {
	globalData.RLock()
	defer globalData.RUnlock()

	readyAt := uint64(0)
	if !globalData.pendingRoot.IsZero() {
		readyAt = globalData.pendingSince + globalData.pendingDelay
	}
	return Status{
		ActiveRoot:       globalData.activeRoot,
		ActiveEpoch:      globalData.activeEpoch,
		PendingRoot:      globalData.pendingRoot,
		PendingEpoch:     globalData.pendingEpoch,
		PendingSince:     globalData.pendingSince,
		PendingReadyAt:   readyAt,
		ActivationDelay:  uint64(globalData.activationDelay / time.Second),
		LastManifestHash: globalData.lastManifestHash,
		Frozen:           governance.IsFrozen(),
		Paused:           governance.IsPaused(),
	}
}

// internal: write packed state; must hold update lock
func persist() {
	buffer := make([]byte, 0, statePackedLength)
	buffer = append(buffer, globalData.activeRoot[:]...)
	buffer = appendUint64(buffer, globalData.activeEpoch)
	buffer = append(buffer, globalData.pendingRoot[:]...)
	buffer = appendUint64(buffer, globalData.pendingEpoch)
	buffer = appendUint64(buffer, globalData.pendingSince)
	buffer = appendUint64(buffer, globalData.pendingDelay)
	buffer = append(buffer, globalData.lastManifestHash[:]...)
	globalData.pool.Put(stateKey, buffer)
}

// internal: load packed state; returns false when absent
func restore() bool {
	buffer := globalData.pool.Get(stateKey)
	if statePackedLength != len(buffer) {
		return false
	}

	copy(globalData.activeRoot[:], buffer[:digest.Length])
	offset := digest.Length
	globalData.activeEpoch = binary.BigEndian.Uint64(buffer[offset:])
	offset += 8
	copy(globalData.pendingRoot[:], buffer[offset:])
	offset += digest.Length
	globalData.pendingEpoch = binary.BigEndian.Uint64(buffer[offset:])
	offset += 8
	globalData.pendingSince = binary.BigEndian.Uint64(buffer[offset:])
	offset += 8
	globalData.pendingDelay = binary.BigEndian.Uint64(buffer[offset:])
	offset += 8
	copy(globalData.lastManifestHash[:], buffer[offset:])
	return true
}

// append a big endian uint64
func appendUint64(buffer []byte, value uint64) []byte {
	valueBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(valueBytes, value)
	return append(buffer, valueBytes...)
}
