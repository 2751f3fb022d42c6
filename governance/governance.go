// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package governance - privileged role management
//
// two roles exist: the governor controls every mutating operation and
// the guardian can only pause and unpause.  governor rotation follows
// the same queue → delay → execute discipline as manifest roots so a
// single compromised transaction cannot seize control instantly
//
// the guard also owns the frozen and paused flags: freeze is terminal
// and disables every mutating operation system wide, pause is the
// reversible emergency stop
package governance

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/counter"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/storage"
)

// the single persisted record
var stateKey = []byte("STATE")

// packed state: governor + guardian + pending + queuedAt + frozen + paused
const statePackedLength = 3*address.Length + 8 + 1 + 1

// globals for governance
type governanceData struct {
	sync.RWMutex

	log *logger.L

	governor        address.Address
	guardian        address.Address
	pendingGovernor address.Address // zero when no rotation queued
	queuedAt        uint64          // unix seconds, zero when no rotation queued
	rotationDelay   time.Duration

	frozen bool
	paused bool

	pool storage.Handle

	// the dispatch in-flight guard, shared with the dispatcher
	guard *counter.Flag

	// set once during initialise
	initialised bool
}

// global data
var globalData governanceData

// clock hook for tests
var nowFunc = time.Now

// Initialise - set up the governance guard
//
// governor and guardian are the initial role holders, used only when
// the storage pool has no persisted state yet
func Initialise(governor address.Address, guardian address.Address, rotationDelay time.Duration, pool storage.Handle, guard *counter.Flag) error {
	globalData.Lock()
	defer globalData.Unlock()

	// no need to start if already started
	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	if governor.IsZero() || guardian.IsZero() {
		return fault.ZeroAddress
	}

	globalData.log = logger.New("governance")
	globalData.log.Info("starting…")

	globalData.rotationDelay = rotationDelay
	globalData.pool = pool
	globalData.guard = guard

	if !restore() {
		globalData.governor = governor
		globalData.guardian = guardian
		globalData.pendingGovernor = address.Zero
		globalData.queuedAt = 0
		globalData.frozen = false
		globalData.paused = false
		persist()
	}

	globalData.log.Infof("governor: %s", globalData.governor)
	globalData.log.Infof("guardian: %s", globalData.guardian)

	// all data initialised
	globalData.initialised = true

	return nil
}

// Finalise - shut down the governance guard
func Finalise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}

	globalData.log.Info("shutting down…")
	globalData.log.Flush()

	globalData.guard = nil

	// finally...
	globalData.initialised = false

	return nil
}

// Governor - current governor address
func Governor() address.Address {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.governor
}

// Guardian - current guardian address
func Guardian() address.Address {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.guardian
}

// RequireGovernor - error unless the caller holds the governor role
func RequireGovernor(caller address.Address) error {
	globalData.RLock()
	defer globalData.RUnlock()
	if caller != globalData.governor {
		return fault.NotGovernor
	}
	return nil
}

// RequireGuardian - error unless the caller holds the guardian role
//
// the governor is also accepted: an emergency stop must never block
// on role separation
func RequireGuardian(caller address.Address) error {
	globalData.RLock()
	defer globalData.RUnlock()
	if caller != globalData.guardian && caller != globalData.governor {
		return fault.NotGuardian
	}
	return nil
}

// IsFrozen - check the terminal freeze flag
func IsFrozen() bool {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.frozen
}

// IsPaused - check the emergency pause flag
func IsPaused() bool {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.paused
}

// CheckOperational - error when frozen or paused
//
// every mutating operation across the system calls this first
func CheckOperational() error {
	globalData.RLock()
	defer globalData.RUnlock()
	if globalData.frozen {
		return fault.Frozen
	}
	if globalData.paused {
		return fault.Paused
	}
	return nil
}

// Freeze - irreversibly disable all mutating operations
//
// there is deliberately no way back from this state
func Freeze(caller address.Address) error {
	if err := RequireGovernor(caller); nil != err {
		return err
	}

	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	if globalData.frozen {
		return fault.Frozen
	}
	globalData.frozen = true
	persist()

	globalData.log.Warn("system frozen - terminal state")
	return nil
}

// Pause - guardian emergency stop
func Pause(caller address.Address) error {
	if err := RequireGuardian(caller); nil != err {
		return err
	}

	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	if globalData.frozen {
		return fault.Frozen
	}
	globalData.paused = true
	persist()

	globalData.log.Warn("system paused")
	return nil
}

// Unpause - clear the emergency stop
func Unpause(caller address.Address) error {
	if err := RequireGuardian(caller); nil != err {
		return err
	}

	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	if globalData.frozen {
		return fault.Frozen
	}
	globalData.paused = false
	persist()

	globalData.log.Info("system unpaused")
	return nil
}

// QueueRotateGovernance - queue a governor change subject to the delay
func QueueRotateGovernance(caller address.Address, newGovernor address.Address) error {
	if err := RequireGovernor(caller); nil != err {
		return err
	}
	if err := CheckOperational(); nil != err {
		return err
	}

	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	if newGovernor.IsZero() {
		return fault.ZeroAddress
	}
	if !globalData.pendingGovernor.IsZero() {
		return fault.RotationPending
	}

	globalData.pendingGovernor = newGovernor
	globalData.queuedAt = uint64(nowFunc().Unix())
	persist()

	globalData.log.Infof("rotation queued: %s → %s", globalData.governor, newGovernor)
	return nil
}

// ExecuteRotateGovernance - apply a queued governor change after the delay
//
// any caller may execute: the authorisation happened at queue time
func ExecuteRotateGovernance() error {
	if err := CheckOperational(); nil != err {
		return err
	}

	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	if globalData.pendingGovernor.IsZero() {
		return fault.NoQueuedRotation
	}

	readyAt := globalData.queuedAt + uint64(globalData.rotationDelay/time.Second)
	now := uint64(nowFunc().Unix())
	if now < readyAt {
		globalData.log.Infof("rotation not ready: now: %d  ready at: %d", now, readyAt)
		return fault.RotationNotReady
	}

	old := globalData.governor
	globalData.governor = globalData.pendingGovernor
	globalData.pendingGovernor = address.Zero
	globalData.queuedAt = 0
	persist()

	globalData.log.Infof("rotation executed: %s → %s", old, globalData.governor)
	return nil
}

// SetGuardian - replace the guardian immediately
//
// the guardian is the incident response role so replacing it is not
// subject to the rotation delay
func SetGuardian(caller address.Address, newGuardian address.Address) error {
	if err := RequireGovernor(caller); nil != err {
		return err
	}
	if err := CheckOperational(); nil != err {
		return err
	}

	globalData.Lock()
	defer globalData.Unlock()

	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	if newGuardian.IsZero() {
		return fault.ZeroAddress
	}
	globalData.guardian = newGuardian
	persist()

	globalData.log.Infof("guardian set: %s", newGuardian)
	return nil
}

// Status - snapshot of the guard state
type Status struct {
	Governor        address.Address `json:"governor"`
	Guardian        address.Address `json:"guardian"`
	PendingGovernor address.Address `json:"pendingGovernor"`
	QueuedAt        uint64          `json:"queuedAt"`
	Frozen          bool            `json:"frozen"`
	Paused          bool            `json:"paused"`
}

// GetStatus - read the current guard state
func GetStatus() Status {
	globalData.RLock()
	defer globalData.RUnlock()
	return Status{
		Governor:        globalData.governor,
		Guardian:        globalData.guardian,
		PendingGovernor: globalData.pendingGovernor,
		QueuedAt:        globalData.queuedAt,
		Frozen:          globalData.frozen,
		Paused:          globalData.paused,
	}
}

// internal: must hold lock
func persist() {
	if nil == globalData.pool {
		return
	}
	buffer := make([]byte, 0, statePackedLength)
	buffer = append(buffer, globalData.governor[:]...)
	buffer = append(buffer, globalData.guardian[:]...)
	buffer = append(buffer, globalData.pendingGovernor[:]...)
	queued := make([]byte, 8)
	binary.BigEndian.PutUint64(queued, globalData.queuedAt)
	buffer = append(buffer, queued...)
	buffer = append(buffer, boolByte(globalData.frozen), boolByte(globalData.paused))
	globalData.pool.Put(stateKey, buffer)
}

// internal: must hold lock; false if no persisted state
func restore() bool {
	if nil == globalData.pool {
		return false
	}
	buffer := globalData.pool.Get(stateKey)
	if statePackedLength != len(buffer) {
		return false
	}
	copy(globalData.governor[:], buffer[0:])
	copy(globalData.guardian[:], buffer[address.Length:])
	copy(globalData.pendingGovernor[:], buffer[2*address.Length:])
	globalData.queuedAt = binary.BigEndian.Uint64(buffer[3*address.Length:])
	globalData.frozen = 0 != buffer[3*address.Length+8]
	globalData.paused = 0 != buffer[3*address.Length+9]
	return true
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
