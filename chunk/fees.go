// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chunk

import (
	"encoding/binary"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/governance"
)

// GetDeploymentFee - the staging fee for a caller, by its tier
//
// pure query, zero for unknown callers on the default tier with no
// fee configured
func GetDeploymentFee(caller address.Address) uint64 {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.tierFees[callerTier(caller)]
}

// Tier - the fee tier a caller is assigned to
func Tier(caller address.Address) uint8 {
	globalData.RLock()
	defer globalData.RUnlock()
	return callerTier(caller)
}

// SetTierFee - set the per-chunk fee for one tier
func SetTierFee(caller address.Address, tier uint8, fee uint64) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}
	if err := governance.RequireGovernor(caller); nil != err {
		return err
	}
	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}
	if tier >= NumberOfFeeTiers {
		return fault.InvalidFeeTier
	}

	globalData.tierFees[tier] = fee
	persist()

	globalData.log.Infof("tier %d fee set: %d", tier, fee)
	return nil
}

// SetCallerTier - assign a caller to a fee tier
func SetCallerTier(caller address.Address, account address.Address, tier uint8) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}
	if err := governance.RequireGovernor(caller); nil != err {
		return err
	}
	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}
	if account.IsZero() {
		return fault.ZeroAddress
	}
	if tier >= NumberOfFeeTiers {
		return fault.InvalidFeeTier
	}

	globalData.pool.Put(tierKey(account), []byte{tier})
	return nil
}

// SetIdempotentMode - toggle whether repeat staging is a no-op
//
// with the mode off a repeat stage fails with fault.AlreadyStaged
func SetIdempotentMode(caller address.Address, enabled bool) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}
	if err := governance.RequireGovernor(caller); nil != err {
		return err
	}
	if nil != globalData.guard && globalData.guard.IsSet() {
		return fault.ReentrantCall
	}

	globalData.idempotent = enabled
	persist()

	globalData.log.Infof("idempotent mode: %t", enabled)
	return nil
}

// CollectedFees - staging fees accumulated since the last withdrawal
func CollectedFees() uint64 {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.collectedFees
}

// WithdrawFees - zero the collected fee balance, returning the amount
func WithdrawFees(caller address.Address) (uint64, error) {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return 0, fault.NotInitialised
	}
	if err := governance.RequireGovernor(caller); nil != err {
		return 0, err
	}
	if nil != globalData.guard && globalData.guard.IsSet() {
		return 0, fault.ReentrantCall
	}

	amount := globalData.collectedFees
	globalData.collectedFees = 0
	persist()

	globalData.log.Infof("fees withdrawn: %d", amount)
	return amount, nil
}

// internal: tier lookup; must hold lock
func callerTier(caller address.Address) uint8 {
	buffer := globalData.pool.Get(tierKey(caller))
	if 1 != len(buffer) || buffer[0] >= NumberOfFeeTiers {
		return 0
	}
	return buffer[0]
}

// internal: storage key for a caller tier record
func tierKey(account address.Address) []byte {
	key := make([]byte, 0, len(tierKeyPrefix)+address.Length)
	key = append(key, tierKeyPrefix...)
	return append(key, account[:]...)
}

// internal: write packed state; must hold update lock
func persist() {
	buffer := make([]byte, 0, statePackedLength)
	if globalData.idempotent {
		buffer = append(buffer, 0x01)
	} else {
		buffer = append(buffer, 0x00)
	}
	buffer = appendUint64(buffer, globalData.collectedFees)
	buffer = appendUint64(buffer, globalData.chunkCount)
	for _, fee := range globalData.tierFees {
		buffer = appendUint64(buffer, fee)
	}
	globalData.pool.Put(stateKey, buffer)
}

// internal: load packed state; returns false when absent
func restore() bool {
	buffer := globalData.pool.Get(stateKey)
	if statePackedLength != len(buffer) {
		return false
	}

	globalData.idempotent = 0x01 == buffer[0]
	globalData.collectedFees = binary.BigEndian.Uint64(buffer[1:])
	globalData.chunkCount = binary.BigEndian.Uint64(buffer[9:])
	offset := 17
	for i := range globalData.tierFees {
		globalData.tierFees[i] = binary.BigEndian.Uint64(buffer[offset:])
		offset += 8
	}
	return true
}
