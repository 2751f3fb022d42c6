// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chunk - content addressed staging of module bytecode
//
// a chunk's deployment address is a pure function of its content, so
// anyone can compute the address offline before staging, and staging
// identical content twice lands on the same address.  staged records
// are append only: a chunk is never deleted once staged, since other
// parties may already depend on its address
package chunk

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/counter"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/governance"
	"github.com/facetroute/facetd/storage"
)

// MaximumChunkSize - largest stageable bytecode blob
const MaximumChunkSize = 24576

// MaximumBatchSize - largest StageBatch element count
const MaximumBatchSize = 50

// domain separator mixed into every salt derivation
var saltPrefix = []byte("facetd.chunk.v1")

// key for the packed state record; shorter than any content hash key
var stateKey = []byte("STATE")

// caller tier records are keyed by this prefix + address
var tierKeyPrefix = []byte("TIER:")

// NumberOfFeeTiers - tiers are numbered 0 … NumberOfFeeTiers-1
const NumberOfFeeTiers = 4

// idempotent flag + collected fees + chunk count + per tier fees
const statePackedLength = 1 + 8 + 8 + 8*NumberOfFeeTiers

// staging throttle; generous burst so bursts of deploys still pass
const stagePerSecond = 100

// Info - description of one staged chunk
type Info struct {
	ContentHash     digest.Digest   `json:"contentHash"`
	Salt            digest.Digest   `json:"salt"`
	DeployedAddress address.Address `json:"deployedAddress"`
	Size            uint64          `json:"size"`
	StagedAt        uint64          `json:"stagedAt"`
}

// globals for this module
type chunkData struct {
	sync.RWMutex // to allow locking

	log *logger.L

	deployerAddress address.Address

	idempotent    bool
	collectedFees uint64
	chunkCount    uint64
	tierFees      [NumberOfFeeTiers]uint64

	pool      storage.Handle // content hash → record
	indexPool storage.Handle // deployed address → content hash
	guard     *counter.Flag

	codeCache *gocache.Cache // deployed address → recomputed code digest
	limiter   *rate.Limiter

	// set once bootstrap is complete
	initialised bool
}

// global data
var globalData chunkData

// indirect clock access to allow testing
var nowFunc = time.Now

// Initialise - setup the chunk store
func Initialise(deployerAddress address.Address, pool storage.Handle, indexPool storage.Handle, guard *counter.Flag) error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}
	if deployerAddress.IsZero() {
		return fault.ZeroAddress
	}
	if nil == pool || nil == indexPool {
		return fault.MissingParameters
	}

	globalData.log = logger.New("chunk")
	globalData.log.Info("starting…")

	globalData.deployerAddress = deployerAddress
	globalData.pool = pool
	globalData.indexPool = indexPool
	globalData.guard = guard
	globalData.codeCache = gocache.New(5*time.Minute, 10*time.Minute)
	globalData.limiter = rate.NewLimiter(stagePerSecond, stagePerSecond)

	if !restore() {
		globalData.idempotent = true
		globalData.collectedFees = 0
		globalData.chunkCount = 0
		persist()
	}

	globalData.initialised = true
	return nil
}

// Finalise - shut down the chunk store
func Finalise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}

	globalData.log.Info("shutting down…")
	globalData.log.Flush()

	globalData.pool = nil
	globalData.indexPool = nil
	globalData.guard = nil
	globalData.codeCache = nil
	globalData.initialised = false
	return nil
}

// Predict - the address content would be staged at, without staging
//
// pure: computable offline and guaranteed to match a later Stage of
// the same content
func Predict(content []byte) (address.Address, digest.Digest, error) {
	globalData.RLock()
	deployer := globalData.deployerAddress
	initialised := globalData.initialised
	globalData.RUnlock()

	if !initialised {
		return address.Zero, digest.Zero, fault.NotInitialised
	}
	if err := validateSize(content); nil != err {
		return address.Zero, digest.Zero, err
	}

	contentHash := digest.New(content)
	deployed := deriveAddress(deployer, contentHash)
	return deployed, contentHash, nil
}

// DeriveAddress - pure form of Predict for offline tooling
//
// same derivation without requiring an initialised store
func DeriveAddress(deployer address.Address, content []byte) (address.Address, digest.Digest, error) {
	if err := validateSize(content); nil != err {
		return address.Zero, digest.Zero, err
	}
	contentHash := digest.New(content)
	return deriveAddress(deployer, contentHash), contentHash, nil
}

// Stage - record content in the chunk store at its deterministic address
//
// staging already staged content is a no-op returning the existing
// address, unless idempotent mode has been disabled in which case it
// is an error.  fee must equal the caller's deployment fee exactly
func Stage(caller address.Address, content []byte, fee uint64) (address.Address, error) {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return address.Zero, fault.NotInitialised
	}
	if nil != globalData.guard && globalData.guard.IsSet() {
		return address.Zero, fault.ReentrantCall
	}
	if err := governance.CheckOperational(); nil != err {
		return address.Zero, err
	}
	if !globalData.limiter.Allow() {
		return address.Zero, fault.RateLimiting
	}

	deployed, err := stage(caller, content, fee)
	if nil != err {
		return address.Zero, err
	}
	persist()
	return deployed, nil
}

// StageBatch - stage several chunks as one all-or-nothing operation
//
// every element is validated, and the whole fee total checked, before
// any chunk is recorded; a failure anywhere stages nothing
func StageBatch(caller address.Address, contents [][]byte, fee uint64) ([]address.Address, error) {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return nil, fault.NotInitialised
	}
	if nil != globalData.guard && globalData.guard.IsSet() {
		return nil, fault.ReentrantCall
	}
	if err := governance.CheckOperational(); nil != err {
		return nil, err
	}
	if 0 == len(contents) {
		return nil, fault.MissingParameters
	}
	if len(contents) > MaximumBatchSize {
		return nil, fault.BatchTooLarge
	}
	if !globalData.limiter.AllowN(nowFunc(), len(contents)) {
		return nil, fault.RateLimiting
	}

	// validate everything before staging anything
	freshCount := uint64(0)
	seen := make(map[digest.Digest]struct{})
	for _, content := range contents {
		if err := validateSize(content); nil != err {
			return nil, err
		}
		contentHash := digest.New(content)
		_, duplicate := seen[contentHash]
		seen[contentHash] = struct{}{}
		if globalData.pool.Has(contentHash[:]) || duplicate {
			if !globalData.idempotent {
				return nil, fault.AlreadyStaged
			}
			continue
		}
		freshCount += 1
	}

	perChunk := globalData.tierFees[callerTier(caller)]
	if fee != perChunk*freshCount {
		return nil, fault.FeeMismatch
	}

	result := make([]address.Address, len(contents))
	charged := false
	for i, content := range contents {
		contentHash := digest.New(content)
		deployed := deriveAddress(globalData.deployerAddress, contentHash)
		result[i] = deployed
		if globalData.pool.Has(contentHash[:]) {
			continue
		}
		record(contentHash, content, deployed)
		charged = true
	}
	if charged {
		globalData.collectedFees += fee
	}
	persist()
	return result, nil
}

// CodeDigest - recompute the live code identity at a deployed address
//
// fault.ZeroCode when no chunk has been staged at the address
func CodeDigest(moduleAddress address.Address) (digest.Digest, error) {
	globalData.RLock()
	defer globalData.RUnlock()

	if !globalData.initialised {
		return digest.Zero, fault.NotInitialised
	}

	if cached, ok := globalData.codeCache.Get(string(moduleAddress[:])); ok {
		return cached.(digest.Digest), nil
	}

	hashBytes := globalData.indexPool.Get(moduleAddress[:])
	if digest.Length != len(hashBytes) {
		return digest.Zero, fault.ZeroCode
	}

	buffer := globalData.pool.Get(hashBytes)
	if nil == buffer {
		return digest.Zero, fault.ZeroCode
	}
	_, content := unpackRecord(buffer)

	live := digest.New(content)
	globalData.codeCache.Set(string(moduleAddress[:]), live, gocache.DefaultExpiration)
	return live, nil
}

// Chunk - lookup a staged chunk by content hash
func Chunk(contentHash digest.Digest) (Info, error) {
	globalData.RLock()
	defer globalData.RUnlock()

	if !globalData.initialised {
		return Info{}, fault.NotInitialised
	}

	buffer := globalData.pool.Get(contentHash[:])
	if nil == buffer {
		return Info{}, fault.ChunkNotFound
	}
	info, _ := unpackRecord(buffer)
	info.ContentHash = contentHash
	return info, nil
}

// Count - number of staged chunks
func Count() uint64 {
	globalData.RLock()
	defer globalData.RUnlock()
	return globalData.chunkCount
}

// internal: single staging step; must hold update lock
func stage(caller address.Address, content []byte, fee uint64) (address.Address, error) {
	if err := validateSize(content); nil != err {
		return address.Zero, err
	}

	contentHash := digest.New(content)
	deployed := deriveAddress(globalData.deployerAddress, contentHash)

	if globalData.pool.Has(contentHash[:]) {
		if !globalData.idempotent {
			return address.Zero, fault.AlreadyStaged
		}
		// repeat staging is free
		if 0 != fee {
			return address.Zero, fault.FeeMismatch
		}
		return deployed, nil
	}

	if fee != globalData.tierFees[callerTier(caller)] {
		return address.Zero, fault.FeeMismatch
	}

	record(contentHash, content, deployed)
	globalData.collectedFees += fee
	return deployed, nil
}

// internal: append the chunk and index records; must hold update lock
func record(contentHash digest.Digest, content []byte, deployed address.Address) {
	salt := deriveSalt(contentHash)

	buffer := make([]byte, 0, digest.Length+address.Length+8+8+len(content))
	buffer = append(buffer, salt[:]...)
	buffer = append(buffer, deployed[:]...)
	buffer = appendUint64(buffer, uint64(len(content)))
	buffer = appendUint64(buffer, uint64(nowFunc().Unix()))
	buffer = append(buffer, content...)

	globalData.pool.Put(contentHash[:], buffer)
	globalData.indexPool.Put(deployed[:], contentHash[:])
	globalData.codeCache.Delete(string(deployed[:]))
	globalData.chunkCount += 1

	globalData.log.Infof("staged: %s at %s  size: %d", contentHash, deployed, len(content))
}

// internal: decode a stored chunk record
func unpackRecord(buffer []byte) (Info, []byte) {
	info := Info{}
	copy(info.Salt[:], buffer[:digest.Length])
	offset := digest.Length
	copy(info.DeployedAddress[:], buffer[offset:])
	offset += address.Length
	info.Size = binary.BigEndian.Uint64(buffer[offset:])
	offset += 8
	info.StagedAt = binary.BigEndian.Uint64(buffer[offset:])
	offset += 8
	return info, buffer[offset:]
}

// internal: size bounds check
func validateSize(content []byte) error {
	if 0 == len(content) {
		return fault.ChunkEmpty
	}
	if len(content) > MaximumChunkSize {
		return fault.ChunkTooLarge
	}
	return nil
}

// deriveSalt - the salt for a given content hash
func deriveSalt(contentHash digest.Digest) digest.Digest {
	buffer := make([]byte, 0, len(saltPrefix)+digest.Length)
	buffer = append(buffer, saltPrefix...)
	buffer = append(buffer, contentHash[:]...)
	return digest.New(buffer)
}

// deriveAddress - the deterministic deployment address
//
// first twenty bytes of H(0xff || deployer || salt || contentHash)
func deriveAddress(deployer address.Address, contentHash digest.Digest) address.Address {
	salt := deriveSalt(contentHash)

	buffer := make([]byte, 0, 1+address.Length+2*digest.Length)
	buffer = append(buffer, 0xff)
	buffer = append(buffer, deployer[:]...)
	buffer = append(buffer, salt[:]...)
	buffer = append(buffer, contentHash[:]...)

	full := digest.New(buffer)
	deployed := address.Address{}
	copy(deployed[:], full[:address.Length])
	return deployed
}

// append a big endian uint64
func appendUint64(buffer []byte, value uint64) []byte {
	valueBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(valueBytes, value)
	return append(buffer, valueBytes...)
}
