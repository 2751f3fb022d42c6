// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chunk_test

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/chunk"
	"github.com/facetroute/facetd/counter"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/governance"
	"github.com/facetroute/facetd/storage"
)

var (
	testGovernor = address.Address{0x01}
	testGuardian = address.Address{0x02}
	testDeployer = address.Address{0x0d}
	testCaller   = address.Address{0x0c}
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
	err = chunk.Initialise(testDeployer, storage.Pool.Chunks, storage.Pool.ChunkIndex, &testGuard)
	if nil != err {
		t.Fatalf("chunk initialise error: %s", err)
	}
}

// post test cleanup
func teardown(t *testing.T) {
	_ = chunk.Finalise()
	_ = governance.Finalise()
	storage.Finalise()
	logger.Finalise()
	removeFiles()
}

func TestPredictMatchesStage(t *testing.T) {
	setup(t)
	defer teardown(t)

	content := []byte("module bytecode alpha")

	predicted, contentHash, err := chunk.Predict(content)
	if nil != err {
		t.Fatalf("predict error: %s", err)
	}
	if digest.New(content) != contentHash {
		t.Errorf("content hash: actual: %s  expected: %s", contentHash, digest.New(content))
	}

	staged, err := chunk.Stage(testCaller, content, 0)
	if nil != err {
		t.Fatalf("stage error: %s", err)
	}
	if predicted != staged {
		t.Errorf("address: actual: %s  expected: %s", staged, predicted)
	}

	info, err := chunk.Chunk(contentHash)
	if nil != err {
		t.Fatalf("chunk lookup error: %s", err)
	}
	if staged != info.DeployedAddress {
		t.Errorf("deployed address: actual: %s  expected: %s", info.DeployedAddress, staged)
	}
	if uint64(len(content)) != info.Size {
		t.Errorf("size: actual: %d  expected: %d", info.Size, len(content))
	}
	if uint64(1) != chunk.Count() {
		t.Errorf("count: actual: %d  expected: 1", chunk.Count())
	}
}

func TestIdempotentStaging(t *testing.T) {
	setup(t)
	defer teardown(t)

	content := []byte("module bytecode beta")

	first, err := chunk.Stage(testCaller, content, 0)
	if nil != err {
		t.Fatalf("stage error: %s", err)
	}

	// staging the same content again returns the same address for free
	second, err := chunk.Stage(testCaller, content, 0)
	if nil != err {
		t.Fatalf("repeat stage error: %s", err)
	}
	if first != second {
		t.Errorf("address changed: actual: %s  expected: %s", second, first)
	}
	if uint64(1) != chunk.Count() {
		t.Errorf("count: actual: %d  expected: 1", chunk.Count())
	}

	// with idempotent mode off a repeat stage is an error
	err = chunk.SetIdempotentMode(testGovernor, false)
	if nil != err {
		t.Fatalf("set mode error: %s", err)
	}
	_, err = chunk.Stage(testCaller, content, 0)
	if fault.AlreadyStaged != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.AlreadyStaged)
	}
}

func TestSizeValidation(t *testing.T) {
	setup(t)
	defer teardown(t)

	_, err := chunk.Stage(testCaller, []byte{}, 0)
	if fault.ChunkEmpty != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.ChunkEmpty)
	}

	oversize := bytes.Repeat([]byte{0x5a}, chunk.MaximumChunkSize+1)
	_, err = chunk.Stage(testCaller, oversize, 0)
	if fault.ChunkTooLarge != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.ChunkTooLarge)
	}

	exact := bytes.Repeat([]byte{0x5a}, chunk.MaximumChunkSize)
	_, err = chunk.Stage(testCaller, exact, 0)
	if nil != err {
		t.Errorf("stage error at maximum size: %s", err)
	}
}

func TestFeeTiers(t *testing.T) {
	setup(t)
	defer teardown(t)

	err := chunk.SetTierFee(testCaller, 1, 500)
	if fault.NotGovernor != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.NotGovernor)
	}
	err = chunk.SetTierFee(testGovernor, 200, 500)
	if fault.InvalidFeeTier != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.InvalidFeeTier)
	}

	if err := chunk.SetTierFee(testGovernor, 0, 100); nil != err {
		t.Fatalf("set fee error: %s", err)
	}
	if err := chunk.SetTierFee(testGovernor, 1, 500); nil != err {
		t.Fatalf("set fee error: %s", err)
	}
	if err := chunk.SetCallerTier(testGovernor, testCaller, 1); nil != err {
		t.Fatalf("set tier error: %s", err)
	}

	if 500 != chunk.GetDeploymentFee(testCaller) {
		t.Errorf("fee: actual: %d  expected: 500", chunk.GetDeploymentFee(testCaller))
	}
	if 100 != chunk.GetDeploymentFee(address.Address{0x77}) {
		t.Errorf("default tier fee: actual: %d  expected: 100", chunk.GetDeploymentFee(address.Address{0x77}))
	}

	// wrong attached fee is rejected, exact fee accepted
	content := []byte("fee gated bytecode")
	_, err = chunk.Stage(testCaller, content, 100)
	if fault.FeeMismatch != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.FeeMismatch)
	}
	_, err = chunk.Stage(testCaller, content, 500)
	if nil != err {
		t.Fatalf("stage error: %s", err)
	}

	if 500 != chunk.CollectedFees() {
		t.Errorf("collected: actual: %d  expected: 500", chunk.CollectedFees())
	}

	amount, err := chunk.WithdrawFees(testGovernor)
	if nil != err {
		t.Fatalf("withdraw error: %s", err)
	}
	if 500 != amount {
		t.Errorf("withdrawn: actual: %d  expected: 500", amount)
	}
	if 0 != chunk.CollectedFees() {
		t.Errorf("collected after withdrawal: actual: %d  expected: 0", chunk.CollectedFees())
	}
}

func TestStageBatch(t *testing.T) {
	setup(t)
	defer teardown(t)

	if err := chunk.SetTierFee(testGovernor, 0, 10); nil != err {
		t.Fatalf("set fee error: %s", err)
	}

	contents := [][]byte{
		[]byte("batch chunk one"),
		[]byte("batch chunk two"),
		[]byte("batch chunk three"),
	}

	// fee must cover exactly the fresh chunks
	_, err := chunk.StageBatch(testCaller, contents, 20)
	if fault.FeeMismatch != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.FeeMismatch)
	}

	addresses, err := chunk.StageBatch(testCaller, contents, 30)
	if nil != err {
		t.Fatalf("batch error: %s", err)
	}
	if 3 != len(addresses) {
		t.Fatalf("addresses: actual: %d  expected: 3", len(addresses))
	}
	if uint64(3) != chunk.Count() {
		t.Errorf("count: actual: %d  expected: 3", chunk.Count())
	}

	// batch addresses match individual prediction
	for i, content := range contents {
		predicted, _, err := chunk.Predict(content)
		if nil != err {
			t.Fatalf("predict error: %s", err)
		}
		if predicted != addresses[i] {
			t.Errorf("chunk %d: address: actual: %s  expected: %s", i, addresses[i], predicted)
		}
	}

	// already staged chunks are free: only the new one is charged
	contents = append(contents, []byte("batch chunk four"))
	_, err = chunk.StageBatch(testCaller, contents, 10)
	if nil != err {
		t.Fatalf("batch error: %s", err)
	}
	if uint64(4) != chunk.Count() {
		t.Errorf("count: actual: %d  expected: 4", chunk.Count())
	}
}

// an invalid element anywhere must stage nothing
func TestStageBatchAtomicity(t *testing.T) {
	setup(t)
	defer teardown(t)

	contents := [][]byte{
		[]byte("good chunk"),
		{}, // invalid
		[]byte("another good chunk"),
	}

	_, err := chunk.StageBatch(testCaller, contents, 0)
	if fault.ChunkEmpty != err {
		t.Fatalf("error: actual: %v  expected: %v", err, fault.ChunkEmpty)
	}
	if uint64(0) != chunk.Count() {
		t.Errorf("count after failed batch: actual: %d  expected: 0", chunk.Count())
	}
}

func TestCodeDigest(t *testing.T) {
	setup(t)
	defer teardown(t)

	content := []byte("live code check target")
	deployed, contentHash, err := chunk.Predict(content)
	if nil != err {
		t.Fatalf("predict error: %s", err)
	}

	// nothing staged yet
	_, err = chunk.CodeDigest(deployed)
	if fault.ZeroCode != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.ZeroCode)
	}

	_, err = chunk.Stage(testCaller, content, 0)
	if nil != err {
		t.Fatalf("stage error: %s", err)
	}

	live, err := chunk.CodeDigest(deployed)
	if nil != err {
		t.Fatalf("code digest error: %s", err)
	}
	if contentHash != live {
		t.Errorf("code digest: actual: %s  expected: %s", live, contentHash)
	}

	// cached path returns the same digest
	live2, err := chunk.CodeDigest(deployed)
	if nil != err {
		t.Fatalf("code digest error: %s", err)
	}
	if live != live2 {
		t.Errorf("cached digest differs")
	}
}

// staged records survive a restart
func TestPersistence(t *testing.T) {
	setup(t)

	content := []byte("persistent chunk")
	staged, contentHash, err := chunk.Predict(content)
	if nil != err {
		t.Fatalf("predict error: %s", err)
	}
	if _, err := chunk.Stage(testCaller, content, 0); nil != err {
		t.Fatalf("stage error: %s", err)
	}

	_ = chunk.Finalise()
	err = chunk.Initialise(testDeployer, storage.Pool.Chunks, storage.Pool.ChunkIndex, &testGuard)
	if nil != err {
		t.Fatalf("re-initialise error: %s", err)
	}

	if uint64(1) != chunk.Count() {
		t.Errorf("count after restart: actual: %d  expected: 1", chunk.Count())
	}
	info, err := chunk.Chunk(contentHash)
	if nil != err {
		t.Fatalf("lookup error: %s", err)
	}
	if staged != info.DeployedAddress {
		t.Errorf("address: actual: %s  expected: %s", info.DeployedAddress, staged)
	}

	teardown(t)
}

func TestPauseBlocksStaging(t *testing.T) {
	setup(t)
	defer teardown(t)

	if err := governance.Pause(testGuardian); nil != err {
		t.Fatalf("pause error: %s", err)
	}

	_, err := chunk.Stage(testCaller, []byte("paused chunk"), 0)
	if fault.Paused != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.Paused)
	}
}

// staging and fee administration must reject while a dispatch is in flight
func TestReentrancyGuard(t *testing.T) {
	setup(t)
	defer teardown(t)

	if !testGuard.Set() {
		t.Fatalf("cannot set guard")
	}
	defer testGuard.Clear()

	_, err := chunk.Stage(testCaller, []byte("guarded content"), 0)
	if fault.ReentrantCall != err {
		t.Errorf("stage error: actual: %v  expected: %v", err, fault.ReentrantCall)
	}
	if err := chunk.SetTierFee(testGovernor, 1, 500); fault.ReentrantCall != err {
		t.Errorf("set tier fee error: actual: %v  expected: %v", err, fault.ReentrantCall)
	}
	if err := chunk.SetCallerTier(testGovernor, testCaller, 1); fault.ReentrantCall != err {
		t.Errorf("set caller tier error: actual: %v  expected: %v", err, fault.ReentrantCall)
	}
	if err := chunk.SetIdempotentMode(testGovernor, false); fault.ReentrantCall != err {
		t.Errorf("set idempotent mode error: actual: %v  expected: %v", err, fault.ReentrantCall)
	}
	if _, err := chunk.WithdrawFees(testGovernor); fault.ReentrantCall != err {
		t.Errorf("withdraw error: actual: %v  expected: %v", err, fault.ReentrantCall)
	}

	testGuard.Clear()

	// with the guard clear the same calls work
	if _, err := chunk.Stage(testCaller, []byte("guarded content"), 0); nil != err {
		t.Errorf("stage error: %s", err)
	}
	if err := chunk.SetTierFee(testGovernor, 1, 500); nil != err {
		t.Errorf("set tier fee error: %s", err)
	}
}
