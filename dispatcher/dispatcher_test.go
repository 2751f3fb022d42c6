// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dispatcher_test

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/chunk"
	"github.com/facetroute/facetd/counter"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/dispatcher"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/governance"
	"github.com/facetroute/facetd/merkle"
	"github.com/facetroute/facetd/registry"
	"github.com/facetroute/facetd/routerecord"
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

// configure for testing: full stack below the dispatcher
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
	err = registry.Initialise(storage.Pool.Routes, storage.Pool.Facets, &testGuard)
	if nil != err {
		t.Fatalf("registry initialise error: %s", err)
	}

	err = chunk.Initialise(testDeployer, storage.Pool.Chunks, storage.Pool.ChunkIndex, &testGuard)
	if nil != err {
		t.Fatalf("chunk initialise error: %s", err)
	}

	err = dispatcher.Initialise(storage.Pool.SharedState, &testGuard, 1024)
	if nil != err {
		t.Fatalf("dispatcher initialise error: %s", err)
	}
}

// post test cleanup
func teardown(t *testing.T) {
	_ = dispatcher.Finalise()
	_ = chunk.Finalise()
	_ = registry.Finalise()
	_ = governance.Finalise()
	storage.Finalise()
	logger.Finalise()
	removeFiles()
}

// stage content and install one proved route for it
func installRoute(t *testing.T, selector routerecord.Selector, content []byte) address.Address {
	moduleAddress, contentHash, err := chunk.Predict(content)
	if nil != err {
		t.Fatalf("predict error: %s", err)
	}
	if _, err := chunk.Stage(testCaller, content, 0); nil != err {
		t.Fatalf("stage error: %s", err)
	}

	route := routerecord.Route{
		Selector:      selector,
		ModuleAddress: moduleAddress,
		CodeIdentity:  contentHash,
	}
	leaf := merkle.RouteLeaf(route.Selector, route.ModuleAddress, route.CodeIdentity)
	tree := merkle.NewTree([]digest.Digest{leaf})

	batch := []routerecord.ProvedRoute{{Route: route}}
	siblings, positions, err := tree.Proof(0)
	if nil != err {
		t.Fatalf("proof error: %s", err)
	}
	batch[0].Siblings = siblings
	batch[0].Positions = routerecord.Positions(positions)

	err = registry.Apply(testGovernor, batch, tree.Root(), 1)
	if nil != err {
		t.Fatalf("apply error: %s", err)
	}
	return moduleAddress
}

func TestDispatch(t *testing.T) {
	setup(t)
	defer teardown(t)

	selector := routerecord.Selector{0x11, 0x22, 0x33, 0x44}
	moduleAddress := installRoute(t, selector, []byte("echo module"))

	echo := dispatcher.HandlerFunc(func(_ storage.Handle, _ routerecord.Selector, _ address.Address, payload []byte) ([]byte, error) {
		return append([]byte("echo:"), payload...), nil
	})
	if err := dispatcher.RegisterHandler(moduleAddress, echo); nil != err {
		t.Fatalf("register error: %s", err)
	}

	result, err := dispatcher.Dispatch(testCaller, selector, []byte("hello"))
	if nil != err {
		t.Fatalf("dispatch error: %s", err)
	}
	if !bytes.Equal([]byte("echo:hello"), result) {
		t.Errorf("result: actual: %q  expected: %q", result, "echo:hello")
	}
	if uint64(1) != dispatcher.DispatchCount() {
		t.Errorf("dispatch count: actual: %d  expected: 1", dispatcher.DispatchCount())
	}

	_, err = dispatcher.Dispatch(testCaller, routerecord.Selector{0xde, 0xad, 0xbe, 0xef}, nil)
	if fault.NoRoute != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.NoRoute)
	}
}

// a module altered after commitment must never receive a call
func TestCodeIdentityEnforcement(t *testing.T) {
	setup(t)
	defer teardown(t)

	selector := routerecord.Selector{0x11, 0x22, 0x33, 0x55}
	content := []byte("honest module")
	moduleAddress := installRoute(t, selector, content)

	handler := dispatcher.HandlerFunc(func(_ storage.Handle, _ routerecord.Selector, _ address.Address, _ []byte) ([]byte, error) {
		return []byte("ok"), nil
	})
	if err := dispatcher.RegisterHandler(moduleAddress, handler); nil != err {
		t.Fatalf("register error: %s", err)
	}

	// swap the code out from under the live route: stage different
	// content, then point the module's index entry at it
	replacement := []byte("altered module")
	if _, err := chunk.Stage(testCaller, replacement, 0); nil != err {
		t.Fatalf("stage error: %s", err)
	}
	replacementHash := digest.New(replacement)
	storage.Pool.ChunkIndex.Put(moduleAddress[:], replacementHash[:])

	_, err := dispatcher.Dispatch(testCaller, selector, nil)
	if fault.CodehashMismatch != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.CodehashMismatch)
	}
}

// a routed module whose address holds no staged code is rejected
func TestZeroCode(t *testing.T) {
	setup(t)
	defer teardown(t)

	selector := routerecord.Selector{0x11, 0x22, 0x33, 0x66}
	route := routerecord.Route{
		Selector:      selector,
		ModuleAddress: address.Address{0xab, 0xcd},
		CodeIdentity:  digest.New([]byte("phantom code")),
	}
	leaf := merkle.RouteLeaf(route.Selector, route.ModuleAddress, route.CodeIdentity)
	tree := merkle.NewTree([]digest.Digest{leaf})
	siblings, positions, _ := tree.Proof(0)
	batch := []routerecord.ProvedRoute{{
		Route:     route,
		Siblings:  siblings,
		Positions: routerecord.Positions(positions),
	}}
	if err := registry.Apply(testGovernor, batch, tree.Root(), 1); nil != err {
		t.Fatalf("apply error: %s", err)
	}

	_, err := dispatcher.Dispatch(testCaller, selector, nil)
	if fault.ZeroCode != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.ZeroCode)
	}
}

// a handler calling back into the dispatcher or governance must fail
func TestReentrancy(t *testing.T) {
	setup(t)
	defer teardown(t)

	selector := routerecord.Selector{0x11, 0x22, 0x33, 0x77}
	moduleAddress := installRoute(t, selector, []byte("reentrant module"))

	var innerDispatchErr error
	var innerRemoveErr error
	handler := dispatcher.HandlerFunc(func(_ storage.Handle, s routerecord.Selector, caller address.Address, _ []byte) ([]byte, error) {
		_, innerDispatchErr = dispatcher.Dispatch(caller, s, nil)
		innerRemoveErr = registry.Remove(testGovernor, []routerecord.Selector{s})
		return []byte("done"), nil
	})
	if err := dispatcher.RegisterHandler(moduleAddress, handler); nil != err {
		t.Fatalf("register error: %s", err)
	}

	_, err := dispatcher.Dispatch(testCaller, selector, nil)
	if nil != err {
		t.Fatalf("dispatch error: %s", err)
	}
	if fault.ReentrantCall != innerDispatchErr {
		t.Errorf("inner dispatch error: actual: %v  expected: %v", innerDispatchErr, fault.ReentrantCall)
	}
	if fault.ReentrantCall != innerRemoveErr {
		t.Errorf("inner remove error: actual: %v  expected: %v", innerRemoveErr, fault.ReentrantCall)
	}

	// the guard clears after the outer call completes
	_, err = dispatcher.Dispatch(testCaller, selector, nil)
	if nil != err {
		t.Errorf("dispatch after reentrant call: %s", err)
	}
}

// a dispatched handler must not reach any governance or fee
// administration entry point
func TestGovernanceReentrancy(t *testing.T) {
	setup(t)
	defer teardown(t)

	selector := routerecord.Selector{0x11, 0x22, 0x33, 0x79}
	moduleAddress := installRoute(t, selector, []byte("takeover module"))

	rogueGovernor := address.Address{0x66}
	var innerQueueErr error
	var innerFreezeErr error
	var innerPauseErr error
	var innerGuardianErr error
	var innerFeeErr error
	var innerWithdrawErr error
	handler := dispatcher.HandlerFunc(func(_ storage.Handle, _ routerecord.Selector, _ address.Address, _ []byte) ([]byte, error) {
		innerQueueErr = governance.QueueRotateGovernance(testGovernor, rogueGovernor)
		innerFreezeErr = governance.Freeze(testGovernor)
		innerPauseErr = governance.Pause(testGuardian)
		innerGuardianErr = governance.SetGuardian(testGovernor, rogueGovernor)
		innerFeeErr = chunk.SetTierFee(testGovernor, 1, 999)
		_, innerWithdrawErr = chunk.WithdrawFees(testGovernor)
		return []byte("done"), nil
	})
	if err := dispatcher.RegisterHandler(moduleAddress, handler); nil != err {
		t.Fatalf("register error: %s", err)
	}

	_, err := dispatcher.Dispatch(testCaller, selector, nil)
	if nil != err {
		t.Fatalf("dispatch error: %s", err)
	}

	inner := []struct {
		name string
		err  error
	}{
		{"queue rotation", innerQueueErr},
		{"freeze", innerFreezeErr},
		{"pause", innerPauseErr},
		{"set guardian", innerGuardianErr},
		{"set tier fee", innerFeeErr},
		{"withdraw fees", innerWithdrawErr},
	}
	for _, item := range inner {
		if fault.ReentrantCall != item.err {
			t.Errorf("%s error: actual: %v  expected: %v", item.name, item.err, fault.ReentrantCall)
		}
	}

	// nothing may have changed
	if governance.IsFrozen() || governance.IsPaused() {
		t.Errorf("governance mutated from inside a dispatched handler")
	}
	if testGuardian != governance.Guardian() {
		t.Errorf("guardian: actual: %s  expected: %s", governance.Guardian(), testGuardian)
	}
	status := governance.GetStatus()
	if !status.PendingGovernor.IsZero() {
		t.Errorf("rotation queued from inside a dispatched handler")
	}

	// dispatch still works afterwards
	_, err = dispatcher.Dispatch(testCaller, selector, nil)
	if nil != err {
		t.Errorf("dispatch after blocked takeover: %s", err)
	}
}

// oversize return data is rejected, never truncated
func TestReturnDataCap(t *testing.T) {
	setup(t)
	defer teardown(t)

	selector := routerecord.Selector{0x11, 0x22, 0x33, 0x88}
	moduleAddress := installRoute(t, selector, []byte("verbose module"))

	verbose := dispatcher.HandlerFunc(func(_ storage.Handle, _ routerecord.Selector, _ address.Address, payload []byte) ([]byte, error) {
		return bytes.Repeat([]byte{0x55}, 1025), nil
	})
	if err := dispatcher.RegisterHandler(moduleAddress, verbose); nil != err {
		t.Fatalf("register error: %s", err)
	}

	_, err := dispatcher.Dispatch(testCaller, selector, nil)
	if fault.ReturnDataTooLarge != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.ReturnDataTooLarge)
	}
}

// a failed dispatch must leave no trace in the shared state pool
func TestFailedDispatchDiscardsState(t *testing.T) {
	setup(t)
	defer teardown(t)

	verboseSelector := routerecord.Selector{0x11, 0x22, 0x55, 0x01}
	failingSelector := routerecord.Selector{0x11, 0x22, 0x55, 0x02}
	verboseAddress := installRoute(t, verboseSelector, []byte("verbose writer module"))
	failingAddress := installRoute(t, failingSelector, []byte("failing writer module"))

	// writes a key, then breaches the return data cap
	verbose := dispatcher.HandlerFunc(func(state storage.Handle, _ routerecord.Selector, _ address.Address, _ []byte) ([]byte, error) {
		state.Put([]byte("half-done"), []byte("partial"))
		return bytes.Repeat([]byte{0x55}, 1025), nil
	})
	errHandlerFailed := errors.New("handler failed")

	// writes a key, then errors out
	failing := dispatcher.HandlerFunc(func(state storage.Handle, _ routerecord.Selector, _ address.Address, _ []byte) ([]byte, error) {
		state.Put([]byte("half-done"), []byte("partial"))
		return nil, errHandlerFailed
	})
	if err := dispatcher.RegisterHandler(verboseAddress, verbose); nil != err {
		t.Fatalf("register error: %s", err)
	}
	if err := dispatcher.RegisterHandler(failingAddress, failing); nil != err {
		t.Fatalf("register error: %s", err)
	}

	_, err := dispatcher.Dispatch(testCaller, verboseSelector, nil)
	if fault.ReturnDataTooLarge != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.ReturnDataTooLarge)
	}
	if value := storage.Pool.SharedState.Get([]byte("half-done")); nil != value {
		t.Errorf("state survived a capped dispatch: %q", value)
	}

	_, err = dispatcher.Dispatch(testCaller, failingSelector, nil)
	if errHandlerFailed != err {
		t.Errorf("error: actual: %v  expected: %v", err, errHandlerFailed)
	}
	if value := storage.Pool.SharedState.Get([]byte("half-done")); nil != value {
		t.Errorf("state survived a failed dispatch: %q", value)
	}
}

// a handler reads its own buffered writes before they are committed
func TestDispatchStateReadsOwnWrites(t *testing.T) {
	setup(t)
	defer teardown(t)

	selector := routerecord.Selector{0x11, 0x22, 0x55, 0x03}
	moduleAddress := installRoute(t, selector, []byte("read back module"))

	errBadReadBack := errors.New("stale read back")

	handler := dispatcher.HandlerFunc(func(state storage.Handle, _ routerecord.Selector, _ address.Address, _ []byte) ([]byte, error) {
		state.Put([]byte("draft"), []byte("pending"))
		if !state.Has([]byte("draft")) {
			return nil, errBadReadBack
		}
		readBack := state.Get([]byte("draft"))
		state.Delete([]byte("draft"))
		if nil != state.Get([]byte("draft")) {
			return nil, errBadReadBack
		}
		return readBack, nil
	})
	if err := dispatcher.RegisterHandler(moduleAddress, handler); nil != err {
		t.Fatalf("register error: %s", err)
	}

	result, err := dispatcher.Dispatch(testCaller, selector, nil)
	if nil != err {
		t.Fatalf("dispatch error: %s", err)
	}
	if !bytes.Equal([]byte("pending"), result) {
		t.Errorf("result: actual: %q  expected: %q", result, "pending")
	}
	if storage.Pool.SharedState.Has([]byte("draft")) {
		t.Errorf("deleted key committed to the pool")
	}
}

// two modules share the dispatcher's persistent state namespace
func TestSharedState(t *testing.T) {
	setup(t)
	defer teardown(t)

	writerSelector := routerecord.Selector{0x11, 0x22, 0x44, 0x01}
	readerSelector := routerecord.Selector{0x11, 0x22, 0x44, 0x02}
	writerAddress := installRoute(t, writerSelector, []byte("writer module"))
	readerAddress := installRoute(t, readerSelector, []byte("reader module"))

	writer := dispatcher.HandlerFunc(func(state storage.Handle, _ routerecord.Selector, _ address.Address, payload []byte) ([]byte, error) {
		state.Put([]byte("note"), payload)
		return nil, nil
	})
	reader := dispatcher.HandlerFunc(func(state storage.Handle, _ routerecord.Selector, _ address.Address, _ []byte) ([]byte, error) {
		return state.Get([]byte("note")), nil
	})
	if err := dispatcher.RegisterHandler(writerAddress, writer); nil != err {
		t.Fatalf("register error: %s", err)
	}
	if err := dispatcher.RegisterHandler(readerAddress, reader); nil != err {
		t.Fatalf("register error: %s", err)
	}

	if _, err := dispatcher.Dispatch(testCaller, writerSelector, []byte("shared value")); nil != err {
		t.Fatalf("dispatch error: %s", err)
	}
	result, err := dispatcher.Dispatch(testCaller, readerSelector, nil)
	if nil != err {
		t.Fatalf("dispatch error: %s", err)
	}
	if !bytes.Equal([]byte("shared value"), result) {
		t.Errorf("result: actual: %q  expected: %q", result, "shared value")
	}
}

func TestMissingHandler(t *testing.T) {
	setup(t)
	defer teardown(t)

	selector := routerecord.Selector{0x11, 0x22, 0x33, 0x99}
	installRoute(t, selector, []byte("unregistered module"))

	_, err := dispatcher.Dispatch(testCaller, selector, nil)
	if fault.NoHandler != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.NoHandler)
	}
}

func TestPauseBlocksDispatch(t *testing.T) {
	setup(t)
	defer teardown(t)

	selector := routerecord.Selector{0x11, 0x22, 0x33, 0xaa}
	moduleAddress := installRoute(t, selector, []byte("pausable module"))
	handler := dispatcher.HandlerFunc(func(_ storage.Handle, _ routerecord.Selector, _ address.Address, _ []byte) ([]byte, error) {
		return []byte("ok"), nil
	})
	if err := dispatcher.RegisterHandler(moduleAddress, handler); nil != err {
		t.Fatalf("register error: %s", err)
	}

	if err := governance.Pause(testGuardian); nil != err {
		t.Fatalf("pause error: %s", err)
	}
	_, err := dispatcher.Dispatch(testCaller, selector, nil)
	if fault.Paused != err {
		t.Errorf("error: actual: %v  expected: %v", err, fault.Paused)
	}

	if err := governance.Unpause(testGuardian); nil != err {
		t.Fatalf("unpause error: %s", err)
	}
	if _, err := dispatcher.Dispatch(testCaller, selector, nil); nil != err {
		t.Errorf("dispatch after unpause: %s", err)
	}
}
