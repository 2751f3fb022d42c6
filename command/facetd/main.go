// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"
	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/background"
	"github.com/facetroute/facetd/chunk"
	"github.com/facetroute/facetd/counter"
	"github.com/facetroute/facetd/dispatcher"
	"github.com/facetroute/facetd/epoch"
	"github.com/facetroute/facetd/governance"
	"github.com/facetroute/facetd/manifest"
	"github.com/facetroute/facetd/registry"
	"github.com/facetroute/facetd/rpc"
	"github.com/facetroute/facetd/storage"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero" // do not change this value

// main program
func main() {
	// ensure exit handler is first
	defer exitwithstatus.Handler()

	flags := []getoptions.Option{
		{Long: "help", HasArg: getoptions.NO_ARGUMENT, Short: 'h'},
		{Long: "verbose", HasArg: getoptions.NO_ARGUMENT, Short: 'v'},
		{Long: "quiet", HasArg: getoptions.NO_ARGUMENT, Short: 'q'},
		{Long: "version", HasArg: getoptions.NO_ARGUMENT, Short: 'V'},
		{Long: "config-file", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'c'},
		{Long: "memory-stats", HasArg: getoptions.NO_ARGUMENT, Short: 'm'},
	}

	program, options, arguments, err := getoptions.GetOS(flags)
	if nil != err {
		exitwithstatus.Message("%s: getoptions error: %s", program, err)
	}

	if len(options["version"]) > 0 {
		processSetupCommand(program, []string{"version"})
		return
	}

	if len(options["help"]) > 0 {
		processSetupCommand(program, []string{"help"})
		return
	}

	// these commands do not require the configuration and
	// process data needed for initial setup
	if len(arguments) > 0 && processSetupCommand(program, arguments) {
		return
	}

	if 1 != len(options["config-file"]) {
		exitwithstatus.Message("%s: only one config-file option is required, %d were detected", program, len(options["config-file"]))
	}

	// read options and parse the configuration file
	configurationFile := options["config-file"][0]
	theConfiguration, err := getConfiguration(configurationFile)
	if nil != err {
		exitwithstatus.Message("%s: failed to read configuration from: %q  error: %s", program, configurationFile, err)
	}

	// these commands require the configuration and
	// perform enquiries on the configuration
	if len(arguments) > 0 && processConfigCommand(arguments, theConfiguration) {
		return
	}

	addresses, err := getAddresses(theConfiguration)
	if nil != err {
		exitwithstatus.Message("%s: configuration error: %s", program, err)
	}

	// start logging
	if err = logger.Initialise(theConfiguration.Logging); nil != err {
		exitwithstatus.Message("%s: logger setup failed with error: %s", program, err)
	}
	defer logger.Finalise()

	// create a logger channel for the main program
	log := logger.New("main")
	defer log.Info("finished")
	log.Info("starting…")
	log.Infof("version: %s", version)
	log.Debugf("theConfiguration: %v", theConfiguration)

	// ------------------
	// start of real main
	// ------------------

	// optional PID file
	// use if not running under a supervisor program like daemon(8)
	if "" != theConfiguration.PidFile {
		lockFile, err := os.OpenFile(theConfiguration.PidFile, os.O_WRONLY|os.O_EXCL|os.O_CREATE, os.ModeExclusive|0600)
		if err != nil {
			if os.IsExist(err) {
				exitwithstatus.Message("%s: another instance is already running", program)
			}
			exitwithstatus.Message("%s: PID file: %q creation failed, error: %s", program, theConfiguration.PidFile, err)
		}
		fmt.Fprintf(lockFile, "%d\n", os.Getpid())
		lockFile.Close()
		defer os.Remove(theConfiguration.PidFile)
	}

	// general info
	log.Infof("chain id: %d", theConfiguration.ChainID)
	log.Infof("deployer: %s", addresses.deployer)
	log.Infof("database: %q", theConfiguration.Database)

	// connection info
	log.Debugf("%s = %#v", "ClientRPC", theConfiguration.ClientRPC)

	// start the data storage
	log.Info("initialise storage")
	err = storage.Initialise(filepath.Join(theConfiguration.Database.Directory, theConfiguration.Database.Name))
	if nil != err {
		log.Criticalf("storage initialise error: %s", err)
		exitwithstatus.Message("storage initialise error: %s", err)
	}
	defer storage.Finalise()

	// a single re-entrancy guard shared by every state-mutating module
	var dispatchGuard counter.Flag

	// roles and circuit breakers - before anything that checks them
	log.Info("initialise governance")
	err = governance.Initialise(
		addresses.governor,
		addresses.guardian,
		secondsToDuration(theConfiguration.Governance.RotationDelay),
		storage.Pool.Governance,
		&dispatchGuard,
	)
	if nil != err {
		log.Criticalf("governance initialise error: %s", err)
		exitwithstatus.Message("governance initialise error: %s", err)
	}
	defer governance.Finalise()

	// selector to facet routing table
	log.Info("initialise registry")
	err = registry.Initialise(storage.Pool.Routes, storage.Pool.Facets, &dispatchGuard)
	if nil != err {
		log.Criticalf("registry initialise error: %s", err)
		exitwithstatus.Message("registry initialise error: %s", err)
	}
	defer registry.Finalise()

	// content-addressed code store
	log.Info("initialise chunk")
	err = chunk.Initialise(addresses.deployer, storage.Pool.Chunks, storage.Pool.ChunkIndex, &dispatchGuard)
	if nil != err {
		log.Criticalf("chunk initialise error: %s", err)
		exitwithstatus.Message("chunk initialise error: %s", err)
	}
	defer chunk.Finalise()

	// delayed root commitment and activation
	log.Info("initialise epoch")
	err = epoch.Initialise(
		theConfiguration.ChainID,
		addresses.deployer,
		secondsToDuration(theConfiguration.Epoch.ActivationDelay),
		storage.Pool.Epoch,
		storage.Pool.Headers,
		&dispatchGuard,
	)
	if nil != err {
		log.Criticalf("epoch initialise error: %s", err)
		exitwithstatus.Message("epoch initialise error: %s", err)
	}
	defer epoch.Finalise()

	// the call router
	log.Info("initialise dispatcher")
	err = dispatcher.Initialise(storage.Pool.SharedState, &dispatchGuard, theConfiguration.Dispatcher.MaximumReturnSize)
	if nil != err {
		log.Criticalf("dispatcher initialise error: %s", err)
		exitwithstatus.Message("dispatcher initialise error: %s", err)
	}
	defer dispatcher.Finalise()

	// start client rpc
	log.Info("initialise rpc")
	err = rpc.Initialise(&theConfiguration.ClientRPC, version, theConfiguration.ChainID)
	if nil != err {
		log.Criticalf("rpc initialise error: %s", err)
		exitwithstatus.Message("rpc initialise error: %s", err)
	}
	defer rpc.Finalise()

	// background processes
	processes := background.Processes{
		&monitor{},
	}

	// optionally watch a manifest artifact for external edits
	if "" != theConfiguration.Manifest.File && theConfiguration.Manifest.Watch {
		watcher, err := manifest.NewWatcher(theConfiguration.Manifest.File)
		if nil != err {
			log.Criticalf("manifest watcher error: %s", err)
			exitwithstatus.Message("manifest watcher error: %s", err)
		}
		processes = append(processes, watcher)
	}

	stopper := background.Start(processes, nil)
	defer stopper.Stop()

	if len(options["memory-stats"]) > 0 {
		go memstats()
	}

	if 0 == len(options["quiet"]) {
		fmt.Printf("\n\nWaiting for CTRL-C (SIGINT) or 'kill <pid>' (SIGTERM)…")
	}

	// turn Signals into channel messages
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Infof("received signal: %v", sig)
	if 0 == len(options["quiet"]) {
		fmt.Printf("\nreceived signal: %v\n", sig)
		fmt.Printf("\nshutting down…\n")
	}

	log.Info("shutting down…")
}
