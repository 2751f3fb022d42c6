// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/configuration"
	"github.com/facetroute/facetd/dispatcher"
	"github.com/facetroute/facetd/rpc"
	"github.com/facetroute/facetd/util"
)

// basic defaults (directories and files are relative to the "data_directory" from the configuration file)
const (
	defaultDataDirectory = "" // this will error; use "." for the same directory as the config file

	defaultKeyFile         = "rpc.key"
	defaultCertificateFile = "rpc.crt"

	defaultLevelDBDirectory = "data"
	defaultDatabaseName     = "facet"

	defaultLogDirectory = "log"
	defaultLogFile      = "facetd.log"
	defaultLogCount     = 10          //  number of log files retained
	defaultLogSize      = 1024 * 1024 // rotate when <logfile> exceeds this size

	defaultRPCClients = 100

	defaultActivationDelaySeconds = 86400 // one day
	defaultRotationDelaySeconds   = 86400
)

// to hold log levels
type LoglevelMap map[string]string

// path expanded or calculated defaults
var (
	defaultLogLevels = LoglevelMap{
		logger.DefaultTag: "critical",
	}
)

type DatabaseType struct {
	Directory string `gluamapper:"directory" json:"directory"`
	Name      string `gluamapper:"name" json:"name"`
}

type GovernanceType struct {
	Governor      string `gluamapper:"governor" json:"governor"`
	Guardian      string `gluamapper:"guardian" json:"guardian"`
	RotationDelay uint64 `gluamapper:"rotation_delay" json:"rotation_delay"`
}

type EpochType struct {
	ActivationDelay uint64 `gluamapper:"activation_delay" json:"activation_delay"`
}

type DispatcherType struct {
	MaximumReturnSize int `gluamapper:"maximum_return_size" json:"maximum_return_size"`
}

type ManifestType struct {
	File  string `gluamapper:"file" json:"file"`
	Watch bool   `gluamapper:"watch" json:"watch"`
}

type Configuration struct {
	DataDirectory string       `gluamapper:"data_directory" json:"data_directory"`
	PidFile       string       `gluamapper:"pidfile" json:"pidfile"`
	ChainID       uint64       `gluamapper:"chain_id" json:"chain_id"`
	Deployer      string       `gluamapper:"deployer" json:"deployer"`
	Database      DatabaseType `gluamapper:"database" json:"database"`

	Governance GovernanceType       `gluamapper:"governance" json:"governance"`
	Epoch      EpochType            `gluamapper:"epoch" json:"epoch"`
	Dispatcher DispatcherType       `gluamapper:"dispatcher" json:"dispatcher"`
	Manifest   ManifestType         `gluamapper:"manifest" json:"manifest"`
	ClientRPC  rpc.Configuration    `gluamapper:"client_rpc" json:"client_rpc"`
	Logging    logger.Configuration `gluamapper:"logging" json:"logging"`
}

// addresses parsed out of the configuration strings
type parsedAddresses struct {
	deployer address.Address
	governor address.Address
	guardian address.Address
}

// will read decode and verify the configuration
func getConfiguration(configurationFileName string) (*Configuration, error) {

	configurationFileName, err := filepath.Abs(filepath.Clean(configurationFileName))
	if nil != err {
		return nil, err
	}

	// absolute path to the main directory
	dataDirectory, _ := filepath.Split(configurationFileName)

	options := &Configuration{

		DataDirectory: defaultDataDirectory,
		PidFile:       "", // no PidFile by default

		Database: DatabaseType{
			Directory: defaultLevelDBDirectory,
			Name:      defaultDatabaseName,
		},

		Governance: GovernanceType{
			RotationDelay: defaultRotationDelaySeconds,
		},

		Epoch: EpochType{
			ActivationDelay: defaultActivationDelaySeconds,
		},

		Dispatcher: DispatcherType{
			MaximumReturnSize: dispatcher.DefaultMaximumReturnSize,
		},

		ClientRPC: rpc.Configuration{
			MaximumConnections: defaultRPCClients,
			Certificate:        defaultCertificateFile,
			PrivateKey:         defaultKeyFile,
		},

		Logging: logger.Configuration{
			Directory: defaultLogDirectory,
			File:      defaultLogFile,
			Size:      defaultLogSize,
			Count:     defaultLogCount,
			Levels:    defaultLogLevels,
		},
	}

	if err := configuration.ParseConfigurationFile(configurationFileName, options); nil != err {
		return nil, err
	}

	if 0 == options.ChainID {
		return nil, fmt.Errorf("chain_id: must be non-zero")
	}

	// ensure absolute data directory
	if "" == options.DataDirectory || "~" == options.DataDirectory {
		return nil, fmt.Errorf("path: %q is not a valid directory", options.DataDirectory)
	} else if "." == options.DataDirectory {
		options.DataDirectory = dataDirectory // same directory as the configuration file
	} else {
		options.DataDirectory = filepath.Clean(options.DataDirectory)
	}

	// this directory must exist - i.e. must be created prior to running
	if fileInfo, err := os.Stat(options.DataDirectory); nil != err {
		return nil, err
	} else if !fileInfo.IsDir() {
		return nil, fmt.Errorf("path: %q is not a directory", options.DataDirectory)
	}

	// force all relevant items to be absolute paths
	// if not, assign them to the data directory
	mustBeAbsolute := []*string{
		&options.Database.Directory,
		&options.ClientRPC.Certificate,
		&options.ClientRPC.PrivateKey,
		&options.Logging.Directory,
	}
	for _, f := range mustBeAbsolute {
		*f = util.EnsureAbsolute(options.DataDirectory, *f)
	}

	// optional absolute paths i.e. blank or an absolute path
	optionalAbsolute := []*string{
		&options.PidFile,
		&options.Manifest.File,
	}
	for _, f := range optionalAbsolute {
		if "" != *f {
			*f = util.EnsureAbsolute(options.DataDirectory, *f)
		}
	}

	// fail if any of these are not simple file names i.e. must
	// not contain path separator, then add the correct directory
	// prefix, file item is first and corresponding directory is
	// second (or nil if no prefix can be added)
	mustNotBePaths := [][2]*string{
		{&options.Database.Name, nil},
		{&options.Logging.File, nil},
	}
	for _, f := range mustNotBePaths {
		switch filepath.Dir(*f[0]) {
		case ".":
			if nil != f[1] {
				*f[0] = util.EnsureAbsolute(*f[1], *f[0])
			}
		default:
			return nil, fmt.Errorf("file: %q is not plain name", *f[0])
		}
	}

	// make absolute and create directories if they do not already exist
	for _, d := range []*string{
		&options.Database.Directory,
		&options.Logging.Directory,
	} {
		*d = util.EnsureAbsolute(options.DataDirectory, *d)
		if err := os.MkdirAll(*d, 0700); nil != err {
			return nil, err
		}
	}

	// done
	return options, nil
}

// parse the address strings out of the configuration
func getAddresses(options *Configuration) (*parsedAddresses, error) {

	deployer, err := address.FromHexString(options.Deployer)
	if nil != err {
		return nil, fmt.Errorf("deployer: %q error: %s", options.Deployer, err)
	}

	governor, err := address.FromHexString(options.Governance.Governor)
	if nil != err {
		return nil, fmt.Errorf("governance.governor: %q error: %s", options.Governance.Governor, err)
	}

	guardian, err := address.FromHexString(options.Governance.Guardian)
	if nil != err {
		return nil, fmt.Errorf("governance.guardian: %q error: %s", options.Governance.Guardian, err)
	}

	return &parsedAddresses{
		deployer: deployer,
		governor: governor,
		guardian: guardian,
	}, nil
}

// delays arrive in the configuration as whole seconds
func secondsToDuration(seconds uint64) time.Duration {
	return time.Duration(seconds) * time.Second
}
