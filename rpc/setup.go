// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"crypto/tls"
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/bitmark-inc/certgen"
	"github.com/bitmark-inc/listener"
	"github.com/bitmark-inc/logger"
	"golang.org/x/crypto/sha3"

	"github.com/facetroute/facetd/configuration"
	"github.com/facetroute/facetd/fault"
)

// Configuration - configuration file data for RPC setup
type Configuration struct {
	MaximumConnections int      `gluamapper:"maximum_connections" json:"maximum_connections"`
	Listen             []string `gluamapper:"listen" json:"listen"`
	Certificate        string   `gluamapper:"certificate" json:"certificate"`
	PrivateKey         string   `gluamapper:"private_key" json:"private_key"`
	OperatorSalt       string   `gluamapper:"operator_salt" json:"operator_salt"`
	OperatorTokenHash  string   `gluamapper:"operator_token_hash" json:"operator_token_hash"`
}

// globals
type rpcData struct {
	sync.RWMutex // to allow locking

	log *logger.L

	listener *listener.MultiListener

	operatorSalt      string
	operatorTokenHash string

	// set once during initialise
	initialised bool
}

// global data
var globalData rpcData

// the chain this node serves, for Node.Info
var chainID uint64

// Initialise - start the RPC server
func Initialise(rpcConfiguration *Configuration, version string, chain uint64) error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	log := logger.New("rpc")
	globalData.log = log
	log.Info("starting…")

	chainID = chain
	globalData.operatorSalt = rpcConfiguration.OperatorSalt
	globalData.operatorTokenHash = rpcConfiguration.OperatorTokenHash

	if 0 == len(rpcConfiguration.Listen) {
		log.Info("disable: client rpc")
		globalData.initialised = true
		return nil
	}

	if rpcConfiguration.MaximumConnections < 1 {
		log.Errorf("invalid maximum connection limit: %d", rpcConfiguration.MaximumConnections)
		return fault.MissingParameters
	}

	tlsConfiguration, fingerprint, err := getCertificate(log,
		rpcConfiguration.Certificate, rpcConfiguration.PrivateKey)
	if nil != err {
		return err
	}
	log.Infof("certificate: SHA3-256 fingerprint: %x", fingerprint)

	limiter := listener.NewLimiter(rpcConfiguration.MaximumConnections)
	ml, err := listener.NewMultiListener("rpc", rpcConfiguration.Listen,
		tlsConfiguration, limiter, Callback)
	if nil != err {
		log.Errorf("invalid listen addresses: %v", rpcConfiguration.Listen)
		return err
	}
	globalData.listener = ml

	argument := &serverArgument{
		Log:    log,
		Server: createServer(log, version),
	}
	ml.Start(argument)

	globalData.initialised = true
	return nil
}

// Finalise - stop the RPC server
func Finalise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}

	globalData.log.Info("shutting down…")

	if nil != globalData.listener {
		globalData.listener.Stop()
		globalData.listener = nil
	}

	globalData.initialised = false

	globalData.log.Info("finished")
	globalData.log.Flush()
	return nil
}

// internal: check the operator token from a mutating call
func verifyOperator(token string) error {
	globalData.RLock()
	salt := globalData.operatorSalt
	hash := globalData.operatorTokenHash
	globalData.RUnlock()

	return configuration.VerifyOperatorToken(token, salt, hash)
}

// internal: load the TLS keypair, self-signing a new one when absent
func getCertificate(log *logger.L, certificateFileName string, keyFileName string) (*tls.Config, [32]byte, error) {
	var fingerprint [32]byte

	if !fileExists(certificateFileName) || !fileExists(keyFileName) {
		log.Infof("creating self signed certificate: %q", certificateFileName)
		err := makeSelfSignedCertificate(certificateFileName, keyFileName)
		if nil != err {
			return nil, fingerprint, err
		}
	}

	keyPair, err := tls.LoadX509KeyPair(certificateFileName, keyFileName)
	if nil != err {
		log.Errorf("failed to load keypair: %v", err)
		return nil, fingerprint, err
	}

	tlsConfiguration := &tls.Config{
		Certificates: []tls.Certificate{
			keyPair,
		},
	}

	fingerprint = sha3.Sum256(keyPair.Certificate[0])
	return tlsConfiguration, fingerprint, nil
}

// internal: create a self-signed certificate pair
func makeSelfSignedCertificate(certificateFileName string, keyFileName string) error {
	if fileExists(certificateFileName) {
		return fault.CertificateFileAlreadyExists
	}
	if fileExists(keyFileName) {
		return fault.KeyFileAlreadyExists
	}

	org := "facetd self signed cert"
	validUntil := time.Now().Add(10 * 365 * 24 * time.Hour)
	cert, key, err := certgen.NewTLSCertPair(org, validUntil, true, nil)
	if nil != err {
		return err
	}

	if err = ioutil.WriteFile(certificateFileName, cert, 0666); nil != err {
		return err
	}
	if err = ioutil.WriteFile(keyFileName, key, 0600); nil != err {
		os.Remove(certificateFileName)
		return err
	}
	return nil
}

// internal: check a file exists
func fileExists(name string) bool {
	fileInfo, err := os.Stat(name)
	return nil == err && fileInfo.Mode().IsRegular()
}
