// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"io"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/bitmark-inc/logger"
	"golang.org/x/time/rate"

	"github.com/facetroute/facetd/counter"
)

// rates per handler, requests per second
const (
	rateLimitNode       = 200
	rateLimitRoutes     = 200
	rateLimitGovernance = 10
	rateLimitChunks     = 50
	rateBurstFactor     = 2
)

// the argument passed to the callback
type serverArgument struct {
	Log    *logger.L
	Server *rpc.Server
}

var connectionCount counter.Counter

// create the registered RPC server instance
func createServer(log *logger.L, version string) *rpc.Server {
	start := time.Now().UTC()

	server := rpc.NewServer()

	_ = server.Register(&Node{
		log:     log,
		limiter: rate.NewLimiter(rateLimitNode, rateBurstFactor*rateLimitNode),
		start:   start,
		version: version,
	})
	_ = server.Register(&Routes{
		log:     log,
		limiter: rate.NewLimiter(rateLimitRoutes, rateBurstFactor*rateLimitRoutes),
	})
	_ = server.Register(&Governance{
		log:     log,
		limiter: rate.NewLimiter(rateLimitGovernance, rateBurstFactor*rateLimitGovernance),
	})
	_ = server.Register(&Chunks{
		log:     log,
		limiter: rate.NewLimiter(rateLimitChunks, rateBurstFactor*rateLimitChunks),
	})

	return server
}

// Callback - listener callback, one connection
func Callback(conn io.ReadWriteCloser, argument interface{}) {

	serverArgument := argument.(*serverArgument)

	log := serverArgument.Log
	log.Info("connection starting…")

	server := serverArgument.Server

	connectionCount.Increment()
	defer connectionCount.Decrement()

	codec := jsonrpc.NewServerCodec(conn)
	defer codec.Close()
	server.ServeCodec(codec)

	log.Info("connection finished")
}

// ConnectionCount - currently open client connections
func ConnectionCount() uint64 {
	return connectionCount.Uint64()
}
