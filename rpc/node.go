// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"time"

	"github.com/bitmark-inc/logger"
	"golang.org/x/time/rate"

	"github.com/facetroute/facetd/chunk"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/dispatcher"
	"github.com/facetroute/facetd/epoch"
	"github.com/facetroute/facetd/manifest"
	"github.com/facetroute/facetd/registry"
	"github.com/facetroute/facetd/storage"
)

// Node - status and manifest history queries
type Node struct {
	log     *logger.L
	limiter *rate.Limiter
	start   time.Time
	version string
}

// limits for history listing
const maximumHistoryCount = 100

// ---

// InfoArguments - empty arguments
type InfoArguments struct{}

// InfoReply - the status snapshot plus identifying data
type InfoReply struct {
	Version       string        `json:"version"`
	ChainID       uint64        `json:"chainId"`
	Uptime        string        `json:"uptime"`
	ActiveRoot    digest.Digest `json:"activeRoot"`
	ActiveEpoch   uint64        `json:"activeEpoch"`
	PendingRoot   digest.Digest `json:"pendingRoot"`
	PendingSince  uint64        `json:"pendingSince"`
	PendingReady  uint64        `json:"pendingReadyAt"`
	RouteCount    int           `json:"routeCount"`
	FacetCount    int           `json:"facetCount"`
	ChunkCount    uint64        `json:"chunkCount"`
	CollectedFees uint64        `json:"collectedFees"`
	DispatchCount uint64        `json:"dispatchCount"`
	Frozen        bool          `json:"frozen"`
	Paused        bool          `json:"paused"`
}

// Info - return the system status
func (node *Node) Info(arguments *InfoArguments, reply *InfoReply) error {
	if err := rateLimit(node.limiter); nil != err {
		return err
	}

	status := epoch.GetStatus()

	reply.Version = node.version
	reply.ChainID = chainID
	reply.Uptime = time.Since(node.start).String()
	reply.ActiveRoot = status.ActiveRoot
	reply.ActiveEpoch = status.ActiveEpoch
	reply.PendingRoot = status.PendingRoot
	reply.PendingSince = status.PendingSince
	reply.PendingReady = status.PendingReadyAt
	reply.RouteCount = registry.RouteCount()
	reply.FacetCount = registry.FacetCount()
	reply.ChunkCount = chunk.Count()
	reply.CollectedFees = chunk.CollectedFees()
	reply.DispatchCount = dispatcher.DispatchCount()
	reply.Frozen = status.Frozen
	reply.Paused = status.Paused

	return nil
}

// ---

// HistoryArguments - walk the manifest chain backwards
//
// a zero start begins at the most recently activated manifest
type HistoryArguments struct {
	Start digest.Digest `json:"start"`
	Count int           `json:"count"`
}

// HistoryReply - the chain segment
type HistoryReply struct {
	Manifests []manifest.HistoryEntry `json:"manifests"`
}

// History - list activated manifest headers
func (node *Node) History(arguments *HistoryArguments, reply *HistoryReply) error {
	if err := rateLimitN(node.limiter, arguments.Count, maximumHistoryCount); nil != err {
		return err
	}

	start := arguments.Start
	if start.IsZero() {
		start = epoch.LastManifestHash()
	}

	manifests, err := manifest.History(storage.Pool.Headers, start, arguments.Count)
	if nil != err {
		return err
	}
	reply.Manifests = manifests
	return nil
}
