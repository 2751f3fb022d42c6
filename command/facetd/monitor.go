// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/facetroute/facetd/chunk"
	"github.com/facetroute/facetd/dispatcher"
	"github.com/facetroute/facetd/epoch"
	"github.com/facetroute/facetd/registry"
	"github.com/facetroute/facetd/rpc"
)

const monitorInterval = 60 * time.Second

// periodic summary of the node state to the log
type monitor struct {
	log *logger.L
}

func (m *monitor) Run(args interface{}, shutdown <-chan struct{}) {
	m.log = logger.New("monitor")
	m.log.Info("starting…")

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-shutdown:
			break loop
		case <-ticker.C:
			status := epoch.GetStatus()
			m.log.Infof(
				"epoch: %d  routes: %d  facets: %d  chunks: %d  dispatched: %d  connections: %d",
				status.ActiveEpoch,
				registry.RouteCount(),
				registry.FacetCount(),
				chunk.Count(),
				dispatcher.DispatchCount(),
				rpc.ConnectionCount(),
			)
			if !status.PendingRoot.IsZero() {
				m.log.Infof("pending root: %s  ready at: %d", status.PendingRoot, status.PendingReadyAt)
			}
			if status.Frozen {
				m.log.Warn("registry is frozen")
			} else if status.Paused {
				m.log.Warn("registry is paused")
			}
		}
	}

	m.log.Info("shutting down…")
}
