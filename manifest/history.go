// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package manifest

import (
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
	"github.com/facetroute/facetd/routerecord"
	"github.com/facetroute/facetd/storage"
)

// HistoryEntry - one activated manifest in the version chain
type HistoryEntry struct {
	ManifestHash digest.Digest              `json:"manifestHash"`
	Header       routerecord.ManifestHeader `json:"header"`
	Root         digest.Digest              `json:"root"`
}

// History - walk the header chain backwards from head
//
// head is normally the hash of the most recently activated manifest;
// the walk follows previousHash links and stops at the first manifest
// or after limit entries.  a broken link is an error since the chain
// is supposed to be complete
func History(pool storage.Handle, head digest.Digest, limit int) ([]HistoryEntry, error) {
	if nil == pool {
		return nil, fault.MissingParameters
	}
	if limit <= 0 {
		return nil, fault.InvalidCount
	}

	result := make([]HistoryEntry, 0, limit)
	current := head
	for !current.IsZero() && len(result) < limit {
		buffer := pool.Get(current[:])
		if routerecord.HeaderPackedLength+digest.Length != len(buffer) {
			return nil, fault.HeaderNotFound
		}

		header, err := routerecord.UnpackHeader(buffer[:routerecord.HeaderPackedLength])
		if nil != err {
			return nil, err
		}
		entry := HistoryEntry{
			ManifestHash: current,
			Header:       *header,
		}
		copy(entry.Root[:], buffer[routerecord.HeaderPackedLength:])
		result = append(result, entry)

		current = header.PreviousHash
	}
	return result, nil
}
