// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package routerecord

import (
	"encoding/binary"

	"github.com/facetroute/facetd/address"
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
)

// ManifestHeader - identifies one manifest in the version chain
//
// PreviousHash is the manifest hash of the preceding manifest so the
// full history forms a verifiable chain; zero for the first manifest
type ManifestHeader struct {
	VersionID       uint64          `json:"versionId"`
	Timestamp       uint64          `json:"timestamp"`
	DeployerAddress address.Address `json:"deployerAddress"`
	ChainID         uint64          `json:"chainId"`
	PreviousHash    digest.Digest   `json:"previousHash"`
}

// HeaderPackedLength - three uint64 fields + address + previous hash
const HeaderPackedLength = 8 + 8 + address.Length + 8 + digest.Length

// Pack - canonical fixed width encoding of a manifest header
//
// field order matches the struct; any change breaks every previously
// published manifest hash
func (header *ManifestHeader) Pack() Packed {
	buffer := make([]byte, 0, HeaderPackedLength)
	buffer = appendUint64(buffer, header.VersionID)
	buffer = appendUint64(buffer, header.Timestamp)
	buffer = append(buffer, header.DeployerAddress[:]...)
	buffer = appendUint64(buffer, header.ChainID)
	buffer = append(buffer, header.PreviousHash[:]...)
	return buffer
}

// ManifestHash - the reproducible hash of header and root
//
// computable offline from the JSON artifact alone
func ManifestHash(header *ManifestHeader, root digest.Digest) digest.Digest {
	packed := header.Pack()
	return digest.New(append(packed, root[:]...))
}

// append a big endian uint64
func appendUint64(buffer Packed, value uint64) Packed {
	valueBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(valueBytes, value)
	return append(buffer, valueBytes...)
}

// UnpackHeader - decode a packed manifest header
func UnpackHeader(buffer []byte) (*ManifestHeader, error) {
	if HeaderPackedLength != len(buffer) {
		return nil, fault.InvalidHeaderLength
	}

	header := &ManifestHeader{}
	header.VersionID = binary.BigEndian.Uint64(buffer)
	header.Timestamp = binary.BigEndian.Uint64(buffer[8:])
	copy(header.DeployerAddress[:], buffer[16:])
	offset := 16 + address.Length
	header.ChainID = binary.BigEndian.Uint64(buffer[offset:])
	copy(header.PreviousHash[:], buffer[offset+8:])
	return header, nil
}
