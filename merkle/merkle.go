// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package merkle - ordered merkle proof processing
//
// a proof is a list of sibling digests plus a position bitfield:
// bit i (LSB first) set means sibling i combines as the LEFT operand
// and the accumulator as the right; clear means the sibling is the
// RIGHT operand
//
// leaf and interior node hashes are domain separated so that a packed
// leaf can never be confused with a node combination
package merkle

import (
	"golang.org/x/crypto/sha3"

	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
)

// MaximumProofDepth - proofs longer than this are rejected outright
//
// the position bitfield is a uint64 so depth is limited to 64; a tree
// of 2^64 leaves is unreachable anyway
const MaximumProofDepth = 64

// domain separation tags
const (
	leafTag = 0x00
	nodeTag = 0x01
)

// NewLeaf - hash a packed leaf record
func NewLeaf(packed []byte) digest.Digest {
	buffer := make([]byte, 1, 1+len(packed))
	buffer[0] = leafTag
	return sha3.Sum256(append(buffer, packed...))
}

// combine two nodes in the given order
func combine(left digest.Digest, right digest.Digest) digest.Digest {
	buffer := make([]byte, 1+2*digest.Length)
	buffer[0] = nodeTag
	copy(buffer[1:], left[:])
	copy(buffer[1+digest.Length:], right[:])
	return sha3.Sum256(buffer)
}

// ProcessProof - fold a leaf with each sibling in sequence and return
// the resulting root
//
// an empty sibling list returns the leaf itself (single entry tree)
func ProcessProof(leaf digest.Digest, siblings []digest.Digest, positions uint64) (digest.Digest, error) {

	if len(siblings) > MaximumProofDepth {
		return digest.Zero, fault.ProofTooDeep
	}

	// all bits above the proof length must be clear
	// note: a shift of 64 is defined in go and yields zero
	if 0 != positions>>uint(len(siblings)) {
		return digest.Zero, fault.ExcessPositionBits
	}

	h := leaf
	for i, sibling := range siblings {
		if 0 != positions&(1<<uint(i)) {
			h = combine(sibling, h)
		} else {
			h = combine(h, sibling)
		}
	}
	return h, nil
}

// Verify - check that a leaf belongs to the tree with the given root
//
// returns false with a nil error for a well formed proof that simply
// does not match; a non-nil error indicates a malformed proof
func Verify(leaf digest.Digest, siblings []digest.Digest, positions uint64, root digest.Digest) (bool, error) {
	computed, err := ProcessProof(leaf, siblings, positions)
	if nil != err {
		return false, err
	}
	return computed == root, nil
}
