// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package merkle

import (
	"github.com/facetroute/facetd/digest"
	"github.com/facetroute/facetd/fault"
)

// Tree - an ordered merkle tree retaining every level
//
// level 0 is the leaf list; an odd trailing node is promoted to the
// next level unchanged, never paired with itself
type Tree struct {
	levels [][]digest.Digest
}

// NewTree - build the full tree from an ordered leaf list
//
// returns nil for an empty leaf list
func NewTree(leaves []digest.Digest) *Tree {

	if 0 == len(leaves) {
		return nil
	}

	level := make([]digest.Digest, len(leaves))
	copy(level, leaves)

	tree := &Tree{
		levels: [][]digest.Digest{level},
	}

	for len(level) > 1 {
		next := make([]digest.Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, combine(level[i], level[i+1]))
			} else {
				next = append(next, level[i]) // odd node promoted
			}
		}
		tree.levels = append(tree.levels, next)
		level = next
	}
	return tree
}

// Root - the root digest of the tree
func (tree *Tree) Root() digest.Digest {
	top := tree.levels[len(tree.levels)-1]
	return top[0]
}

// Count - number of leaves
func (tree *Tree) Count() int {
	return len(tree.levels[0])
}

// Proof - produce the sibling list and position bitfield for one leaf
//
// the result satisfies: Verify(leaf, siblings, positions, Root())
func (tree *Tree) Proof(index int) ([]digest.Digest, uint64, error) {

	if index < 0 || index >= tree.Count() {
		return nil, 0, fault.InvalidCount
	}

	siblings := []digest.Digest{}
	positions := uint64(0)
	bit := uint(0)

	i := index
	for _, level := range tree.levels[:len(tree.levels)-1] {
		if 1 == i%2 {
			// sibling is to the left
			siblings = append(siblings, level[i-1])
			positions |= 1 << bit
			bit += 1
		} else if i+1 < len(level) {
			// sibling is to the right
			siblings = append(siblings, level[i+1])
			bit += 1
		}
		// odd trailing node: promoted, no sibling, no bit
		i /= 2
	}
	return siblings, positions, nil
}
