/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package merkle builds a binary merkle tree over transaction hashes,
// domain-separating leaf hashes from internal node hashes so a leaf
// digest can never be replayed as a forged internal node and vice versa
// (the classic second-preimage weakness of a merkle tree that hashes
// leaves and internal nodes under the same domain, as e.g. Certificate
// Transparency's RFC 6962 leaf/node prefixing avoids).
package merkle

import "github.com/ledgerkit/ledgerd/crypto/hash"

const (
	leafDomain byte = 0x00
	nodeDomain byte = 0x01
)

// Tree is a merkle tree over a fixed set of leaf hashes.
type Tree struct {
	nodes []*hash.Hash
}

// upperPowOfTwo rounds n up to the next power of two.
// https://web.archive.org/web/20180327073507/graphics.stanford.edu/~seander/bithacks.html#RoundUpPowerOf2
func upperPowOfTwo(n int) int {
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// New builds a merkle tree over leaves, tagging each leaf with the leaf
// domain before it ever enters the tree. An empty leaf set yields the
// all-zero root, per SPEC_FULL §3's empty-list convention; the zero root
// is left untagged since it represents the absence of any leaf at all.
// A single leaf is merged with itself, like any other unpaired node.
func New(leaves []*hash.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{nodes: []*hash.Hash{{}}}
	}

	upperPoT := upperPowOfTwo(len(leaves))
	if upperPoT < 2 {
		upperPoT = 2
	}
	size := upperPoT*2 - 1
	nodes := make([]*hash.Hash, size)
	for i, l := range leaves {
		nodes[i] = LeafHash(l)
	}

	offset := upperPoT
	for i := 0; i < size-1; i += 2 {
		switch {
		case nodes[i] != nil && nodes[i+1] != nil:
			nodes[offset] = MergeTwo(nodes[i], nodes[i+1])
		case nodes[i] != nil:
			nodes[offset] = MergeTwo(nodes[i], nodes[i])
		}
		offset++
	}
	return &Tree{nodes: nodes}
}

// Root returns the merkle root.
func (t *Tree) Root() *hash.Hash {
	return t.nodes[len(t.nodes)-1]
}

// LeafHash tags a leaf digest with the leaf domain, keeping it out of the
// internal-node domain MergeTwo hashes into. Exported so a caller that
// needs to prove a leaf's membership can reproduce the same tagged value
// this tree hashed in, without reaching into package internals.
func LeafHash(l *hash.Hash) *hash.Hash {
	buf := make([]byte, 1+hash.Size)
	buf[0] = leafDomain
	copy(buf[1:], l[:])
	h := hash.THashH(buf)
	return &h
}

// MergeTwo hashes two node digests under the internal-node domain.
func MergeTwo(l, r *hash.Hash) *hash.Hash {
	buf := make([]byte, 1+2*hash.Size)
	buf[0] = nodeDomain
	copy(buf[1:], l[:])
	copy(buf[1+hash.Size:], r[:])
	h := hash.THashH(buf)
	return &h
}
