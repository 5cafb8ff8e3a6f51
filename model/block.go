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

package model

import (
	"encoding/binary"
	"time"

	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/merkle"
)

// Block is the Storage commit unit: a height-ordered, hash-chained batch
// of transactions that have already passed the Consensus Gate.
type Block struct {
	Height       uint32
	PrevHash     hash.Hash
	Transactions []Transaction
	CreatedAt    time.Time
	MerkleRoot   hash.Hash
	Hash         hash.Hash
	Signatures   []Signature
}

// NewBlock assembles a block over txs, computing its merkle root and
// hash immediately so it never leaves this constructor half-built.
func NewBlock(height uint32, prevHash hash.Hash, txs []Transaction, createdAt time.Time) (*Block, error) {
	b := &Block{
		Height:       height,
		PrevHash:     prevHash,
		Transactions: txs,
		CreatedAt:    createdAt,
	}
	if err := b.computeMerkleRoot(); err != nil {
		return nil, err
	}
	b.Hash = b.computeHash()
	return b, nil
}

func (b *Block) computeMerkleRoot() error {
	leaves := make([]*hash.Hash, len(b.Transactions))
	for i := range b.Transactions {
		h, err := b.Transactions[i].Hash()
		if err != nil {
			return err
		}
		leaves[i] = &h
	}
	b.MerkleRoot = *merkle.New(leaves).Root()
	return nil
}

// computeHash implements SPEC_FULL §3's block hash invariant directly as
// a field concatenation, rather than a generic struct encoding, so the
// formula stays legible: H(height || prev_hash || merkle_root ||
// created_ts || txs_number).
func (b *Block) computeHash() hash.Hash {
	buf := make([]byte, 4+hash.Size+hash.Size+8+4)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], b.Height)
	off += 4
	copy(buf[off:], b.PrevHash[:])
	off += hash.Size
	copy(buf[off:], b.MerkleRoot[:])
	off += hash.Size
	binary.BigEndian.PutUint64(buf[off:], uint64(b.CreatedAt.UnixNano()))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(len(b.Transactions)))
	return hash.THashH(buf)
}

// VerifyHash recomputes the merkle root and hash and reports whether they
// match the block's stored values, catching tampering or an encoding bug
// before the block reaches the Block Store.
func (b *Block) VerifyHash() error {
	want := *b
	if err := want.computeMerkleRoot(); err != nil {
		return err
	}
	if !want.MerkleRoot.IsEqual(&b.MerkleRoot) {
		return ErrMerkleRootMismatch
	}
	if want.computeHash() != b.Hash {
		return ErrHashMismatch
	}
	return nil
}

// AddSignature appends a peer's signature over the block hash.
func (b *Block) AddSignature(sig Signature) {
	b.Signatures = append(b.Signatures, sig)
}
