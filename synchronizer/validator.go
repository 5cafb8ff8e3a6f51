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

// Package synchronizer keeps the local WSV and block store advancing to
// match consensus-committed hashes, either by promoting a local
// candidate or by fetching and replaying from peers. Grounded on the
// teacher's blockproducer/chain.go branch-extension checks, adapted to
// a fetch-from-peers path the teacher never needed.
package synchronizer

import (
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/proto"
	"github.com/pkg/errors"
)

// Sentinel errors for the Chain Validator's rules, named in SPEC_FULL §4.7.
var (
	ErrHeightMismatch    = errors.New("block height does not follow its predecessor")
	ErrPrevHashMismatch  = errors.New("block prev_hash does not match predecessor hash")
	ErrSignatureQuorum   = errors.New("block signatures do not form a quorum of the current peer set")
	ErrCommandApplication = errors.New("a block command failed to apply")
)

// wsvReader is the narrow read surface ValidateChain needs from the live
// WSV: the peer set a fetched chain's signatures must form a quorum
// against, and the account state its commands apply against. Membership
// and balances can both change block by block.
type wsvReader interface {
	PeerSet() (*proto.PeerSet, error)
	GetAccount(addr proto.AccountAddress) (*model.Account, error)
}

// ChainValidator checks a sequence of fetched blocks before they are
// staged into a mutable view.
type ChainValidator struct {
	wsv wsvReader
}

// NewChainValidator constructs a validator reading peer set and account
// state from wsv (typically Storage.WSVQuery()).
func NewChainValidator(wsv wsvReader) *ChainValidator {
	return &ChainValidator{wsv: wsv}
}

// ValidateChain checks blocks in sequence against prev (the block
// immediately preceding blocks[0], or the zero block for genesis).
// Every rule in SPEC_FULL §4.7 must hold for every block. Commands are
// dry-run against one scratch view shared across the whole batch, seeded
// lazily from the live WSV: a command referencing an account untouched
// by any earlier block in this batch reads the account's real state, and
// a command referencing an account a prior block in the batch just
// mutated sees that mutation, exactly as the eventual real commit will.
func (v *ChainValidator) ValidateChain(prev *model.Block, blocks []*model.Block) error {
	scratch := newScratchView(v.wsv)
	for _, b := range blocks {
		if b.Height != prev.Height+1 {
			return errors.Wrapf(ErrHeightMismatch, "height %d does not follow %d", b.Height, prev.Height)
		}
		if !b.PrevHash.IsEqual(&prev.Hash) {
			return errors.Wrapf(ErrPrevHashMismatch, "at height %d", b.Height)
		}
		if err := b.VerifyHash(); err != nil {
			return errors.Wrapf(err, "at height %d", b.Height)
		}
		if err := v.checkSignatureQuorum(b); err != nil {
			return err
		}
		if err := checkCommandsApplyCleanly(scratch, b); err != nil {
			return err
		}
		prev = b
	}
	return nil
}

func (v *ChainValidator) checkSignatureQuorum(b *model.Block) error {
	set, err := v.wsv.PeerSet()
	if err != nil {
		return errors.Wrap(err, "query peer set")
	}
	quorum := set.Quorum()
	if quorum == 0 {
		return nil
	}
	matched := 0
	for _, sig := range b.Signatures {
		for _, p := range set.Peers {
			if p.PublicKey.IsEqual(sig.PublicKey) {
				matched++
				break
			}
		}
	}
	if matched < quorum {
		return errors.Wrapf(ErrSignatureQuorum, "height %d: %d of %d required", b.Height, matched, quorum)
	}
	return nil
}

// checkCommandsApplyCleanly dry-runs the block's commands against scratch
// to confirm they would apply without error, without mutating anything
// durable. Staging into the real mutable view happens only after this
// check and every other rule passes.
func checkCommandsApplyCleanly(scratch *scratchView, b *model.Block) error {
	for i, tx := range b.Transactions {
		for j := range tx.Commands {
			if err := tx.Commands[j].Apply(scratch); err != nil {
				return errors.Wrapf(ErrCommandApplication, "height %d tx %d cmd %d: %v", b.Height, i, j, err)
			}
		}
	}
	return nil
}

// scratchView is a throwaway model.ExecutionContext used to confirm a
// fetched batch's commands apply cleanly before any of it is staged. It
// is not simply an empty map: TransferAsset, AddSignatory and
// SetAccountQuorum all require their target account to already exist,
// so a command against a pre-existing account must see that account's
// real state. GetAccount reads through to real on first touch and caches
// the result, so later commands in the same batch see earlier ones'
// mutations without ever writing back to real.
type scratchView struct {
	real     wsvReader
	accounts map[proto.AccountAddress]*model.Account
	peers    proto.PeerSet
}

func newScratchView(real wsvReader) *scratchView {
	return &scratchView{real: real, accounts: map[proto.AccountAddress]*model.Account{}}
}

func (v *scratchView) GetAccount(addr proto.AccountAddress) (*model.Account, error) {
	if acc, ok := v.accounts[addr]; ok {
		return acc, nil
	}
	if v.real == nil {
		return nil, model.ErrAccountNotFound
	}
	acc, err := v.real.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	v.accounts[addr] = acc
	return acc, nil
}
func (v *scratchView) PutAccount(acc *model.Account) error { v.accounts[acc.Address] = acc; return nil }
func (v *scratchView) PeerSet() (*proto.PeerSet, error)    { return &v.peers, nil }
func (v *scratchView) AddPeer(p proto.Peer) error          { v.peers.Peers = append(v.peers.Peers, p); return nil }
