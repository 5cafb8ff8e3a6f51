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

// Package model defines the WSV entities and the closed command set that
// mutates them, plus the transaction/proposal/block wrappers that carry
// commands through the pipeline described in SPEC_FULL §3-§4.
package model

import (
	"github.com/ledgerkit/ledgerd/crypto/asymmetric"
	"github.com/ledgerkit/ledgerd/proto"
)

// Signatory is one key entitled to sign on behalf of an account, weighted
// for multi-signature quorum checks.
type Signatory struct {
	PublicKey *asymmetric.PublicKey
	Weight    uint32
}

// Account is a row of the WSV's account relation.
type Account struct {
	Address     proto.AccountAddress
	Balances    map[string]uint64
	Quorum      uint32
	Signatories []Signatory
}

// SignatoryWeight sums the weight of the given public keys that are
// registered signatories of the account. Unknown keys contribute nothing.
func (a *Account) SignatoryWeight(keys []*asymmetric.PublicKey) uint32 {
	var total uint32
	for _, k := range keys {
		for _, s := range a.Signatories {
			if s.PublicKey.IsEqual(k) {
				total += s.Weight
				break
			}
		}
	}
	return total
}

// ExecutionContext is the narrow surface a Command needs to mutate the
// WSV. Storage's mutable and temporary views satisfy it; nothing in this
// package depends on how either is implemented.
type ExecutionContext interface {
	GetAccount(addr proto.AccountAddress) (*Account, error)
	PutAccount(acc *Account) error
	PeerSet() (*proto.PeerSet, error)
	AddPeer(p proto.Peer) error
}
