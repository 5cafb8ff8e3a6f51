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
	"time"

	"github.com/ledgerkit/ledgerd/crypto/asymmetric"
	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/proto"
	"github.com/ledgerkit/ledgerd/utils"
)

// Transaction is a creator's signed batch of commands, the unit the
// Ordering Gate queues and the Simulator applies.
type Transaction struct {
	Creator    proto.AccountAddress
	CreatedAt  time.Time
	Commands   []Command
	Signatures []Signature
}

// signable is the subset of Transaction fields that are hashed; the
// signature set is deliberately excluded so a transaction's identity
// does not depend on who has signed it yet.
type signable struct {
	Creator   proto.AccountAddress
	CreatedAt int64
	Commands  []Command
}

// Hash returns the transaction's canonical hash, excluding signatures.
func (tx *Transaction) Hash() (hash.Hash, error) {
	buf, err := utils.EncodeMsgPack(&signable{
		Creator:   tx.Creator,
		CreatedAt: tx.CreatedAt.UnixNano(),
		Commands:  tx.Commands,
	})
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.THashH(buf.Bytes()), nil
}

// AddSignature signs the transaction's hash with priv and appends the
// result, for callers building a transaction to submit.
func (tx *Transaction) AddSignature(priv *asymmetric.PrivateKey) error {
	h, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := Sign(priv, h[:])
	if err != nil {
		return err
	}
	tx.Signatures = append(tx.Signatures, *sig)
	return nil
}

// SignedWeight sums the signatory weight of acc covered by tx's
// signature set, for the Stateful Validator's quorum check.
func (tx *Transaction) SignedWeight(acc *Account) uint32 {
	return acc.SignatoryWeight(keysOf(tx.Signatures))
}
