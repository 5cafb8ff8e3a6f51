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

// Package validation holds the two independent checks a transaction
// passes through before it can reach a committed block: a stateless
// check run at the command surface, and a stateful check run by the
// Simulator against a temporary WSV snapshot.
package validation

import (
	"time"

	"github.com/ledgerkit/ledgerd/model"
	"github.com/pkg/errors"
)

// Stateless errors are reported synchronously to the submitting client
// and are never logged as errors, per SPEC_FULL §7.
var (
	ErrEmptyCommands     = errors.New("transaction has no commands")
	ErrTimestampSkew     = errors.New("transaction timestamp outside acceptable skew window")
	ErrTooManySignatures = errors.New("signature set exceeds cardinality limit")
	ErrNoSignatures      = errors.New("transaction has no signatures")
	ErrBadSignature      = errors.New("a signature does not verify")
)

// DefaultSkew is the ±1 day acceptable clock skew window named in
// SPEC_FULL §4.2.
const DefaultSkew = 24 * time.Hour

// DefaultMaxSignatures bounds how many signatures a single transaction
// may carry, independent of any one account's quorum.
const DefaultMaxSignatures = 16

// StatelessValidator checks transaction well-formedness and signatures,
// independent of ledger state.
type StatelessValidator struct {
	Skew          time.Duration
	MaxSignatures int
	Now           func() time.Time
}

// NewStatelessValidator returns a validator using SPEC_FULL's defaults.
func NewStatelessValidator() *StatelessValidator {
	return &StatelessValidator{
		Skew:          DefaultSkew,
		MaxSignatures: DefaultMaxSignatures,
		Now:           time.Now,
	}
}

// Validate reports the first failing check, or nil if tx is well-formed.
func (v *StatelessValidator) Validate(tx *model.Transaction) error {
	if len(tx.Commands) == 0 {
		return ErrEmptyCommands
	}
	if len(tx.Signatures) == 0 {
		return ErrNoSignatures
	}
	if len(tx.Signatures) > v.MaxSignatures {
		return ErrTooManySignatures
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	skew := v.Skew
	if skew == 0 {
		skew = DefaultSkew
	}
	delta := now().Sub(tx.CreatedAt)
	if delta < -skew || delta > skew {
		return ErrTimestampSkew
	}

	digest, err := tx.Hash()
	if err != nil {
		return errors.Wrap(err, "hash transaction")
	}
	for i := range tx.Signatures {
		if !tx.Signatures[i].Verify(digest[:]) {
			return errors.Wrapf(ErrBadSignature, "signature %d", i)
		}
	}
	return nil
}
