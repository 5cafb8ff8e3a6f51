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

import "github.com/ledgerkit/ledgerd/crypto/asymmetric"

// Signature pairs a signer's public key with a signature value over some
// hash this package's callers compute (a transaction hash or a block
// hash). It is never itself hashed as part of what it signs.
type Signature struct {
	PublicKey *asymmetric.PublicKey
	Value     []byte
}

// Sign produces a Signature over digest using priv.
func Sign(priv *asymmetric.PrivateKey, digest []byte) (*Signature, error) {
	sig, err := priv.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &Signature{
		PublicKey: priv.PubKey(),
		Value:     sig.Serialize(),
	}, nil
}

// Verify checks that Value is a valid DER-encoded signature over digest
// under PublicKey.
func (s *Signature) Verify(digest []byte) bool {
	sig, err := asymmetric.ParseDERSignature(s.Value)
	if err != nil {
		return false
	}
	return sig.Verify(digest, s.PublicKey)
}

// keysOf extracts the public keys out of a signature slice, for quorum
// weight lookups against an account's signatories.
func keysOf(sigs []Signature) []*asymmetric.PublicKey {
	keys := make([]*asymmetric.PublicKey, len(sigs))
	for i := range sigs {
		keys[i] = sigs[i].PublicKey
	}
	return keys
}
