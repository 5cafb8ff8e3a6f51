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

package asymmetric

import (
	"crypto/ecdsa"
	"math/big"

	ec "github.com/btcsuite/btcd/btcec"
)

// Signature is an ECDSA signature.
type Signature struct {
	R *big.Int
	S *big.Int
}

// Sign produces a deterministic, canonical signature over hash (the
// caller is expected to pass a pre-computed digest, never a raw message).
func (p *PrivateKey) Sign(hash []byte) (*Signature, error) {
	s, err := (*ec.PrivateKey)(p).Sign(hash)
	if err != nil {
		return nil, err
	}
	return &Signature{R: s.R, S: s.S}, nil
}

// Verify reports whether sig is a valid signature over hash by signee.
func (s *Signature) Verify(hash []byte, signee *PublicKey) bool {
	if s == nil || signee == nil {
		return false
	}
	return ecdsa.Verify(signee.toECDSA(), hash, s.R, s.S)
}

// Serialize returns the DER encoding of the signature.
func (s *Signature) Serialize() []byte {
	return (&ec.Signature{R: s.R, S: s.S}).Serialize()
}

// ParseDERSignature decodes a DER-encoded signature.
func ParseDERSignature(b []byte) (*Signature, error) {
	sig, err := ec.ParseDERSignature(b, ec.S256())
	if err != nil {
		return nil, err
	}
	return &Signature{R: sig.R, S: sig.S}, nil
}
