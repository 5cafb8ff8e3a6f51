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

// Package asymmetric wraps btcsuite's secp256k1 implementation, exporting
// only the types and functions this core needs for transaction and block
// signing.
package asymmetric

import (
	"crypto/ecdsa"

	ec "github.com/btcsuite/btcd/btcec"
)

// PrivateKey is a secp256k1 private key.
type PrivateKey ec.PrivateKey

// PublicKey is a secp256k1 public key.
type PublicKey ec.PublicKey

// GenerateKeyPair creates a fresh keypair.
func GenerateKeyPair() (priv *PrivateKey, pub *PublicKey, err error) {
	k, err := ec.NewPrivateKey(ec.S256())
	if err != nil {
		return nil, nil, err
	}
	priv = (*PrivateKey)(k)
	pub = (*PublicKey)(&k.PublicKey)
	return
}

// PubKey returns the public half of the keypair.
func (p *PrivateKey) PubKey() *PublicKey {
	return (*PublicKey)((*ec.PrivateKey)(p).PubKey())
}

func (p *PublicKey) toECDSA() *ecdsa.PublicKey {
	return (*ecdsa.PublicKey)(p)
}

// Serialize returns the compressed encoding of the public key.
func (p *PublicKey) Serialize() []byte {
	return (*ec.PublicKey)(p).SerializeCompressed()
}

// ParsePublicKey decodes a compressed public key.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	k, err := ec.ParsePubKey(b, ec.S256())
	if err != nil {
		return nil, err
	}
	return (*PublicKey)(k), nil
}

// IsEqual reports whether two public keys represent the same point.
func (p *PublicKey) IsEqual(other *PublicKey) bool {
	if p == nil || other == nil {
		return p == other
	}
	return (*ec.PublicKey)(p).IsEqual((*ec.PublicKey)(other))
}
