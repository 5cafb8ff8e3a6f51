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
	"bytes"
	"errors"
	"io/ioutil"
	"os"

	ec "github.com/btcsuite/btcd/btcec"
	"github.com/ledgerkit/ledgerd/crypto/hash"
)

// ErrNotKeyFile is returned when a key file's length does not match the
// hash-prefixed private key encoding this package writes.
var ErrNotKeyFile = errors.New("not a private key file")

// ErrKeyHashMismatch is returned when a key file's integrity hash does
// not match its payload, signalling truncation or corruption.
var ErrKeyHashMismatch = errors.New("private key file hash mismatch")

// LoadPrivateKey reads a private key previously written by
// SavePrivateKey, verifying its integrity hash.
func LoadPrivateKey(keyFilePath string) (*PrivateKey, error) {
	raw, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	if len(raw) != hash.Size+ec.PrivKeyBytesLen {
		return nil, ErrNotKeyFile
	}
	want := hash.THashB(raw[hash.Size:])
	if !bytes.Equal(want, raw[:hash.Size]) {
		return nil, ErrKeyHashMismatch
	}
	k, _ := ec.PrivKeyFromBytes(ec.S256(), raw[hash.Size:])
	return (*PrivateKey)(k), nil
}

// SavePrivateKey writes priv to keyFilePath, prefixed with an integrity
// hash over the serialized key, mode 0600.
func SavePrivateKey(keyFilePath string, priv *PrivateKey) error {
	ser := (*ec.PrivateKey)(priv).Serialize()
	raw := append(hash.THashB(ser), ser...)
	return ioutil.WriteFile(keyFilePath, raw, 0600)
}

// LoadOrCreatePrivateKey loads the key at keyFilePath, generating and
// persisting a fresh one if the file does not yet exist.
func LoadOrCreatePrivateKey(keyFilePath string) (*PrivateKey, error) {
	if _, err := os.Stat(keyFilePath); os.IsNotExist(err) {
		priv, _, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		if err := SavePrivateKey(keyFilePath, priv); err != nil {
			return nil, err
		}
		return priv, nil
	}
	return LoadPrivateKey(keyFilePath)
}
