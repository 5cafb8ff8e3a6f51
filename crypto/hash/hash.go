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

// Package hash provides the 32-byte digest type used to identify
// transactions and blocks, along with the hash functions that produce it.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	blake2b "github.com/minio/blake2b-simd"
)

// Size of the digest in bytes.
const Size = 32

// MaxStringSize is the maximum length of a hex-encoded Hash.
const MaxStringSize = Size * 2

// ErrHashStrSize is returned when a hex string does not fit in a Hash.
var ErrHashStrSize = fmt.Errorf("max hash string length is %v bytes", MaxStringSize)

// Hash is a fixed-size digest.
type Hash [Size]byte

// String returns the hexadecimal encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the hexadecimal string of the first n bytes.
func (h Hash) Short(n int) string {
	if n > Size {
		n = Size
	}
	return hex.EncodeToString(h[:n])
}

// IsEqual reports whether target holds the same digest.
func (h *Hash) IsEqual(target *Hash) bool {
	if h == nil && target == nil {
		return true
	}
	if h == nil || target == nil {
		return false
	}
	return *h == *target
}

// IsZero reports whether h is the all-zero sentinel used for genesis.
func (h *Hash) IsZero() bool {
	return h.IsEqual(&Hash{})
}

// SetBytes copies b into the hash. b must be exactly Size bytes.
func (h *Hash) SetBytes(b []byte) error {
	if len(b) != Size {
		return fmt.Errorf("invalid hash length of %v, want %v", len(b), Size)
	}
	copy(h[:], b)
	return nil
}

// CloneBytes returns a copy of the underlying bytes.
func (h Hash) CloneBytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// NewHash builds a Hash from a byte slice.
func NewHash(b []byte) (*Hash, error) {
	var h Hash
	if err := h.SetBytes(b); err != nil {
		return nil, err
	}
	return &h, nil
}

// Decode parses the hex encoding produced by String into dst.
func Decode(dst *Hash, src string) error {
	if len(src) > MaxStringSize {
		return ErrHashStrSize
	}
	b, err := hex.DecodeString(src)
	if err != nil {
		return err
	}
	copy(dst[Size-len(b):], b)
	return nil
}

// THashH computes sha256(blake2b-512(b)), the digest used for transaction
// and block identity throughout this core.
func THashH(b []byte) Hash {
	first := blake2b.Sum512(b)
	return Hash(sha256.Sum256(first[:]))
}

// THashB is the byte-slice form of THashH.
func THashB(b []byte) []byte {
	h := THashH(b)
	return h[:]
}
