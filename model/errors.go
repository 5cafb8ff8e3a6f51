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

import "errors"

var (
	// ErrAccountNotFound indicates that an account referenced by a command
	// or query does not exist in the WSV.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists indicates an attempt to create an already-existing account.
	ErrAccountExists = errors.New("account already exists")
	// ErrInsufficientBalance indicates that an account lacks the funds to
	// satisfy a transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidQuorum indicates a zero or out-of-range quorum.
	ErrInvalidQuorum = errors.New("invalid quorum")
	// ErrUnknownCommand indicates a Command value with no payload set.
	ErrUnknownCommand = errors.New("unknown or empty command")
	// ErrEmptyCommandList indicates a transaction with no commands, rejected
	// by the Stateless Validator.
	ErrEmptyCommandList = errors.New("transaction has no commands")
	// ErrMerkleRootMismatch indicates a block whose merkle root does not
	// match its transaction set.
	ErrMerkleRootMismatch = errors.New("block merkle root does not match transactions")
	// ErrHashMismatch indicates a block or transaction whose declared hash
	// does not match its recomputed hash.
	ErrHashMismatch = errors.New("hash verification failed")
)
