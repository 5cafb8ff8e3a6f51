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

// Proposal is a batch of transactions the Ordering Gate has cut for a
// given height, not yet checked by the Stateful Validator.
type Proposal struct {
	Height       uint32
	Transactions []Transaction
}

// VerifiedProposal is a Proposal whose transactions have each survived
// the Stateful Validator against a temporary WSV view. It is a distinct
// type from Proposal so the Simulator's raw input and its stream A output
// (verified proposals) can't be accidentally swapped at a call site — the
// compiler catches it.
type VerifiedProposal struct {
	Height       uint32
	Transactions []Transaction
}

// Rejection records why a single transaction did not survive stateful
// validation, without aborting the rest of the proposal's batch.
type Rejection struct {
	TxIndex int
	Err     error
}
