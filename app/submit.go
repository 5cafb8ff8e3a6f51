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

package app

import (
	"context"

	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/transport"
	"github.com/ledgerkit/ledgerd/utils/log"
	"github.com/pkg/errors"
)

// Submit implements transport.CommandSubmitter: a stateless check, then
// enqueue locally and fan the transaction out to peers so every node's
// Ordering Gate sees the same submitted set, per SPEC_FULL §4.2/§4.4.
func (a *Application) Submit(ctx context.Context, tx *model.Transaction) (transport.TxStatus, error) {
	if err := a.stateless.Validate(tx); err != nil {
		if h, hashErr := tx.Hash(); hashErr == nil {
			a.statuses.set(h, transport.StatusStatelessFailed)
		}
		return transport.StatusStatelessFailed, err
	}

	h, err := tx.Hash()
	if err != nil {
		return transport.StatusUnknown, errors.Wrap(err, "hash transaction")
	}

	if err := a.ordering.Submit(tx); err != nil {
		return transport.StatusUnknown, err
	}
	a.statuses.set(h, transport.StatusEnqueued)

	if a.gossip != nil {
		if err := a.gossip.BroadcastTransaction(ctx, tx); err != nil {
			log.WithField("hash", h.Short(8)).WithError(err).Warnf("failed to gossip submitted transaction")
		}
	}
	return transport.StatusEnqueued, nil
}

// Status implements transport.CommandSubmitter.
func (a *Application) Status(ctx context.Context, txHash hash.Hash) (transport.TxStatus, error) {
	return a.statuses.get(txHash), nil
}

// Handle implements transport.QueryHandler, answering signed reads
// directly against the live read-only WSV handle.
func (a *Application) Handle(ctx context.Context, q *transport.Query) (interface{}, error) {
	if !q.Signature.Verify([]byte(q.Account)) {
		return nil, errors.New("query signature does not verify")
	}

	wsv := a.storage.WSVQuery()
	switch q.Kind {
	case transport.QueryAccountBalance, transport.QueryAccountInfo:
		return wsv.GetAccount(q.Account)
	case transport.QuerySignatories:
		acc, err := wsv.GetAccount(q.Account)
		if err != nil {
			return nil, err
		}
		return acc.Signatories, nil
	case transport.QueryAccountTransactions:
		return nil, errors.New("account transaction history is not indexed by this core")
	default:
		return nil, errors.New("unknown query kind")
	}
}
