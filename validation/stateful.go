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

package validation

import (
	"fmt"

	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/utils/log"
	"github.com/pkg/errors"
)

var (
	// ErrCreatorMissing means the transaction's creator account does not
	// exist in the WSV.
	ErrCreatorMissing = errors.New("creator account does not exist")
	// ErrZeroQuorum means the creator account has not been given a quorum.
	ErrZeroQuorum = errors.New("creator account has zero quorum")
	// ErrQuorumNotSatisfied means the signature set's combined weight is
	// below the creator's quorum.
	ErrQuorumNotSatisfied = errors.New("signature set does not satisfy account quorum")
)

// temporaryView is the narrow surface the Stateful Validator needs from
// storage.TemporaryWSV, kept as an interface so this package never
// imports storage (storage's own tests exercise the real thing).
type temporaryView interface {
	model.ExecutionContext
	Savepoint(name string) error
	RollbackTo(name string) error
	ReleaseSavepoint(name string) error
}

// RejectionCounter is incremented once per dropped transaction, backing
// the aggregated rejection counter named in SPEC_FULL §4.3/§7/§2.1.
type RejectionCounter interface {
	Inc()
}

// StatefulValidator filters a proposal to a verified proposal by
// replaying each transaction against a temporary WSV view in order. A
// failing transaction is dropped without poisoning the ones after it.
type StatefulValidator struct {
	Rejections RejectionCounter
}

// Validate implements SPEC_FULL §4.3.
func (v *StatefulValidator) Validate(view temporaryView, p *model.Proposal) (*model.VerifiedProposal, []model.Rejection, error) {
	verified := &model.VerifiedProposal{Height: p.Height}
	var rejections []model.Rejection

	for i, tx := range p.Transactions {
		sp := fmt.Sprintf("sv_%d", i)
		if err := view.Savepoint(sp); err != nil {
			return nil, nil, err
		}

		if err := v.checkOne(view, &tx); err != nil {
			if rbErr := view.RollbackTo(sp); rbErr != nil {
				return nil, nil, rbErr
			}
			if relErr := view.ReleaseSavepoint(sp); relErr != nil {
				return nil, nil, relErr
			}
			rejections = append(rejections, model.Rejection{TxIndex: i, Err: err})
			if v.Rejections != nil {
				v.Rejections.Inc()
			}
			log.WithField("txIndex", i).WithError(err).Debugf("stateful validation dropped transaction")
			continue
		}

		if err := view.ReleaseSavepoint(sp); err != nil {
			return nil, nil, err
		}
		verified.Transactions = append(verified.Transactions, tx)
	}
	return verified, rejections, nil
}

func (v *StatefulValidator) checkOne(view temporaryView, tx *model.Transaction) error {
	creator, err := view.GetAccount(tx.Creator)
	if err != nil {
		return ErrCreatorMissing
	}
	if creator.Quorum == 0 {
		return ErrZeroQuorum
	}
	if tx.SignedWeight(creator) < creator.Quorum {
		return ErrQuorumNotSatisfied
	}
	for j := range tx.Commands {
		if err := tx.Commands[j].Apply(view); err != nil {
			return errors.Wrapf(err, "command %d", j)
		}
	}
	return nil
}
