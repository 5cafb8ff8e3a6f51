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

// Package storage owns the two backends this core commits to: a
// relational World-State-View and an append-only block store, and the
// view types (read-only, temporary, mutable) that gate access to them.
// Grounded on the teacher's storage/storage.go (sqlite open/DSN
// handling) and blockproducer/storage.go (DDL batching at open time).
package storage

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/ledgerkit/ledgerd/conf"
	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/utils/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Sentinel errors match the taxonomy named in SPEC_FULL §7.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCommitFailed       = errors.New("commit failed")
	ErrViewExclusive      = errors.New("a mutable view is already open")
	ErrFatalInconsistency = errors.New("fatal chain store inconsistency")
)

// Storage is the only component in this core holding mutable state. All
// mutation flows through commit(mutableView); block-store reads (Head,
// BlockAt) take the shared lock, commit takes the exclusive one, per
// SPEC_FULL §5. WSVQuery reads go to the read-only WSV connection
// without taking the lock.
type Storage struct {
	mu       sync.RWMutex
	writeSem chan struct{}

	db   *sql.DB
	roDB *sql.DB
	blocks *blockStore
}

// Open initializes the block store, its index, and the WSV, in that
// order, per SPEC_FULL §4.1; any failure returns ErrStorageUnavailable
// without leaving partial resources. It then runs the startup
// consistency check described in §4.1.1.
func Open(cfg *conf.Config) (*Storage, error) {
	blocks, err := openBlockStore(cfg.BlockStoreDir, cfg.BlockIndexPath)
	if err != nil {
		return nil, errors.Wrap(ErrStorageUnavailable, err.Error())
	}

	db, err := sql.Open("sqlite3", cfg.WSVPath)
	if err != nil {
		blocks.close()
		return nil, errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	if _, err := db.Exec(wsvSchema); err != nil {
		db.Close()
		blocks.close()
		return nil, errors.Wrap(ErrStorageUnavailable, err.Error())
	}

	roDB, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", cfg.WSVPath))
	if err != nil {
		db.Close()
		blocks.close()
		return nil, errors.Wrap(ErrStorageUnavailable, err.Error())
	}

	s := &Storage{
		writeSem: make(chan struct{}, 1),
		db:       db,
		roDB:     roDB,
		blocks:   blocks,
	}

	if err := s.startupConsistencyCheck(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases both backend handles.
func (s *Storage) Close() error {
	err1 := s.db.Close()
	err2 := s.roDB.Close()
	err3 := s.blocks.close()
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return err2
	}
	return err3
}

// startupConsistencyCheck implements SPEC_FULL §4.1.1: replay orphaned
// block files into the WSV (the block file is the source of truth, per
// the two-backend atomicity note in §9), then verify no height gap.
func (s *Storage) startupConsistencyCheck() error {
	orphans, err := s.blocks.orphanFiles()
	if err != nil {
		return errors.Wrap(ErrFatalInconsistency, err.Error())
	}
	for _, b := range orphans {
		log.WithField("height", b.Height).Warnf("replaying orphaned block file into WSV")
		tx, err := s.db.Begin()
		if err != nil {
			return errors.Wrap(ErrFatalInconsistency, err.Error())
		}
		mv := &MutableWSV{tx: tx}
		if err := mv.Stage(b); err != nil {
			tx.Rollback()
			return errors.Wrap(ErrFatalInconsistency, err.Error())
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrap(ErrFatalInconsistency, err.Error())
		}
		if err := s.blocks.finalizeIndex(b); err != nil {
			return errors.Wrap(ErrFatalInconsistency, err.Error())
		}
	}

	head, err := s.blocks.head()
	if err != nil {
		return errors.Wrap(ErrFatalInconsistency, err.Error())
	}
	gap, err := s.blocks.heightGap(head)
	if err != nil {
		return errors.Wrap(ErrFatalInconsistency, err.Error())
	}
	if gap != 0 {
		return errors.Wrapf(ErrFatalInconsistency, "missing block at height %d (head=%d)", gap, head)
	}
	return nil
}

// Head returns the current chain height, for the Ordering Gate to seed
// its monotonic height assignment and the Simulator to fetch last_block.
func (s *Storage) Head() (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks.head()
}

// BlockAt returns the committed block at height, or nil if absent.
func (s *Storage) BlockAt(height uint32) (*model.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks.get(height)
}

// WSVQuery returns a cheap, lock-free read-only WSV handle.
func (s *Storage) WSVQuery() *ReadOnlyWSV {
	return &ReadOnlyWSV{db: s.roDB}
}

// CreateTemporaryView opens a scratch WSV branch for stateful
// validation. The caller must Discard it when done; it is never
// committed.
func (s *Storage) CreateTemporaryView() (*TemporaryWSV, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	return &TemporaryWSV{tx: tx}, nil
}

// CreateMutableView acquires the exclusive writer slot and returns a
// view pre-initialized with the current top block hash, so a block can
// be chained against it. Fails fast with
// ErrViewExclusive if another mutable view is outstanding.
func (s *Storage) CreateMutableView() (*MutableWSV, error) {
	select {
	case s.writeSem <- struct{}{}:
	default:
		return nil, ErrViewExclusive
	}

	tx, err := s.db.Begin()
	if err != nil {
		<-s.writeSem
		return nil, errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	head, err := s.blocks.head()
	if err != nil {
		tx.Rollback()
		<-s.writeSem
		return nil, errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	var topHash hash.Hash
	if b, err := s.blocks.get(head); err == nil && b != nil {
		topHash = b.Hash
	}
	return &MutableWSV{tx: tx, TopBlockHash: topHash}, nil
}

// Commit atomically persists v's staged blocks and WSV changes, then
// releases the exclusive borrow. Implements the commit algorithm of
// SPEC_FULL §4.1: write-lock readers, append each staged block
// ascending by height, commit the WSV transaction, finalize the
// secondary index, release the lock. On any failure v is poisoned and
// ErrCommitFailed is returned; the node is expected to halt and let the
// next startup's consistency check recover.
func (s *Storage) Commit(v *MutableWSV) error {
	defer func() { <-s.writeSem }()
	defer v.Discard() // no-op once tx.Commit has succeeded below

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range v.stagedBlocks {
		if err := s.blocks.appendFile(b); err != nil {
			return errors.Wrap(ErrCommitFailed, err.Error())
		}
	}

	if err := v.tx.Commit(); err != nil {
		return errors.Wrap(ErrCommitFailed, err.Error())
	}
	v.released = true

	for _, b := range v.stagedBlocks {
		if err := s.blocks.finalizeIndex(b); err != nil {
			return errors.Wrap(ErrCommitFailed, err.Error())
		}
	}
	return nil
}
