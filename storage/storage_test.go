package storage

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgerkit/ledgerd/conf"
	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	dir, err := ioutil.TempDir("", "ledgerd-storage")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := &conf.Config{
		WSVPath:        filepath.Join(dir, "wsv.db"),
		BlockIndexPath: filepath.Join(dir, "blockindex"),
		BlockStoreDir:  filepath.Join(dir, "blocks"),
		KeyPairPath:    filepath.Join(dir, "node.key"),
	}
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAccountThroughMutableView(t *testing.T) {
	s := newTestStorage(t)

	mv, err := s.CreateMutableView()
	require.NoError(t, err)

	tx := model.Transaction{
		Creator:   "alice",
		CreatedAt: time.Unix(0, 1),
		Commands:  []model.Command{{CreateAccount: &model.CreateAccount{Address: "alice", Quorum: 1}}},
	}
	b, err := model.NewBlock(1, hash.Hash{}, []model.Transaction{tx}, time.Unix(0, 2))
	require.NoError(t, err)
	require.NoError(t, mv.Stage(b))
	require.NoError(t, s.Commit(mv))

	head, err := s.Head()
	require.NoError(t, err)
	require.EqualValues(t, 1, head)

	ro := s.WSVQuery()
	acc, err := ro.GetAccount("alice")
	require.NoError(t, err)
	require.EqualValues(t, 1, acc.Quorum)

	got, err := s.BlockAt(1)
	require.NoError(t, err)
	require.True(t, got.Hash.IsEqual(&b.Hash))
}

func TestMutableViewIsExclusive(t *testing.T) {
	s := newTestStorage(t)

	mv, err := s.CreateMutableView()
	require.NoError(t, err)
	defer mv.Discard()

	_, err = s.CreateMutableView()
	require.ErrorIs(t, err, ErrViewExclusive)
}

func TestTemporaryViewNeverPersists(t *testing.T) {
	s := newTestStorage(t)

	tv, err := s.CreateTemporaryView()
	require.NoError(t, err)
	require.NoError(t, tv.PutAccount(&model.Account{Address: "ghost", Quorum: 1, Balances: map[string]uint64{}}))
	require.NoError(t, tv.Discard())

	ro := s.WSVQuery()
	_, err = ro.GetAccount("ghost")
	require.ErrorIs(t, err, model.ErrAccountNotFound)
}

func TestCommitReleasesExclusiveViewAndAdvancesTopHash(t *testing.T) {
	s := newTestStorage(t)

	mv, err := s.CreateMutableView()
	require.NoError(t, err)
	tx := model.Transaction{Creator: "a", CreatedAt: time.Unix(0, 1)}
	b, err := model.NewBlock(1, hash.Hash{}, []model.Transaction{tx}, time.Unix(0, 2))
	require.NoError(t, err)
	require.NoError(t, mv.Stage(b))
	require.NoError(t, s.Commit(mv))

	// mv is released after commit; staging into it again is a caller bug,
	// not exercised here. A fresh mutable view is required per height.
	mv2, err := s.CreateMutableView()
	require.NoError(t, err)
	require.True(t, mv2.TopBlockHash.IsEqual(&b.Hash))
	require.NoError(t, mv2.Discard())
}
