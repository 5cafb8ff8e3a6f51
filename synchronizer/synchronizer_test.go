package synchronizer

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgerkit/ledgerd/conf"
	"github.com/ledgerkit/ledgerd/consensus"
	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/storage"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *storage.Storage {
	dir, err := ioutil.TempDir("", "ledgerd-synchronizer")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := &conf.Config{
		WSVPath:        filepath.Join(dir, "wsv.db"),
		BlockIndexPath: filepath.Join(dir, "blockindex"),
		BlockStoreDir:  filepath.Join(dir, "blocks"),
		KeyPairPath:    filepath.Join(dir, "node.key"),
	}
	s, err := storage.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// commitBlock stages and commits txs as a real block, the way Storage is
// exercised outside of this package, so tests start from chain state a
// validator would actually see rather than a hand-built fixture.
func commitBlock(t *testing.T, s *storage.Storage, prevHash hash.Hash, txs []model.Transaction) *model.Block {
	head, err := s.Head()
	require.NoError(t, err)
	b, err := model.NewBlock(head+1, prevHash, txs, time.Unix(0, int64(head)+1))
	require.NoError(t, err)

	mv, err := s.CreateMutableView()
	require.NoError(t, err)
	require.NoError(t, mv.Stage(b))
	require.NoError(t, s.Commit(mv))
	return b
}

// ChainValidator must accept a TransferAsset against an account that was
// committed in an earlier block, not just one created within the batch
// being validated: the scratch view it dry-runs commands against has to
// read through to live WSV state instead of starting empty.
func TestChainValidatorAcceptsTransferAgainstPreexistingAccount(t *testing.T) {
	s := newTestStorage(t)

	block1 := commitBlock(t, s, hash.Hash{}, []model.Transaction{{
		Creator:   "alice",
		CreatedAt: time.Unix(0, 1),
		Commands: []model.Command{{
			CreateAccount: &model.CreateAccount{Address: "alice", Quorum: 1, Balances: map[string]uint64{"USD": 100}},
		}},
	}})

	// block2 and block3 are fetched fixtures, never committed locally:
	// they stand in for blocks a peer supplies during sync.
	block2, err := model.NewBlock(2, block1.Hash, []model.Transaction{{
		Creator:   "alice",
		CreatedAt: time.Unix(0, 2),
		Commands:  []model.Command{{CreateAccount: &model.CreateAccount{Address: "bob", Quorum: 1}}},
	}}, time.Unix(0, 2))
	require.NoError(t, err)

	block3, err := model.NewBlock(3, block2.Hash, []model.Transaction{{
		Creator:   "alice",
		CreatedAt: time.Unix(0, 3),
		Commands: []model.Command{{
			TransferAsset: &model.TransferAsset{Source: "alice", Destination: "bob", Asset: "USD", Amount: 40},
		}},
	}}, time.Unix(0, 3))
	require.NoError(t, err)

	v := NewChainValidator(s.WSVQuery())
	require.NoError(t, v.ValidateChain(block1, []*model.Block{block2, block3}))
}

// fakeLoader hands back a fixed span of blocks, standing in for a peer
// transport.
type fakeLoader struct {
	blocks []*model.Block
}

func (f *fakeLoader) FetchBlocks(ctx context.Context, fromHeight, toHeight uint32) ([]*model.Block, error) {
	return f.blocks, nil
}

// noCandidates always disagrees with the local candidate, forcing
// Synchronizer onto the fetch-and-replay path.
type noCandidates struct{}

func (noCandidates) CandidateAt(height uint32) *model.Block { return nil }

// The whole fetch-and-replay path must commit a multi-block span fetched
// from a peer, including a TransferAsset against an account committed in
// an earlier local block and a destination account created earlier in the
// same fetched batch.
func TestSynchronizerFetchesAndReplaysMultiBlockChain(t *testing.T) {
	s := newTestStorage(t)

	block1 := commitBlock(t, s, hash.Hash{}, []model.Transaction{{
		Creator:   "alice",
		CreatedAt: time.Unix(0, 1),
		Commands: []model.Command{{
			CreateAccount: &model.CreateAccount{Address: "alice", Quorum: 1, Balances: map[string]uint64{"USD": 100}},
		}},
	}})

	block2, err := model.NewBlock(2, block1.Hash, []model.Transaction{{
		Creator:   "alice",
		CreatedAt: time.Unix(0, 2),
		Commands:  []model.Command{{CreateAccount: &model.CreateAccount{Address: "bob", Quorum: 1}}},
	}}, time.Unix(0, 2))
	require.NoError(t, err)

	block3, err := model.NewBlock(3, block2.Hash, []model.Transaction{{
		Creator:   "alice",
		CreatedAt: time.Unix(0, 3),
		Commands: []model.Command{{
			TransferAsset: &model.TransferAsset{Source: "alice", Destination: "bob", Asset: "USD", Amount: 40},
		}},
	}}, time.Unix(0, 3))
	require.NoError(t, err)

	st := &Storage{
		CreateMutableView: func() (MutableView, error) { return s.CreateMutableView() },
		Commit:            func(v MutableView) error { return s.Commit(v.(*storage.MutableWSV)) },
		BlockAt:           s.BlockAt,
		Head:              s.Head,
	}
	validator := NewChainValidator(s.WSVQuery())
	loader := &fakeLoader{blocks: []*model.Block{block2, block3}}

	sync := New(st, noCandidates{}, loader, validator, 1, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	commits := make(chan consensus.Committed, 1)
	go sync.Run(ctx, commits)

	commits <- consensus.Committed{Height: 3, Hash: block3.Hash}

	select {
	case ev := <-sync.Events():
		require.NoError(t, ev.Err)
		require.EqualValues(t, 3, ev.Height)
		require.True(t, ev.Block.Hash.IsEqual(&block3.Hash))
	case <-time.After(5 * time.Second):
		t.Fatal("synchronizer never emitted an event")
	}

	head, err := s.Head()
	require.NoError(t, err)
	require.EqualValues(t, 3, head)

	ro := s.WSVQuery()
	alice, err := ro.GetAccount("alice")
	require.NoError(t, err)
	require.EqualValues(t, 60, alice.Balances["USD"])

	bob, err := ro.GetAccount("bob")
	require.NoError(t, err)
	require.EqualValues(t, 40, bob.Balances["USD"])
}
