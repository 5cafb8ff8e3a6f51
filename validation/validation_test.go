package validation

import (
	"testing"
	"time"

	"github.com/ledgerkit/ledgerd/crypto/asymmetric"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/ledgerkit/ledgerd/proto"
	"github.com/stretchr/testify/require"
)

func signedTx(t *testing.T, creator proto.AccountAddress, priv *asymmetric.PrivateKey, createdAt time.Time, cmds ...model.Command) model.Transaction {
	tx := model.Transaction{Creator: creator, CreatedAt: createdAt, Commands: cmds}
	require.NoError(t, tx.AddSignature(priv))
	return tx
}

func TestStatelessValidatorAcceptsWellFormed(t *testing.T) {
	priv, _, err := asymmetric.GenerateKeyPair()
	require.NoError(t, err)
	tx := signedTx(t, "alice", priv, time.Now(), model.Command{CreateAccount: &model.CreateAccount{Address: "alice", Quorum: 1}})

	v := NewStatelessValidator()
	require.NoError(t, v.Validate(&tx))
}

func TestStatelessValidatorRejectsEmptyCommands(t *testing.T) {
	priv, _, err := asymmetric.GenerateKeyPair()
	require.NoError(t, err)
	tx := signedTx(t, "alice", priv, time.Now())

	v := NewStatelessValidator()
	require.ErrorIs(t, v.Validate(&tx), ErrEmptyCommands)
}

func TestStatelessValidatorRejectsStaleTimestamp(t *testing.T) {
	priv, _, err := asymmetric.GenerateKeyPair()
	require.NoError(t, err)
	tx := signedTx(t, "alice", priv, time.Now().Add(-48*time.Hour), model.Command{CreateAccount: &model.CreateAccount{Address: "alice", Quorum: 1}})

	v := NewStatelessValidator()
	require.ErrorIs(t, v.Validate(&tx), ErrTimestampSkew)
}

func TestStatelessValidatorRejectsForgedSignature(t *testing.T) {
	priv, _, err := asymmetric.GenerateKeyPair()
	require.NoError(t, err)
	tx := signedTx(t, "alice", priv, time.Now(), model.Command{CreateAccount: &model.CreateAccount{Address: "alice", Quorum: 1}})
	tx.Signatures[0].Value[0] ^= 0xFF

	v := NewStatelessValidator()
	require.Error(t, v.Validate(&tx))
}

// memView is an in-memory temporaryView for exercising the stateful
// validator without a real sqlite-backed TemporaryWSV.
type memView struct {
	accounts   map[proto.AccountAddress]*model.Account
	peers      proto.PeerSet
	savepoints map[string]map[proto.AccountAddress]*model.Account
}

func newMemView() *memView {
	return &memView{accounts: map[proto.AccountAddress]*model.Account{}, savepoints: map[string]map[proto.AccountAddress]*model.Account{}}
}

func cloneAccounts(in map[proto.AccountAddress]*model.Account) map[proto.AccountAddress]*model.Account {
	out := make(map[proto.AccountAddress]*model.Account, len(in))
	for k, v := range in {
		cp := *v
		bal := make(map[string]uint64, len(v.Balances))
		for a, amt := range v.Balances {
			bal[a] = amt
		}
		cp.Balances = bal
		out[k] = &cp
	}
	return out
}

func (m *memView) GetAccount(addr proto.AccountAddress) (*model.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return acc, nil
}
func (m *memView) PutAccount(acc *model.Account) error { m.accounts[acc.Address] = acc; return nil }
func (m *memView) PeerSet() (*proto.PeerSet, error)    { return &m.peers, nil }
func (m *memView) AddPeer(p proto.Peer) error          { m.peers.Peers = append(m.peers.Peers, p); return nil }
func (m *memView) Savepoint(name string) error {
	m.savepoints[name] = cloneAccounts(m.accounts)
	return nil
}
func (m *memView) RollbackTo(name string) error {
	m.accounts = m.savepoints[name]
	return nil
}
func (m *memView) ReleaseSavepoint(name string) error {
	delete(m.savepoints, name)
	return nil
}

func TestStatefulValidatorDropsFailingTxWithoutContagion(t *testing.T) {
	view := newMemView()
	privA, _, _ := asymmetric.GenerateKeyPair()
	alice := &model.Account{
		Address:     "alice",
		Quorum:      1,
		Balances:    map[string]uint64{"base": 100},
		Signatories: []model.Signatory{{PublicKey: privA.PubKey(), Weight: 1}},
	}
	bob := &model.Account{Address: "bob", Quorum: 1, Balances: map[string]uint64{}}
	require.NoError(t, view.PutAccount(alice))
	require.NoError(t, view.PutAccount(bob))

	tx1 := signedTx(t, "alice", privA, time.Now(), model.Command{TransferAsset: &model.TransferAsset{
		Source: "alice", Destination: "bob", Asset: "base", Amount: 50,
	}})
	tx2 := signedTx(t, "alice", privA, time.Now(), model.Command{TransferAsset: &model.TransferAsset{
		Source: "alice", Destination: "bob", Asset: "base", Amount: 100,
	}})

	sv := &StatefulValidator{}
	vp, rejections, err := sv.Validate(view, &model.Proposal{Height: 1, Transactions: []model.Transaction{tx1, tx2}})
	require.NoError(t, err)
	require.Len(t, vp.Transactions, 1)
	require.Len(t, rejections, 1)
	require.Equal(t, 1, rejections[0].TxIndex)

	a, _ := view.GetAccount("alice")
	b, _ := view.GetAccount("bob")
	require.EqualValues(t, 50, a.Balances["base"])
	require.EqualValues(t, 50, b.Balances["base"])
}

func TestStatefulValidatorRejectsUnknownCreator(t *testing.T) {
	view := newMemView()
	priv, _, _ := asymmetric.GenerateKeyPair()
	tx := signedTx(t, "ghost", priv, time.Now(), model.Command{CreateAccount: &model.CreateAccount{Address: "ghost", Quorum: 1}})

	sv := &StatefulValidator{}
	vp, rejections, err := sv.Validate(view, &model.Proposal{Height: 1, Transactions: []model.Transaction{tx}})
	require.NoError(t, err)
	require.Empty(t, vp.Transactions)
	require.Len(t, rejections, 1)
}
