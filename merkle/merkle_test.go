package merkle

import (
	"testing"

	"github.com/ledgerkit/ledgerd/crypto/hash"
	"github.com/stretchr/testify/require"
)

func TestEmptyRootIsZero(t *testing.T) {
	root := New(nil).Root()
	require.True(t, root.IsZero())
}

func TestSingleLeafRootIsDoubledMerge(t *testing.T) {
	h := hash.THashH([]byte("tx-1"))
	root := New([]*hash.Hash{&h}).Root()
	want := MergeTwo(LeafHash(&h), LeafHash(&h))
	require.True(t, root.IsEqual(want))
}

func TestTwoLeavesMerge(t *testing.T) {
	a := hash.THashH([]byte("tx-a"))
	b := hash.THashH([]byte("tx-b"))
	root := New([]*hash.Hash{&a, &b}).Root()
	want := MergeTwo(LeafHash(&a), LeafHash(&b))
	require.True(t, root.IsEqual(want))
}

func TestLeafHashDiffersFromInternalMergeOfSameBytes(t *testing.T) {
	a := hash.THashH([]byte("tx-a"))
	leaf := LeafHash(&a)
	// MergeTwo(a, a) consumes the same 32 bytes a leaf-hash of a single
	// leaf would, but under the node domain rather than the leaf domain;
	// the two must never collide.
	node := MergeTwo(&a, &a)
	require.False(t, leaf.IsEqual(node))
}

func TestDeterministic(t *testing.T) {
	a := hash.THashH([]byte("tx-a"))
	b := hash.THashH([]byte("tx-b"))
	c := hash.THashH([]byte("tx-c"))
	r1 := New([]*hash.Hash{&a, &b, &c}).Root()
	r2 := New([]*hash.Hash{&a, &b, &c}).Root()
	require.True(t, r1.IsEqual(r2))
}
