package pcs

import (
	"testing"
	"time"

	"github.com/ledgerkit/ledgerd/consensus"
	"github.com/ledgerkit/ledgerd/model"
	"github.com/stretchr/testify/require"
)

func TestMultipleSubscribersEachSeeEvent(t *testing.T) {
	h := New()
	ch1, unsub1 := h.OnProposal()
	defer unsub1()
	ch2, unsub2 := h.OnProposal()
	defer unsub2()

	h.PublishProposal(&model.Proposal{Height: 1})

	for _, ch := range []<-chan *model.Proposal{ch1, ch2} {
		select {
		case p := <-ch:
			require.EqualValues(t, 1, p.Height)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive proposal")
		}
	}
}

func TestLateSubscriberDoesNotSeePastEvents(t *testing.T) {
	h := New()
	h.PublishProposal(&model.Proposal{Height: 1})

	ch, unsub := h.OnProposal()
	defer unsub()

	select {
	case <-ch:
		t.Fatal("late subscriber should not see events published before it subscribed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCommitFanOut(t *testing.T) {
	h := New()
	ch, unsub := h.OnCommit()
	defer unsub()

	h.PublishCommit(consensus.Committed{Height: 7})

	select {
	case c := <-ch:
		require.EqualValues(t, 7, c.Height)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive commit")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New()
	ch, unsub := h.OnProposal()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}
