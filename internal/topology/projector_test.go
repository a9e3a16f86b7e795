package topology

import (
	"context"
	"testing"

	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/stretchr/testify/require"
)

type fakeRPL struct {
	parent   euiaddr.Addr
	children []euiaddr.Addr
	calls    int
}

func (f *fakeRPL) PreferredParent() euiaddr.Addr {
	f.calls++
	return f.parent
}

func (f *fakeRPL) Children() []euiaddr.Addr { return f.children }

func TestGetParentAndChildrenReadsThrough(t *testing.T) {
	parent := mustAddr(t, "0:12:74:1:1:1:1:1")
	src := &fakeRPL{parent: parent}
	p := NewProjector(src)

	snap, err := p.GetParentAndChildren(context.Background())
	require.NoError(t, err)
	require.Equal(t, parent, snap.Parent)

	snap2, err := p.GetParentAndChildren(context.Background())
	require.NoError(t, err)
	require.Equal(t, parent, snap2.Parent)
	require.Equal(t, 2, src.calls, "no caching: each call reads through")
}

func TestOnParentChangeForwardsToNotifyHook(t *testing.T) {
	src := &fakeRPL{}
	p := NewProjector(src)

	var gotOld, gotNew euiaddr.Addr
	fired := false
	p.NotifyParentChange = func(old, new euiaddr.Addr) {
		fired = true
		gotOld, gotNew = old, new
	}

	a := mustAddr(t, "0:12:74:1:1:1:1:1")
	b := mustAddr(t, "0:12:74:2:2:2:2:2")
	p.OnParentChange(a, b)

	require.True(t, fired)
	require.Equal(t, a, gotOld)
	require.Equal(t, b, gotNew)
}

func mustAddr(t *testing.T, s string) euiaddr.Addr {
	t.Helper()
	a, err := euiaddr.Parse(s)
	require.NoError(t, err)
	return a
}
