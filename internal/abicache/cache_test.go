package abicache

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/pkg/chain"
)

type fakeStore struct {
	searches int
	response json.RawMessage
}

func (f *fakeStore) Search(_ context.Context, _ string, _ io.Reader) (json.RawMessage, error) {
	f.searches++
	if f.response != nil {
		return f.response, nil
	}
	return json.RawMessage(`{"hits":{"total":{"value":0},"hits":[]}}`), nil
}

func TestCache_PutAndGet(t *testing.T) {
	t.Parallel()

	c := New(&fakeStore{}, "accounts", 3, logger.NewNopLogger())
	c.Put("alice", &chain.ABIDescriptor{Account: "alice", Version: "1.0"})

	desc, found, err := c.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1.0", desc.Version)
}

func TestCache_MissWhenNotFoundUpstream(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	c := New(store, "accounts", 3, logger.NewNopLogger())

	_, found, err := c.Get(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 1, store.searches)
}

// TestCache_EvictsLeastRecentlyUsed mirrors the canonical bound-3 eviction
// sequence: insert A, B, C; touch A; insert D. D must evict B, the least
// recently used entry, not C or the just-touched A.
func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := New(&fakeStore{}, "accounts", 3, logger.NewNopLogger())

	c.Put("A", &chain.ABIDescriptor{Account: "A"})
	c.Put("B", &chain.ABIDescriptor{Account: "B"})
	c.Put("C", &chain.ABIDescriptor{Account: "C"})

	_, found, err := c.Get(context.Background(), "A")
	require.NoError(t, err)
	require.True(t, found)

	c.Put("D", &chain.ABIDescriptor{Account: "D"})

	require.Equal(t, 3, c.Len())

	_, found, _ = c.Get(context.Background(), "B")
	require.False(t, found, "B should have been evicted as the least recently used entry")

	for _, acct := range []chain.Name{"A", "C", "D"} {
		e, ok := c.entries[acct]
		require.True(t, ok, "%s should still be cached", acct)
		require.NotNil(t, e)
	}
}

func TestCache_AmbiguousUpstreamMatchIsTreatedAsAbsent(t *testing.T) {
	t.Parallel()

	store := &fakeStore{response: json.RawMessage(`{"hits":{"total":{"value":2},"hits":[
		{"_source":{"name":"alice","abi":{"version":"1.0"}}},
		{"_source":{"name":"alice","abi":{"version":"2.0"}}}
	]}}`)}
	c := New(store, "accounts", 3, logger.NewNopLogger())

	_, found, err := c.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.False(t, found, "two matching accounts documents must resolve to absent, not the first hit")
}

func TestCache_PutOverwritesExisting(t *testing.T) {
	t.Parallel()

	c := New(&fakeStore{}, "accounts", 3, logger.NewNopLogger())
	c.Put("A", &chain.ABIDescriptor{Account: "A", Version: "1.0"})
	c.Put("A", &chain.ABIDescriptor{Account: "A", Version: "2.0"})

	require.Equal(t, 1, c.Len())
	e := c.entries["A"]
	require.Equal(t, "2.0", e.descriptor.Version)
}
