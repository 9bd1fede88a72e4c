package addressindex

import (
	"strings"
	"testing"
	"time"

	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTxidListCache(t *testing.T) {
	c := NewTxidListCache(10, time.Minute, 1)
	defer c.Stop()

	refs := []txRef{{TxID: chainhash.Hash{1}, Height: 5}, {TxID: chainhash.Hash{2}, Height: 4}}

	assert.False(t, c.Set([]string{"a"}, refs[:1]))

	_, ok := c.Get([]string{"a"})
	assert.False(t, ok)

	assert.True(t, c.Set([]string{"a", "b"}, refs))

	cached, ok := c.Get([]string{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, refs, cached)

	_, ok = c.Get([]string{"b", "a"})
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Stop()
}

func TestTxidListCacheExpiry(t *testing.T) {
	c := NewTxidListCache(10, 20*time.Millisecond, 0)
	defer c.Stop()

	require.True(t, c.Set([]string{"a"}, []txRef{{TxID: chainhash.Hash{1}}}))

	require.Eventually(t, func() bool {
		_, ok := c.Get([]string{"a"})
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestTxidListCacheCapacity(t *testing.T) {
	c := NewTxidListCache(2, time.Minute, 0)
	defer c.Stop()

	for _, address := range []string{"a", "b", "c"} {
		c.Set([]string{address}, []txRef{{TxID: chainhash.Hash{1}}})
	}

	assert.Equal(t, 2, c.Len())

	_, ok := c.Get([]string{"a"})
	assert.False(t, ok)
}

func TestTxidListKey(t *testing.T) {
	assert.Equal(t, txidListKey([]string{"a", "b"}), txidListKey([]string{"a", "b"}))
	assert.NotEqual(t, txidListKey([]string{"a", "b"}), txidListKey([]string{"b", "a"}))
	assert.NotEqual(t, txidListKey([]string{"a"}), txidListKey([]string{"b"}))
}

func TestSortTxRefs(t *testing.T) {
	low, err := chainhash.NewHashFromStr("01")
	require.NoError(t, err)

	high, err := chainhash.NewHashFromStr("ff")
	require.NoError(t, err)

	refs := []txRef{
		{TxID: *high, Height: 3},
		{TxID: *low, Height: 7},
		{TxID: *high, Height: model.UnconfirmedHeight},
		{TxID: *low, Height: 3},
	}

	sortTxRefs(refs)

	assert.Equal(t, []txRef{
		{TxID: *high, Height: model.UnconfirmedHeight},
		{TxID: *low, Height: 7},
		{TxID: *low, Height: 3},
		{TxID: *high, Height: 3},
	}, refs)
}

func TestCompareTxIDsMatchesDisplayOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var a, b chainhash.Hash

		copy(a[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "a"))
		copy(b[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "b"))

		if got, want := compareTxIDs(&a, &b), strings.Compare(a.String(), b.String()); got != want {
			rt.Fatalf("compareTxIDs(%s, %s) = %d, want %d", a, b, got, want)
		}
	})
}
