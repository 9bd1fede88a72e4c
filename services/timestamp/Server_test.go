package timestamp

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/settings"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/stores/kv/leveldb"
	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, kv.Store) {
	t.Helper()

	store, err := leveldb.NewMemory(ulogger.TestLogger{})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	s := New(ulogger.TestLogger{}, settings.NewSettings(), store)
	require.NoError(t, s.Init(context.Background()))

	return s, store
}

func testBlock(height, ts uint32) *model.Block {
	prev := chainhash.DoubleHashH([]byte(fmt.Sprintf("prev-%d", height)))
	merkle := chainhash.DoubleHashH([]byte(fmt.Sprintf("merkle-%d", height)))

	return model.NewBlock(&model.BlockHeader{
		Version:        1,
		HashPrevBlock:  &prev,
		HashMerkleRoot: &merkle,
		Timestamp:      ts,
		Bits:           []byte{0x1d, 0x00, 0xff, 0xff},
		Nonce:          height,
	}, height, nil)
}

func TestProcessBlockAndGetTimestamp(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	block := testBlock(1, 1600000000)
	require.NoError(t, s.ProcessBlock(ctx, block))

	ts, err := s.GetTimestamp(ctx, block.Hash())
	require.NoError(t, err)
	assert.Equal(t, uint32(1600000000), ts)

	ts, ok := s.GetTimestampSync(block.Hash())
	require.True(t, ok)
	assert.Equal(t, uint32(1600000000), ts)

	unknown := chainhash.DoubleHashH([]byte("unknown"))

	_, err = s.GetTimestamp(ctx, &unknown)
	assert.True(t, errors.Is(err, errors.ErrBlockNotFound))

	_, ok = s.GetTimestampSync(&unknown)
	assert.False(t, ok)
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	blocks := []*model.Block{
		testBlock(1, 1000),
		testBlock(2, 900),
		testBlock(3, 1001),
		testBlock(4, 2000),
	}

	for _, block := range blocks {
		require.NoError(t, s.ProcessBlock(ctx, block))
	}

	var got []uint32

	for _, block := range blocks {
		ts, err := s.GetTimestamp(ctx, block.Hash())
		require.NoError(t, err)

		got = append(got, ts)
	}

	assert.Equal(t, []uint32{1000, 1001, 1002, 2000}, got)
}

func TestOnBlockConnectedHasNoSideEffects(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	block := testBlock(1, 1000)

	ops, ts := s.OnBlockConnected(ctx, block)
	assert.Len(t, ops, 2)
	assert.Equal(t, uint32(1000), ts)

	_, err := store.Get(ctx, s.encoding.EncodeBlockTimestampKey(block.Hash()))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Equal(t, uint32(0), s.lastTimestamp)
}

func TestProcessReorg(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	b1 := testBlock(1, 1000)
	b2 := testBlock(2, 1000)

	require.NoError(t, s.ProcessBlock(ctx, b1))
	require.NoError(t, s.ProcessBlock(ctx, b2))
	assert.Equal(t, uint32(1001), s.lastTimestamp)

	require.NoError(t, s.ProcessReorg(ctx, []*model.Block{b2}))
	assert.Equal(t, uint32(1000), s.lastTimestamp)

	_, err := s.GetTimestamp(ctx, b2.Hash())
	assert.True(t, errors.Is(err, errors.ErrBlockNotFound))

	_, err = store.Get(ctx, s.encoding.EncodeTimestampBlockKey(1001))
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	// a block that was never indexed cannot be reverted
	err = s.ProcessReorg(ctx, []*model.Block{testBlock(9, 5000)})
	assert.True(t, errors.Is(err, errors.ErrBlockNotFound))

	ts, err := s.GetTimestamp(ctx, b1.Hash())
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), ts)
}

func TestGetBlockHashesByTimestamp(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	var blocks []*model.Block

	for h := uint32(1); h <= 5; h++ {
		block := testBlock(h, 1000+10*h)
		require.NoError(t, s.ProcessBlock(ctx, block))

		blocks = append(blocks, block)
	}

	hashes, err := s.GetBlockHashesByTimestamp(ctx, 1020, 1040)
	require.NoError(t, err)
	assert.Equal(t, []chainhash.Hash{*blocks[1].Hash(), *blocks[2].Hash(), *blocks[3].Hash()}, hashes)

	hashes, err = s.GetBlockHashesByTimestamp(ctx, 2000, 3000)
	require.NoError(t, err)
	assert.Empty(t, hashes)

	_, err = s.GetBlockHashesByTimestamp(ctx, 10, 5)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestInitLoadsLastTimestamp(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.ProcessBlock(ctx, testBlock(1, 5000)))

	restarted := New(ulogger.TestLogger{}, settings.NewSettings(), store)
	require.NoError(t, restarted.Init(ctx))
	assert.Equal(t, uint32(5000), restarted.lastTimestamp)

	// the restarted server keeps timestamps increasing
	block := testBlock(2, 4000)
	require.NoError(t, restarted.ProcessBlock(ctx, block))

	ts, err := restarted.GetTimestamp(ctx, block.Hash())
	require.NoError(t, err)
	assert.Equal(t, uint32(5001), ts)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	status, _, err := s.Health(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	status, _, err = s.Health(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}
