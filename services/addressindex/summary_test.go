package addressindex

import (
	"context"
	"testing"
	"time"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/settings"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadCheckpoint(t *testing.T, ti *testIndex, address string) (*Checkpoint, bool) {
	t.Helper()

	key, err := ti.encoding.EncodeCheckpointKey(address)
	require.NoError(t, err)

	value, err := ti.store.Get(context.Background(), key)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, false
	}

	require.NoError(t, err)

	cp, err := ti.encoding.DecodeCheckpointValue(value)
	require.NoError(t, err)

	return cp, true
}

func TestSummaryAggregator(t *testing.T) {
	node := newTestNode()
	addressA := testAddress(t, "A")
	addressB := testAddress(t, "B")

	funding := node.fundingTx(t, addressA, 5000, 2500)
	node.mine(1, funding)

	spend := spendTx(t, funding, 0, map[string]uint64{addressB: 4000})
	require.NoError(t, spend.AddP2PKHOutputFromAddress(addressA, 900))
	node.mine(2, spend)

	pending := node.fundingTx(t, addressA, 300)

	agg := NewSummaryAggregator(addressA, false, 0, false)

	for _, tx := range []*chainhash.Hash{funding.TxIDChainHash(), spend.TxIDChainHash()} {
		detail, err := node.GetTransaction(context.Background(), tx)
		require.NoError(t, err)
		agg.Add(detail)
	}

	agg.Add(&model.TxDetail{Tx: pending, Height: model.UnconfirmedHeight})

	res := agg.Result()
	assert.Equal(t, int64(7500+900), res.TotalReceivedSat)
	assert.Equal(t, int64(5000), res.TotalSentSat)
	assert.Equal(t, int64(3400), res.BalanceSat)
	assert.InDelta(t, 0.000034, res.Balance, 1e-12)
	assert.Equal(t, int64(300), res.UnconfirmedBalanceSat)
	assert.Equal(t, 2, res.TxCount)
	assert.Equal(t, 1, res.UnconfirmedTxCount)
	assert.Equal(t, 3, agg.Count())
	assert.Equal(t, []chainhash.Hash{*pending.TxIDChainHash(), *spend.TxIDChainHash(), *funding.TxIDChainHash()}, res.Transactions)
	require.NotNil(t, res.LastItem)
	assert.Equal(t, *spend.TxIDChainHash(), *res.LastItem)

	cp, ok := agg.Checkpoint()
	require.True(t, ok)
	assert.Equal(t, uint64(3400), cp.Balance)
	assert.Equal(t, uint32(2), cp.TxCount)
	assert.Equal(t, *spend.TxIDChainHash(), cp.LastTxID)
}

func TestSummaryAggregatorTxListCap(t *testing.T) {
	agg := NewSummaryAggregator("addr", false, 2, false)

	for i := 0; i < 4; i++ {
		agg.pushTxID(chainhash.Hash{byte(i)})
	}

	agg.pushTxID(chainhash.Hash{3})

	assert.Equal(t, []chainhash.Hash{{3}, {2}}, agg.Result().Transactions)
}

func TestSummaryAggregatorSeed(t *testing.T) {
	agg := NewSummaryAggregator("addr", false, 0, true)

	_, ok := agg.Checkpoint()
	assert.False(t, ok)

	agg.Seed(&Checkpoint{
		Balance:       100,
		TotalReceived: 300,
		TotalSent:     200,
		TxCount:       4,
		LastTxID:      chainhash.Hash{1},
		LastBlockHash: chainhash.Hash{2},
	})

	res := agg.Result()
	assert.Equal(t, int64(100), res.BalanceSat)
	assert.Equal(t, 4, res.TxCount)
	assert.Nil(t, res.Transactions)
	assert.Equal(t, chainhash.Hash{1}, *res.LastItem)

	cp, ok := agg.Checkpoint()
	require.True(t, ok)
	assert.Equal(t, chainhash.Hash{2}, cp.LastBlockHash)
}

func TestGetAddressSummary(t *testing.T) {
	ti := newTestIndex(t)
	addressA := testAddress(t, "A")
	addressB := testAddress(t, "B")

	txs := fundHeights(t, ti, addressA, 1, 3)

	spend := spendTx(t, txs[2], 0, map[string]uint64{addressB: 2500})
	ti.connect(t, 4, spend)

	ti.node.addToMempool(ti.node.fundingTx(t, addressA, 700))

	res, err := ti.GetAddressSummary(context.Background(), addressA, nil)
	require.NoError(t, err)

	assert.Equal(t, addressA, res.Address)
	assert.Equal(t, int64(6000), res.TotalReceivedSat)
	assert.Equal(t, int64(3000), res.TotalSentSat)
	assert.Equal(t, int64(3000), res.BalanceSat)
	assert.Equal(t, int64(700), res.UnconfirmedBalanceSat)
	assert.Equal(t, 4, res.TxCount)
	assert.Equal(t, 1, res.UnconfirmedTxCount)
	assert.Len(t, res.Transactions, 5)
	assert.Equal(t, *spend.TxIDChainHash(), *res.LastItem)
	assert.False(t, res.Incomplete)

	opts := NewSummaryOptions()
	opts.NoTxList = true
	opts.QueryMempool = false

	res, err = ti.GetAddressSummary(context.Background(), addressA, opts)
	require.NoError(t, err)
	assert.Nil(t, res.Transactions)
	assert.Zero(t, res.UnconfirmedTxCount)

	// a complete summary does not create a checkpoint
	_, ok := loadCheckpoint(t, ti, addressA)
	assert.False(t, ok)

	_, err = ti.GetAddressSummary(context.Background(), "", nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestGetAddressSummaryCheckpointRefresh(t *testing.T) {
	ti := newTestIndex(t, func(s *settings.Settings) {
		s.AddressIndex.SummaryQueryLimit = 2
	})
	addressA := testAddress(t, "A")

	txs := fundHeights(t, ti, addressA, 1, 5)

	res, err := ti.GetAddressSummary(context.Background(), addressA, nil)
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
	assert.Equal(t, 2, res.TxCount)

	// the capped summary refreshes the checkpoint in the background
	require.Eventually(t, func() bool {
		cp, ok := loadCheckpoint(t, ti, addressA)
		return ok && cp.TxCount == 5
	}, 5*time.Second, 10*time.Millisecond)

	cp, _ := loadCheckpoint(t, ti, addressA)
	assert.Equal(t, uint64(15_000), cp.Balance)
	assert.Equal(t, uint64(15_000), cp.TotalReceived)
	assert.Zero(t, cp.TotalSent)
	assert.Equal(t, *txs[4].TxIDChainHash(), cp.LastTxID)

	require.Eventually(t, func() bool {
		return !ti.checkpoints.Refreshing(addressA)
	}, 5*time.Second, 10*time.Millisecond)

	res, err = ti.GetAddressSummary(context.Background(), addressA, nil)
	require.NoError(t, err)
	assert.False(t, res.Incomplete)
	assert.Equal(t, 5, res.TxCount)
	assert.Equal(t, int64(15_000), res.BalanceSat)

	// a complete summary moves the checkpoint forward
	next := ti.node.fundingTx(t, addressA, 6000)
	ti.connect(t, 6, next)

	res, err = ti.GetAddressSummary(context.Background(), addressA, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.TxCount)
	assert.Equal(t, int64(21_000), res.BalanceSat)

	cp, ok := loadCheckpoint(t, ti, addressA)
	require.True(t, ok)
	assert.Equal(t, uint32(6), cp.TxCount)
	assert.Equal(t, *next.TxIDChainHash(), cp.LastTxID)
}

func TestGetAddressSummaryHeightWindowLeavesCheckpoint(t *testing.T) {
	ti := newTestIndex(t, func(s *settings.Settings) {
		s.AddressIndex.SummaryQueryLimit = 2
	})
	addressA := testAddress(t, "A")

	fundHeights(t, ti, addressA, 1, 5)

	opts := NewSummaryOptions()
	opts.StartHeight = 4

	res, err := ti.GetAddressSummary(context.Background(), addressA, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TxCount)
	assert.Equal(t, int64(9000), res.BalanceSat)

	// waits for any refresh the windowed summary could have scheduled
	require.NoError(t, ti.Stop(context.Background()))

	_, ok := loadCheckpoint(t, ti, addressA)
	assert.False(t, ok)

	ti.settings.AddressIndex.SummaryQueryLimit = 500

	res, err = ti.GetAddressSummary(context.Background(), addressA, nil)
	require.NoError(t, err)
	assert.False(t, res.Incomplete)
	assert.Equal(t, 5, res.TxCount)
	assert.Equal(t, int64(15_000), res.BalanceSat)
}

func TestGetAddressSummaryHeightWindowIgnoresCheckpoint(t *testing.T) {
	ti := newTestIndex(t)
	addressA := testAddress(t, "A")

	txs := fundHeights(t, ti, addressA, 1, 5)

	last, err := ti.node.GetTransaction(context.Background(), txs[4].TxIDChainHash())
	require.NoError(t, err)

	full := &Checkpoint{
		Balance:       15_000,
		TotalReceived: 15_000,
		TxCount:       5,
		LastTxID:      *txs[4].TxIDChainHash(),
		LastBlockHash: *last.BlockHash,
	}
	require.NoError(t, ti.checkpoints.Store(context.Background(), addressA, full))

	opts := NewSummaryOptions()
	opts.StartHeight = 2
	opts.EndHeight = 3

	res, err := ti.GetAddressSummary(context.Background(), addressA, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TxCount)
	assert.Equal(t, int64(5000), res.BalanceSat)

	cp, ok := loadCheckpoint(t, ti, addressA)
	require.True(t, ok)
	assert.Equal(t, full, cp)
}

func TestGetAddressSummaryStaleCheckpoint(t *testing.T) {
	ti := newTestIndex(t)
	addressA := testAddress(t, "A")

	txs := fundHeights(t, ti, addressA, 1, 2)

	// totals that do not match the chain, anchored to a block that is not in it
	require.NoError(t, ti.checkpoints.Store(context.Background(), addressA, &Checkpoint{
		Balance:       999_999,
		TotalReceived: 999_999,
		TxCount:       42,
		LastTxID:      *txs[0].TxIDChainHash(),
		LastBlockHash: chainhash.DoubleHashH([]byte("orphan")),
	}))

	res, err := ti.GetAddressSummary(context.Background(), addressA, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), res.BalanceSat)
	assert.Equal(t, 2, res.TxCount)

	_, ok := loadCheckpoint(t, ti, addressA)
	assert.False(t, ok)
}

func TestGetAddressSummaryCheckpointAfterReorg(t *testing.T) {
	ti := newTestIndex(t)
	addressA := testAddress(t, "A")

	fundHeights(t, ti, addressA, 1, 1)

	tip := ti.node.fundingTx(t, addressA, 5000)
	block := ti.connect(t, 2, tip)

	require.NoError(t, ti.checkpoints.Store(context.Background(), addressA, &Checkpoint{
		Balance:       6000,
		TotalReceived: 6000,
		TxCount:       2,
		LastTxID:      *tip.TxIDChainHash(),
		LastBlockHash: *block.Hash(),
	}))

	cp, err := ti.checkpoints.Load(context.Background(), addressA)
	require.NoError(t, err)
	require.NotNil(t, cp)

	ti.disconnect(t, block)

	res, err := ti.GetAddressSummary(context.Background(), addressA, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.BalanceSat)
	assert.Equal(t, 1, res.TxCount)

	_, ok := loadCheckpoint(t, ti, addressA)
	assert.False(t, ok)
}

func TestGetAddressSummaryMalformedCheckpoint(t *testing.T) {
	ti := newTestIndex(t)
	addressA := testAddress(t, "A")

	key, err := ti.encoding.EncodeCheckpointKey(addressA)
	require.NoError(t, err)
	require.NoError(t, ti.store.Put(context.Background(), key, []byte{0x01, 0x02}))

	_, err = ti.GetAddressSummary(context.Background(), addressA, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedRecord))

	// reverse queries never read the checkpoint
	opts := NewSummaryOptions()
	opts.Reverse = true

	_, err = ti.GetAddressSummary(context.Background(), addressA, opts)
	require.NoError(t, err)
}

func TestGetAddressSummaryWithoutCheckpoints(t *testing.T) {
	ti := newTestIndex(t, func(s *settings.Settings) {
		s.AddressIndex.CheckpointEnabled = false
		s.AddressIndex.SummaryQueryLimit = 1
	})
	addressA := testAddress(t, "A")

	fundHeights(t, ti, addressA, 1, 3)

	res, err := ti.GetAddressSummary(context.Background(), addressA, nil)
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
	assert.Nil(t, ti.checkpoints)

	_, ok := loadCheckpoint(t, ti, addressA)
	assert.False(t, ok)
}

func TestScheduleRefreshSingleFlight(t *testing.T) {
	ti := newTestIndex(t)

	release := make(chan struct{})
	started := make(chan struct{})

	require.True(t, ti.checkpoints.ScheduleRefresh("addr", func() {
		close(started)
		<-release
	}))

	<-started
	assert.True(t, ti.checkpoints.Refreshing("addr"))
	assert.False(t, ti.checkpoints.ScheduleRefresh("addr", func() {}))
	assert.True(t, ti.checkpoints.ScheduleRefresh("other", func() {}))

	close(release)

	require.Eventually(t, func() bool {
		return !ti.checkpoints.Refreshing("addr")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ti.Stop(context.Background()))
	assert.False(t, ti.checkpoints.ScheduleRefresh("addr", func() {}))
	// a refresh the stopped pool rejects leaves no marker behind
	assert.False(t, ti.checkpoints.Refreshing("addr"))
}
