package addressindex

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/settings"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/stores/kv/leveldb"
	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/require"
)

const testBaseTimestamp uint32 = 1600000000

// testNode is an in-memory chain, transaction index and mempool serving every
// collaborator of the address index.
type testNode struct {
	mu           sync.Mutex
	blocks       map[chainhash.Hash]*model.Block
	txs          map[chainhash.Hash]*model.TxDetail
	mempool      map[chainhash.Hash]*bt.Tx
	mempoolOrder []chainhash.Hash
	timestamps   map[chainhash.Hash]uint32
	tip          uint32
	tipHash      chainhash.Hash
	fundings     int
	// detailedLookups counts GetDetailedTransaction calls.
	detailedLookups int
}

func newTestNode() *testNode {
	return &testNode{
		blocks:     make(map[chainhash.Hash]*model.Block),
		txs:        make(map[chainhash.Hash]*model.TxDetail),
		mempool:    make(map[chainhash.Hash]*bt.Tx),
		timestamps: make(map[chainhash.Hash]uint32),
	}
}

func (n *testNode) GetBlock(_ context.Context, hash *chainhash.Hash) (*model.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	block, ok := n.blocks[*hash]
	if !ok {
		return nil, errors.NewBlockNotFoundError("block %s not found", hash)
	}

	return block, nil
}

func (n *testNode) GetBestHeight(_ context.Context) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.tip, nil
}

func (n *testNode) GetDetailedTransaction(ctx context.Context, txid *chainhash.Hash) (*model.TxDetail, error) {
	n.mu.Lock()
	n.detailedLookups++
	n.mu.Unlock()

	return n.GetTransaction(ctx, txid)
}

func (n *testNode) resetLookups() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.detailedLookups = 0
}

func (n *testNode) lookups() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.detailedLookups
}

func (n *testNode) GetTransaction(_ context.Context, txid *chainhash.Hash) (*model.TxDetail, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	detail, ok := n.txs[*txid]
	if !ok {
		return nil, errors.NewTxNotFoundError("tx %s not found", txid)
	}

	d := *detail
	d.Confirmations = n.tip - d.Height + 1

	return &d, nil
}

func (n *testNode) SetTxMetaInfo(_ context.Context, tx *bt.Tx) (*model.TxDetail, error) {
	return &model.TxDetail{Tx: tx, Height: model.UnconfirmedHeight}, nil
}

func (n *testNode) GetTxidsByAddress(_ context.Context, address string, direction MempoolDirection) ([]chainhash.Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var txids []chainhash.Hash

	for _, txid := range n.mempoolOrder {
		tx := n.mempool[txid]

		match := false

		if direction != MempoolDirectionInput {
			for _, output := range tx.Outputs {
				if addr, ok := outputAddress(output, false); ok && addr == address {
					match = true
				}
			}
		}

		if direction != MempoolDirectionOutput {
			for _, input := range tx.Inputs {
				if addr, ok := inputAddress(input, false); ok && addr == address {
					match = true
				}
			}
		}

		if match {
			txids = append(txids, txid)
		}
	}

	return txids, nil
}

func (n *testNode) GetMempoolTransaction(_ context.Context, txid *chainhash.Hash) (*bt.Tx, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	tx, ok := n.mempool[*txid]
	if !ok {
		return nil, errors.NewTxNotFoundError("mempool tx %s not found", txid)
	}

	return tx, nil
}

func (n *testNode) GetTimestampSync(hash *chainhash.Hash) (uint32, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ts, ok := n.timestamps[*hash]

	return ts, ok
}

// mine builds the block at the height on top of the current tip and registers it with
// its transactions. It does not touch the index.
func (n *testNode) mine(height uint32, txs ...*bt.Tx) *model.Block {
	n.mu.Lock()
	defer n.mu.Unlock()

	prev := n.tipHash
	merkle := chainhash.DoubleHashH([]byte(fmt.Sprintf("merkle-%d-%d", height, len(n.blocks))))

	block := model.NewBlock(&model.BlockHeader{
		Version:        1,
		HashPrevBlock:  &prev,
		HashMerkleRoot: &merkle,
		Timestamp:      testBaseTimestamp + height,
		Bits:           []byte{0x1d, 0x00, 0xff, 0xff},
		Nonce:          height,
	}, height, txs)

	hash := *block.Hash()

	n.blocks[hash] = block
	n.timestamps[hash] = block.Timestamp()
	n.tip = height
	n.tipHash = hash

	for _, tx := range txs {
		n.txs[*tx.TxIDChainHash()] = &model.TxDetail{
			Tx:             tx,
			Height:         height,
			BlockHash:      &hash,
			BlockTimestamp: block.Timestamp(),
		}

		n.removeFromMempool(*tx.TxIDChainHash())
	}

	return block
}

// unmine drops the block and its transactions. The block timestamp is kept so that the
// block can still be reverted.
func (n *testNode) unmine(block *model.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.blocks, *block.Hash())

	for _, tx := range block.Transactions {
		delete(n.txs, *tx.TxIDChainHash())
	}

	n.tip = block.Height - 1
	n.tipHash = *block.Header.HashPrevBlock
}

func (n *testNode) addToMempool(tx *bt.Tx) {
	n.mu.Lock()
	defer n.mu.Unlock()

	txid := *tx.TxIDChainHash()
	n.mempool[txid] = tx
	n.mempoolOrder = append(n.mempoolOrder, txid)
}

func (n *testNode) removeFromMempool(txid chainhash.Hash) {
	if _, ok := n.mempool[txid]; !ok {
		return
	}

	delete(n.mempool, txid)

	for i := range n.mempoolOrder {
		if n.mempoolOrder[i] == txid {
			n.mempoolOrder = append(n.mempoolOrder[:i], n.mempoolOrder[i+1:]...)
			break
		}
	}
}

// fundingTx pays the address from an input the index does not recognise.
func (n *testNode) fundingTx(t *testing.T, address string, satoshis ...uint64) *bt.Tx {
	t.Helper()

	n.mu.Lock()
	n.fundings++
	seed := n.fundings
	n.mu.Unlock()

	total := uint64(1000)
	for _, sat := range satoshis {
		total += sat
	}

	tx := bt.NewTx()
	prev := chainhash.DoubleHashH([]byte(fmt.Sprintf("funding-%d", seed)))
	require.NoError(t, tx.From(prev.String(), 0, "51", total))

	for _, sat := range satoshis {
		require.NoError(t, tx.AddP2PKHOutputFromAddress(address, sat))
	}

	return tx
}

// spendTx spends output vout of prev and pays the outputs.
func spendTx(t *testing.T, prev *bt.Tx, vout uint32, outputs map[string]uint64) *bt.Tx {
	t.Helper()

	out := prev.Outputs[vout]

	tx := bt.NewTx()
	require.NoError(t, tx.From(prev.TxID(), vout, out.LockingScript.String(), out.Satoshis))

	for address, sat := range outputs {
		require.NoError(t, tx.AddP2PKHOutputFromAddress(address, sat))
	}

	return tx
}

func testAddress(t *testing.T, seed string) string {
	t.Helper()

	pkh := chainhash.HashB([]byte(seed))[:20]

	addr, err := bscript.NewAddressFromPublicKeyHash(pkh, false)
	require.NoError(t, err)

	return addr.AddressString
}

func testSettings() *settings.Settings {
	tSettings := settings.NewSettings()
	tSettings.ChainCfgParams = &chaincfg.TestNetParams

	return tSettings
}

type testIndex struct {
	*Server
	node  *testNode
	store kv.Store
}

func newTestIndex(t *testing.T, mutate ...func(*settings.Settings)) *testIndex {
	t.Helper()

	store, err := leveldb.NewMemory(ulogger.TestLogger{})
	require.NoError(t, err)

	tSettings := testSettings()
	for _, fn := range mutate {
		fn(tSettings)
	}

	node := newTestNode()
	s := New(ulogger.TestLogger{}, tSettings, store, node, node, node, node)

	t.Cleanup(func() {
		_ = s.Stop(context.Background())
		_ = store.Close()
	})

	return &testIndex{Server: s, node: node, store: store}
}

// connect mines the block and indexes it.
func (ti *testIndex) connect(t *testing.T, height uint32, txs ...*bt.Tx) *model.Block {
	t.Helper()

	block := ti.node.mine(height, txs...)
	require.NoError(t, ti.ProcessBlock(context.Background(), block))

	return block
}

// disconnect reverts the block in the index, then drops it from the chain.
func (ti *testIndex) disconnect(t *testing.T, block *model.Block) {
	t.Helper()

	require.NoError(t, ti.ProcessReorg(context.Background(), []*model.Block{block}))
	ti.node.unmine(block)
}

func dumpStore(t *testing.T, store kv.Store) map[string][]byte {
	t.Helper()

	it := store.Scan(context.Background(), kv.ScanOptions{})
	defer it.Release()

	out := make(map[string][]byte)
	for it.Next() {
		out[string(it.Key())] = append([]byte(nil), it.Value()...)
	}

	require.NoError(t, it.Err())

	return out
}
