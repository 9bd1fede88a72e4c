package addressindex

import (
	"context"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
)

// BlockApplier turns connected and disconnected blocks into index mutations. It never
// writes; the caller commits the returned batch atomically.
type BlockApplier struct {
	logger     ulogger.Logger
	encoding   *Encoding
	txClient   TransactionClient
	timestamps TimestampClient
	mainnet    bool
}

func NewBlockApplier(logger ulogger.Logger, encoding *Encoding, txClient TransactionClient, timestamps TimestampClient, mainnet bool) *BlockApplier {
	return &BlockApplier{
		logger:     logger,
		encoding:   encoding,
		txClient:   txClient,
		timestamps: timestamps,
		mainnet:    mainnet,
	}
}

func (a *BlockApplier) blockTimestamp(block *model.Block) (uint32, error) {
	ts, ok := a.timestamps.GetTimestampSync(block.Hash())
	if !ok {
		return 0, errors.NewProcessingError("[BlockApplier] no timestamp for block %s", block.Hash())
	}

	return ts, nil
}

// ApplyBlock returns the operations indexing every transaction of the block: for each
// transaction its outputs, then its inputs.
func (a *BlockApplier) ApplyBlock(ctx context.Context, block *model.Block) ([]kv.Operation, error) {
	ts, err := a.blockTimestamp(block)
	if err != nil {
		return nil, err
	}

	ops := make([]kv.Operation, 0, 4*len(block.Transactions))

	for _, tx := range block.Transactions {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		if ops, err = a.applyTx(ops, tx, block.Height, ts); err != nil {
			return nil, err
		}
	}

	return ops, nil
}

func (a *BlockApplier) applyTx(ops []kv.Operation, tx *bt.Tx, height, ts uint32) ([]kv.Operation, error) {
	txid := *tx.TxIDChainHash()

	for i, output := range tx.Outputs {
		address, ok := outputAddress(output, a.mainnet)
		if !ok {
			continue
		}

		historyKey, err := a.encoding.EncodeHistoryKey(&HistoryKey{
			Address:   address,
			Height:    height,
			TxID:      txid,
			Index:     uint32(i), //nolint:gosec // output count fits in uint32
			Direction: DirectionOutput,
			Timestamp: ts,
		})
		if err != nil {
			return nil, err
		}

		utxoKey, err := a.encoding.EncodeUtxoKey(&UtxoKey{Address: address, TxID: txid, Index: uint32(i)}) //nolint:gosec // output count fits in uint32
		if err != nil {
			return nil, err
		}

		ops = append(ops,
			kv.Put(historyKey, []byte{}),
			kv.Put(utxoKey, a.encoding.EncodeUtxoValue(&UtxoValue{
				Height:    height,
				Satoshis:  output.Satoshis,
				Timestamp: ts,
				Script:    scriptBytes(output),
			})),
		)
	}

	if tx.IsCoinbase() {
		return ops, nil
	}

	for i, input := range tx.Inputs {
		address, ok := inputAddress(input, a.mainnet)
		if !ok {
			continue
		}

		historyKey, err := a.encoding.EncodeHistoryKey(&HistoryKey{
			Address:   address,
			Height:    height,
			TxID:      txid,
			Index:     uint32(i), //nolint:gosec // input count fits in uint32
			Direction: DirectionInput,
			Timestamp: ts,
		})
		if err != nil {
			return nil, err
		}

		utxoKey, err := a.encoding.EncodeUtxoKey(&UtxoKey{
			Address: address,
			TxID:    *input.PreviousTxIDChainHash(),
			Index:   input.PreviousTxOutIndex,
		})
		if err != nil {
			return nil, err
		}

		ops = append(ops, kv.Put(historyKey, []byte{}), kv.Del(utxoKey))
	}

	return ops, nil
}

// UndoBlocks returns the operations reverting the given blocks, most recent first.
// Transactions are reverted last to first so that an output spent inside the same block
// is restored before it is removed again.
func (a *BlockApplier) UndoBlocks(ctx context.Context, blocks []*model.Block) ([]kv.Operation, error) {
	var ops []kv.Operation

	for _, block := range blocks {
		ts, err := a.blockTimestamp(block)
		if err != nil {
			return nil, err
		}

		for i := len(block.Transactions) - 1; i >= 0; i-- {
			if err = ctx.Err(); err != nil {
				return nil, err
			}

			if ops, err = a.undoTx(ctx, ops, block.Transactions[i], block.Height, ts); err != nil {
				return nil, err
			}
		}
	}

	return ops, nil
}

func (a *BlockApplier) undoTx(ctx context.Context, ops []kv.Operation, tx *bt.Tx, height, ts uint32) ([]kv.Operation, error) {
	txid := *tx.TxIDChainHash()

	if !tx.IsCoinbase() {
		for i, input := range tx.Inputs {
			address, ok := inputAddress(input, a.mainnet)
			if !ok {
				continue
			}

			historyKey, err := a.encoding.EncodeHistoryKey(&HistoryKey{
				Address:   address,
				Height:    height,
				TxID:      txid,
				Index:     uint32(i), //nolint:gosec // input count fits in uint32
				Direction: DirectionInput,
				Timestamp: ts,
			})
			if err != nil {
				return nil, err
			}

			ops = append(ops, kv.Del(historyKey))

			prevTxID := input.PreviousTxIDChainHash()

			prev, err := a.txClient.GetTransaction(ctx, prevTxID)
			if err != nil {
				if errors.Is(err, errors.ErrTxNotFound) {
					return nil, errors.NewTxNotFoundError("[BlockApplier] previous tx %s of %s not found", prevTxID, txid, err)
				}

				return nil, errors.NewProcessingError("[BlockApplier] could not get previous tx %s of %s", prevTxID, txid, err)
			}

			if prev == nil || prev.Tx == nil {
				return nil, errors.NewTxNotFoundError("[BlockApplier] previous tx %s of %s not found", prevTxID, txid)
			}

			if int(input.PreviousTxOutIndex) >= len(prev.Tx.Outputs) {
				return nil, errors.NewProcessingError("[BlockApplier] previous tx %s has no output %d", prevTxID, input.PreviousTxOutIndex)
			}

			prevOutput := prev.Tx.Outputs[input.PreviousTxOutIndex]

			utxoKey, err := a.encoding.EncodeUtxoKey(&UtxoKey{Address: address, TxID: *prevTxID, Index: input.PreviousTxOutIndex})
			if err != nil {
				return nil, err
			}

			ops = append(ops, kv.Put(utxoKey, a.encoding.EncodeUtxoValue(&UtxoValue{
				Height:    prev.Height,
				Satoshis:  prevOutput.Satoshis,
				Timestamp: prev.BlockTimestamp,
				Script:    scriptBytes(prevOutput),
			})))
		}
	}

	for i, output := range tx.Outputs {
		address, ok := outputAddress(output, a.mainnet)
		if !ok {
			continue
		}

		historyKey, err := a.encoding.EncodeHistoryKey(&HistoryKey{
			Address:   address,
			Height:    height,
			TxID:      txid,
			Index:     uint32(i), //nolint:gosec // output count fits in uint32
			Direction: DirectionOutput,
			Timestamp: ts,
		})
		if err != nil {
			return nil, err
		}

		utxoKey, err := a.encoding.EncodeUtxoKey(&UtxoKey{Address: address, TxID: txid, Index: uint32(i)}) //nolint:gosec // output count fits in uint32
		if err != nil {
			return nil, err
		}

		ops = append(ops, kv.Del(historyKey), kv.Del(utxoKey))
	}

	return ops, nil
}

func scriptBytes(output *bt.Output) []byte {
	if output.LockingScript == nil {
		return []byte{}
	}

	return append([]byte{}, *output.LockingScript...)
}
