// Package addressindex maintains the per-address history and unspent output indexes of
// confirmed blocks and answers history, summary and unspent queries merged with the
// mempool.
//
// The index never talks to the block, transaction, mempool or timestamp services
// directly. Each is consumed through the narrow interfaces below so the server can be
// driven by the node in production and by mocks in tests.
package addressindex

import (
	"context"

	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// MempoolDirection selects which side of a mempool transaction must touch the address.
type MempoolDirection uint8

const (
	MempoolDirectionBoth MempoolDirection = iota
	MempoolDirectionInput
	MempoolDirectionOutput
)

func (d MempoolDirection) String() string {
	switch d {
	case MempoolDirectionInput:
		return "input"
	case MempoolDirectionOutput:
		return "output"
	default:
		return "both"
	}
}

// BlockClient resolves blocks of the active chain.
type BlockClient interface {
	// GetBlock returns errors.ErrBlockNotFound when the hash is not part of the chain.
	GetBlock(ctx context.Context, hash *chainhash.Hash) (*model.Block, error)
	GetBestHeight(ctx context.Context) (uint32, error)
}

// TransactionClient resolves transactions together with their chain metadata. Returned
// transactions are in extended format.
type TransactionClient interface {
	GetDetailedTransaction(ctx context.Context, txid *chainhash.Hash) (*model.TxDetail, error)
	// GetTransaction returns errors.ErrTxNotFound when the transaction is unknown.
	GetTransaction(ctx context.Context, txid *chainhash.Hash) (*model.TxDetail, error)
	// SetTxMetaInfo fills in the previous outputs of a mempool transaction.
	SetTxMetaInfo(ctx context.Context, tx *bt.Tx) (*model.TxDetail, error)
}

type MempoolClient interface {
	GetTxidsByAddress(ctx context.Context, address string, direction MempoolDirection) ([]chainhash.Hash, error)
	// GetMempoolTransaction returns errors.ErrTxNotFound when the transaction left the mempool.
	GetMempoolTransaction(ctx context.Context, txid *chainhash.Hash) (*bt.Tx, error)
}

type TimestampClient interface {
	// GetTimestampSync returns false when the block has not been timestamped yet.
	GetTimestampSync(hash *chainhash.Hash) (uint32, bool)
}

// Interface is the query and indexing surface of the address index.
type Interface interface {
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
	GetAddressHistory(ctx context.Context, addresses []string, opts *HistoryOptions) (*HistoryResult, error)
	GetAddressSummary(ctx context.Context, address string, opts *SummaryOptions) (*SummaryResult, error)
	GetAddressUnspentOutputs(ctx context.Context, address string, opts *UnspentOptions) ([]*UnspentOutput, error)
	OnBlockConnected(ctx context.Context, block *model.Block) ([]kv.Operation, error)
	OnReorg(ctx context.Context, disconnected []*model.Block) ([]kv.Operation, error)
	ProcessBlock(ctx context.Context, block *model.Block) error
	ProcessReorg(ctx context.Context, disconnected []*model.Block) error
}

var _ Interface = (*Server)(nil)
