package addressindex

import (
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// QueryOptions select which part of an address's activity a query walks.
type QueryOptions struct {
	// QueryMempool merges unconfirmed transactions into the result.
	QueryMempool bool
	// MempoolOnly skips the confirmed index entirely.
	MempoolOnly bool
	// Reverse walks the confirmed index from the highest height down and returns
	// mempool transactions first.
	Reverse bool
	// After resumes after the given confirmed transaction.
	After *chainhash.Hash
	// Before stops before the given confirmed transaction. Mempool is not queried when set.
	Before *chainhash.Hash
	// StartHeight and EndHeight bound the confirmed heights walked. An EndHeight of zero
	// means no upper bound.
	StartHeight uint32
	EndHeight   uint32
}

func (o *QueryOptions) includeMempool() bool {
	return o.QueryMempool && o.Before == nil
}

// TxCallback receives each resolved transaction as it is delivered. Returning an error
// aborts the query with that error.
type TxCallback func(detail *model.TxDetail) error

type HistoryOptions struct {
	QueryOptions

	// From and To select a window of the sorted, deduplicated history. Setting either
	// switches to paginated mode; a To of zero means up to the history limit.
	From int
	To   int

	OnTx TxCallback
}

func NewHistoryOptions() *HistoryOptions {
	return &HistoryOptions{QueryOptions: QueryOptions{QueryMempool: true}}
}

func (o *HistoryOptions) paginated() bool {
	return o.From > 0 || o.To > 0
}

type SummaryOptions struct {
	QueryOptions

	// NoTxList omits the transaction id list from the result.
	NoTxList bool

	OnTx TxCallback
}

func NewSummaryOptions() *SummaryOptions {
	return &SummaryOptions{QueryOptions: QueryOptions{QueryMempool: true}}
}

type UnspentOptions struct {
	QueryMempool bool
}

func NewUnspentOptions() *UnspentOptions {
	return &UnspentOptions{QueryMempool: true}
}

type HistoryResult struct {
	TotalCount int
	Items      []*model.TxDetail
	// Incomplete is set when the history limit cut the result short.
	Incomplete bool
}

// SummaryResult is the balance of an address. Amounts are given both in satoshis and in
// whole coins.
type SummaryResult struct {
	Address               string
	Balance               float64
	BalanceSat            int64
	TotalReceived         float64
	TotalReceivedSat      int64
	TotalSent             float64
	TotalSentSat          int64
	UnconfirmedBalance    float64
	UnconfirmedBalanceSat int64
	TxCount               int
	UnconfirmedTxCount    int
	Transactions          []chainhash.Hash
	LastItem              *chainhash.Hash
	Incomplete            bool
}

type UnspentOutput struct {
	Address       string
	TxID          chainhash.Hash
	OutputIndex   uint32
	Script        []byte
	Satoshis      uint64
	Height        uint32
	Timestamp     uint32
	Confirmations uint32
}
