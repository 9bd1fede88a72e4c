package addressindex

import (
	"math/big"

	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const satoshisPerCoin = 1e8

// SummaryAggregator folds resolved transactions into the balance of one address. Totals
// are kept as big integers and only converted in Result.
type SummaryAggregator struct {
	address   string
	mainnet   bool
	maxTxList int
	noTxList  bool

	balance            big.Int
	totalReceived      big.Int
	totalSent          big.Int
	unconfirmedBalance big.Int
	txCount            int
	unconfirmedTxCount int

	// most recent first
	txids []chainhash.Hash

	lastTxID      *chainhash.Hash
	lastBlockHash *chainhash.Hash
	incomplete    bool
}

func NewSummaryAggregator(address string, mainnet bool, maxTxList int, noTxList bool) *SummaryAggregator {
	return &SummaryAggregator{
		address:   address,
		mainnet:   mainnet,
		maxTxList: maxTxList,
		noTxList:  noTxList,
	}
}

// Seed starts the confirmed totals from a checkpoint.
func (a *SummaryAggregator) Seed(c *Checkpoint) {
	a.balance.SetUint64(c.Balance)
	a.totalReceived.SetUint64(c.TotalReceived)
	a.totalSent.SetUint64(c.TotalSent)
	a.txCount = int(c.TxCount)

	lastTxID, lastBlockHash := c.LastTxID, c.LastBlockHash
	a.lastTxID = &lastTxID
	a.lastBlockHash = &lastBlockHash
}

func (a *SummaryAggregator) Add(detail *model.TxDetail) {
	received, sent := addressAmounts(detail.Tx, a.address, a.mainnet)

	recv := new(big.Int).SetUint64(received)
	spent := new(big.Int).SetUint64(sent)

	if detail.Confirmed() {
		a.txCount++
		a.totalReceived.Add(&a.totalReceived, recv)
		a.totalSent.Add(&a.totalSent, spent)
		a.balance.Add(&a.balance, recv)
		a.balance.Sub(&a.balance, spent)

		txid := detail.TxID()
		a.lastTxID = &txid
		a.lastBlockHash = detail.BlockHash
	} else {
		a.unconfirmedTxCount++
		a.unconfirmedBalance.Add(&a.unconfirmedBalance, recv)
		a.unconfirmedBalance.Sub(&a.unconfirmedBalance, spent)
	}

	if !a.noTxList {
		a.pushTxID(detail.TxID())
	}
}

func (a *SummaryAggregator) pushTxID(txid chainhash.Hash) {
	for i := range a.txids {
		if a.txids[i] == txid {
			return
		}
	}

	a.txids = append([]chainhash.Hash{txid}, a.txids...)

	if a.maxTxList > 0 && len(a.txids) > a.maxTxList {
		a.txids = a.txids[:a.maxTxList]
	}
}

func (a *SummaryAggregator) Count() int {
	return a.txCount + a.unconfirmedTxCount
}

func (a *SummaryAggregator) SetIncomplete() {
	a.incomplete = true
}

func (a *SummaryAggregator) Incomplete() bool {
	return a.incomplete
}

// LastTxID is the last confirmed transaction folded in, nil when there is none.
func (a *SummaryAggregator) LastTxID() *chainhash.Hash {
	return a.lastTxID
}

// Checkpoint returns the confirmed totals anchored to the last confirmed transaction. It
// returns false when there is nothing to anchor to or a total does not fit the record.
func (a *SummaryAggregator) Checkpoint() (*Checkpoint, bool) {
	if a.lastTxID == nil || a.lastBlockHash == nil {
		return nil, false
	}

	if a.balance.Sign() < 0 || !a.balance.IsUint64() || !a.totalReceived.IsUint64() || !a.totalSent.IsUint64() {
		return nil, false
	}

	return &Checkpoint{
		Balance:       a.balance.Uint64(),
		TotalReceived: a.totalReceived.Uint64(),
		TotalSent:     a.totalSent.Uint64(),
		TxCount:       uint32(a.txCount), //nolint:gosec // tx count of one address
		LastTxID:      *a.lastTxID,
		LastBlockHash: *a.lastBlockHash,
	}, true
}

func (a *SummaryAggregator) Result() *SummaryResult {
	r := &SummaryResult{
		Address:               a.address,
		BalanceSat:            a.balance.Int64(),
		TotalReceivedSat:      a.totalReceived.Int64(),
		TotalSentSat:          a.totalSent.Int64(),
		UnconfirmedBalanceSat: a.unconfirmedBalance.Int64(),
		TxCount:               a.txCount,
		UnconfirmedTxCount:    a.unconfirmedTxCount,
		Incomplete:            a.incomplete,
	}

	r.Balance = toCoins(r.BalanceSat)
	r.TotalReceived = toCoins(r.TotalReceivedSat)
	r.TotalSent = toCoins(r.TotalSentSat)
	r.UnconfirmedBalance = toCoins(r.UnconfirmedBalanceSat)

	if !a.noTxList {
		r.Transactions = append([]chainhash.Hash{}, a.txids...)
	}

	if a.lastTxID != nil {
		lastItem := *a.lastTxID
		r.LastItem = &lastItem
	}

	return r
}

func toCoins(sat int64) float64 {
	return float64(sat) / satoshisPerCoin
}
