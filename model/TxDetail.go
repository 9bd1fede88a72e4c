package model

import (
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// TxDetail is a transaction resolved together with its chain metadata. Tx is expected in
// extended format so that every input carries the satoshis and locking script it spends.
type TxDetail struct {
	Tx             *bt.Tx
	Height         uint32
	BlockHash      *chainhash.Hash
	BlockTimestamp uint32
	Confirmations  uint32
}

func (d *TxDetail) Confirmed() bool {
	return d.Height != UnconfirmedHeight
}

func (d *TxDetail) TxID() chainhash.Hash {
	return *d.Tx.TxIDChainHash()
}
