package addressindex

import (
	"context"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// txRef is one sighting of a transaction in the index or the mempool. Mempool sightings
// carry model.UnconfirmedHeight.
type txRef struct {
	TxID   chainhash.Hash
	Height uint32
}

func (r txRef) confirmed() bool {
	return r.Height != model.UnconfirmedHeight
}

// MempoolOverlay exposes the unconfirmed activity of an address in the same shape as the
// confirmed index. A nil mempool client yields no activity.
type MempoolOverlay struct {
	mempool  MempoolClient
	txClient TransactionClient
}

func NewMempoolOverlay(mempool MempoolClient, txClient TransactionClient) *MempoolOverlay {
	return &MempoolOverlay{mempool: mempool, txClient: txClient}
}

func (m *MempoolOverlay) Refs(ctx context.Context, address string, direction MempoolDirection) ([]txRef, error) {
	if m.mempool == nil {
		return nil, nil
	}

	txids, err := m.mempool.GetTxidsByAddress(ctx, address, direction)
	if err != nil {
		return nil, errors.NewServiceError("[Mempool] could not get %s txids of %s", direction, address, err)
	}

	refs := make([]txRef, 0, len(txids))
	for _, txid := range txids {
		refs = append(refs, txRef{TxID: txid, Height: model.UnconfirmedHeight})
	}

	return refs, nil
}

// Resolve fetches a mempool transaction and fills in the outputs it spends.
func (m *MempoolOverlay) Resolve(ctx context.Context, txid *chainhash.Hash) (*model.TxDetail, error) {
	if m.mempool == nil {
		return nil, errors.NewTxNotFoundError("[Mempool] no mempool to resolve %s", txid)
	}

	tx, err := m.mempool.GetMempoolTransaction(ctx, txid)
	if err != nil {
		return nil, err
	}

	if tx == nil {
		return nil, errors.NewTxNotFoundError("[Mempool] could not find tx %s", txid)
	}

	return m.txClient.SetTxMetaInfo(ctx, tx)
}
