package addressindex

import (
	"context"

	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/dolthub/swiss"
)

const expectedUnknown = -1

type occurrence struct {
	seen     int
	expected int
}

// DedupQueue resolves the sightings of one address scan in order and delivers each
// distinct transaction once. A transaction produces one index entry per input and output
// touching the address; its entry in the occurrence table is dropped once all of them
// have been seen. It is not safe for concurrent use.
type DedupQueue struct {
	address  string
	mainnet  bool
	txClient TransactionClient
	mempool  *MempoolOverlay
	seen     *swiss.Map[chainhash.Hash, *occurrence]
}

func NewDedupQueue(address string, mainnet bool, txClient TransactionClient, mempool *MempoolOverlay) *DedupQueue {
	return &DedupQueue{
		address:  address,
		mainnet:  mainnet,
		txClient: txClient,
		mempool:  mempool,
		seen:     swiss.NewMap[chainhash.Hash, *occurrence](64),
	}
}

// Push records a sighting. The resolved transaction is returned on first sight, nil for
// repeated sightings.
func (q *DedupQueue) Push(ctx context.Context, ref txRef) (*model.TxDetail, error) {
	if o, ok := q.seen.Get(ref.TxID); ok {
		o.seen++

		if o.expected != expectedUnknown && o.seen >= o.expected {
			q.seen.Delete(ref.TxID)
		}

		return nil, nil
	}

	o := &occurrence{seen: 1, expected: expectedUnknown}
	q.seen.Put(ref.TxID, o)

	detail, err := q.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	o.expected = countOccurrences(detail.Tx, q.address, q.mainnet)
	if o.seen >= o.expected {
		q.seen.Delete(ref.TxID)
	}

	return detail, nil
}

// Pending is the number of transactions with sightings still outstanding.
func (q *DedupQueue) Pending() int {
	return q.seen.Count()
}

func (q *DedupQueue) resolve(ctx context.Context, ref txRef) (*model.TxDetail, error) {
	if !ref.confirmed() {
		return resolveDetail(q.mempool.Resolve(ctx, &ref.TxID))
	}

	return resolveDetail(q.txClient.GetDetailedTransaction(ctx, &ref.TxID))
}
