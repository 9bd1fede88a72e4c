package addressindex

import (
	"context"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/ordishs/gocore"
)

// errStopScan ends a scan early without reporting an error. It is compared by identity.
var errStopScan = errors.NewProcessingError("scan stopped")

// HistoryRange returns the scan bounds of the history entries of the address between the
// start and end heights. An after cursor excludes every entry of that transaction and
// below; a before cursor excludes every entry of that transaction and above.
func (e *Encoding) HistoryRange(address string, start, end uint32, after, before *chainhash.Hash) (kv.ScanOptions, error) {
	var (
		opts kv.ScanOptions
		err  error
	)

	if after != nil {
		opts.GT, err = e.EncodeHistoryKey(&HistoryKey{
			Address:   address,
			Height:    start,
			TxID:      *after,
			Index:     0xffffffff,
			Direction: DirectionInput,
			Timestamp: 0xffffffff,
		})
	} else {
		opts.GTE, err = e.EncodeHistoryKey(&HistoryKey{Address: address, Height: start, TxID: minHash})
	}

	if err != nil {
		return opts, err
	}

	if before != nil {
		opts.LT, err = e.EncodeHistoryKey(&HistoryKey{Address: address, Height: end, TxID: *before})
	} else {
		opts.LTE, err = e.EncodeHistoryKey(&HistoryKey{
			Address:   address,
			Height:    end,
			TxID:      maxHash,
			Index:     0xffffffff,
			Direction: DirectionInput,
			Timestamp: 0xffffffff,
		})
	}

	return opts, err
}

// historyWindow is a query after its cursors have been resolved against the chain.
type historyWindow struct {
	start  uint32
	end    uint32
	after  *chainhash.Hash
	before *chainhash.Hash
}

// RangeQueryEngine streams the confirmed history and unspent outputs of an address out of
// the store.
type RangeQueryEngine struct {
	logger   ulogger.Logger
	encoding *Encoding
	store    kv.Store
	txClient TransactionClient
	stats    *gocore.Stat
}

func NewRangeQueryEngine(logger ulogger.Logger, encoding *Encoding, store kv.Store, txClient TransactionClient) *RangeQueryEngine {
	return &RangeQueryEngine{
		logger:   logger,
		encoding: encoding,
		store:    store,
		txClient: txClient,
		stats:    gocore.NewStat("addressindex_range"),
	}
}

// resolveWindow narrows the height window to the confirmed cursor transactions. A cursor
// that is unknown, unconfirmed or outside the window is dropped.
func (r *RangeQueryEngine) resolveWindow(ctx context.Context, opts *QueryOptions) (*historyWindow, error) {
	w := &historyWindow{start: opts.StartHeight, end: opts.EndHeight}
	if w.end == 0 {
		w.end = model.UnconfirmedHeight
	}

	if opts.After != nil {
		detail, err := r.cursorTx(ctx, opts.After)
		if err != nil {
			return nil, err
		}

		if detail != nil && detail.Confirmed() && detail.Height >= w.start {
			w.start = detail.Height
			w.after = opts.After
		}
	}

	if opts.Before != nil {
		detail, err := r.cursorTx(ctx, opts.Before)
		if err != nil {
			return nil, err
		}

		if detail != nil && detail.Confirmed() && detail.Height <= w.end {
			w.end = detail.Height
			w.before = opts.Before
		}
	}

	return w, nil
}

func (r *RangeQueryEngine) cursorTx(ctx context.Context, txid *chainhash.Hash) (*model.TxDetail, error) {
	detail, err := r.txClient.GetTransaction(ctx, txid)
	if err != nil {
		if errors.Is(err, errors.ErrTxNotFound) || errors.Is(err, errors.ErrNotFound) {
			r.logger.Debugf("[RangeQuery] cursor tx %s not found, ignoring", txid)
			return nil, nil
		}

		return nil, err
	}

	return detail, nil
}

// ScanHistory calls fn with every history entry of the address inside the window, in key
// order or its reverse. The iterator is released when fn returns an error, the context is
// cancelled or the range is exhausted. errStopScan from fn is not reported.
func (r *RangeQueryEngine) ScanHistory(ctx context.Context, address string, w *historyWindow, reverse bool, fn func(*HistoryKey) error) error {
	start := gocore.CurrentTime()
	defer r.stats.NewStat("ScanHistory").AddTime(start)

	opts, err := r.encoding.HistoryRange(address, w.start, w.end, w.after, w.before)
	if err != nil {
		return err
	}

	opts.Reverse = reverse

	return r.scan(ctx, opts, func(key, _ []byte) error {
		k, err := r.encoding.DecodeHistoryKey(key)
		if err != nil {
			return err
		}

		return fn(k)
	})
}

// ScanUtxos calls fn with every unspent output of the address in key order.
func (r *RangeQueryEngine) ScanUtxos(ctx context.Context, address string, fn func(*UtxoKey, *UtxoValue) error) error {
	start := gocore.CurrentTime()
	defer r.stats.NewStat("ScanUtxos").AddTime(start)

	prefix, err := r.encoding.UtxoPrefix(address)
	if err != nil {
		return err
	}

	upper, err := r.encoding.EncodeUtxoKey(&UtxoKey{Address: address, TxID: maxHash, Index: 0xffffffff})
	if err != nil {
		return err
	}

	return r.scan(ctx, kv.ScanOptions{GTE: prefix, LTE: upper}, func(key, value []byte) error {
		k, err := r.encoding.DecodeUtxoKey(key)
		if err != nil {
			return err
		}

		v, err := r.encoding.DecodeUtxoValue(value)
		if err != nil {
			return err
		}

		return fn(k, v)
	})
}

func (r *RangeQueryEngine) scan(ctx context.Context, opts kv.ScanOptions, fn func(key, value []byte) error) error {
	it := r.store.Scan(ctx, opts)
	defer it.Release()

	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			if err == errStopScan { //nolint:errorlint // never wrapped
				return nil
			}

			return err
		}
	}

	return it.Err()
}
