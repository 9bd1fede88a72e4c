package addressindex

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/util"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/ordishs/gocore"
	"golang.org/x/sync/errgroup"
)

// GetAddressHistory returns the distinct transactions touching any of the addresses,
// sorted by height descending with unconfirmed transactions first. Setting From or To
// selects a window of the full, cached txid list instead.
func (s *Server) GetAddressHistory(ctx context.Context, addresses []string, opts *HistoryOptions) (*HistoryResult, error) {
	start := gocore.CurrentTime()
	defer func() {
		s.stats.NewStat("GetAddressHistory").AddTime(start)
		prometheusAddressIndexHistory.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	if opts == nil {
		opts = NewHistoryOptions()
	}

	for _, address := range addresses {
		if _, err := s.encoding.HistoryPrefix(address); err != nil {
			return nil, err
		}
	}

	if opts.From < 0 || opts.To < 0 {
		return nil, errors.NewInvalidArgumentError("from %d and to %d must not be negative", opts.From, opts.To)
	}

	if opts.paginated() {
		return s.paginatedHistory(ctx, addresses, opts)
	}

	var (
		mu         sync.Mutex
		seen       = make(map[chainhash.Hash]struct{})
		items      = make([]*model.TxDetail, 0)
		incomplete bool
		onTxErr    error
		limit      = s.settings.AddressIndex.HistoryQueryLimit
	)

	// reaching the limit cancels the streams of every address, not only the one that
	// delivered the extra transaction
	streamCtx, stopStreams := context.WithCancel(ctx)
	defer stopStreams()

	err := s.forEachAddress(streamCtx, addresses, func(gCtx context.Context, _ int, address string) error {
		query := opts.QueryOptions

		return s.streamAddress(gCtx, address, &query, func(detail *model.TxDetail) error {
			mu.Lock()
			defer mu.Unlock()

			if incomplete {
				return errStopScan
			}

			txid := detail.TxID()
			if _, ok := seen[txid]; ok {
				return nil
			}

			if limit > 0 && len(items) >= limit {
				incomplete = true
				stopStreams()

				return errStopScan
			}

			seen[txid] = struct{}{}
			items = append(items, detail)

			if opts.OnTx != nil {
				if err := opts.OnTx(detail); err != nil {
					onTxErr = err
					return &callbackError{err: err}
				}
			}

			return nil
		})
	})

	switch {
	case onTxErr != nil:
		return nil, onTxErr
	case err != nil && !(incomplete && ctx.Err() == nil && errors.IsContextError(err)):
		return nil, err
	}

	sortDetails(items)

	return &HistoryResult{
		TotalCount: len(items),
		Items:      items,
		Incomplete: incomplete,
	}, nil
}

// callbackError carries the result of a caller callback through a stream so that it
// aborts the whole request instead of only the address it was raised for.
type callbackError struct {
	err error
}

func (e *callbackError) Error() string {
	return e.err.Error()
}

func (e *callbackError) Unwrap() error {
	return e.err
}

// forEachAddress runs fn for every address with bounded concurrency. A failing address is
// logged and left out of the result. Malformed records, callback errors and cancellation
// of the request abort all addresses.
func (s *Server) forEachAddress(ctx context.Context, addresses []string, fn func(gCtx context.Context, i int, address string) error) error {
	g, gCtx := errgroup.WithContext(ctx)
	util.SafeSetLimit(g, s.settings.AddressIndex.AddressConcurrency)

	for i, address := range addresses {
		g.Go(func() error {
			err := fn(gCtx, i, address)
			if err == nil {
				return nil
			}

			var cbErr *callbackError
			if errors.As(err, &cbErr) {
				return cbErr.err
			}

			if errors.Is(err, errors.ErrMalformedRecord) || ctx.Err() != nil || gCtx.Err() != nil {
				return err
			}

			s.logger.Errorf("[AddressIndex] query of %s failed, leaving it out: %v", address, err)
			prometheusAddressIndexAddressErrors.Inc()

			return nil
		})
	}

	return g.Wait()
}

// paginatedHistory slices the sorted, deduplicated txid list of the addresses and resolves
// the selected window.
func (s *Server) paginatedHistory(ctx context.Context, addresses []string, opts *HistoryOptions) (*HistoryResult, error) {
	var (
		refs   []txRef
		cached bool
		err    error
	)

	if opts.From > 0 {
		refs, cached = s.txidLists.Get(addresses)
		if cached {
			prometheusAddressIndexTxidListHits.Inc()
		}
	}

	if !cached {
		if refs, err = s.txidList(ctx, addresses, &opts.QueryOptions); err != nil {
			return nil, err
		}

		s.txidLists.Set(addresses, refs)
	}

	from, to := opts.From, opts.To
	if to == 0 || to > len(refs) {
		to = len(refs)
	}

	if from > to {
		from = to
	}

	page := refs[from:to]
	items := make([]*model.TxDetail, len(page))

	g, gCtx := errgroup.WithContext(ctx)
	util.SafeSetLimit(g, s.settings.AddressIndex.AddressConcurrency)

	for i, ref := range page {
		g.Go(func() error {
			detail, err := s.resolveRef(gCtx, ref)
			if err != nil {
				return err
			}

			items[i] = detail

			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}

	if opts.OnTx != nil {
		for _, detail := range items {
			if err = opts.OnTx(detail); err != nil {
				return nil, err
			}
		}
	}

	return &HistoryResult{
		TotalCount: len(refs),
		Items:      items,
	}, nil
}

// txidList merges the txid lists of the addresses, drops duplicates and sorts the result.
func (s *Server) txidList(ctx context.Context, addresses []string, query *QueryOptions) ([]txRef, error) {
	lists := make([][]txRef, len(addresses))

	err := s.forEachAddress(ctx, addresses, func(gCtx context.Context, i int, address string) error {
		refs, err := s.addressTxids(gCtx, address, query)
		if err != nil {
			return err
		}

		lists[i] = refs

		return nil
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[txRef]struct{})
	merged := make([]txRef, 0)

	for _, list := range lists {
		for _, ref := range list {
			if _, ok := seen[ref]; ok {
				continue
			}

			seen[ref] = struct{}{}
			merged = append(merged, ref)
		}
	}

	sortTxRefs(merged)

	return merged, nil
}

// addressTxids lists the distinct txids of one address, mempool first, without resolving
// the transactions.
func (s *Server) addressTxids(ctx context.Context, address string, query *QueryOptions) ([]txRef, error) {
	var (
		refs  []txRef
		seen  = make(map[chainhash.Hash]struct{})
		limit = s.settings.AddressIndex.HistoryQueryLimit
	)

	add := func(ref txRef) bool {
		if _, ok := seen[ref.TxID]; ok {
			return true
		}

		if limit > 0 && len(refs) >= limit {
			return false
		}

		seen[ref.TxID] = struct{}{}
		refs = append(refs, ref)

		return true
	}

	if query.includeMempool() {
		mempoolRefs, err := s.mempool.Refs(ctx, address, MempoolDirectionBoth)
		if err != nil {
			return nil, err
		}

		for _, ref := range mempoolRefs {
			if !add(ref) {
				return refs, nil
			}
		}
	}

	if query.MempoolOnly {
		return refs, nil
	}

	w, err := s.rangeQuery.resolveWindow(ctx, query)
	if err != nil {
		return nil, err
	}

	err = s.rangeQuery.ScanHistory(ctx, address, w, query.Reverse, func(k *HistoryKey) error {
		if !add(txRef{TxID: k.TxID, Height: k.Height}) {
			return errStopScan
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return refs, nil
}

func (s *Server) resolveRef(ctx context.Context, ref txRef) (*model.TxDetail, error) {
	if !ref.confirmed() {
		return resolveDetail(s.mempool.Resolve(ctx, &ref.TxID))
	}

	return resolveDetail(s.txClient.GetDetailedTransaction(ctx, &ref.TxID))
}

// sortDetails orders transactions by height descending with unconfirmed transactions
// first, then by txid ascending.
func sortDetails(items []*model.TxDetail) {
	type keyedDetail struct {
		txid   chainhash.Hash
		detail *model.TxDetail
	}

	keyed := make([]keyedDetail, len(items))
	for i, item := range items {
		keyed[i] = keyedDetail{txid: item.TxID(), detail: item}
	}

	sort.SliceStable(keyed, func(i, j int) bool {
		if keyed[i].detail.Height != keyed[j].detail.Height {
			return keyed[i].detail.Height > keyed[j].detail.Height
		}

		return compareTxIDs(&keyed[i].txid, &keyed[j].txid) < 0
	})

	for i := range keyed {
		items[i] = keyed[i].detail
	}
}
