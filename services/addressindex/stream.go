package addressindex

import (
	"context"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"golang.org/x/sync/errgroup"
)

// streamAddress delivers every distinct transaction touching the address to fn exactly
// once. A producer walks the confirmed index and the mempool in query order while the
// caller's goroutine resolves sightings through a DedupQueue. fn returning errStopScan
// ends the stream without error; the producer and its store iterator are stopped either
// way before streamAddress returns.
func (s *Server) streamAddress(ctx context.Context, address string, opts *QueryOptions, fn func(*model.TxDetail) error) error {
	if _, err := s.encoding.HistoryPrefix(address); err != nil {
		return err
	}

	w, err := s.rangeQuery.resolveWindow(ctx, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	refs := make(chan txRef, s.settings.AddressIndex.DedupQueueSize)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(refs)

		return s.produceRefs(gCtx, address, opts, w, refs)
	})

	var (
		queue      = NewDedupQueue(address, s.mainnet, s.txClient, s.mempool)
		consumeErr error
		stopped    bool
	)

	for ref := range refs {
		if stopped {
			// drain until the producer observes the cancellation
			continue
		}

		// a cancelled query resolves nothing more
		err := ctx.Err()
		if err == nil {
			var detail *model.TxDetail

			if detail, err = queue.Push(ctx, ref); err == nil && detail != nil {
				err = fn(detail)
			}
		}

		if err != nil {
			stopped = true

			if err != errStopScan { //nolint:errorlint // never wrapped
				consumeErr = err
			}

			cancel()
		}
	}

	produceErr := g.Wait()

	if consumeErr != nil {
		return consumeErr
	}

	if stopped {
		return nil
	}

	return produceErr
}

// produceRefs sends the sightings of the address: mempool then confirmed history when
// walking in reverse, confirmed history then mempool otherwise.
func (s *Server) produceRefs(ctx context.Context, address string, opts *QueryOptions, w *historyWindow, out chan<- txRef) error {
	send := func(ref txRef) error {
		select {
		case out <- ref:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	sendMempool := func() error {
		if !opts.includeMempool() {
			return nil
		}

		refs, err := s.mempool.Refs(ctx, address, MempoolDirectionBoth)
		if err != nil {
			return err
		}

		for _, ref := range refs {
			if err = send(ref); err != nil {
				return err
			}
		}

		return nil
	}

	if opts.Reverse {
		if err := sendMempool(); err != nil {
			return err
		}
	}

	if !opts.MempoolOnly {
		err := s.rangeQuery.ScanHistory(ctx, address, w, opts.Reverse, func(k *HistoryKey) error {
			return send(txRef{TxID: k.TxID, Height: k.Height})
		})
		if err != nil {
			return err
		}
	}

	if !opts.Reverse {
		return sendMempool()
	}

	return nil
}

// resolveDetail guards against collaborators answering without a transaction.
func resolveDetail(detail *model.TxDetail, err error) (*model.TxDetail, error) {
	if err != nil {
		return nil, err
	}

	if detail == nil || detail.Tx == nil {
		return nil, errors.NewTxNotFoundError("transaction resolved without a body")
	}

	return detail, nil
}
