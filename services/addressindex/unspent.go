package addressindex

import (
	"context"
	"sort"
	"time"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/util"
	"github.com/ordishs/gocore"
	"golang.org/x/sync/errgroup"
)

// GetAddressUnspentOutputs returns the outputs paying the address that are not spent yet:
// unconfirmed outputs first, then the confirmed ones, ordered by confirmations.
func (s *Server) GetAddressUnspentOutputs(ctx context.Context, address string, opts *UnspentOptions) ([]*UnspentOutput, error) {
	start := gocore.CurrentTime()
	defer func() {
		s.stats.NewStat("GetAddressUnspentOutputs").AddTime(start)
		prometheusAddressIndexUnspent.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	if opts == nil {
		opts = NewUnspentOptions()
	}

	if _, err := s.encoding.UtxoPrefix(address); err != nil {
		return nil, err
	}

	var (
		results []*UnspentOutput
		limit   = s.settings.AddressIndex.UtxoQueryLimit
	)

	if opts.QueryMempool {
		unconfirmed, err := s.mempoolUnspent(ctx, address)
		if err != nil {
			return nil, err
		}

		results = append(results, unconfirmed...)
	}

	tip, err := s.blocks.GetBestHeight(ctx)
	if err != nil {
		return nil, errors.NewServiceError("[GetAddressUnspentOutputs] could not get best height", err)
	}

	err = s.rangeQuery.ScanUtxos(ctx, address, func(k *UtxoKey, v *UtxoValue) error {
		if limit > 0 && len(results) >= limit {
			return errStopScan
		}

		var confirmations uint32
		if tip >= v.Height {
			confirmations = tip - v.Height + 1
		}

		results = append(results, &UnspentOutput{
			Address:       address,
			TxID:          k.TxID,
			OutputIndex:   k.Index,
			Script:        v.Script,
			Satoshis:      v.Satoshis,
			Height:        v.Height,
			Timestamp:     v.Timestamp,
			Confirmations: confirmations,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confirmations < results[j].Confirmations
	})

	return results, nil
}

// mempoolUnspent lists the outputs of mempool transactions paying the address.
func (s *Server) mempoolUnspent(ctx context.Context, address string) ([]*UnspentOutput, error) {
	refs, err := s.mempool.Refs(ctx, address, MempoolDirectionOutput)
	if err != nil {
		return nil, err
	}

	perTx := make([][]*UnspentOutput, len(refs))

	g, gCtx := errgroup.WithContext(ctx)
	util.SafeSetLimit(g, s.settings.AddressIndex.MempoolConcurrency)

	for i, ref := range refs {
		g.Go(func() error {
			tx, err := s.mempoolClient.GetMempoolTransaction(gCtx, &ref.TxID)
			if err != nil {
				return err
			}

			if tx == nil {
				return errors.NewTxNotFoundError("[GetAddressUnspentOutputs] missing mempool tx %s", ref.TxID)
			}

			for vout, output := range tx.Outputs {
				if addr, ok := outputAddress(output, s.mainnet); !ok || addr != address {
					continue
				}

				perTx[i] = append(perTx[i], &UnspentOutput{
					Address:     address,
					TxID:        ref.TxID,
					OutputIndex: uint32(vout), //nolint:gosec // output count fits in uint32
					Script:      scriptBytes(output),
					Satoshis:    output.Satoshis,
					Height:      model.UnconfirmedHeight,
				})
			}

			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}

	var results []*UnspentOutput
	for _, outputs := range perTx {
		results = append(results, outputs...)
	}

	return results, nil
}
