package addressindex

import (
	"context"

	"github.com/alitto/pond/v2"
	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/puzpuzpuz/xsync/v4"
)

// SummaryCheckpointCache persists confirmed-only summaries so that a summary query only
// walks the history after the last checkpointed transaction. Refreshes after a capped
// summary run in the background, at most one per address.
type SummaryCheckpointCache struct {
	logger   ulogger.Logger
	encoding *Encoding
	store    kv.Store
	blocks   BlockClient
	txClient TransactionClient
	inFlight *xsync.Map[string, struct{}]
	pool     pond.Pool
}

func NewSummaryCheckpointCache(logger ulogger.Logger, encoding *Encoding, store kv.Store, blocks BlockClient, txClient TransactionClient, workers int) *SummaryCheckpointCache {
	initPrometheusMetrics()

	if workers <= 0 {
		workers = 1
	}

	return &SummaryCheckpointCache{
		logger:   logger,
		encoding: encoding,
		store:    store,
		blocks:   blocks,
		txClient: txClient,
		inFlight: xsync.NewMap[string, struct{}](),
		pool:     pond.NewPool(workers),
	}
}

// Load returns the checkpoint of the address, or nil when there is none. A checkpoint
// whose anchor is no longer part of the chain is deleted and nil is returned.
func (c *SummaryCheckpointCache) Load(ctx context.Context, address string) (*Checkpoint, error) {
	key, err := c.encoding.EncodeCheckpointKey(address)
	if err != nil {
		return nil, err
	}

	value, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			prometheusAddressIndexCheckpointMisses.Inc()
			return nil, nil
		}

		return nil, err
	}

	cp, err := c.encoding.DecodeCheckpointValue(value)
	if err != nil {
		return nil, err
	}

	if err = c.validate(ctx, cp); err != nil {
		if !errors.Is(err, errors.ErrStaleCheckpoint) {
			return nil, err
		}

		c.logger.Debugf("[SummaryCheckpointCache] discarding checkpoint of %s: %v", address, err)
		prometheusAddressIndexCheckpointStale.Inc()

		if err = c.store.Delete(ctx, key); err != nil {
			return nil, err
		}

		return nil, nil
	}

	prometheusAddressIndexCheckpointHits.Inc()

	return cp, nil
}

// validate checks that the anchor block is still part of the chain and that the anchor
// transaction is confirmed in it.
func (c *SummaryCheckpointCache) validate(ctx context.Context, cp *Checkpoint) error {
	block, err := c.blocks.GetBlock(ctx, &cp.LastBlockHash)
	if err != nil {
		if errors.Is(err, errors.ErrBlockNotFound) || errors.Is(err, errors.ErrNotFound) {
			return errors.NewStaleCheckpointError("anchor block %s not found", cp.LastBlockHash, err)
		}

		return err
	}

	if block == nil {
		return errors.NewStaleCheckpointError("anchor block %s not found", cp.LastBlockHash)
	}

	detail, err := c.txClient.GetTransaction(ctx, &cp.LastTxID)
	if err != nil {
		if errors.Is(err, errors.ErrTxNotFound) || errors.Is(err, errors.ErrNotFound) {
			return errors.NewStaleCheckpointError("anchor tx %s not found", cp.LastTxID, err)
		}

		return err
	}

	if detail == nil || !detail.Confirmed() {
		return errors.NewStaleCheckpointError("anchor tx %s is not confirmed", cp.LastTxID)
	}

	if detail.BlockHash != nil && !detail.BlockHash.IsEqual(&cp.LastBlockHash) {
		return errors.NewStaleCheckpointError("anchor tx %s moved to block %s", cp.LastTxID, detail.BlockHash)
	}

	return nil
}

func (c *SummaryCheckpointCache) Store(ctx context.Context, address string, cp *Checkpoint) error {
	key, err := c.encoding.EncodeCheckpointKey(address)
	if err != nil {
		return err
	}

	return c.store.Put(ctx, key, c.encoding.EncodeCheckpointValue(cp))
}

func (c *SummaryCheckpointCache) Delete(ctx context.Context, address string) error {
	key, err := c.encoding.EncodeCheckpointKey(address)
	if err != nil {
		return err
	}

	return c.store.Delete(ctx, key)
}

// Refreshing reports whether a background refresh of the address is running.
func (c *SummaryCheckpointCache) Refreshing(address string) bool {
	_, ok := c.inFlight.Load(address)

	return ok
}

// ScheduleRefresh runs fn on the refresh pool unless a refresh of the address is already
// in flight. It reports whether fn was scheduled.
func (c *SummaryCheckpointCache) ScheduleRefresh(address string, fn func()) bool {
	if _, loaded := c.inFlight.LoadOrStore(address, struct{}{}); loaded {
		return false
	}

	err := c.pool.Go(func() {
		defer c.inFlight.Delete(address)

		fn()
	})
	if err != nil {
		c.inFlight.Delete(address)
		c.logger.Debugf("[SummaryCheckpointCache] refresh of %s not scheduled: %v", address, err)

		return false
	}

	return true
}

// Stop waits for the running refreshes and rejects new ones.
func (c *SummaryCheckpointCache) Stop() {
	c.pool.StopAndWait()
}
