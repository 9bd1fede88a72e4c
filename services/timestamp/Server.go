// Package timestamp indexes the timestamp of every connected block. Timestamps are made
// strictly increasing along the chain so that they can be used as a time cursor, and a
// reverse index maps a timestamp range back to block hashes.
package timestamp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/settings"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/bsv-blockchain/addressindex/util/health"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/jellydator/ttlcache/v3"
	"github.com/ordishs/gocore"
	"go.uber.org/atomic"
)

type Server struct {
	logger   ulogger.Logger
	settings *settings.Settings
	store    kv.Store
	encoding *Encoding
	cache    *ttlcache.Cache[chainhash.Hash, uint32]
	stats    *gocore.Stat

	// mu serializes block processing so that lastTimestamp follows the committed tip
	mu            sync.Mutex
	lastTimestamp uint32

	blocksProcessed atomic.Uint64
}

func New(logger ulogger.Logger, tSettings *settings.Settings, store kv.Store) *Server {
	initPrometheusMetrics()

	return &Server{
		logger:   logger,
		settings: tSettings,
		store:    store,
		encoding: NewEncoding(tSettings.Timestamp.ServicePrefix),
		cache: ttlcache.New[chainhash.Hash, uint32](
			ttlcache.WithCapacity[chainhash.Hash, uint32](tSettings.Timestamp.CacheSize),
		),
		stats: gocore.NewStat("timestamp"),
	}
}

func (s *Server) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	checks := make([]health.Check, 0, 1)
	if s.store != nil {
		checks = append(checks, health.Check{Name: "TimestampStore", Check: s.store.Health})
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}

// Init loads the timestamp of the current tip from the store.
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.latestTimestamp(ctx)
	if err != nil {
		return err
	}

	s.lastTimestamp = last

	s.logger.Infof("[Timestamp] initialised, last block timestamp %d", last)

	return nil
}

func (s *Server) Start(ctx context.Context, readyCh chan<- struct{}) error {
	if readyCh != nil {
		close(readyCh)
	}

	<-ctx.Done()

	return nil
}

func (s *Server) Stop(_ context.Context) error {
	s.logger.Infof("[Timestamp] stopped after %d blocks", s.blocksProcessed.Load())

	return nil
}

// OnBlockConnected returns the operations indexing the block timestamp. A timestamp that
// does not move past the previous block's is replaced by the previous one plus one.
func (s *Server) OnBlockConnected(_ context.Context, block *model.Block) ([]kv.Operation, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.blockOps(block)
}

func (s *Server) blockOps(block *model.Block) ([]kv.Operation, uint32) {
	ts := block.Timestamp()
	if ts <= s.lastTimestamp {
		ts = s.lastTimestamp + 1
	}

	return []kv.Operation{
		kv.Put(s.encoding.EncodeBlockTimestampKey(block.Hash()), s.encoding.EncodeBlockTimestampValue(ts)),
		kv.Put(s.encoding.EncodeTimestampBlockKey(ts), s.encoding.EncodeTimestampBlockValue(block.Hash())),
	}, ts
}

// ProcessBlock indexes the block timestamp and makes it the new tip.
func (s *Server) ProcessBlock(ctx context.Context, block *model.Block) error {
	start := gocore.CurrentTime()
	defer func() {
		s.stats.NewStat("ProcessBlock").AddTime(start)
		prometheusTimestampProcessBlock.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	ops, ts := s.blockOps(block)

	if err := s.store.Write(ctx, ops); err != nil {
		return err
	}

	s.lastTimestamp = ts
	s.cache.Set(*block.Hash(), ts, ttlcache.DefaultTTL)
	s.blocksProcessed.Inc()

	if ts != block.Timestamp() {
		s.logger.Debugf("[Timestamp] block %s timestamp %d raised to %d", block.Hash(), block.Timestamp(), ts)
	}

	return nil
}

// OnReorg returns the operations removing the timestamps of the disconnected blocks. A
// block without a timestamp is an error: it was never indexed.
func (s *Server) OnReorg(ctx context.Context, disconnected []*model.Block) ([]kv.Operation, error) {
	ops := make([]kv.Operation, 0, 2*len(disconnected))

	for _, block := range disconnected {
		ts, err := s.GetTimestamp(ctx, block.Hash())
		if err != nil {
			return nil, err
		}

		ops = append(ops,
			kv.Del(s.encoding.EncodeBlockTimestampKey(block.Hash())),
			kv.Del(s.encoding.EncodeTimestampBlockKey(ts)),
		)
	}

	return ops, nil
}

// ProcessReorg removes the timestamps of the disconnected blocks. It must run after every
// index that still needs them to revert the same blocks.
func (s *Server) ProcessReorg(ctx context.Context, disconnected []*model.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops, err := s.OnReorg(ctx, disconnected)
	if err != nil {
		return err
	}

	if err = s.store.Write(ctx, ops); err != nil {
		return err
	}

	for _, block := range disconnected {
		s.cache.Delete(*block.Hash())
	}

	if s.lastTimestamp, err = s.latestTimestamp(ctx); err != nil {
		return err
	}

	s.logger.Infof("[Timestamp] reverted %d blocks, last block timestamp %d", len(disconnected), s.lastTimestamp)

	return nil
}

// GetTimestamp returns the indexed timestamp of the block, ERR_BLOCK_NOT_FOUND when it
// has none.
func (s *Server) GetTimestamp(ctx context.Context, hash *chainhash.Hash) (uint32, error) {
	if item := s.cache.Get(*hash); item != nil {
		prometheusTimestampCacheHits.Inc()
		return item.Value(), nil
	}

	value, err := s.store.Get(ctx, s.encoding.EncodeBlockTimestampKey(hash))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return 0, errors.NewBlockNotFoundError("[Timestamp] no timestamp for block %s", hash)
		}

		return 0, err
	}

	ts, err := s.encoding.DecodeBlockTimestampValue(value)
	if err != nil {
		return 0, err
	}

	s.cache.Set(*hash, ts, ttlcache.DefaultTTL)

	return ts, nil
}

// GetTimestampSync is GetTimestamp for callers that cannot handle an error.
func (s *Server) GetTimestampSync(hash *chainhash.Hash) (uint32, bool) {
	ts, err := s.GetTimestamp(context.Background(), hash)
	if err != nil {
		if !errors.Is(err, errors.ErrBlockNotFound) {
			s.logger.Warnf("[Timestamp] could not get timestamp of block %s: %v", hash, err)
		}

		return 0, false
	}

	return ts, true
}

// GetBlockHashesByTimestamp returns the hashes of the blocks with a timestamp between low
// and high inclusive, oldest first.
func (s *Server) GetBlockHashesByTimestamp(ctx context.Context, low, high uint32) ([]chainhash.Hash, error) {
	if low > high {
		return nil, errors.NewInvalidArgumentError("low timestamp %d is above high timestamp %d", low, high)
	}

	it := s.store.Scan(ctx, kv.ScanOptions{
		GTE: s.encoding.EncodeTimestampBlockKey(low),
		LTE: s.encoding.EncodeTimestampBlockKey(high),
	})
	defer it.Release()

	hashes := make([]chainhash.Hash, 0)

	for it.Next() {
		hash, err := s.encoding.DecodeTimestampBlockValue(it.Value())
		if err != nil {
			return nil, err
		}

		hashes = append(hashes, hash)
	}

	if err := it.Err(); err != nil {
		return nil, err
	}

	return hashes, nil
}

// latestTimestamp reads the highest indexed timestamp, zero when there is none.
func (s *Server) latestTimestamp(ctx context.Context) (uint32, error) {
	it := s.store.Scan(ctx, kv.ScanOptions{
		GTE:     s.encoding.EncodeTimestampBlockKey(0),
		LTE:     s.encoding.EncodeTimestampBlockKey(0xffffffff),
		Reverse: true,
	})
	defer it.Release()

	if !it.Next() {
		return 0, it.Err()
	}

	return s.encoding.DecodeTimestampBlockKey(it.Key())
}
