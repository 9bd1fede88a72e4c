package addressindex

import (
	"context"
	"net/http"
	"time"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/settings"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/bsv-blockchain/addressindex/util/health"
	"github.com/google/uuid"
	"github.com/ordishs/gocore"
	"go.uber.org/atomic"
)

// Server is the address index. It owns the index store and is fed connected and
// disconnected blocks by the node.
type Server struct {
	logger        ulogger.Logger
	settings      *settings.Settings
	store         kv.Store
	blocks        BlockClient
	txClient      TransactionClient
	mempoolClient MempoolClient
	timestamps    TimestampClient

	mainnet     bool
	encoding    *Encoding
	applier     *BlockApplier
	rangeQuery  *RangeQueryEngine
	mempool     *MempoolOverlay
	checkpoints *SummaryCheckpointCache
	txidLists   *TxidListCache
	stats       *gocore.Stat

	blocksConnected    atomic.Uint64
	blocksDisconnected atomic.Uint64
	stopped            atomic.Bool
}

func New(
	logger ulogger.Logger,
	tSettings *settings.Settings,
	store kv.Store,
	blocks BlockClient,
	txClient TransactionClient,
	mempoolClient MempoolClient,
	timestamps TimestampClient,
) *Server {
	initPrometheusMetrics()

	cfg := tSettings.AddressIndex
	encoding := NewEncoding(cfg.ServicePrefix)
	mainnet := tSettings.IsMainnet()

	s := &Server{
		logger:        logger,
		settings:      tSettings,
		store:         store,
		blocks:        blocks,
		txClient:      txClient,
		mempoolClient: mempoolClient,
		timestamps:    timestamps,
		mainnet:       mainnet,
		encoding:      encoding,
		applier:       NewBlockApplier(logger, encoding, txClient, timestamps, mainnet),
		rangeQuery:    NewRangeQueryEngine(logger, encoding, store, txClient),
		mempool:       NewMempoolOverlay(mempoolClient, txClient),
		txidLists:     NewTxidListCache(cfg.TxidListCacheItems, cfg.TxidListCacheTTL, cfg.TxidListCacheMin),
		stats:         gocore.NewStat("addressindex"),
	}

	if cfg.CheckpointEnabled {
		s.checkpoints = NewSummaryCheckpointCache(logger, encoding, store, blocks, txClient, cfg.CheckpointRefreshWorkers)
	}

	return s
}

func (s *Server) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	prometheusAddressIndexHealth.Inc()

	if checkLiveness {
		if s.stopped.Load() {
			return http.StatusServiceUnavailable, "stopped", nil
		}

		return http.StatusOK, "OK", nil
	}

	checks := make([]health.Check, 0, 1)
	if s.store != nil {
		checks = append(checks, health.Check{Name: "AddressIndexStore", Check: s.store.Health})
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}

func (s *Server) Init(_ context.Context) error {
	initPrometheusMetrics()

	return nil
}

// Start blocks until the context is done. The index is driven through ProcessBlock and
// ProcessReorg, so there is no background loop to run.
func (s *Server) Start(ctx context.Context, readyCh chan<- struct{}) error {
	s.logger.Infof("[AddressIndex] starting with service prefix %04x, mainnet %t", s.settings.AddressIndex.ServicePrefix, s.mainnet)

	if readyCh != nil {
		close(readyCh)
	}

	<-ctx.Done()

	return nil
}

func (s *Server) Stop(_ context.Context) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	if s.checkpoints != nil {
		s.checkpoints.Stop()
	}

	s.txidLists.Stop()

	s.logger.Infof("[AddressIndex] stopped after %d connected and %d disconnected blocks", s.blocksConnected.Load(), s.blocksDisconnected.Load())

	return nil
}

// OnBlockConnected returns the operations indexing the block without committing them.
func (s *Server) OnBlockConnected(ctx context.Context, block *model.Block) ([]kv.Operation, error) {
	start := gocore.CurrentTime()
	defer func() {
		s.stats.NewStat("OnBlockConnected").AddTime(start)
		prometheusAddressIndexApplyBlock.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	return s.applier.ApplyBlock(ctx, block)
}

// OnReorg returns the operations reverting the disconnected blocks, most recent first.
func (s *Server) OnReorg(ctx context.Context, disconnected []*model.Block) ([]kv.Operation, error) {
	start := gocore.CurrentTime()
	defer func() {
		s.stats.NewStat("OnReorg").AddTime(start)
		prometheusAddressIndexUndoBlocks.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	return s.applier.UndoBlocks(ctx, disconnected)
}

// ProcessBlock indexes the block and commits the operations in one batch.
func (s *Server) ProcessBlock(ctx context.Context, block *model.Block) error {
	ops, err := s.OnBlockConnected(ctx, block)
	if err != nil {
		return err
	}

	if err = s.store.Write(ctx, ops); err != nil {
		return err
	}

	prometheusAddressIndexOperations.Add(float64(len(ops)))
	s.blocksConnected.Inc()

	s.logger.Debugf("[AddressIndex] indexed block %s at height %d with %d operations", block.Hash(), block.Height, len(ops))

	return nil
}

// ProcessReorg reverts the disconnected blocks and commits the operations in one batch.
func (s *Server) ProcessReorg(ctx context.Context, disconnected []*model.Block) error {
	ops, err := s.OnReorg(ctx, disconnected)
	if err != nil {
		return err
	}

	if err = s.store.Write(ctx, ops); err != nil {
		return err
	}

	prometheusAddressIndexOperations.Add(float64(len(ops)))
	s.blocksDisconnected.Add(uint64(len(disconnected)))

	s.logger.Infof("[AddressIndex] reverted %d blocks with %d operations", len(disconnected), len(ops))

	return nil
}

// GetAddressSummary returns the balance and activity of the address. Forward queries
// without cursors start from the address checkpoint when there is a valid one.
func (s *Server) GetAddressSummary(ctx context.Context, address string, opts *SummaryOptions) (*SummaryResult, error) {
	start := gocore.CurrentTime()
	defer func() {
		s.stats.NewStat("GetAddressSummary").AddTime(start)
		prometheusAddressIndexSummary.Observe(float64(time.Since(start).Microseconds()) / 1_000_000)
	}()

	if opts == nil {
		opts = NewSummaryOptions()
	}

	if _, err := s.encoding.HistoryPrefix(address); err != nil {
		return nil, err
	}

	var (
		query      = opts.QueryOptions
		limit      = s.settings.AddressIndex.SummaryQueryLimit
		agg        = NewSummaryAggregator(address, s.mainnet, limit, opts.NoTxList)
		checkpoint *Checkpoint
		err        error
	)

	useCheckpoint := s.checkpoints != nil && checkpointable(&query)

	if useCheckpoint {
		checkpoint, err = s.checkpoints.Load(ctx, address)
		if err != nil {
			if errors.Is(err, errors.ErrMalformedRecord) {
				return nil, err
			}

			s.logger.Warnf("[GetAddressSummary] could not load checkpoint of %s, recomputing: %v", address, err)
			checkpoint = nil
		}

		if checkpoint != nil {
			agg.Seed(checkpoint)

			lastTxID := checkpoint.LastTxID
			query.After = &lastTxID
		}
	}

	count := 0

	err = s.streamAddress(ctx, address, &query, func(detail *model.TxDetail) error {
		count++

		agg.Add(detail)

		if opts.OnTx != nil {
			if err := opts.OnTx(detail); err != nil {
				return err
			}
		}

		if limit > 0 && count >= limit {
			agg.SetIncomplete()
			return errStopScan
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if useCheckpoint {
		s.updateCheckpoint(ctx, address, checkpoint, agg)
	}

	return agg.Result(), nil
}

// checkpointable reports whether the query walks the full confirmed history forward, the
// only query whose totals a checkpoint can seed or record.
func checkpointable(query *QueryOptions) bool {
	return query.After == nil && query.Before == nil &&
		!query.Reverse && !query.MempoolOnly &&
		query.StartHeight == 0 && query.EndHeight == 0
}

// updateCheckpoint refreshes the checkpoint in the background after a capped summary, or
// moves an existing checkpoint forward after a complete one.
func (s *Server) updateCheckpoint(ctx context.Context, address string, previous *Checkpoint, agg *SummaryAggregator) {
	if agg.Incomplete() {
		seed, ok := agg.Checkpoint()
		if !ok {
			seed = nil
		}

		refreshID := uuid.New().String()
		bgCtx := context.WithoutCancel(ctx)

		if s.checkpoints.ScheduleRefresh(address, func() {
			if err := s.refreshCheckpoint(bgCtx, address, seed); err != nil {
				s.logger.Errorf("[SummaryCheckpointCache] refresh %s of %s failed: %v", refreshID, address, err)
			}
		}) {
			s.logger.Debugf("[SummaryCheckpointCache] scheduled refresh %s of %s", refreshID, address)
		}

		return
	}

	if previous == nil {
		return
	}

	lastTxID := agg.LastTxID()
	if lastTxID == nil || lastTxID.IsEqual(&previous.LastTxID) || s.checkpoints.Refreshing(address) {
		return
	}

	cp, ok := agg.Checkpoint()
	if !ok {
		return
	}

	if err := s.checkpoints.Store(ctx, address, cp); err != nil {
		s.logger.Warnf("[SummaryCheckpointCache] could not store checkpoint of %s: %v", address, err)
		return
	}

	prometheusAddressIndexCheckpointStored.Inc()
}

// refreshCheckpoint walks the confirmed history of the address after the seed and stores
// the resulting checkpoint.
func (s *Server) refreshCheckpoint(ctx context.Context, address string, seed *Checkpoint) error {
	agg := NewSummaryAggregator(address, s.mainnet, 0, true)
	query := QueryOptions{QueryMempool: false}

	if seed != nil {
		agg.Seed(seed)

		lastTxID := seed.LastTxID
		query.After = &lastTxID
	}

	err := s.streamAddress(ctx, address, &query, func(detail *model.TxDetail) error {
		agg.Add(detail)
		return nil
	})
	if err != nil {
		return err
	}

	cp, ok := agg.Checkpoint()
	if !ok {
		return nil
	}

	if err = s.checkpoints.Store(ctx, address, cp); err != nil {
		return err
	}

	prometheusAddressIndexCheckpointStored.Inc()

	return nil
}
